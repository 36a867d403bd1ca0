package otaclient

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szuecs/firmware-server/api"
	"github.com/szuecs/firmware-server/conf"
)

// newFirmwareServer runs the real router. content nil leaves the
// firmware absent.
func newFirmwareServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.ReleaseMode)
	cfg := conf.New()
	cfg.FirmwarePath = filepath.Join(t.TempDir(), "firmware.bin")
	if content != nil {
		require.NoError(t, ioutil.WriteFile(cfg.FirmwarePath, content, 0o644))
	}
	ts := httptest.NewServer(api.NewService(cfg).Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Update(t *testing.T) {
	ts := newFirmwareServer(t, []byte{0x01, 0x02, 0x03})
	slot := filepath.Join(t.TempDir(), "ota_0")

	n, err := NewClient(ts.URL+"/firmware", slot).Update(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), n)
	got, err := ioutil.ReadFile(slot)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got)
}

func TestClient_UpdateReplacesSlot(t *testing.T) {
	ts := newFirmwareServer(t, []byte("new image"))
	slot := filepath.Join(t.TempDir(), "ota_1")
	require.NoError(t, ioutil.WriteFile(slot, []byte("old image, longer than the new one"), 0o644))

	_, err := NewClient(ts.URL+"/firmware", slot).Update(context.Background())
	require.NoError(t, err)

	got, err := ioutil.ReadFile(slot)
	require.NoError(t, err)
	assert.Equal(t, "new image", string(got))

	// no leftovers of the swap
	files, err := filepath.Glob(filepath.Join(filepath.Dir(slot), ".ota_1.*"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestClient_UpdateNotFound(t *testing.T) {
	ts := newFirmwareServer(t, nil)
	slot := filepath.Join(t.TempDir(), "ota_0")
	require.NoError(t, ioutil.WriteFile(slot, []byte("running image"), 0o644))

	_, err := NewClient(ts.URL+"/firmware", slot).Update(context.Background())
	assert.Equal(t, ErrFirmwareNotFound, errors.Cause(err))

	got, err := ioutil.ReadFile(slot)
	require.NoError(t, err)
	assert.Equal(t, "running image", string(got))
}

func TestClient_UpdateWithoutTarget(t *testing.T) {
	_, err := NewClient("http://localhost:5000/firmware", "").Update(context.Background())
	assert.Equal(t, ErrNoTarget, err)
}

func TestClient_FetchUnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, _, err := NewClient(ts.URL, "").Fetch(context.Background())
	assert.Equal(t, ErrUnexpectedStatus, errors.Cause(err))
}

func TestClient_FetchCanceled(t *testing.T) {
	ts := newFirmwareServer(t, []byte("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewClient(ts.URL+"/firmware", "").Fetch(ctx)
	assert.Error(t, err)
}

func TestClient_FetchContentLength(t *testing.T) {
	ts := newFirmwareServer(t, []byte("abcdef"))

	rc, length, err := NewClient(ts.URL+"/firmware", "").Fetch(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, int64(6), length)
}

func TestLengthReader(t *testing.T) {
	for _, tc := range []struct {
		name    string
		body    string
		want    int64
		wantErr error
	}{
		{"exact", "abc", 3, nil},
		{"unknown length", "abc", -1, nil},
		{"short", "ab", 3, ErrLengthMismatch},
		{"long", "abcd", 3, ErrLengthMismatch},
		{"empty", "", 0, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			lr := &lengthReader{r: strings.NewReader(tc.body), want: tc.want}
			_, err := io.Copy(ioutil.Discard, lr)
			assert.Equal(t, tc.wantErr, errors.Cause(err))
		})
	}
}

func TestClient_UpdateLengthMismatchKeepsSlot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("abc"))
	}))
	defer ts.Close()
	slot := filepath.Join(t.TempDir(), "ota_0")
	require.NoError(t, ioutil.WriteFile(slot, []byte("running image"), 0o644))

	c := NewClient(ts.URL, slot)
	c.HTTPClient = &http.Client{Transport: lyingTransport{http.DefaultTransport}}
	_, err := c.Update(context.Background())
	assert.Equal(t, ErrLengthMismatch, errors.Cause(err))

	got, err := ioutil.ReadFile(slot)
	require.NoError(t, err)
	assert.Equal(t, "running image", string(got))
}

func TestClient_UpdateFailureRemovesNewSlot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("abc"))
	}))
	defer ts.Close()
	slot := filepath.Join(t.TempDir(), "ota_0")

	c := NewClient(ts.URL, slot)
	c.HTTPClient = &http.Client{Transport: lyingTransport{http.DefaultTransport}}
	_, err := c.Update(context.Background())
	assert.Equal(t, ErrLengthMismatch, errors.Cause(err))

	_, err = os.Stat(slot)
	assert.True(t, os.IsNotExist(err), "slot should not exist, got %v", err)
}

// lyingTransport announces one byte more than the server sent.
type lyingTransport struct {
	next http.RoundTripper
}

func (lt lyingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := lt.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.ContentLength++
	return resp, nil
}
