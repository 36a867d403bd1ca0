// Package otaclient downloads firmware from a firmware server and
// writes it into a local OTA slot file. The slot is replaced
// atomically: the new image is written beside it and swapped in, and
// the old image is restored if the swap fails. SlotSet rotates
// updates between the two slots ota_0 and ota_1.
package otaclient

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/golang/glog"
	update "github.com/inconshreveable/go-update"
	"github.com/pkg/errors"
)

const slotMode = 0644

var (
	ErrFirmwareNotFound = errors.New("otaclient: firmware not found on server")
	ErrUnexpectedStatus = errors.New("otaclient: unexpected status code")
	ErrLengthMismatch   = errors.New("otaclient: body length does not match Content-Length")
	ErrApplyUpdate      = errors.New("otaclient: failed to apply update")
	ErrNoTarget         = errors.New("otaclient: no target path")
)

type Client struct {
	URL string
	// TargetPath is the slot file that receives the firmware.
	TargetPath string
	HTTPClient *http.Client
}

func NewClient(url, targetPath string) *Client {
	return &Client{
		URL:        url,
		TargetPath: targetPath,
		HTTPClient: http.DefaultClient,
	}
}

// Fetch returns an open io.ReadCloser and the announced content
// length, -1 if unknown. If error is nil, caller has to close the
// io.ReadCloser.
func (c *Client) Fetch(ctx context.Context) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to create request for %s", c.URL)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to get %s", c.URL)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, errors.Wrap(ErrFirmwareNotFound, c.URL)
	default:
		resp.Body.Close()
		return nil, 0, errors.Wrapf(ErrUnexpectedStatus, "%s answered %d", c.URL, resp.StatusCode)
	}
}

// Update fetches the firmware and writes it into TargetPath. It
// returns the number of bytes received.
func (c *Client) Update(ctx context.Context) (int64, error) {
	if c.TargetPath == "" {
		return 0, ErrNoTarget
	}
	return c.update(ctx, c.TargetPath)
}

func (c *Client) update(ctx context.Context, target string) (int64, error) {
	rc, length, err := c.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	glog.Infof("Content length: %d", length)

	created, err := ensureSlot(target)
	if err != nil {
		return 0, err
	}

	body := &lengthReader{r: rc, want: length}
	err = update.Apply(body, update.Options{
		TargetPath: target,
		TargetMode: slotMode,
	})
	if err != nil {
		if created {
			removeSlot(target)
		}
		if rerr := update.RollbackError(err); rerr != nil {
			return body.n, errors.Wrapf(err, "%s, rollback failed too: %v", ErrApplyUpdate, rerr)
		}
		return body.n, errors.Wrap(err, ErrApplyUpdate.Error())
	}
	glog.Infof("Wrote %d bytes to %s", body.n, target)
	return body.n, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

// ensureSlot creates an empty slot file, go-update only replaces
// existing files. created reports whether the file was new.
func ensureSlot(fpath string) (created bool, err error) {
	fd, err := os.OpenFile(fpath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, slotMode)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to create slot %s", fpath)
	}
	return true, fd.Close()
}

// removeSlot drops a slot that ensureSlot created for a failed update.
func removeSlot(fpath string) {
	if err := os.Remove(fpath); err != nil && !os.IsNotExist(err) {
		glog.Errorf("Failed to remove empty slot %s: %v", fpath, err)
	}
}

// lengthReader fails the read that proves the body length differs
// from want. want < 0 disables the check.
type lengthReader struct {
	r    io.Reader
	want int64
	n    int64
}

func (lr *lengthReader) Read(p []byte) (int, error) {
	n, err := lr.r.Read(p)
	lr.n += int64(n)
	if lr.want < 0 {
		return n, err
	}
	if lr.n > lr.want {
		return n, errors.Wrapf(ErrLengthMismatch, "got more than %d bytes", lr.want)
	}
	if err == io.EOF && lr.n != lr.want {
		return n, errors.Wrapf(ErrLengthMismatch, "got %d of %d bytes", lr.n, lr.want)
	}
	return n, err
}
