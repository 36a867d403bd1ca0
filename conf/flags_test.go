package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/alecthomas/kingpin.v2"
)

type testFlags struct {
	debug       OptionalBool
	monitorPort OptionalInt
	address     OptionalString
}

func newTestApp(f *testFlags) *kingpin.Application {
	app := kingpin.New("firmware-server", "")
	app.Flag("debug", "").Envar("FIRMWARE_TEST_DEBUG").SetValue(&f.debug)
	app.Flag("monitor-port", "").Envar("FIRMWARE_TEST_MONITOR_PORT").SetValue(&f.monitorPort)
	app.Flag("address", "").SetValue(&f.address)
	return app
}

func TestOptionalValues_Unset(t *testing.T) {
	var f testFlags
	_, err := newTestApp(&f).Parse(nil)
	require.NoError(t, err)

	assert.Nil(t, f.debug.Value)
	assert.Nil(t, f.monitorPort.Value)
	assert.Nil(t, f.address.Value)
}

func TestOptionalValues_Flags(t *testing.T) {
	var f testFlags
	_, err := newTestApp(&f).Parse([]string{"--no-debug", "--monitor-port", "0", "--address", "127.0.0.1"})
	require.NoError(t, err)

	require.NotNil(t, f.debug.Value)
	assert.False(t, *f.debug.Value)
	require.NotNil(t, f.monitorPort.Value)
	assert.Equal(t, 0, *f.monitorPort.Value)
	require.NotNil(t, f.address.Value)
	assert.Equal(t, "127.0.0.1", *f.address.Value)

	f = testFlags{}
	_, err = newTestApp(&f).Parse([]string{"--debug"})
	require.NoError(t, err)
	require.NotNil(t, f.debug.Value)
	assert.True(t, *f.debug.Value)
}

func TestOptionalValues_Envar(t *testing.T) {
	t.Setenv("FIRMWARE_TEST_DEBUG", "false")
	t.Setenv("FIRMWARE_TEST_MONITOR_PORT", "0")

	var f testFlags
	_, err := newTestApp(&f).Parse(nil)
	require.NoError(t, err)

	require.NotNil(t, f.debug.Value)
	assert.False(t, *f.debug.Value)
	require.NotNil(t, f.monitorPort.Value)
	assert.Equal(t, 0, *f.monitorPort.Value)
}

func TestOptionalValues_EnvarFalseBeatsFileTrue(t *testing.T) {
	t.Setenv("FIRMWARE_TEST_DEBUG", "false")
	var f testFlags
	_, err := newTestApp(&f).Parse(nil)
	require.NoError(t, err)

	cfg, err := Load(Overrides{
		ConfigFile: writeFile(t, "config.yaml", "debug_enabled: true\n"),
		Debug:      f.debug.Value,
	})
	require.NoError(t, err)
	assert.False(t, cfg.DebugEnabled)
}

func TestOptionalInt_Invalid(t *testing.T) {
	var i OptionalInt
	assert.Error(t, i.Set("nine"))
	assert.Nil(t, i.Value)
}
