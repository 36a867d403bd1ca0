// Package conf holds the configuration of the firmware server. Values
// are layered: built-in defaults, an optional YAML file, then
// environment variables and command line flags passed in as
// Overrides.
package conf

import (
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v1"
)

const (
	DefaultPort             = 5000
	DefaultMonitorPort      = 9000
	DefaultFirmwarePath     = "firmware.bin"
	DefaultLogFlushInterval = 3 * time.Second
)

var (
	ErrInvalidPort         = errors.New("port has to be in range 1..65535")
	ErrInvalidMonitorPort  = errors.New("monitor_port has to be 0 or in range 1..65535")
	ErrPortConflict        = errors.New("port and monitor_port have to differ")
	ErrFirmwarePathMissing = errors.New("firmware_path must not be empty")
	ErrInvalidFlushPeriod  = errors.New("log_flush_interval has to be positive")
)

// Config is the runtime configuration of the service.
type Config struct {
	DebugEnabled     bool
	ProfilingEnabled bool
	WatchEnabled     bool
	// Address to bind, empty means all interfaces.
	Address string
	Port    int
	// MonitorPort serves the go-monitor aspects, 0 disables it.
	MonitorPort      int
	FirmwarePath     string
	LogFlushInterval time.Duration
}

// fileConfig mirrors Config for the YAML file. Pointers tell unset
// keys apart from zero values.
type fileConfig struct {
	DebugEnabled     *bool   `yaml:"debug_enabled"`
	ProfilingEnabled *bool   `yaml:"profiling_enabled"`
	WatchEnabled     *bool   `yaml:"watch_enabled"`
	Address          *string `yaml:"address"`
	Port             *int    `yaml:"port"`
	MonitorPort      *int    `yaml:"monitor_port"`
	FirmwarePath     *string `yaml:"firmware_path"`
	LogFlushInterval *string `yaml:"log_flush_interval"`
}

// Overrides carries values from the command line and the
// environment. Nil fields are not set and leave the value alone, an
// explicit false or 0 is applied.
type Overrides struct {
	ConfigFile   string
	Address      *string
	Port         *int
	MonitorPort  *int
	FirmwarePath *string
	Debug        *bool
	Profiling    *bool
	Watch        *bool
}

// New returns a Config with the built-in defaults.
func New() *Config {
	return &Config{
		WatchEnabled:     true,
		Port:             DefaultPort,
		MonitorPort:      DefaultMonitorPort,
		FirmwarePath:     DefaultFirmwarePath,
		LogFlushInterval: DefaultLogFlushInterval,
	}
}

// DefaultConfigFile returns $HOME/.config/firmware-server/config.yaml
// or an empty string if there is no home directory.
func DefaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "firmware-server", "config.yaml")
}

// Load builds the effective configuration. An explicitly given config
// file has to exist, the default one is optional.
func Load(o Overrides) (*Config, error) {
	cfg := New()

	fname, required := o.ConfigFile, true
	if fname == "" {
		fname, required = DefaultConfigFile(), false
	}
	if fname != "" {
		if err := cfg.LoadFile(fname); err != nil {
			if required || !os.IsNotExist(errors.Cause(err)) {
				return nil, err
			}
		}
	}

	cfg.Apply(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the keys set in the YAML file into cfg.
func (cfg *Config) LoadFile(fname string) error {
	buf, err := ioutil.ReadFile(fname)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", fname)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", fname)
	}

	if fc.DebugEnabled != nil {
		cfg.DebugEnabled = *fc.DebugEnabled
	}
	if fc.ProfilingEnabled != nil {
		cfg.ProfilingEnabled = *fc.ProfilingEnabled
	}
	if fc.WatchEnabled != nil {
		cfg.WatchEnabled = *fc.WatchEnabled
	}
	if fc.Address != nil {
		cfg.Address = *fc.Address
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.MonitorPort != nil {
		cfg.MonitorPort = *fc.MonitorPort
	}
	if fc.FirmwarePath != nil {
		cfg.FirmwarePath = *fc.FirmwarePath
	}
	if fc.LogFlushInterval != nil {
		d, err := time.ParseDuration(*fc.LogFlushInterval)
		if err != nil {
			return errors.Wrapf(err, "invalid log_flush_interval in %s", fname)
		}
		cfg.LogFlushInterval = d
	}
	return nil
}

// Apply sets all non-nil values of o.
func (cfg *Config) Apply(o Overrides) {
	if o.Address != nil {
		cfg.Address = *o.Address
	}
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.MonitorPort != nil {
		cfg.MonitorPort = *o.MonitorPort
	}
	if o.FirmwarePath != nil {
		cfg.FirmwarePath = *o.FirmwarePath
	}
	if o.Debug != nil {
		cfg.DebugEnabled = *o.Debug
	}
	if o.Profiling != nil {
		cfg.ProfilingEnabled = *o.Profiling
	}
	if o.Watch != nil {
		cfg.WatchEnabled = *o.Watch
	}
}

func (cfg *Config) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.Wrapf(ErrInvalidPort, "got %d", cfg.Port)
	}
	if cfg.MonitorPort < 0 || cfg.MonitorPort > 65535 {
		return errors.Wrapf(ErrInvalidMonitorPort, "got %d", cfg.MonitorPort)
	}
	if cfg.MonitorPort == cfg.Port {
		return errors.Wrapf(ErrPortConflict, "both are %d", cfg.Port)
	}
	if cfg.FirmwarePath == "" {
		return ErrFirmwarePathMissing
	}
	if cfg.LogFlushInterval <= 0 {
		return errors.Wrapf(ErrInvalidFlushPeriod, "got %s", cfg.LogFlushInterval)
	}
	return nil
}

// ListenAddr returns the address handed to http.Server.
func (cfg *Config) ListenAddr() string {
	return net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
}

// LoadDotEnv exports the variables of a .env file into the process
// environment without replacing variables that are already set. A
// missing file is not an error.
func LoadDotEnv(fname string) error {
	err := godotenv.Load(fname)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load %s", fname)
	}
	return nil
}
