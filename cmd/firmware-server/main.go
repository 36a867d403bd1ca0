package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/golang/glog"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/szuecs/firmware-server/api"
	"github.com/szuecs/firmware-server/conf"
)

var (
	//Buildstamp is used for storing the timestamp of the build
	Buildstamp string = "Not set"
	//Githash is used for storing the commit hash of the build
	Githash string = "Not set"
	// Version is used to store the tagged version of the build
	Version string = "Not set"
)

func main() {
	// .env has to be exported before kingpin reads the Envar defaults
	if err := conf.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var (
		address      = &conf.OptionalString{}
		port         = &conf.OptionalInt{}
		monitorPort  = &conf.OptionalInt{}
		firmwarePath = &conf.OptionalString{}
		debug        = &conf.OptionalBool{}
		profiling    = &conf.OptionalBool{}
		watch        = &conf.OptionalBool{}
		configFile   = kingpin.Flag("config", "YAML config file, defaults to ~/.config/firmware-server/config.yaml").String()
		verbosity    = kingpin.Flag("verbosity", "glog verbosity level").Short('v').Default("0").Int()
		_            = kingpin.Command("serve", "serve firmware").Default()
		_            = kingpin.Command("version", "show version")
	)
	kingpin.Flag("address", "Address to bind, empty binds all interfaces").Envar("FIRMWARE_ADDRESS").SetValue(address)
	kingpin.Flag("port", "Port to serve /firmware on").Envar("FIRMWARE_PORT").SetValue(port)
	kingpin.Flag("monitor-port", "Port to serve monitor aspects on, 0 disables the monitor").Envar("FIRMWARE_MONITOR_PORT").SetValue(monitorPort)
	kingpin.Flag("firmware", "Path of the firmware file to serve").Envar("FIRMWARE_PATH").SetValue(firmwarePath)
	kingpin.Flag("debug", "enable debug mode, --no-debug disables it").Envar("FIRMWARE_DEBUG").SetValue(debug)
	kingpin.Flag("profiling", "enable /debug/pprof endpoints").Envar("FIRMWARE_PROFILING").SetValue(profiling)
	kingpin.Flag("watch", "watch the firmware file for changes, --no-watch disables it").Envar("FIRMWARE_WATCH").SetValue(watch)
	cmd := kingpin.Parse()

	// glog reads its settings from the standard flag set
	flag.Set("logtostderr", "true")
	flag.Set("v", strconv.Itoa(*verbosity))
	flag.CommandLine.Parse([]string{})
	defer glog.Flush()

	if cmd == "version" {
		fmt.Printf(`%s Version: %s
================================
    Buildtime: %s
    GitHash: %s
`, path.Base(os.Args[0]), Version, Buildstamp, Githash)
		os.Exit(0)
	}

	cfg, err := conf.Load(conf.Overrides{
		ConfigFile:   *configFile,
		Address:      address.Value,
		Port:         port.Value,
		MonitorPort:  monitorPort.Value,
		FirmwarePath: firmwarePath.Value,
		Debug:        debug.Value,
		Profiling:    profiling.Value,
		Watch:        watch.Value,
	})
	if err != nil {
		glog.Exitf("Can not load configuration, caused by: %v", err)
	}
	if cfg.DebugEnabled {
		glog.Infof("Config: %+v", cfg)
	}

	svc := api.NewService(cfg)
	if err := svc.Run(); err != nil {
		glog.Exitf("Can not serve, caused by: %v", err)
	}
}
