package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/golang/glog"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/szuecs/firmware-server/otaclient"
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
	var (
		debug   = kingpin.Flag("debug", "enable debug mode").Default("false").Bool()
		_       = kingpin.Command("version", "show version")
		fetch   = kingpin.Command("fetch", "download firmware into an OTA slot").Default()
		url     = fetch.Flag("url", "Firmware URL").Default("http://localhost:5000/firmware").String()
		target  = fetch.Flag("target", "Slot file that receives the firmware").String()
		slots   = fetch.Flag("slots-dir", "Directory with ota_0, ota_1 and boot, updates the slot that is not booted").String()
		timeout = fetch.Flag("timeout", "Timeout for the whole download").Default("5m").Duration()
	)
	cmd := kingpin.Parse()

	flag.Set("logtostderr", "true")
	if *debug {
		flag.Set("v", "2")
	}
	flag.CommandLine.Parse([]string{})
	defer glog.Flush()

	switch cmd {
	case "version":
		fmt.Printf(`%s Version: %s
================================
    Buildtime: %s
    GitHash: %s
`, path.Base(os.Args[0]), Version, Buildstamp, Githash)
		os.Exit(0)

	case fetch.FullCommand():
		glog.Infof("use %s", *url)
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		if (*target == "") == (*slots == "") {
			kingpin.Fatalf("exactly one of --target and --slots-dir is required")
		}
		client := otaclient.NewClient(*url, *target)

		if *slots != "" {
			slot, n, err := client.UpdateSlots(ctx, &otaclient.SlotSet{Dir: *slots})
			if err != nil {
				glog.Exitf("Failed to update slot %s in %s: %v", slot, *slots, err)
			}
			glog.Infof("Update complete, %d bytes in %s, boot slot %s", n, *slots, slot)
			return
		}

		n, err := client.Update(ctx)
		if err != nil {
			glog.Exitf("Failed to update %s: %v", *target, err)
		}
		glog.Infof("Update complete, %d bytes in %s", n, *target)
	}
}
