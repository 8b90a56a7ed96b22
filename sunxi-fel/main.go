// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Sunxi-fel talks to the boot ROM of Allwinner SoCs in the FEL (USB boot)
// mode. It can read and write the device memory, run code on the device and
// load U-Boot.
//
// Usage:
//
//	sunxi-fel [OPTIONS] COMMAND [ARGUMENTS] [COMMAND [ARGUMENTS]...]
//
// The commands are executed in the order of appearance.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/fel"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/util"
)

var (
	verbose  = pflag.BoolP("verbose", "v", false, "verbose logging")
	progress = pflag.BoolP("progress", "p", false, `"write" transfers show a progress bar`)
	list     = pflag.BoolP("list", "l", false, "enumerate all FEL devices and exit")
	busAddr  = pflag.StringP("dev", "d", "", "use the USB device at `BUS:ADDR`")
	sidArg   = pflag.String("sid", "", "select the device by its `SID` key (exact match)")
	truncate = pflag.Bool("truncate", false, "truncate too long readl/writel transfers instead of failing")
)

func usage() {
	uw := os.Stderr
	uw.WriteString("Usage:\n  sunxi-fel [OPTIONS] COMMAND [ARGUMENTS] [COMMAND...]\nOptions:\n")
	pflag.PrintDefaults()
	uw.WriteString("\nCommands:\n")
	printCommandList(uw)
}

func main() {
	// The glog -v flag is set by --verbose.
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		if f.Name != "v" {
			pflag.CommandLine.AddGoFlag(f)
		}
	})
	pflag.CommandLine.SetInterspersed(false)
	pflag.Usage = usage
	if len(os.Args) < 2 {
		usage()
		return
	}
	pflag.Parse()
	flag.Set("logtostderr", "true")
	if *verbose {
		flag.Set("v", "1")
	}
	defer glog.Flush()

	args := pflag.Args()
	if len(args) > 0 && args[0] == "list" {
		*list = true
	}
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			util.Fatal("invalid option %s", a)
		}
	}
	if *list {
		n, err := listDevices(os.Stdout)
		util.FatalErr("list", err)
		if n == 0 {
			if *verbose {
				util.Warn("no Allwinner devices in FEL mode detected")
			}
			os.Exit(1)
		}
		return
	}
	if *sidArg != "" {
		loc, err := selectBySID(*sidArg)
		util.FatalErr("", err)
		glog.V(1).Infof("selecting FEL device %s by SID", loc)
		*busAddr = loc.String()
	} else if *busAddr != "" {
		glog.V(1).Infof("selecting USB device %s", *busAddr)
	}

	dev, err := fel.Open(*busAddr, fel.WithTruncate(*truncate))
	util.FatalErr("", err)
	defer dev.Close()

	s := &session{dev: dev, out: os.Stdout, progress: *progress}
	err = s.run(args)
	util.FatalErr("", err)
	if s.autostart {
		entry, _ := dev.UBoot()
		glog.V(1).Infof("starting U-Boot (0x%08X)", entry)
		util.FatalErr("", dev.Execute(entry))
	}
}

// cmdError is returned by session.run if a command fails.
type cmdError struct {
	cmd string
	err error
}

func (e *cmdError) Error() string {
	return fmt.Sprintf("%s: %v", e.cmd, e.err)
}

func (e *cmdError) Unwrap() error {
	return e.err
}
