// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/awusb"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/fel"
)

type devEntry struct {
	loc  awusb.Location
	name string
	sid  [4]uint32
}

// inspect opens the FEL device at loc and reads its SoC name and SID.
func inspect(loc awusb.Location) (e devEntry, err error) {
	d, err := fel.Open(loc.String())
	if err != nil {
		return e, err
	}
	defer d.Close()
	e.loc, e.name = loc, d.Name
	if d.Info.SIDBase != 0 {
		e.sid, err = d.SIDRootKey(false)
	}
	return e, err
}

// inspectAll inspects all FEL devices concurrently. The devices that cannot
// be opened are skipped.
func inspectAll() ([]devEntry, error) {
	locs, err := awusb.Enumerate()
	if err != nil {
		return nil, err
	}
	entries := make([]devEntry, len(locs))
	ok := make([]bool, len(locs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, loc := range locs {
		g.Go(func() error {
			e, err := inspect(loc)
			if err != nil {
				glog.Warningf("USB device %s: %v", loc, err)
				return nil
			}
			entries[i], ok[i] = e, true
			return nil
		})
	}
	g.Wait()
	var found []devEntry
	for i, e := range entries {
		if ok[i] {
			found = append(found, e)
		}
	}
	return found, nil
}

// listDevices prints the FEL devices found on the USB bus and returns their
// number.
func listDevices(w io.Writer) (int, error) {
	entries, err := inspectAll()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		fmt.Fprintf(w, "USB device %s   Allwinner %-8s", e.loc, e.name)
		if e.sid != [4]uint32{} {
			io.WriteString(w, formatSID(e.sid))
		}
		io.WriteString(w, "\n")
	}
	return len(entries), nil
}

// selectBySID returns the location of the FEL device with the given SID.
func selectBySID(sid string) (awusb.Location, error) {
	entries, err := inspectAll()
	if err != nil {
		return awusb.Location{}, err
	}
	for _, e := range entries {
		if formatSID(e.sid) == sid {
			return e.loc, nil
		}
	}
	return awusb.Location{}, fmt.Errorf("no matching FEL device found for SID '%s'", sid)
}
