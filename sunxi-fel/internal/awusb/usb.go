// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package awusb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	usb "github.com/google/gousb"
)

// Location identifies a device on the USB bus.
type Location struct {
	Bus  int
	Addr int
}

func (l Location) String() string {
	return fmt.Sprintf("%03d:%03d", l.Bus, l.Addr)
}

// ParseBusAddr parses the BUS:ADDR string where both BUS and ADDR are decimal
// positive integers.
func ParseBusAddr(busAddr string) (loc Location, err error) {
	s := strings.Split(busAddr, ":")
	if len(s) != 2 {
		return loc, errors.New("bad USB device address: " + busAddr)
	}
	bus, err := strconv.ParseUint(s[0], 10, 8)
	if err != nil || bus == 0 {
		return loc, errors.New("bad USB bus number: " + busAddr)
	}
	dev, err := strconv.ParseUint(s[1], 10, 8)
	if err != nil || dev == 0 {
		return loc, errors.New("bad USB device number: " + busAddr)
	}
	return Location{int(bus), int(dev)}, nil
}

// Enumerate returns the locations of all FEL devices on the USB bus. It does
// not open them.
func Enumerate() (locs []Location, err error) {
	defer wrapErr("Enumerate", &err)
	ctx := usb.NewContext()
	defer ctx.Close()
	_, err = ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if desc.Vendor == VendorID && desc.Product == ProductID {
			locs = append(locs, Location{desc.Bus, desc.Address})
		}
		return false
	})
	return
}

// selector selects the FEL device at the wanted location (any location if
// want.Bus < 0).
type selector struct {
	want  Location
	other *usb.DeviceDesc // non-FEL device at the wanted location
}

func (s *selector) match(desc *usb.DeviceDesc) bool {
	if s.want.Bus >= 0 && (desc.Bus != s.want.Bus || desc.Address != s.want.Addr) {
		return false
	}
	if desc.Vendor != VendorID || desc.Product != ProductID {
		if s.want.Bus >= 0 {
			s.other = desc
		}
		return false
	}
	return true
}

// notFound returns the error reported when no device matched.
func (s *selector) notFound() error {
	if o := s.other; o != nil {
		return fmt.Errorf(
			"Bus %03d Device %03d is not a FEL device (expected %s:%s, got %s:%s)",
			o.Bus, o.Address, VendorID, ProductID, o.Vendor, o.Product,
		)
	}
	return ErrNotFound
}

// ErrNotFound is returned by Open if there is no FEL device on the USB bus.
var ErrNotFound = errors.New("Allwinner USB FEL device not found")

// Open opens the FEL device, claims its interface 0 and resolves the bulk
// endpoints. You can select the concrete device on the USB bus by providing
// the BUS:ADDR string. If busAddr is empty Open uses the first FEL device
// found.
func Open(busAddr string) (conn *Conn, err error) {
	defer wrapErr("Open", &err)
	want := Location{-1, -1}
	if busAddr != "" {
		if want, err = ParseBusAddr(busAddr); err != nil {
			return nil, err
		}
	}
	sel := &selector{want: want}
	ctx := usb.NewContext()
	devs, err := ctx.OpenDevices(sel.match)
	defer func() {
		if err != nil {
			for _, d := range devs {
				d.Close()
			}
			ctx.Close()
		}
	}()
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, sel.notFound()
	}
	for _, d := range devs[1:] {
		d.Close()
	}
	dev := devs[0]
	devs = devs[:1]
	dev.SetAutoDetach(true)

	cn, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, err
	}
	cfg, err := dev.Config(cn)
	if err != nil {
		return nil, err
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		return nil, err
	}
	var rxn, txn int
	for _, ed := range intf.Setting.Endpoints {
		if ed.TransferType != usb.TransferTypeBulk {
			continue
		}
		if ed.Direction == usb.EndpointDirectionIn {
			rxn = ed.Number
		} else {
			txn = ed.Number
		}
	}
	ie, err := intf.InEndpoint(rxn)
	if err == nil {
		var oe *usb.OutEndpoint
		oe, err = intf.OutEndpoint(txn)
		if err == nil {
			conn = New(oe, ie)
		}
	}
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, fmt.Errorf("cannot get FEL mode endpoints: %w", err)
	}
	conn.Loc = Location{dev.Desc.Bus, dev.Desc.Address}
	conn.closer = func() error {
		intf.Close()
		err := cfg.Close()
		if e := dev.Close(); err == nil {
			err = e
		}
		if e := ctx.Close(); err == nil {
			err = e
		}
		return err
	}
	return conn, nil
}
