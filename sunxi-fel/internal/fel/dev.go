// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fel implements the FEL protocol of the Allwinner boot ROM on top of
// the awusb transport and the operations built on it: memory access, code
// execution and booting of the SPL and U-Boot.
package fel

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/awusb"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/soc"
)

// ErrPoisoned is returned by all methods of a Dev that lost the track of the
// device state. Such device must be reset.
var ErrPoisoned = errors.New("device state unknown after a failed execute")

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "fel: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// LimitError reports a request that exceeds a device or protocol limit.
type LimitError struct {
	Op   string
	Want int
	Max  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: too large (need %d, have %d)", e.Op, e.Want, e.Max)
}

// OverlapError reports a write that would overwrite the already loaded U-Boot.
type OverlapError struct {
	Addr, End       uint32
	UBoot, UBootEnd uint32
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf(
		"attempt to overwrite U-Boot: request 0x%08X-0x%08X overlaps 0x%08X-0x%08X",
		e.Addr, e.End, e.UBoot, e.UBootEnd,
	)
}

// Dev represents a FEL device. Its methods must not be called concurrently.
type Dev struct {
	Version Version
	Info    *soc.Info
	Name    string // SoC name or its ID in 0x%04X form if unknown

	conn     *awusb.Conn
	truncate bool
	poisoned bool
	spl      SPLState

	ubootAddr uint32
	ubootSize uint32
}

type Option func(d *Dev)

// WithTruncate makes the single shot word transfers truncate the requests
// that exceed MaxWords instead of returning LimitError.
func WithTruncate(truncate bool) Option {
	return func(d *Dev) { d.truncate = truncate }
}

// Open opens the FEL device at busAddr (BUS:ADDR, empty selects the first
// one found) and identifies it.
func Open(busAddr string, opts ...Option) (*Dev, error) {
	conn, err := awusb.Open(busAddr)
	if err != nil {
		return nil, err
	}
	d, err := New(conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// New reads the FEL version using conn and selects the SoC description.
// It applies the SMC workaround before any other code runs on the device.
// If the SoC has variants that report the same ID the right one is selected
// based on the SID root key.
func New(conn *awusb.Conn, opts ...Option) (d *Dev, err error) {
	defer wrapErr("New", &err)
	d = &Dev{conn: conn}
	for _, opt := range opts {
		opt(d)
	}
	if d.Version, err = d.version(); err != nil {
		return nil, err
	}
	id := uint16(d.Version.SocID)
	info, ok := soc.Lookup(id)
	if !ok {
		glog.Warningf("no SoC information for ID 0x%04X, using generic values", id)
		d.Info, d.Name = info, soc.Name(id)
		return d, nil
	}
	d.Info = info
	if err = d.ApplySMCWorkaround(); err != nil {
		return nil, err
	}
	if info.VariantSelector != nil && info.SIDBase != 0 {
		sid, err := d.SIDRootKey(false)
		if err != nil {
			return nil, err
		}
		variant, err := info.VariantSelector.ResolveVariant(sid)
		if err != nil {
			return nil, err
		}
		info, _ = soc.LookupVariant(id, variant)
		glog.V(1).Infof("SID %08x: variant %d (%s)", sid, variant, info)
	}
	d.Info, d.Name = info, info.String()
	return d, nil
}

func (d *Dev) Close() error {
	return d.conn.Close()
}

// Location returns the USB location of the device.
func (d *Dev) Location() awusb.Location {
	return d.conn.Loc
}

// Poisoned reports whether the device state was lost.
func (d *Dev) Poisoned() bool {
	return d.poisoned
}

// UBoot returns the memory region occupied by the loaded U-Boot image. The
// size is zero if U-Boot was not loaded.
func (d *Dev) UBoot() (entry, size uint32) {
	return d.ubootAddr, d.ubootSize
}

// checkUBoot returns OverlapError if the write of n bytes at addr touches
// the loaded U-Boot.
func (d *Dev) checkUBoot(addr uint32, n int) error {
	if d.ubootSize == 0 {
		return nil
	}
	end := uint64(addr) + uint64(n)
	uend := uint64(d.ubootAddr) + uint64(d.ubootSize)
	if uint64(addr) <= uend && end >= uint64(d.ubootAddr) {
		return &OverlapError{addr, uint32(end), d.ubootAddr, uint32(uend)}
	}
	return nil
}
