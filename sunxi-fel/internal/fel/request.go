// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"encoding/binary"
	"fmt"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/awusb"
)

const (
	reqVersion uint32 = 0x001
	reqWrite   uint32 = 0x101
	reqExec    uint32 = 0x102
	reqRead    uint32 = 0x103

	requestLen = 16
	statusLen  = 8
	versionLen = 32
)

// Version is the reply to the FEL version request.
type Version struct {
	Signature  [8]byte
	SocID      uint32 // decoded, (raw>>8)&0xFFFF
	Unknown0A  uint32
	Protocol   uint16
	Unknown12  uint8
	Unknown13  uint8
	Scratchpad uint32
	Pad        [2]uint32
}

// DecodeVersion decodes the 32-byte reply to the version request.
func DecodeVersion(buf []byte) (v Version, err error) {
	if len(buf) < versionLen {
		return v, fmt.Errorf("%w: short version reply (%d bytes)", awusb.ErrProtocol, len(buf))
	}
	le := binary.LittleEndian
	copy(v.Signature[:], buf)
	v.SocID = le.Uint32(buf[8:]) >> 8 & 0xFFFF
	v.Unknown0A = le.Uint32(buf[12:])
	v.Protocol = le.Uint16(buf[16:])
	v.Unknown12 = buf[18]
	v.Unknown13 = buf[19]
	v.Scratchpad = le.Uint32(buf[20:])
	v.Pad[0] = le.Uint32(buf[24:])
	v.Pad[1] = le.Uint32(buf[28:])
	return v, nil
}

// Format returns the one line description of v printed by the version
// command. Name describes the SoC.
func (v *Version) Format(name string) string {
	return fmt.Sprintf(
		"%.8s soc=%08x(%s) %08x ver=%04x %02x %02x scratchpad=%08x %08x %08x",
		v.Signature[:], v.SocID, name, v.Unknown0A, v.Protocol, v.Unknown12,
		v.Unknown13, v.Scratchpad, v.Pad[0], v.Pad[1],
	)
}

func appendRequest(buf []byte, req, addr, length uint32) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint32(buf, req)
	buf = le.AppendUint32(buf, addr)
	buf = le.AppendUint32(buf, length)
	return le.AppendUint32(buf, 0)
}

func (d *Dev) sendRequest(req, addr, length uint32) error {
	var buf [requestLen]byte
	return d.conn.Write(appendRequest(buf[:0], req, addr, length), nil)
}

func (d *Dev) readStatus() error {
	var buf [statusLen]byte
	return d.conn.Read(buf[:])
}

func (d *Dev) version() (v Version, err error) {
	if err = d.sendRequest(reqVersion, 0, 0); err != nil {
		return
	}
	var buf [versionLen]byte
	if err = d.conn.Read(buf[:]); err != nil {
		return
	}
	if err = d.readStatus(); err != nil {
		return
	}
	return DecodeVersion(buf[:])
}

func (d *Dev) read(addr uint32, p []byte) error {
	if err := d.sendRequest(reqRead, addr, uint32(len(p))); err != nil {
		return err
	}
	if err := d.conn.Read(p); err != nil {
		return err
	}
	return d.readStatus()
}

func (d *Dev) write(addr uint32, p []byte, progress func(n int)) error {
	if err := d.sendRequest(reqWrite, addr, uint32(len(p))); err != nil {
		return err
	}
	if err := d.conn.Write(p, progress); err != nil {
		return err
	}
	return d.readStatus()
}

// exec runs the code at addr. The device state is unknown if the status
// does not arrive so the device is poisoned in such case.
func (d *Dev) exec(addr uint32) error {
	if err := d.sendRequest(reqExec, addr, 0); err != nil {
		d.poisoned = true
		return err
	}
	if err := d.readStatus(); err != nil {
		d.poisoned = true
		return err
	}
	return nil
}

// Read reads len(p) bytes of the device memory at addr.
func (d *Dev) Read(addr uint32, p []byte) (err error) {
	defer wrapErr("Read", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	return d.read(addr, p)
}

// Write writes p to the device memory at addr.
func (d *Dev) Write(addr uint32, p []byte) (err error) {
	defer wrapErr("Write", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	return d.write(addr, p, nil)
}

// WriteBuffer writes p to the device memory at addr refusing to overwrite
// the loaded U-Boot image. If progress is not nil it is called after every
// transferred chunk with the number of bytes written.
func (d *Dev) WriteBuffer(addr uint32, p []byte, progress func(n int)) (err error) {
	defer wrapErr("WriteBuffer", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	if err = d.checkUBoot(addr, len(p)); err != nil {
		return
	}
	return d.write(addr, p, progress)
}

// Execute calls the code at addr. The code is called as a function from the
// FEL handler and should return to it.
func (d *Dev) Execute(addr uint32) (err error) {
	defer wrapErr("Execute", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	return d.exec(addr)
}
