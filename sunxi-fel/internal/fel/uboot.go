// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"encoding/binary"

	"github.com/golang/glog"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/image"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/thunk"
)

// WriteUBootImage validates the legacy U-Boot firmware image in buf and
// writes its data to the load address. The loaded image is protected
// against being overwritten by the subsequent WriteBuffer calls. A buf that
// is too short to contain any data is ignored.
func (d *Dev) WriteUBootImage(buf []byte) (err error) {
	defer wrapErr("WriteUBootImage", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	if len(buf) <= image.UImageHeaderSize {
		return nil
	}
	h, data, err := image.LoadFirmware(buf)
	if err != nil {
		return err
	}
	glog.V(1).Infof("writing image %q, %d bytes @ 0x%08X", h.Name, len(data), h.Load)
	if err = d.checkUBoot(h.Load, len(data)); err != nil {
		return
	}
	if err = d.write(h.Load, data, nil); err != nil {
		return
	}
	d.ubootAddr, d.ubootSize = h.Load, h.Size
	return nil
}

// WriteSPLAndUBoot runs the SPL from buf and, if buf is a
// u-boot-sunxi-with-spl.bin image, writes the main U-Boot image that follows
// the SPL.
func (d *Dev) WriteSPLAndUBoot(buf []byte) error {
	if err := d.WriteAndExecuteSPL(buf); err != nil {
		return err
	}
	if len(buf) > thunk.MaxSPLSize {
		return d.WriteUBootImage(buf[thunk.MaxSPLSize:])
	}
	return nil
}

// SunxiSPLVersion returns the version of the sunxi SPL header of the SPL
// loaded at SPLAddr or 0 if there is no supported header.
func (d *Dev) SunxiSPLVersion() (v int, err error) {
	defer wrapErr("SunxiSPLVersion", &err)
	if d.poisoned {
		return 0, ErrPoisoned
	}
	var sig [4]byte
	if err = d.read(d.Info.SPLAddr+image.SPLSignatureOffset, sig[:]); err != nil {
		return
	}
	if v = image.SunxiSPLVersion(sig[:]); v == 0 && string(sig[:3]) == "SPL" {
		glog.Warningf("unsupported sunxi SPL version %d", sig[3])
	}
	return
}

// PassFELInfo passes the boot script address and the uEnv.txt length to
// U-Boot using the sunxi SPL header. It does nothing if the loaded SPL has
// no suitable header.
func (d *Dev) PassFELInfo(scriptAddr, uEnvLen uint32) error {
	v, err := d.SunxiSPLVersion()
	if err != nil || v == 0 {
		return err
	}
	glog.V(1).Infof(
		"passing boot info via sunxi SPL: script address = 0x%08X, uEnv length = %d",
		scriptAddr, uEnvLen,
	)
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:], scriptAddr)
	binary.LittleEndian.PutUint32(buf[4:], uEnvLen)
	return d.Write(d.Info.SPLAddr+image.FELInfoOffset, buf[:])
}
