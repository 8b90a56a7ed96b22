// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Legacy U-Boot image header (see include/image.h in U-Boot). All fields are
// big-endian.
const (
	UImageMagic      = 0x27051956
	UImageHeaderSize = 64
	uimageNameLen    = 32

	ArchARM = 2

	TypeInvalid  = 0
	TypeFirmware = 5
	TypeScript   = 6
)

var (
	ErrBadUImage    = errors.New("invalid U-Boot image: bad size or signature")
	ErrArchMismatch = errors.New("invalid U-Boot image: wrong architecture")
)

type CRCError struct {
	What string
	Want uint32
	Got  uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("U-Boot %s CRC mismatch: expected %x, got %x", e.What, e.Want, e.Got)
}

type UImage struct {
	HCRC  uint32
	Time  uint32
	Size  uint32
	Load  uint32
	Entry uint32
	DCRC  uint32
	OS    uint8
	Arch  uint8
	Type  uint8
	Comp  uint8
	Name  string
}

// ParseUImage decodes the header of the legacy U-Boot image in buf. It checks
// the magic number and the architecture but not the checksums.
func ParseUImage(buf []byte) (*UImage, error) {
	if len(buf) <= UImageHeaderSize {
		return nil, ErrBadUImage
	}
	be := binary.BigEndian
	if be.Uint32(buf) != UImageMagic {
		return nil, ErrBadUImage
	}
	h := &UImage{
		HCRC:  be.Uint32(buf[4:]),
		Time:  be.Uint32(buf[8:]),
		Size:  be.Uint32(buf[12:]),
		Load:  be.Uint32(buf[16:]),
		Entry: be.Uint32(buf[20:]),
		DCRC:  be.Uint32(buf[24:]),
		OS:    buf[28],
		Arch:  buf[29],
		Type:  buf[30],
		Comp:  buf[31],
	}
	name := buf[32 : 32+uimageNameLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	h.Name = string(name)
	if h.Arch != ArchARM {
		return h, ErrArchMismatch
	}
	return h, nil
}

// ImageType returns the type of the legacy U-Boot image in buf or TypeInvalid
// if buf does not contain a valid ARM image header.
func ImageType(buf []byte) int {
	h, err := ParseUImage(buf)
	if err != nil {
		return TypeInvalid
	}
	return int(h.Type)
}

// LoadFirmware validates the U-Boot firmware image in buf (header CRC, type,
// size, data CRC) and returns its header and data.
func LoadFirmware(buf []byte) (*UImage, []byte, error) {
	if len(buf) <= UImageHeaderSize {
		return nil, nil, ErrBadUImage
	}
	hdr := bytes.Clone(buf[:UImageHeaderSize])
	want := binary.BigEndian.Uint32(hdr[4:])
	clear(hdr[4:8])
	if got := crc32.ChecksumIEEE(hdr); got != want {
		return nil, nil, &CRCError{"header", want, got}
	}
	h, err := ParseUImage(buf)
	if err != nil {
		return nil, nil, err
	}
	if h.Type != TypeFirmware {
		return nil, nil, fmt.Errorf(
			"U-Boot image type mismatch: expected firmware, got %02X", h.Type,
		)
	}
	data := buf[UImageHeaderSize:]
	if h.Size > uint32(len(data)) {
		return nil, nil, fmt.Errorf(
			"U-Boot image data truncated: expected %d bytes, got %d",
			h.Size, len(data),
		)
	}
	data = data[:h.Size]
	if got := crc32.ChecksumIEEE(data); got != h.DCRC {
		return nil, nil, &CRCError{"data", h.DCRC, got}
	}
	return h, data, nil
}

// MakeUImage returns a legacy U-Boot image with the given type, load address
// and name that contains data.
func MakeUImage(typ uint8, load uint32, name string, data []byte) []byte {
	be := binary.BigEndian
	buf := make([]byte, UImageHeaderSize, UImageHeaderSize+len(data))
	be.PutUint32(buf, UImageMagic)
	be.PutUint32(buf[12:], uint32(len(data)))
	be.PutUint32(buf[16:], load)
	be.PutUint32(buf[20:], load)
	be.PutUint32(buf[24:], crc32.ChecksumIEEE(data))
	buf[28] = 5 // Linux
	buf[29] = ArchARM
	buf[30] = typ
	copy(buf[32:32+uimageNameLen], name)
	be.PutUint32(buf[4:], crc32.ChecksumIEEE(buf))
	return append(buf, data...)
}
