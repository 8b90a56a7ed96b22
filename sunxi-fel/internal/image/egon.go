// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package image validates the boot images loaded over FEL: the eGON boot
// header of the SPL, the sunxi specific part of the SPL header and the
// legacy U-Boot image header.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	EGONMagic    = "eGON.BT0"
	checksumSeed = 0x5F0A6C39
)

var (
	ErrNoEGON    = errors.New("eGON header is not found")
	ErrBadLength = errors.New("bad length in the eGON header")
)

type ChecksumError struct {
	Residual uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("eGON checksum check failed (residual %#08x)", e.Residual)
}

// EGON describes a valid eGON header.
type EGON struct {
	Checksum uint32
	Length   uint32 // length of the checksummed image, multiple of 4
}

// ParseEGON validates the eGON header and checksum of the SPL in buf. The
// checksum field doubled minus the seed, minus all the words of the image
// (checksum field included) must give zero.
func ParseEGON(buf []byte) (h EGON, err error) {
	if len(buf) < 32 || string(buf[4:12]) != EGONMagic {
		return h, ErrNoEGON
	}
	le := binary.LittleEndian
	h.Checksum = le.Uint32(buf[12:])
	h.Length = le.Uint32(buf[16:])
	if h.Length > uint32(len(buf)) || h.Length%4 != 0 || h.Length < 32 {
		return h, ErrBadLength
	}
	if r := residual(buf[:h.Length]); r != 0 {
		return h, &ChecksumError{r}
	}
	return h, nil
}

func residual(buf []byte) uint32 {
	le := binary.LittleEndian
	sum := 2*le.Uint32(buf[12:]) - checksumSeed
	for i := 0; i+4 <= len(buf); i += 4 {
		sum -= le.Uint32(buf[i:])
	}
	return sum
}

// SignEGON writes the eGON magic, the length and the checksum to the header
// of the image in buf. The length of buf must be a multiple of 4.
func SignEGON(buf []byte) error {
	if len(buf) < 32 || len(buf)%4 != 0 {
		return ErrBadLength
	}
	le := binary.LittleEndian
	copy(buf[4:12], EGONMagic)
	le.PutUint32(buf[16:], uint32(len(buf)))
	le.PutUint32(buf[12:], 0)
	sum := uint32(checksumSeed)
	for i := 0; i < len(buf); i += 4 {
		sum += le.Uint32(buf[i:])
	}
	le.PutUint32(buf[12:], sum)
	return nil
}
