// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import "bytes"

// Offsets in the sunxi SPL header (see arch/arm/include/asm/arch-sunxi/spl.h
// in U-Boot).
const (
	SPLSignatureOffset = 0x14 // "SPL" followed by the header version
	FELInfoOffset      = 0x18 // fel_script_address, fel_uEnv_length

	minSPLVersion = 1
	maxSPLVersion = 2
)

// UEnvMagic marks a boot script in the uEnv.txt format.
const UEnvMagic = "#=uEnv"

// SunxiSPLVersion returns the version of the sunxi specific SPL header
// extension read from SPLSignatureOffset or 0 if sig does not contain a
// supported one.
func SunxiSPLVersion(sig []byte) int {
	if len(sig) < 4 || string(sig[:3]) != "SPL" {
		return 0
	}
	v := int(sig[3])
	if v < minSPLVersion || v > maxSPLVersion {
		return 0
	}
	return v
}

// IsUEnv reports whether buf contains a uEnv.txt style script.
func IsUEnv(buf []byte) bool {
	return len(buf) > len(UEnvMagic) && bytes.HasPrefix(buf, []byte(UEnvMagic))
}
