// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package thunk provides the fel-to-spl thunk code and the host side part of
// the SRAM relocation protocol: the placement of the SPL around the BROM
// buffers and the serialization of the thunk with its swap buffer table.
package thunk

import (
	"encoding/binary"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/soc"
)

type Thunk struct {
	Name string
	Code []uint32
}

var (
	V7 = Thunk{"armv7", codeV7}
	V5 = Thunk{"armv5", codeV5}
)

// ForArch selects the thunk that can run on the given architecture.
func ForArch(a soc.Arch) Thunk {
	if a == soc.ARMv5 {
		return V5
	}
	return V7
}

// Size returns the code size in bytes.
func (t Thunk) Size() int {
	return len(t.Code) * 4
}

// BlobSize returns the size of the thunk code followed by the SPL address and
// the terminated table of n swap buffers.
func (t Thunk) BlobSize(n int) int {
	return t.Size() + 4 + (n+1)*12
}

// Build serializes the thunk code, the SPL address and the swap buffer table
// terminated by a zero entry. The thunk expects the SPL address directly
// after its code.
func Build(t Thunk, splAddr uint32, swaps []soc.SwapBuffer) []byte {
	le := binary.LittleEndian
	buf := make([]byte, 0, t.BlobSize(len(swaps)))
	for _, w := range t.Code {
		buf = le.AppendUint32(buf, w)
	}
	buf = le.AppendUint32(buf, splAddr)
	for _, sb := range swaps {
		buf = le.AppendUint32(buf, sb.Buf1)
		buf = le.AppendUint32(buf, sb.Buf2)
		buf = le.AppendUint32(buf, sb.Size)
	}
	var end [12]byte
	return append(buf, end[:]...)
}
