// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thunk

import "github.com/embeddedgo/sunxi/sunxi-fel/internal/soc"

// MaxSPLSize is the maximum size of the SPL. It is also the offset of the main
// U-Boot image in u-boot-sunxi-with-spl.bin.
const MaxSPLSize = 0x8000

// Segment describes a single write of Len payload bytes starting at Offset
// to the device memory at Addr.
type Segment struct {
	Addr   uint32
	Offset int
	Len    int
}

// Plan returns the writes needed to place size bytes of payload at base while
// the BROM still uses the swap buffer regions. The bytes that belong to a
// Buf1 region are written to its Buf2 backup location instead, from where
// the thunk moves them in place. The swaps must be sorted by Buf1.
func Plan(base uint32, size int, swaps []soc.SwapBuffer) []Segment {
	var segs []Segment
	cur, off := base, 0
	emit := func(addr uint32, n int) {
		segs = append(segs, Segment{addr, off, n})
		cur += uint32(n)
		off += n
	}
	for _, sb := range swaps {
		if off < size && cur < sb.Buf1 {
			emit(cur, min(int(sb.Buf1-cur), size-off))
		}
		if off < size && cur == sb.Buf1 {
			emit(sb.Buf2, min(int(sb.Size), size-off))
		}
	}
	if off < size {
		emit(cur, size-off)
	}
	return segs
}

// Limit returns the maximum size of the SPL that can be loaded to the SoC:
// the SPL can neither overwrite a backup buffer nor the thunk.
func Limit(info *soc.Info) uint32 {
	limit := uint32(MaxSPLSize)
	for _, sb := range info.SwapBuffers {
		if sb.Buf2 >= info.SPLAddr && sb.Buf2 < info.SPLAddr+limit {
			limit = sb.Buf2 - info.SPLAddr
		}
	}
	if info.ThunkAddr >= info.SPLAddr && info.ThunkAddr-info.SPLAddr < limit {
		limit = info.ThunkAddr - info.SPLAddr
	}
	return limit
}
