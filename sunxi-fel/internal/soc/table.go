// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package soc

// The FEL code in the A10/A13/A20 BROM sets up two stacks for itself: one
// at 0x2000 for the IRQ handler and another one at 0x7000 for the regular
// code (both growing down). The 0x7D00-0x7FFF range holds something
// important too. To use the whole 32 KiB of SRAM A1/A2 for the SPL these
// areas are moved to SRAM A3/A4 (0x8000-0xBFFF).
var a10a13a20Swap = []SwapBuffer{
	{Buf1: 0x1C00, Buf2: 0xA400, Size: 0x0400}, // IRQ stack
	{Buf1: 0x5C00, Buf2: 0xA800, Size: 0x1400}, // stack
	{Buf1: 0x7C00, Buf2: 0xBC00, Size: 0x0400}, // something important
}

// A31 has no SRAM at 0x8000 so SRAM B (0x20000-0x2FFFF) is used instead. The
// BROM keeps its MMU translation table at 0x20000 but the MMU is disabled
// while the SPL runs.
var a31Swap = []SwapBuffer{
	{Buf1: 0x1800, Buf2: 0x20000, Size: 0x800},
	{Buf1: 0x5C00, Buf2: 0x20800, Size: 0x8000 - 0x5C00},
}

// A64 layout is the A10 one shifted by 0x10000 (SRAM A at 0x10000 followed
// by SRAM C at 0x18000).
var a64Swap = []SwapBuffer{
	{Buf1: 0x11C00, Buf2: 0x1A400, Size: 0x0400},
	{Buf1: 0x15C00, Buf2: 0x1A800, Size: 0x1400},
	{Buf1: 0x17C00, Buf2: 0x1BC00, Size: 0x0400},
}

// The SRAM at 0x44000 is normally shared with the AR100 (OpenRISC) core.
var ar100Swap = []SwapBuffer{
	{Buf1: 0x1800, Buf2: 0x44000, Size: 0x800},
	{Buf1: 0x5C00, Buf2: 0x44800, Size: 0x8000 - 0x5C00},
}

// A80 loads the SPL to the 40 KiB SRAM A1 at 0x10000. The secure SRAM B at
// 0x20000 is the backup area.
var a80Swap = []SwapBuffer{
	{Buf1: 0x11800, Buf2: 0x20000, Size: 0x800},
	{Buf1: 0x15400, Buf2: 0x20800, Size: 0x18000 - 0x15400},
}

// The table order is significant: rows sharing an ID are variants and the
// first one is the default.
var table = []Info{
	{
		ID: 0x1623, Name: "A10",
		SRAMSize:    0xC000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0xA200, ThunkSize: 0x200,
		SwapBuffers: a10a13a20Swap,
		NeedsL2En:   true,
		SIDBase:     0x01C23800,
	}, {
		ID: 0x1625, Name: "A13",
		SRAMSize:    0xC000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0xA200, ThunkSize: 0x200,
		SwapBuffers: a10a13a20Swap,
		NeedsL2En:   true,
		SIDBase:     0x01C23800,
		// A10s and A13 share the ID. A10s has 0x7000 in bits 15:12 of the
		// third SID word.
		VariantSelector: &VariantSelector{
			Word: 2, Mask: 0xF000,
			Values: map[uint32]int{0x7000: 1},
		},
	}, {
		ID: 0x1625, Variant: 1, Name: "A10s",
		SRAMSize:    0xC000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0xA200, ThunkSize: 0x200,
		SwapBuffers: a10a13a20Swap,
		NeedsL2En:   true,
		SIDBase:     0x01C23800,
	}, {
		ID: 0x1651, Name: "A20",
		SRAMSize:    0xC000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0xA200, ThunkSize: 0x200,
		SwapBuffers: a10a13a20Swap,
		SIDBase:     0x01C23800,
	}, {
		ID: 0x1650, Name: "A23",
		SRAMSize:    0x8000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0x46E00, ThunkSize: 0x200,
		SwapBuffers: ar100Swap,
		SIDBase:     0x01C23800,
	}, {
		ID: 0x1633, Name: "A31",
		SRAMSize:    0x8000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0x22E00, ThunkSize: 0x200,
		SwapBuffers: a31Swap,
	}, {
		ID: 0x1667, Name: "A33",
		SRAMSize:    0x8000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0x46E00, ThunkSize: 0x200,
		SwapBuffers: ar100Swap,
		SIDBase:     0x01C23800,
	}, {
		ID: 0x1689, Name: "A64", Arch: ARMv8,
		SRAMSize:     0xB000,
		SPLAddr:      0x10000,
		ScratchAddr:  0x11000,
		ThunkAddr:    0x1A200, ThunkSize: 0x200,
		SwapBuffers:  a64Swap,
		SIDBase:      0x01C14000,
		SIDOffset:    0x200,
		RVBAR:        0x017000A0,
		SMCCheckAddr: 0x40004, // L.NOP in the OpenRISC reset vector
	}, {
		ID: 0x1639, Name: "A80",
		SRAMSize:    0xA000,
		SPLAddr:     0x10000,
		ScratchAddr: 0x11000,
		ThunkAddr:   0x23400, ThunkSize: 0x200,
		SwapBuffers: a80Swap,
		SIDBase:     0x01C0E000,
		SIDOffset:   0x200,
	}, {
		ID: 0x1673, Name: "A83T",
		SRAMSize:    0x8000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0x46E00, ThunkSize: 0x200,
		SwapBuffers: ar100Swap,
		SIDBase:     0x01C14000,
		SIDOffset:   0x200,
	}, {
		ID: 0x1680, Name: "H3",
		SRAMSize:     0x10000,
		ScratchAddr:  0x1000,
		MMUTTAddr:    0x8000,
		ThunkAddr:    0xA200, ThunkSize: 0x200,
		SwapBuffers:  a10a13a20Swap,
		SIDBase:      0x01C14000,
		SIDOffset:    0x200,
		SIDFix:       true,
		SMCCheckAddr: 0x40004,
		// H2+ has 0x42 or 0x83 in the low byte of the first SID word.
		VariantSelector: &VariantSelector{
			Word: 0, Mask: 0xFF,
			Values: map[uint32]int{0x42: 1, 0x83: 1},
		},
	}, {
		ID: 0x1680, Variant: 1, Name: "H2+",
		SRAMSize:     0x10000,
		ScratchAddr:  0x1000,
		MMUTTAddr:    0x8000,
		ThunkAddr:    0xA200, ThunkSize: 0x200,
		SwapBuffers:  a10a13a20Swap,
		SIDBase:      0x01C14000,
		SIDOffset:    0x200,
		SIDFix:       true,
		SMCCheckAddr: 0x40004,
	}, {
		ID: 0x1681, Name: "V3s",
		SRAMSize:    0x10000,
		ScratchAddr: 0x1000,
		MMUTTAddr:   0x8000,
		ThunkAddr:   0xA200, ThunkSize: 0x200,
		SwapBuffers: a10a13a20Swap,
		SIDBase:     0x01C23800,
	}, {
		ID: 0x1718, Name: "H5", Arch: ARMv8,
		SRAMSize:     0xB000,
		SPLAddr:      0x10000,
		ScratchAddr:  0x11000,
		ThunkAddr:    0x1A200, ThunkSize: 0x200,
		SwapBuffers:  a64Swap,
		SIDBase:      0x01C14000,
		SIDOffset:    0x200,
		RVBAR:        0x017000A0,
		SMCCheckAddr: 0x40004,
	}, {
		ID: 0x1701, Name: "R40",
		SRAMSize:    0xC000,
		ScratchAddr: 0x1000,
		ThunkAddr:   0xA200, ThunkSize: 0x200,
		SwapBuffers: a10a13a20Swap,
		SIDBase:     0x01C1B000,
		SIDOffset:   0x200,
	},
}

// Generic assumes a BROM similar to the A10/A13/A20/A31 one but without
// extra SRAM sections beyond 0x8000. It also assumes that the IRQ handler
// stack never exceeds 0x400 bytes. The SPL ".text + .data" limit is about
// 21 KiB.
var Generic = Info{
	Name:        "generic",
	ScratchAddr: 0x1000,
	ThunkAddr:   0x5680, ThunkSize: 0x180,
	SwapBuffers: []SwapBuffer{
		{Buf1: 0x1C00, Buf2: 0x5800, Size: 0x400},
	},
}
