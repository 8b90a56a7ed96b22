// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thunk

// fel-to-spl thunk for ARMv7 (and ARMv8 in AArch32 state) cores. It saves the
// FEL stack pointer, swaps the buffers described by the table that follows
// the SPL address word, verifies the eGON checksum, marks the SPL header with
// ".FEL", calls the SPL, swaps the buffers back and returns to the BROM. The
// caches must be disabled, otherwise it marks the header with ".???".
var codeV7 = []uint32{
	0xea000015, 0xffffffff, 0xffffffff, 0xffffffff,
	0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff,
	0xffffffff, 0xe1a00000, 0xe28f40e8, 0xe4940004,
	0xe4941004, 0xe4946004, 0xe3560000, 0x012fff1e,
	0xe5902000, 0xe5913000, 0xe2566004, 0xe4812004,
	0xe4803004, 0x1afffff9, 0xeafffff3, 0xe59f80b0,
	0xe24f0044, 0xe520d004, 0xe1a0d000, 0xe10f2000,
	0xe92d4004, 0xe38220c0, 0xe121f002, 0xee112f10,
	0xe3120004, 0x03120a01, 0x1a000013, 0xebffffe5,
	0xe59f706c, 0xe1a00008, 0xe5905010, 0xe4902004,
	0xe2555004, 0xe0877002, 0x1afffffb, 0xe598200c,
	0xe0577082, 0x1a00000b, 0xe59f2048, 0xe5882008,
	0xee072f9a, 0xee102f10, 0xe202280f, 0xe3520806,
	0xce072f95, 0xe12fff38, 0xea000004, 0xe59f2028,
	0xe5882008, 0xea000002, 0xe59f2020, 0xe5882008,
	0xebffffcc, 0xe8bd4004, 0xe121f002, 0xe59dd000,
	0xe12fff1e, 0x5f0a6c39, 0x4c45462e, 0x3f3f3f2e,
	0x4441422e,
}

// fel-to-spl thunk for ARMv5 cores. Same as codeV7 but without the ARMv7
// only instructions.
var codeV5 = []uint32{
	0xea000015, 0xe1a00000, 0xe1a00000, 0xe1a00000,
	0xe1a00000, 0xe1a00000, 0xe1a00000, 0xe1a00000,
	0xe1a00000, 0xe1a00000, 0xe28f40e0, 0xe4940004,
	0xe4941004, 0xe4946004, 0xe3560000, 0x012fff1e,
	0xe5902000, 0xe5913000, 0xe2566004, 0xe4812004,
	0xe4803004, 0x1afffff9, 0xeafffff3, 0xe59f80a8,
	0xe24f0044, 0xe520d004, 0xe1a0d000, 0xe10f2000,
	0xe92d4004, 0xe38220c0, 0xe121f002, 0xee112f10,
	0xe59f3070, 0xe1120003, 0x1a000010, 0xebffffe5,
	0xe59f7064, 0xe1a00008, 0xe5905010, 0xe4902004,
	0xe2555004, 0xe0877002, 0x1afffffb, 0xe598200c,
	0xe0577082, 0x1a000008, 0xe59f2040, 0xe5882008,
	0xe3a02000, 0xee072f9a, 0xe12fff38, 0xea000004,
	0xe59f202c, 0xe5882008, 0xea000002, 0xe59f2024,
	0xe5882008, 0xebffffcf, 0xe8bd4004, 0xe121f002,
	0xe59dd000, 0xe12fff1e, 0x00001004, 0x5f0a6c39,
	0x4c45462e, 0x3f3f3f2e, 0x4441422e,
}
