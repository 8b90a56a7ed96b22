// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
)

const (
	ttEntries = 4096
	ttSize    = ttEntries * 4

	dramBase = 0x40000000
	dramSize = 0x80000000

	texcbMask = 7<<12 | 1<<3 | 1<<2
)

// TT is the first level translation table of the short descriptor format.
type TT [ttEntries]uint32

var mmuDisable = []uint32{
	0xee110f10, // mrc   15, 0, r0, cr1, cr0, {0}
	0xe3c00001, // bic   r0, r0, #1
	0xe3c00b06, // bic   r0, r0, #0x1800
	0xee010f10, // mcr   15, 0, r0, cr1, cr0, {0}
	0xe12fff1e, // bx    lr
}

var mmuEnable = []uint32{
	0xe3a00000, // mov   r0, #0
	0xee080f17, // mcr   15, 0, r0, cr8, cr7, {0}  ; invalidate TLB
	0xee070f15, // mcr   15, 0, r0, cr7, cr5, {0}  ; invalidate I-cache
	0xee070fd5, // mcr   15, 0, r0, cr7, cr5, {6}  ; invalidate BTB
	0xf57ff04f, // dsb   sy
	0xf57ff06f, // isb   sy
	0xee110f10, // mrc   15, 0, r0, cr1, cr0, {0}
	0xe3800001, // orr   r0, r0, #1
	0xe3800b06, // orr   r0, r0, #0x1800
	0xee010f10, // mcr   15, 0, r0, cr1, cr0, {0}
	0xe12fff1e, // bx    lr
}

// GenerateTT returns the direct mapping translation table used by the A20
// BROM: strongly ordered 1 MiB sections except the first and the last one
// that are normal memory.
func GenerateTT() *TT {
	tt := new(TT)
	for i := range tt {
		tt[i] = 0xDE2 | uint32(i)<<20
	}
	tt[0x000] |= 0x1000
	tt[0xFFF] |= 0x1000
	return tt
}

// checkTT checks that tt contains only the direct mapping section entries.
func checkTT(tt *TT) error {
	for i, e := range tt {
		if e>>1&1 != 1 || e>>18&1 != 0 {
			return fmt.Errorf("MMU: entry %d: not a section descriptor", i)
		}
		if e>>20 != uint32(i) {
			return fmt.Errorf("MMU: entry %d: not a direct mapping", i)
		}
	}
	return nil
}

// backupAndDisableMMU reads the translation table set up by the BROM and
// disables the MMU, I-cache and branch prediction. It returns nil if the MMU
// was not enabled.
func (d *Dev) backupAndDisableMMU() (*TT, error) {
	sctlr, err := d.readCP(SCTLR)
	if err != nil {
		return nil, err
	}
	// Ignore the M, Z, I, V and UNK bits and expect no TEX remap.
	if sctlr&^(7<<11|1<<6|1) != 0x00C50038 {
		return nil, fmt.Errorf("unexpected SCTLR (%08X)", sctlr)
	}
	if sctlr&1 == 0 {
		glog.V(1).Info("MMU is not enabled by BROM")
		return nil, nil
	}
	dacr, err := d.readCP(DACR)
	if err != nil {
		return nil, err
	}
	if dacr != 0x55555555 {
		return nil, fmt.Errorf("unexpected DACR (%08X)", dacr)
	}
	ttbcr, err := d.readCP(TTBCR)
	if err != nil {
		return nil, err
	}
	if ttbcr != 0 {
		return nil, fmt.Errorf("unexpected TTBCR (%08X)", ttbcr)
	}
	ttbr0, err := d.readCP(TTBR0)
	if err != nil {
		return nil, err
	}
	if ttbr0&0x3FFF != 0 {
		return nil, fmt.Errorf("unexpected TTBR0 (%08X)", ttbr0)
	}
	glog.V(1).Infof("reading the MMU translation table from 0x%08X", ttbr0)
	buf := make([]byte, ttSize)
	if err = d.read(ttbr0, buf); err != nil {
		return nil, err
	}
	tt := new(TT)
	for i := range tt {
		tt[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	if err = checkTT(tt); err != nil {
		return nil, err
	}
	glog.V(1).Info("disabling I-cache, MMU and branch prediction")
	if err = d.runCode(code(mmuDisable)); err != nil {
		return nil, err
	}
	return tt, nil
}

// setupMMU prepares the MMU registers of the SoC whose BROM does not enable
// the MMU so the MMU can be enabled with the returned table after the SPL
// returns.
func (d *Dev) setupMMU() (*TT, error) {
	addr := d.Info.MMUTTAddr
	if addr&0x3FFF != 0 {
		return nil, fmt.Errorf("MMU table address 0x%08X is not 16K aligned", addr)
	}
	glog.V(1).Infof("generating the new MMU translation table at 0x%08X", addr)
	// Replicate the A10/A13/A20 BROM settings: permission checks in all
	// domains, short descriptor format and TTBR0 used for all addresses.
	if err := d.writeCP(DACR, 0x55555555); err != nil {
		return nil, err
	}
	if err := d.writeCP(TTBCR, 0); err != nil {
		return nil, err
	}
	if err := d.writeCP(TTBR0, addr); err != nil {
		return nil, err
	}
	return GenerateTT(), nil
}

// restoreAndEnableMMU writes tt back, with the write-combine DRAM mapping and
// the cached BROM mapping, and enables the MMU, I-cache and branch
// prediction.
func (d *Dev) restoreAndEnableMMU(tt *TT) error {
	ttbr0, err := d.readCP(TTBR0)
	if err != nil {
		return err
	}
	glog.V(1).Info("setting write-combine mapping for DRAM")
	for i := dramBase >> 20; i < (dramBase+dramSize)>>20; i++ {
		tt[i] = tt[i]&^texcbMask | 1<<12 // TEXCB = 00100, normal uncached
	}
	glog.V(1).Info("setting cached mapping for BROM")
	tt[0xFFF] = tt[0xFFF]&^texcbMask | 1<<12 | 1<<3 | 1<<2 // TEXCB = 00111
	glog.V(1).Info("writing back the MMU translation table")
	buf := appendWords(make([]byte, 0, ttSize), tt[:]...)
	if err = d.write(ttbr0, buf, nil); err != nil {
		return err
	}
	glog.V(1).Info("enabling I-cache, MMU and branch prediction")
	return d.runCode(code(mmuEnable))
}
