// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package soc describes the memory layout and quirks of the Allwinner SoCs
// as seen by the FEL code in their boot ROM.
package soc

import (
	"errors"
	"fmt"
)

type Arch uint8

const (
	ARMv7 Arch = iota // Cortex-A7/A8/A15 or ARMv8 core in AArch32 state
	ARMv5             // ARM926EJ-S
	ARMv8             // Cortex-A53 and newer, boots in AArch32
)

func (a Arch) String() string {
	switch a {
	case ARMv5:
		return "ARMv5"
	case ARMv7:
		return "ARMv7"
	case ARMv8:
		return "ARMv8"
	}
	return fmt.Sprintf("Arch(%d)", a)
}

// SwapBuffer describes the SRAM region used by the boot ROM (Buf1) that must
// be exchanged with its backup location (Buf2) before the SPL runs and
// exchanged again before returning to the FEL code.
type SwapBuffer struct {
	Buf1 uint32
	Buf2 uint32
	Size uint32
}

// Watchdog describes the watchdog mode register write that resets the SoC.
type Watchdog struct {
	Reg uint32
	Val uint32
}

// VariantSelector describes how to tell apart the SoCs that report the same
// ID: the SID root key word Word is masked with Mask and looked up in Values.
// Unlisted values select variant 0.
type VariantSelector struct {
	Word   int
	Mask   uint32
	Values map[uint32]int
}

// Info describes an SoC. The entries of SwapBuffers must be sorted by Buf1 in
// ascending order and must not overlap.
//
// The BROM in newer SoCs does not enable the MMU. If MMUTTAddr is not zero it
// points to 16 KiB of spare SRAM where the translation table can be placed
// to enable the MMU for the duration of the transfers.
//
// If the SoC has the secure boot fuse burned it enters FEL in the non-secure
// state. SMCCheckAddr is an address that reads as zero in this state. In such
// case a single "smc #0" brings the core to the secure state.
type Info struct {
	ID      uint16
	Variant int
	Name    string
	Arch    Arch

	SRAMSize    uint32
	SPLAddr     uint32 // SPL load address
	ScratchAddr uint32 // safe place to upload and run code
	ThunkAddr   uint32
	ThunkSize   uint32 // maximum size of the thunk code and its data
	SwapBuffers []SwapBuffer

	NeedsL2En    bool   // set the L2EN bit before running the SPL
	ICacheFix    bool   // disable I-cache before running the SPL
	MMUTTAddr    uint32 // MMU translation table address
	SIDBase      uint32 // base address of the SID registers
	SIDOffset    uint32 // offset of the SID root key
	SIDFix       bool   // read SID using registers
	RVBAR        uint32 // address of the RVBARADDR0_L register
	SMCCheckAddr uint32
	Watchdog     *Watchdog

	VariantSelector *VariantSelector // tells apart the SoCs sharing ID
}

// Validate checks the invariants of the swap buffer table and the thunk
// placement.
func Validate(info *Info) error {
	if len(info.SwapBuffers) == 0 {
		return fmt.Errorf("%s: empty swap buffer table", info)
	}
	for i, sb := range info.SwapBuffers {
		if sb.Size == 0 || sb.Size%4 != 0 {
			return fmt.Errorf("%s: swap buffer %d: bad size %#x", info, i, sb.Size)
		}
		if i > 0 {
			prev := info.SwapBuffers[i-1]
			if prev.Buf1+prev.Size > sb.Buf1 {
				return fmt.Errorf(
					"%s: swap buffer %d: buf1 %#x not above %#x",
					info, i, sb.Buf1, prev.Buf1+prev.Size,
				)
			}
		}
		for k, o := range info.SwapBuffers {
			if k != i && sb.Buf2 < o.Buf2+o.Size && o.Buf2 < sb.Buf2+sb.Size {
				return fmt.Errorf("%s: backup buffers %d and %d overlap", info, i, k)
			}
		}
	}
	if info.ThunkSize == 0 {
		return fmt.Errorf("%s: zero thunk size", info)
	}
	if info.MMUTTAddr&0x3fff != 0 {
		return fmt.Errorf("%s: MMU table at %#x is not 16K aligned", info, info.MMUTTAddr)
	}
	return nil
}

func (info *Info) String() string {
	if info.Name != "" {
		return info.Name
	}
	return fmt.Sprintf("0x%04X", info.ID)
}

// Lookup returns the first table entry with the given ID. It returns Generic
// and false if there is no such entry.
func Lookup(id uint16) (*Info, bool) {
	return LookupVariant(id, 0)
}

// LookupVariant returns the first table entry with the given ID and variant.
// If there is no such variant it falls back to the first entry with the
// given ID and then to Generic.
func LookupVariant(id uint16, variant int) (*Info, bool) {
	var first *Info
	for i := range table {
		info := &table[i]
		if info.ID != id {
			continue
		}
		if info.Variant == variant {
			return info, true
		}
		if first == nil {
			first = info
		}
	}
	if first != nil {
		return first, true
	}
	return &Generic, false
}

// Name returns the SoC name for the given ID or its hexadecimal form if the
// ID is unknown.
func Name(id uint16) string {
	info, ok := Lookup(id)
	if !ok {
		return fmt.Sprintf("0x%04X", id)
	}
	return info.String()
}

// All returns all table entries in the table order.
func All() []*Info {
	infos := make([]*Info, len(table))
	for i := range table {
		infos[i] = &table[i]
	}
	return infos
}

// ErrNoVariant is returned by ResolveVariant if the SoC has no variants.
var ErrNoVariant = errors.New("no variant selector")

// ResolveVariant returns the variant selected by s for the given SID
// root key.
func (s *VariantSelector) ResolveVariant(sid [4]uint32) (int, error) {
	if s == nil {
		return 0, ErrNoVariant
	}
	if s.Word < 0 || s.Word >= len(sid) {
		return 0, fmt.Errorf("bad SID word index %d", s.Word)
	}
	return s.Values[sid[s.Word]&s.Mask], nil
}
