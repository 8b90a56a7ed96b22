// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"encoding/binary"
	"errors"

	"github.com/golang/glog"
)

// Small pieces of ARM code run in the scratch area. Each one is called by
// the FEL handler and returns to it with bx lr. Parameters are stored after
// the code and loaded using pc relative addressing.

var memcpyUp = []uint32{
	0xe59f0054, // ldr   r0, [pc, #84]  ; dst
	0xe59f1054, // ldr   r1, [pc, #84]  ; src
	0xe59f2054, // ldr   r2, [pc, #84]  ; size
	0xe0413000, // sub   r3, r1, r0
	0xe3130003, // tst   r3, #3
	0x1a00000b, // bne   tail           ; not mutually aligned
	0xe3110003, // head: tst r1, #3
	0x0a000004, // beq   loop
	0xe4d13001, // ldrb  r3, [r1], #1
	0xe4c03001, // strb  r3, [r0], #1
	0xe2522001, // subs  r2, r2, #1
	0x5afffff9, // bpl   head
	0xe12fff1e, // bx    lr
	0xe2522004, // loop: subs r2, r2, #4
	0x54913004, // ldrpl r3, [r1], #4
	0x54803004, // strpl r3, [r0], #4
	0x5afffffb, // bpl   loop
	0xe2822004, // add   r2, r2, #4
	0xe2522001, // tail: subs r2, r2, #1
	0x412fff1e, // bxmi  lr
	0xe4d13001, // ldrb  r3, [r1], #1
	0xe4c03001, // strb  r3, [r0], #1
	0xeafffffa, // b     tail
}

var memcpyDown = []uint32{
	0xe59f0058, // ldr   r0, [pc, #88]  ; dst
	0xe59f1058, // ldr   r1, [pc, #88]  ; src
	0xe59f2058, // ldr   r2, [pc, #88]  ; size
	0xe0403001, // sub   r3, r0, r1
	0xe3130003, // tst   r3, #3
	0x1a00000c, // bne   tail           ; not mutually aligned
	0xe0813002, // head: add r3, r1, r2
	0xe3130003, // tst   r3, #3
	0x0a000004, // beq   loop
	0xe2522001, // subs  r2, r2, #1
	0x412fff1e, // bxmi  lr
	0xe7d13002, // ldrb  r3, [r1, r2]
	0xe7c03002, // strb  r3, [r0, r2]
	0xeafffff7, // b     head
	0xe2522004, // loop: subs r2, r2, #4
	0x57913002, // ldrpl r3, [r1, r2]
	0x57803002, // strpl r3, [r0, r2]
	0x5afffffb, // bpl   loop
	0xe2822004, // add   r2, r2, #4
	0xe2522001, // tail: subs r2, r2, #1
	0x412fff1e, // bxmi  lr
	0xe7d13002, // ldrb  r3, [r1, r2]
	0xe7c03002, // strb  r3, [r0, r2]
	0xeafffffa, // b     tail
}

var clrSetBits = []uint32{
	0xe59f0018, // ldr   r0, [addr]
	0xe5901000, // ldr   r1, [r0]
	0xe59f2014, // ldr   r2, [clr]
	0xe1c11002, // bic   r1, r1, r2
	0xe59f2010, // ldr   r2, [set]
	0xe1811002, // orr   r1, r1, r2
	0xe5801000, // str   r1, [r0]
	0xe12fff1e, // bx    lr
}

// sidRegisters reads the four SID root key words through the SID control
// register and stores them after the SID base address parameter.
var sidRegisters = []uint32{
	0xe59f0040, // ldr   r0, [pc, #64]  ; SID base
	0xe3a01000, // mov   r1, #0
	0xe28f303c, // add   r3, pc, #60    ; result
	0xe1a02801, // loop: lsl r2, r1, #16
	0xe3822b2b, // orr   r2, r2, #0xAC00
	0xe3822002, // orr   r2, r2, #2
	0xe5802040, // str   r2, [r0, #64]
	0xe5902040, // wait: ldr r2, [r0, #64]
	0xe3120002, // tst   r2, #2
	0x1afffffc, // bne   wait
	0xe5902060, // ldr   r2, [r0, #96]
	0xe7832001, // str   r2, [r3, r1]
	0xe2811004, // add   r1, r1, #4
	0xe3510010, // cmp   r1, #16
	0x3afffff3, // bcc   loop
	0xe3a02000, // mov   r2, #0
	0xe5802040, // str   r2, [r0, #64]
	0xe12fff1e, // bx    lr
}

var enableL2 = []uint32{
	0xee112f30, // mrc   15, 0, r2, cr1, cr0, {1}
	0xe3822002, // orr   r2, r2, #2
	0xee012f30, // mcr   15, 0, r2, cr1, cr0, {1}
	0xe12fff1e, // bx    lr
}

var disableICache = []uint32{
	0xee110f10, // mrc   15, 0, r0, cr1, cr0, {0}
	0xe3c00a01, // bic   r0, r0, #0x1000
	0xee010f10, // mcr   15, 0, r0, cr1, cr0, {0}
	0xf57ff06f, // isb   sy
	0xe12fff1e, // bx    lr
}

// stackInfo switches to the IRQ mode to get its sp. The result follows the
// code.
var stackInfo = []uint32{
	0xe10f0000, // mrs   r0, CPSR
	0xe3c0101f, // bic   r1, r0, #31
	0xe3811012, // orr   r1, r1, #18
	0xe121f001, // msr   CPSR_c, r1
	0xe1a0100d, // mov   r1, sp
	0xe121f000, // msr   CPSR_c, r0
	0xe58f1004, // str   r1, [pc, #4]
	0xe58fd004, // str   sp, [pc, #4]
	0xe12fff1e, // bx    lr
}

var smc = []uint32{
	0xe1600070, // smc   #0
	0xe12fff1e, // bx    lr
}

// rmrRequest stores the entry point to RVBAR and requests the warm reset.
var rmrRequest = []uint32{
	0xe59f0028, // ldr   r0, [rvbar]
	0xe59f1028, // ldr   r1, [entry]
	0xe5801000, // str   r1, [r0]
	0xf57ff04f, // dsb   sy
	0xf57ff06f, // isb   sy
	0xe59f101c, // ldr   r1, [mode]
	0xee1c0f50, // mrc   15, 0, r0, cr12, cr0, {2}
	0xe1800001, // orr   r0, r0, r1
	0xee0c0f50, // mcr   15, 0, r0, cr12, cr0, {2}
	0xf57ff06f, // isb   sy
	0xe320f003, // loop: wfi
	0xeafffffd, // b     loop
}

func code(words []uint32, params ...uint32) []byte {
	buf := make([]byte, 0, (len(words)+len(params))*4)
	return appendWords(appendWords(buf, words...), params...)
}

// Memmove copies size bytes from src to dst in the device memory. The
// regions may overlap. The copy uses word transfers wherever the mutual
// alignment of dst and src allows it.
func (d *Dev) Memmove(dst, src, size uint32) (err error) {
	defer wrapErr("Memmove", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	if size == 0 {
		return nil
	}
	words := memcpyUp
	if dst >= src && dst < src+size {
		words = memcpyDown
	}
	return d.runCode(code(words, dst, src, size))
}

// ClrSetBits clears the clr bits and then sets the set bits in the 32-bit
// word at addr.
func (d *Dev) ClrSetBits(addr, clr, set uint32) (err error) {
	defer wrapErr("ClrSetBits", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	return d.runCode(code(clrSetBits, addr, clr, set))
}

// ErrNoSID is returned if the SID of the SoC is unknown or inaccessible.
var ErrNoSID = errors.New("SID registers unknown or inaccessible")

// SIDRootKey reads the 128-bit SID root key. If the SoC is known to return
// unreliable values when reading SID memory or forceRegisters is set the key
// is read using the SID registers.
func (d *Dev) SIDRootKey(forceRegisters bool) (key [4]uint32, err error) {
	defer wrapErr("SIDRootKey", &err)
	if d.poisoned {
		return key, ErrPoisoned
	}
	info := d.Info
	if info.SIDBase == 0 {
		return key, ErrNoSID
	}
	if !info.SIDFix && !forceRegisters {
		glog.V(1).Infof("SID key (e-fuses) at 0x%08X", info.SIDBase+info.SIDOffset)
		_, err = d.readlN(info.SIDBase+info.SIDOffset, key[:])
		return
	}
	glog.V(1).Infof("read SID key via registers, base = 0x%08X", info.SIDBase)
	if err = d.runCode(code(sidRegisters, info.SIDBase)); err != nil {
		return
	}
	var buf [16]byte
	if err = d.read(info.ScratchAddr+uint32(len(sidRegisters)+1)*4, buf[:]); err != nil {
		return
	}
	for i := range key {
		key[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return
}

// CPReg identifies an ARM coprocessor register.
type CPReg struct {
	Coproc, Opc1, CRn, CRm, Opc2 uint32
}

var (
	SCTLR = CPReg{15, 0, 1, 0, 0}
	TTBR0 = CPReg{15, 0, 2, 0, 0}
	TTBCR = CPReg{15, 0, 2, 0, 2}
	DACR  = CPReg{15, 0, 3, 0, 0}
)

func (r CPReg) opcode(load bool) uint32 {
	op := 0xEE000000 | 1<<4 | (r.Opc1&7)<<21 | (r.CRn&0xF)<<16 |
		(r.Coproc&0xF)<<8 | (r.Opc2&7)<<5 | r.CRm&0xF
	if load {
		op |= 1 << 20
	}
	return op
}

func (d *Dev) readCP(r CPReg) (uint32, error) {
	words := []uint32{
		r.opcode(true), // mrc  coproc, opc1, r0, crn, crm, opc2
		0xe58f0000,     // str  r0, [pc]
		0xe12fff1e,     // bx   lr
	}
	if err := d.runCode(code(words)); err != nil {
		return 0, err
	}
	var buf [4]byte
	if err := d.read(d.Info.ScratchAddr+12, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (d *Dev) writeCP(r CPReg, val uint32) error {
	words := []uint32{
		0xe59f000c,      // ldr  r0, [pc, #12]
		r.opcode(false), // mcr  coproc, opc1, r0, crn, crm, opc2
		0xf57ff04f,      // dsb  sy
		0xf57ff06f,      // isb  sy
		0xe12fff1e,      // bx   lr
	}
	return d.runCode(code(words, val))
}

// ReadCP reads the coprocessor register r.
func (d *Dev) ReadCP(r CPReg) (val uint32, err error) {
	defer wrapErr("ReadCP", &err)
	if d.poisoned {
		return 0, ErrPoisoned
	}
	return d.readCP(r)
}

// WriteCP writes val to the coprocessor register r.
func (d *Dev) WriteCP(r CPReg, val uint32) (err error) {
	defer wrapErr("WriteCP", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	return d.writeCP(r, val)
}

func (d *Dev) EnableL2Cache() (err error) {
	defer wrapErr("EnableL2Cache", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	return d.runCode(code(enableL2))
}

func (d *Dev) DisableICache() (err error) {
	defer wrapErr("DisableICache", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	return d.runCode(code(disableICache))
}

// StackInfo returns the stack pointers of the IRQ mode and of the mode the
// FEL code runs in.
func (d *Dev) StackInfo() (spIRQ, sp uint32, err error) {
	defer wrapErr("StackInfo", &err)
	if d.poisoned {
		return 0, 0, ErrPoisoned
	}
	if err = d.runCode(code(stackInfo)); err != nil {
		return
	}
	var buf [8]byte
	if err = d.read(d.Info.ScratchAddr+0x24, buf[:]); err != nil {
		return
	}
	le := binary.LittleEndian
	return le.Uint32(buf[:]), le.Uint32(buf[4:]), nil
}

// ApplySMCWorkaround brings the SoC booted in the secure boot mode from the
// non-secure FEL to the secure one. It does nothing if the SoC does not
// need it or the workaround has been already applied.
func (d *Dev) ApplySMCWorkaround() (err error) {
	defer wrapErr("ApplySMCWorkaround", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	addr := d.Info.SMCCheckAddr
	if addr == 0 {
		return nil
	}
	var buf [4]byte
	if err = d.read(addr, buf[:]); err != nil {
		return
	}
	if binary.LittleEndian.Uint32(buf[:]) != 0 {
		return nil
	}
	glog.V(1).Info("applying SMC workaround")
	return d.runCode(code(smc))
}

// ErrNoRVBAR is returned by RMRRequest if the RVBAR register of the SoC is
// unknown.
var ErrNoRVBAR = errors.New("RVBAR is not supported or unknown")

// RMRRequest stores entry to the RVBAR register of CPU0 and requests the warm
// reset. If aarch64 is set the core restarts in the AArch64 state. The
// device does not return to FEL.
func (d *Dev) RMRRequest(entry uint32, aarch64 bool) (err error) {
	defer wrapErr("RMRRequest", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	if d.Info.RVBAR == 0 {
		return ErrNoRVBAR
	}
	mode := uint32(1 << 1) // RR
	if aarch64 {
		mode |= 1 // AA64
	}
	glog.V(1).Infof(
		"store entry point 0x%08X to RVBAR 0x%08X, and request warm reset with RMR mode %d",
		entry, d.Info.RVBAR, mode,
	)
	return d.runCode(code(rmrRequest, d.Info.RVBAR, entry, mode))
}

// ErrNoWatchdog is returned by WatchdogReset if the watchdog of the SoC is
// unknown.
var ErrNoWatchdog = errors.New("watchdog is unknown")

// WatchdogReset resets the SoC using its watchdog.
func (d *Dev) WatchdogReset() (err error) {
	defer wrapErr("WatchdogReset", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	wd := d.Info.Watchdog
	if wd == nil {
		return ErrNoWatchdog
	}
	_, err = d.writelN(wd.Reg, []uint32{wd.Val})
	return
}
