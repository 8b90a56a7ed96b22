// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package feltest provides a fake FEL device for tests. It implements the USB
// bulk endpoints expected by awusb, keeps a sparse memory and emulates the
// scratch code and the fel-to-spl thunk used by the fel package.
package feltest

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/awusb"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/thunk"
)

const pageSize = 4096

type usbState uint8

const (
	usbHeader usbState = iota
	usbDataOut
)

type felState uint8

const (
	felIdle felState = iota
	felVersionReply
	felReadData
	felWriteData
	felStatus
)

// Device is a fake FEL device. Its exported fields describe the CPU state
// seen by the scratch code and may be modified between transfers.
type Device struct {
	ID    uint16
	SCTLR uint32
	DACR  uint32
	TTBCR uint32
	TTBR0 uint32
	L2Aux uint32
	SP    uint32
	SPIRQ uint32
	SID   [4]uint32 // returned by the SID register access

	// HangOnExec makes the device stop responding after the EXEC request
	// of the code at HangAddr (any code if HangAddr is zero).
	HangOnExec bool
	HangAddr   uint32

	// OnSPL is called when the thunk jumps to the SPL at spl.
	OnSPL func(d *Device, spl uint32)

	Transfers int      // number of bulk transfers
	Execs     []uint32 // addresses of executed code
	Runs      []string // names of the emulated code in execution order
	SMCs      int
	RMR       struct{ RVBAR, Entry, Mode uint32 }

	mem   map[uint32]*[pageSize]byte
	usb   usbState
	fel   felState
	in    []byte
	out   []byte
	want  int
	addr  uint32
	count uint32
	hung  bool
}

// New returns a fake device that reports id. The MMU and caches are
// disabled.
func New(id uint16) *Device {
	return &Device{
		ID:    id,
		SCTLR: 0x00C50038,
		DACR:  0x55555555,
		SP:    0x7000,
		SPIRQ: 0x2000,
		mem:   make(map[uint32]*[pageSize]byte),
	}
}

// Conn returns the awusb connection to d.
func (d *Device) Conn() *awusb.Conn {
	return awusb.New(d, d)
}

// EnableMMU writes the direct mapping translation table at ttbr0 and enables
// the MMU, I-cache and branch prediction the way the A10 BROM does.
func (d *Device) EnableMMU(ttbr0 uint32) {
	for i := uint32(0); i < 4096; i++ {
		d.SetWord(ttbr0+i*4, 0xDE2|i<<20)
	}
	d.TTBR0 = ttbr0
	d.SCTLR |= 1<<12 | 1<<11 | 1
}

func (d *Device) page(addr uint32, alloc bool) *[pageSize]byte {
	p := d.mem[addr/pageSize]
	if p == nil && alloc {
		p = new([pageSize]byte)
		d.mem[addr/pageSize] = p
	}
	return p
}

// Mem returns a copy of n bytes of memory at addr.
func (d *Device) Mem(addr uint32, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		a := addr + uint32(i)
		if p := d.page(a, false); p != nil {
			buf[i] = p[a%pageSize]
		}
	}
	return buf
}

// SetMem writes p to memory at addr.
func (d *Device) SetMem(addr uint32, p []byte) {
	for i, b := range p {
		a := addr + uint32(i)
		d.page(a, true)[a%pageSize] = b
	}
}

func (d *Device) Word(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(d.Mem(addr, 4))
}

func (d *Device) SetWord(addr, w uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], w)
	d.SetMem(addr, buf[:])
}

// WriteContext implements awusb.BulkWriter.
func (d *Device) WriteContext(ctx context.Context, p []byte) (int, error) {
	d.Transfers++
	if d.hung {
		return 0, context.DeadlineExceeded
	}
	d.in = append(d.in, p...)
	for {
		switch d.usb {
		case usbHeader:
			if len(d.in) < 32 {
				return len(p), nil
			}
			hdr := d.in[:32]
			d.in = d.in[32:]
			if string(hdr[:4]) != "AWUC" {
				return 0, fmt.Errorf("feltest: bad request signature %q", hdr[:4])
			}
			le := binary.LittleEndian
			n := int(le.Uint32(hdr[8:]))
			switch req := le.Uint16(hdr[16:]); req {
			case 0x12:
				d.usb, d.want = usbDataOut, n
			case 0x11:
				data, err := d.felRead(n)
				if err != nil {
					return 0, err
				}
				d.out = append(d.out, data...)
				d.out = append(d.out, response()...)
			default:
				return 0, fmt.Errorf("feltest: bad AWUSB request %#x", req)
			}
		case usbDataOut:
			if len(d.in) < d.want {
				return len(p), nil
			}
			data := d.in[:d.want]
			d.in = d.in[d.want:]
			d.usb = usbHeader
			if err := d.felData(data); err != nil {
				return 0, err
			}
			d.out = append(d.out, response()...)
		}
	}
}

// ReadContext implements awusb.BulkReader.
func (d *Device) ReadContext(ctx context.Context, p []byte) (int, error) {
	d.Transfers++
	if d.hung {
		return 0, context.DeadlineExceeded
	}
	if len(d.out) == 0 {
		return 0, fmt.Errorf("feltest: read with no pending data")
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

func response() []byte {
	resp := make([]byte, 13)
	copy(resp, "AWUS")
	return resp
}

func (d *Device) felData(data []byte) error {
	if d.fel == felWriteData {
		if len(data) != int(d.count) {
			return fmt.Errorf("feltest: write of %d bytes, announced %d", len(data), d.count)
		}
		d.SetMem(d.addr, data)
		d.fel = felStatus
		return nil
	}
	if d.fel != felIdle {
		return fmt.Errorf("feltest: unexpected data in state %d", d.fel)
	}
	if len(data) != 16 {
		return fmt.Errorf("feltest: bad FEL request length %d", len(data))
	}
	le := binary.LittleEndian
	req := le.Uint32(data)
	d.addr, d.count = le.Uint32(data[4:]), le.Uint32(data[8:])
	switch req {
	case 0x001:
		d.fel = felVersionReply
	case 0x101:
		d.fel = felWriteData
	case 0x103:
		d.fel = felReadData
	case 0x102:
		d.Execs = append(d.Execs, d.addr)
		if d.HangOnExec && (d.HangAddr == 0 || d.HangAddr == d.addr) {
			d.hung = true
			return nil
		}
		if err := d.exec(d.addr); err != nil {
			return err
		}
		d.fel = felStatus
	default:
		return fmt.Errorf("feltest: bad FEL request %#x", req)
	}
	return nil
}

func (d *Device) felRead(n int) ([]byte, error) {
	switch d.fel {
	case felVersionReply:
		if n != 32 {
			return nil, fmt.Errorf("feltest: version read of %d bytes", n)
		}
		buf := make([]byte, 0, 32)
		le := binary.LittleEndian
		buf = append(buf, "AWUSBFEX"...)
		buf = le.AppendUint32(buf, uint32(d.ID)<<8)
		buf = le.AppendUint32(buf, 1)
		buf = le.AppendUint16(buf, 1)
		buf = append(buf, 0x44, 0x08)
		buf = le.AppendUint32(buf, 0x7e00)
		buf = le.AppendUint32(buf, 0)
		buf = le.AppendUint32(buf, 0)
		d.fel = felStatus
		return buf, nil
	case felReadData:
		if n != int(d.count) {
			return nil, fmt.Errorf("feltest: read of %d bytes, announced %d", n, d.count)
		}
		d.fel = felStatus
		return d.Mem(d.addr, n), nil
	case felStatus:
		if n != 8 {
			return nil, fmt.Errorf("feltest: status read of %d bytes", n)
		}
		d.fel = felIdle
		return make([]byte, 8), nil
	}
	return nil, fmt.Errorf("feltest: unexpected read in state %d", d.fel)
}

func (d *Device) words(addr uint32, n int) []uint32 {
	w := make([]uint32, n)
	for i := range w {
		w[i] = d.Word(addr + uint32(i)*4)
	}
	return w
}

func (d *Device) copyUp(dst, src, n uint32) {
	for i := uint32(0); i < n; i++ {
		d.SetMem(dst+i, d.Mem(src+i, 1))
	}
}

func (d *Device) copyDown(dst, src, n uint32) {
	for i := n; i > 0; i-- {
		d.SetMem(dst+i-1, d.Mem(src+i-1, 1))
	}
}

func (d *Device) cpReg(op uint32) (*uint32, error) {
	crn, crm, opc2 := op>>16&0xF, op&0xF, op>>5&7
	switch {
	case crn == 1 && crm == 0 && opc2 == 0:
		return &d.SCTLR, nil
	case crn == 2 && crm == 0 && opc2 == 0:
		return &d.TTBR0, nil
	case crn == 2 && crm == 0 && opc2 == 2:
		return &d.TTBCR, nil
	case crn == 3 && crm == 0 && opc2 == 0:
		return &d.DACR, nil
	}
	return nil, fmt.Errorf("feltest: unsupported coprocessor register (%08x)", op)
}

// exec emulates the code at addr.
func (d *Device) exec(addr uint32) error {
	w := d.words(addr, 32)
	var run string
	switch {
	case w[0] == 0xe59f0020 && w[1] == 0xe28f1024:
		run = "readl/writel"
		n := min(w[11], 244)
		switch w[7] {
		case 0xe4903004:
			d.copyUp(addr+48, w[10], n*4)
		case 0xe4913004:
			d.copyUp(w[10], addr+48, n*4)
		default:
			return fmt.Errorf("feltest: unknown readl/writel code")
		}
	case w[0] == 0xe59f0054:
		run = "memcpy"
		d.copyUp(w[23], w[24], w[25])
	case w[0] == 0xe59f0058:
		run = "memmove"
		d.copyDown(w[24], w[25], w[26])
	case w[0] == 0xe59f0018 && w[1] == 0xe5901000:
		run = "clrsetbits"
		d.SetWord(w[8], d.Word(w[8])&^w[9]|w[10])
	case w[0] == 0xe59f0040 && w[1] == 0xe3a01000:
		run = "sid"
		for i, v := range d.SID {
			d.SetWord(addr+0x4C+uint32(i)*4, v)
		}
	case w[0]&0xFF100F10 == 0xEE100F10 && w[1] == 0xe58f0000:
		run = "mrc"
		r, err := d.cpReg(w[0])
		if err != nil {
			return err
		}
		d.SetWord(addr+12, *r)
	case w[0] == 0xe59f000c && w[1]&0xFF100F10 == 0xEE000F10:
		run = "mcr"
		r, err := d.cpReg(w[1])
		if err != nil {
			return err
		}
		*r = w[5]
	case w[0] == 0xee112f30:
		run = "L2 enable"
		d.L2Aux |= 2
	case w[0] == 0xee110f10 && w[1] == 0xe3c00a01:
		run = "I-cache disable"
		d.SCTLR &^= 1 << 12
	case w[0] == 0xee110f10 && w[1] == 0xe3c00001:
		run = "MMU disable"
		d.SCTLR &^= 1<<12 | 1<<11 | 1
	case w[0] == 0xe3a00000 && w[1] == 0xee080f17:
		run = "MMU enable"
		d.SCTLR |= 1<<12 | 1<<11 | 1
	case w[0] == 0xe10f0000:
		run = "stack info"
		d.SetWord(addr+0x24, d.SPIRQ)
		d.SetWord(addr+0x28, d.SP)
	case w[0] == 0xe1600070:
		run = "smc"
		d.SMCs++
	case w[0] == 0xe59f0028 && w[1] == 0xe59f1028:
		run = "RMR"
		d.RMR.RVBAR, d.RMR.Entry, d.RMR.Mode = w[12], w[13], w[14]
		d.SetWord(w[12], w[13])
	case w[0] == thunk.V7.Code[0] || w[0] == thunk.V5.Code[0]:
		d.Runs = append(d.Runs, "thunk")
		return d.runThunk(addr)
	default:
		return fmt.Errorf("feltest: unknown code at %#x: %08x %08x", addr, w[0], w[1])
	}
	d.Runs = append(d.Runs, run)
	return nil
}

// runThunk emulates the fel-to-spl thunk: it swaps the buffers, verifies the
// SPL checksum, runs the SPL and swaps the buffers back.
func (d *Device) runThunk(addr uint32) error {
	th := thunk.V7
	if d.Word(addr+4) != 0xffffffff {
		th = thunk.V5
	}
	for i, w := range th.Code {
		if d.Word(addr+uint32(i)*4) != w {
			return fmt.Errorf("feltest: corrupted %s thunk at word %d", th.Name, i)
		}
	}
	p := addr + uint32(th.Size())
	spl := d.Word(p)
	var swaps [][3]uint32
	for t := p + 4; ; t += 12 {
		sb := [3]uint32{d.Word(t), d.Word(t + 4), d.Word(t + 8)}
		if sb[2] == 0 {
			break
		}
		swaps = append(swaps, sb)
	}
	if d.SCTLR&(1<<12|1<<2) != 0 {
		d.SetMem(spl+8, []byte(".???"))
		return nil
	}
	swap := func() {
		for _, sb := range swaps {
			a, b := d.Mem(sb[0], int(sb[2])), d.Mem(sb[1], int(sb[2]))
			d.SetMem(sb[0], b)
			d.SetMem(sb[1], a)
		}
	}
	swap()
	sum := uint32(0x5F0A6C39)
	for i := uint32(0); i < d.Word(spl+16)/4; i++ {
		sum += d.Word(spl + i*4)
	}
	if sum-2*d.Word(spl+12) != 0 {
		d.SetMem(spl+8, []byte(".BAD"))
	} else {
		d.SetMem(spl+8, []byte(".FEL"))
		if d.OnSPL != nil {
			d.OnSPL(d, spl)
		}
	}
	swap()
	return nil
}
