// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/awusb"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/feltest"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/soc"
)

func open(t *testing.T, id uint16, opts ...Option) (*Dev, *feltest.Device) {
	t.Helper()
	fd := feltest.New(id)
	d, err := New(fd.Conn(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return d, fd
}

func TestDecodeVersion(t *testing.T) {
	buf := make([]byte, 32)
	copy(buf, "AWUSBFEX")
	binary.LittleEndian.PutUint32(buf[8:], 0x00162300)
	binary.LittleEndian.PutUint16(buf[16:], 1)
	binary.LittleEndian.PutUint32(buf[20:], 0x7e00)
	v, err := DecodeVersion(buf)
	if err != nil {
		t.Fatal(err)
	}
	if v.SocID != 0x1623 || v.Protocol != 1 || v.Scratchpad != 0x7e00 {
		t.Errorf("bad version: %+v", v)
	}
	want := "AWUSBFEX soc=00001623(A10) 00000000 ver=0001 00 00 scratchpad=00007e00 00000000 00000000"
	if s := v.Format("A10"); s != want {
		t.Errorf("Format:\n%s\nwant\n%s", s, want)
	}
	if _, err := DecodeVersion(buf[:31]); !errors.Is(err, awusb.ErrProtocol) {
		t.Errorf("short reply: %v", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		id    uint16
		sid0  uint32
		sid2  uint32 // third SID word in the memory of the sun5i SoCs
		name  string
		known bool
	}{
		{0x1623, 0, 0, "A10", true},
		{0x1689, 0, 0, "A64", true},
		{0x1680, 0x00, 0, "H3", true},
		{0x1680, 0x1242, 0, "H2+", true},
		{0x1680, 0x1283, 0, "H2+", true},
		{0x1680, 0x1281, 0, "H3", true},
		{0x1625, 0, 0x1000, "A13", true},
		{0x1625, 0, 0x7000, "A10s", true},
		{0x9999, 0, 0, "0x9999", false},
	}
	for _, tc := range tests {
		fd := feltest.New(tc.id)
		fd.SID[0] = tc.sid0
		fd.SetWord(0x01C23808, tc.sid2)
		d, err := New(fd.Conn())
		if err != nil {
			t.Fatalf("%#x: %v", tc.id, err)
		}
		if d.Name != tc.name {
			t.Errorf("%#x: name %s, want %s", tc.id, d.Name, tc.name)
		}
		if !tc.known && d.Info != &soc.Generic {
			t.Errorf("%#x: got %s, want generic", tc.id, d.Info)
		}
		if info, _ := soc.LookupVariant(tc.id, d.Info.Variant); info != d.Info && tc.known {
			t.Errorf("%#x: inconsistent variant %d", tc.id, d.Info.Variant)
		}
	}
}

func TestReadWrite(t *testing.T) {
	d, fd := open(t, 0x1623)
	data := []byte("hello, FEL")
	if err := d.Write(0x2000, data); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fd.Mem(0x2000, len(data)), data) {
		t.Fatal("data not written")
	}
	buf := make([]byte, len(data))
	if err := d.Read(0x2000, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("read %q", buf)
	}
	var sent int
	big := make([]byte, 300*1024)
	if err := d.WriteBuffer(0x40000000, big, func(n int) { sent += n }); err != nil {
		t.Fatal(err)
	}
	if sent != len(big) {
		t.Errorf("progress reported %d bytes", sent)
	}
}

func TestReadlWritelChunking(t *testing.T) {
	for _, n := range []int{1, MaxWords - 1, MaxWords, MaxWords + 1, 3*MaxWords + 7} {
		d, fd := open(t, 0x1623)
		vals := make([]uint32, n)
		for i := range vals {
			vals[i] = 0x01000000*uint32(n%251) + uint32(i)
		}
		if err := d.WritelN(0x01C20800, vals); err != nil {
			t.Fatal(err)
		}
		execs := len(fd.Execs)
		if want := (n + MaxWords - 1) / MaxWords; execs != want {
			t.Errorf("%d words written in %d runs, want %d", n, execs, want)
		}
		for i, v := range vals {
			if w := fd.Word(0x01C20800 + uint32(i)*4); w != v {
				t.Fatalf("%d: word %d: %#x, want %#x", n, i, w, v)
			}
		}
		got, err := d.ReadlN(0x01C20800, n)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != n {
			t.Fatalf("read %d words, want %d", len(got), n)
		}
		for i := range got {
			if got[i] != vals[i] {
				t.Fatalf("%d: read word %d: %#x, want %#x", n, i, got[i], vals[i])
			}
		}
		if len(fd.Execs)-execs != execs {
			t.Errorf("%d words read in %d runs", n, len(fd.Execs)-execs)
		}
	}
	d, fd := open(t, 0x1623)
	fd.SetWord(0x01C20C94, 0x12345678)
	if v, err := d.Readl(0x01C20C94); err != nil || v != 0x12345678 {
		t.Errorf("Readl: %#x, %v", v, err)
	}
	if err := d.Writel(0x01C20C98, 7); err != nil || fd.Word(0x01C20C98) != 7 {
		t.Errorf("Writel: %v", err)
	}
}

func TestWordLimit(t *testing.T) {
	vals := make([]uint32, MaxWords+10)
	for i := range vals {
		vals[i] = uint32(i + 1)
	}
	d, fd := open(t, 0x1623)
	_, err := d.WritelNOnce(0x50000, vals)
	var le *LimitError
	if !errors.As(err, &le) || le.Want != len(vals) || le.Max != MaxWords {
		t.Fatalf("got %v, want LimitError", err)
	}
	if len(fd.Execs) != 0 {
		t.Fatal("code executed despite the error")
	}
	if _, err = d.ReadlNOnce(0x50000, len(vals)); !errors.As(err, &le) {
		t.Fatalf("got %v, want LimitError", err)
	}
	transfers := fd.Transfers
	if _, err = d.ReadlN(0x50000, -1); err == nil {
		t.Error("ReadlN accepted a negative count")
	}
	if _, err = d.ReadlNOnce(0x50000, -1); err == nil {
		t.Error("ReadlNOnce accepted a negative count")
	}
	if fd.Transfers != transfers || d.Poisoned() {
		t.Error("negative count reached the device")
	}

	d, fd = open(t, 0x1623, WithTruncate(true))
	n, err := d.WritelNOnce(0x50000, vals)
	if err != nil || n != MaxWords {
		t.Fatalf("truncated write: %d, %v", n, err)
	}
	if fd.Word(0x50000+4*(MaxWords-1)) != MaxWords || fd.Word(0x50000+4*MaxWords) != 0 {
		t.Error("truncated write wrote wrong words")
	}
	got, err := d.ReadlNOnce(0x50000, len(vals))
	if err != nil || len(got) != MaxWords {
		t.Fatalf("truncated read: %d words, %v", len(got), err)
	}
}

func TestExecTimeoutPoisons(t *testing.T) {
	d, fd := open(t, 0x1623)
	fd.HangOnExec = true
	err := d.Execute(0x1000)
	if !errors.Is(err, awusb.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if !d.Poisoned() {
		t.Fatal("device not poisoned")
	}
	transfers := fd.Transfers
	buf := make([]byte, 4)
	checks := []error{
		d.Read(0, buf),
		d.Write(0, buf),
		d.Execute(0x1000),
		d.Writel(0, 1),
		d.Memmove(0, 4, 4),
		d.WriteAndExecuteSPL(buf),
	}
	_, err = d.ReadlN(0, 1)
	checks = append(checks, err)
	_, err = d.SIDRootKey(false)
	checks = append(checks, err)
	for i, err := range checks {
		if !errors.Is(err, ErrPoisoned) {
			t.Errorf("%d: got %v, want ErrPoisoned", i, err)
		}
	}
	if fd.Transfers != transfers {
		t.Errorf("%d transfers after poisoning", fd.Transfers-transfers)
	}
}

func TestMemmove(t *testing.T) {
	pattern := make([]byte, 64)
	for i := range pattern {
		pattern[i] = byte(i + 1)
	}
	tests := []struct {
		dst, src uint32
	}{
		{0x3000, 0x2000}, // disjoint
		{0x2010, 0x2000}, // dst above src, overlapping
		{0x2000, 0x2010}, // dst below src, overlapping
		{0x2003, 0x2000},
	}
	for _, tc := range tests {
		d, fd := open(t, 0x1623)
		fd.SetMem(tc.src, pattern)
		if err := d.Memmove(tc.dst, tc.src, uint32(len(pattern))); err != nil {
			t.Fatal(err)
		}
		if got := fd.Mem(tc.dst, len(pattern)); !bytes.Equal(got, pattern) {
			t.Errorf("%#x <- %#x: got % x", tc.dst, tc.src, got)
		}
	}
}

func TestClrSetBits(t *testing.T) {
	d, fd := open(t, 0x1623)
	fd.SetWord(0x01C20824, 0xFFFF0000)
	if err := d.ClrSetBits(0x01C20824, 0x00FF0000, 0x0000000F); err != nil {
		t.Fatal(err)
	}
	if w := fd.Word(0x01C20824); w != 0xFF00000F {
		t.Errorf("got %#08x", w)
	}
}

func TestSIDRootKey(t *testing.T) {
	key := [4]uint32{0x16230001, 0x02030405, 0x06070809, 0x0a0b0c0d}
	d, fd := open(t, 0x1623)
	for i, w := range key {
		fd.SetWord(0x01C23800+uint32(i)*4, w)
	}
	if got, err := d.SIDRootKey(false); err != nil || got != key {
		t.Errorf("memory: %08x, %v", got, err)
	}
	fd.SID = [4]uint32{1, 2, 3, 4}
	if got, err := d.SIDRootKey(true); err != nil || got != fd.SID {
		t.Errorf("registers: %08x, %v", got, err)
	}
	d, _ = open(t, 0x1633) // A31
	if _, err := d.SIDRootKey(false); !errors.Is(err, ErrNoSID) {
		t.Errorf("got %v, want ErrNoSID", err)
	}
}

func TestCPRegs(t *testing.T) {
	d, fd := open(t, 0x1623)
	if v, err := d.ReadCP(SCTLR); err != nil || v != fd.SCTLR {
		t.Errorf("SCTLR %#x, %v", v, err)
	}
	if err := d.WriteCP(TTBR0, 0x4000); err != nil || fd.TTBR0 != 0x4000 {
		t.Errorf("TTBR0 %#x, %v", fd.TTBR0, err)
	}
	if op := DACR.opcode(true); op != 0xee130f10 {
		t.Errorf("mrc DACR opcode %08x", op)
	}
	if op := TTBCR.opcode(false); op != 0xee020f50 {
		t.Errorf("mcr TTBCR opcode %08x", op)
	}
	spIRQ, sp, err := d.StackInfo()
	if err != nil || spIRQ != fd.SPIRQ || sp != fd.SP {
		t.Errorf("stack info %#x %#x, %v", spIRQ, sp, err)
	}
}

func TestSMCWorkaround(t *testing.T) {
	d, fd := open(t, 0x1689) // A64
	if fd.SMCs != 1 {
		t.Fatalf("New: %d SMCs", fd.SMCs)
	}
	if err := d.ApplySMCWorkaround(); err != nil || fd.SMCs != 2 {
		t.Fatalf("%d SMCs, %v", fd.SMCs, err)
	}
	fd.SetWord(0x40004, 0x15000000)
	if err := d.ApplySMCWorkaround(); err != nil || fd.SMCs != 2 {
		t.Fatalf("%d SMCs, %v", fd.SMCs, err)
	}

	d, _ = open(t, 0x1623)
	if err := d.ApplySMCWorkaround(); err != nil {
		t.Fatal(err)
	}
}

// The SoC must be in the secure mode before the SID registers are read.
func TestNewSMCBeforeSID(t *testing.T) {
	fd := feltest.New(0x1680) // H3
	fd.SID[0] = 0x42
	d, err := New(fd.Conn())
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "H2+" {
		t.Errorf("got %s, want H2+", d.Name)
	}
	want := []string{"smc", "sid"}
	if len(fd.Runs) != len(want) || fd.Runs[0] != want[0] || fd.Runs[1] != want[1] {
		t.Errorf("code runs %q, want %q", fd.Runs, want)
	}

	fd = feltest.New(0x1680)
	fd.SetWord(0x40004, 0x15000000) // already secure
	if _, err = New(fd.Conn()); err != nil {
		t.Fatal(err)
	}
	if fd.SMCs != 0 || len(fd.Runs) != 1 || fd.Runs[0] != "sid" {
		t.Errorf("code runs %q", fd.Runs)
	}
}

func TestRMRRequest(t *testing.T) {
	d, fd := open(t, 0x1689)
	if err := d.RMRRequest(0x44000, true); err != nil {
		t.Fatal(err)
	}
	if fd.RMR.RVBAR != 0x017000A0 || fd.RMR.Entry != 0x44000 || fd.RMR.Mode != 3 {
		t.Errorf("RMR %+v", fd.RMR)
	}
	if fd.Word(0x017000A0) != 0x44000 {
		t.Error("entry point not stored in RVBAR")
	}
	d, _ = open(t, 0x1623)
	if err := d.RMRRequest(0x44000, false); !errors.Is(err, ErrNoRVBAR) {
		t.Errorf("got %v, want ErrNoRVBAR", err)
	}
}

func TestWatchdogReset(t *testing.T) {
	d, fd := open(t, 0x1623)
	if err := d.WatchdogReset(); !errors.Is(err, ErrNoWatchdog) {
		t.Errorf("got %v, want ErrNoWatchdog", err)
	}
	info := *d.Info
	info.Watchdog = &soc.Watchdog{Reg: 0x01C20C94, Val: 3}
	d.Info = &info
	if err := d.WatchdogReset(); err != nil {
		t.Fatal(err)
	}
	if w := fd.Word(0x01C20C94); w != 3 {
		t.Errorf("watchdog mode %#x", w)
	}
}
