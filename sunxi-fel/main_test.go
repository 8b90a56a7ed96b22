// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zappem.net/pub/debug/xxd"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/fel"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/feltest"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/image"
)

func init() {
	fel.SPLDelay = 0
}

func newSession(t *testing.T, id uint16) (*session, *feltest.Device, *bytes.Buffer) {
	t.Helper()
	fd := feltest.New(id)
	d, err := fel.New(fd.Conn())
	if err != nil {
		t.Fatal(err)
	}
	out := new(bytes.Buffer)
	return &session{dev: d, out: out}, fd, out
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	name = filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestLookupCommand(t *testing.T) {
	for _, name := range []string{"hex", "hexdump", "exe", "execute", "ver", "version", "multi", "multiwrite-with-xgauge"} {
		if lookupCommand(name) == nil {
			t.Errorf("%s: not found", name)
		}
	}
	if lookupCommand("hexd") != nil {
		t.Error("hexd found")
	}
}

func TestRun(t *testing.T) {
	s, fd, out := newSession(t, 0x1623)
	err := s.run(strings.Fields("writel 0x2000 0x12345678 readl 0x2000 fill 0x3000 8 0xA5 clear 0x3004 2 ver"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fd.Mem(0x3000, 8), []byte{0xA5, 0xA5, 0xA5, 0xA5, 0, 0, 0xA5, 0xA5}) {
		t.Errorf("memory: % x", fd.Mem(0x3000, 8))
	}
	want := "0x12345678\nAWUSBFEX soc=00001623(A10) "
	if !strings.HasPrefix(out.String(), want) {
		t.Errorf("got %q, want prefix %q", out.String(), want)
	}

	out.Reset()
	if err := s.run([]string{"echo-gauge", "Booting"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "XXX\n0\nBooting\nXXX\n" {
		t.Errorf("got %q", out.String())
	}
}

func TestRunErrors(t *testing.T) {
	s, _, _ := newSession(t, 0x1623)
	tests := [][]string{
		{"bogus"},
		{"readl"},
		{"writel", "0x2000"},
		{"readl", "addr"},
		{"multi", "2", "0x2000", "file"},
	}
	for _, args := range tests {
		if err := s.run(args); err == nil {
			t.Errorf("%v: no error", args)
		}
	}
}

func TestHexdump(t *testing.T) {
	s, fd, out := newSession(t, 0x1623)
	data := []byte("0123456789abcdef\x00\x01\x02")
	fd.SetMem(0x3000, data)
	if err := s.run([]string{"hexdump", "0x3000", "19"}); err != nil {
		t.Fatal(err)
	}
	want := strings.Join(xxd.Dump(0x3000, data), "\n") + "\n"
	if out.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
	if !strings.HasPrefix(out.String(), "00003000") {
		t.Errorf("no address in %q", out.String())
	}
}

func TestSID(t *testing.T) {
	s, fd, out := newSession(t, 0x1623)
	fd.SetMem(0x01C23800, []byte{
		0x67, 0x45, 0x23, 0x16, 1, 0, 0, 0, 2, 0, 0, 0, 0xef, 0xbe, 0xad, 0xde,
	})
	if err := s.run([]string{"sid"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "16234567:00000001:00000002:deadbeef\n" {
		t.Errorf("got %q", out.String())
	}

	s, _, out = newSession(t, 0x1633)
	if err := s.run([]string{"sid"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "unknown or inaccessible") {
		t.Errorf("got %q", out.String())
	}
}

func TestWriteUEnv(t *testing.T) {
	s, fd, _ := newSession(t, 0x1623)
	spl := make([]byte, 0x2000)
	copy(spl[image.SPLSignatureOffset:], "SPL\x02")
	if err := image.SignEGON(spl); err != nil {
		t.Fatal(err)
	}
	uEnv := []byte("#=uEnv\nbootcmd=reset\n")
	args := []string{
		"spl", writeFile(t, "spl.bin", spl),
		"write", "0x43100000", writeFile(t, "uEnv.txt", uEnv),
	}
	if err := s.run(args); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fd.Mem(0x43100000, len(uEnv)), uEnv) {
		t.Error("uEnv.txt not written")
	}
	if fd.Word(image.FELInfoOffset) != 0x43100000 || fd.Word(image.FELInfoOffset+4) != uint32(len(uEnv)) {
		t.Error("uEnv.txt not passed to U-Boot")
	}
	if s.autostart {
		t.Error("autostart set by spl")
	}
}

func TestMultiWrite(t *testing.T) {
	s, fd, out := newSession(t, 0x1623)
	a := writeFile(t, "a.bin", bytes.Repeat([]byte{1}, 1000))
	b := writeFile(t, "b.bin", bytes.Repeat([]byte{2}, 1000))
	args := []string{"multi-with-gauge", "2", "0x40000000", a, "0x40001000", b, "readl", "0x40001000"}
	if err := s.run(args); err != nil {
		t.Fatal(err)
	}
	if fd.Word(0x40000000) != 0x01010101 || fd.Word(0x40001000) != 0x02020202 {
		t.Error("files not written")
	}
	if !strings.HasSuffix(out.String(), "0x02020202\n") {
		t.Errorf("got %q", out.String())
	}
}
