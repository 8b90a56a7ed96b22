// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"encoding/binary"
	"errors"
	"testing"
)

func testSPL(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7 + 3)
	}
	binary.LittleEndian.PutUint32(buf, 0xea000016) // b reset
	if err := SignEGON(buf); err != nil {
		panic(err)
	}
	return buf
}

func TestEGONRoundTrip(t *testing.T) {
	for _, n := range []int{32, 64, 0x1000, 0x6000} {
		buf := testSPL(n)
		h, err := ParseEGON(buf)
		if err != nil {
			t.Fatalf("%#x: %v", n, err)
		}
		if h.Length != uint32(n) {
			t.Errorf("%#x: length %#x", n, h.Length)
		}
	}
}

func TestEGONBitFlips(t *testing.T) {
	buf := testSPL(256)
	for i := 0; i < len(buf)*8; i++ {
		if i/8 >= 4 && i/8 < 12 || i/8 >= 16 && i/8 < 20 {
			continue // magic and length are checked separately
		}
		buf[i/8] ^= 1 << (i % 8)
		_, err := ParseEGON(buf)
		buf[i/8] ^= 1 << (i % 8)
		var ce *ChecksumError
		if !errors.As(err, &ce) {
			t.Fatalf("bit %d: got %v, want ChecksumError", i, err)
		}
	}
	if _, err := ParseEGON(buf); err != nil {
		t.Fatal(err)
	}
}

func TestEGONHeader(t *testing.T) {
	le := binary.LittleEndian
	tests := []struct {
		name string
		mod  func([]byte) []byte
		want error
	}{
		{"short", func(b []byte) []byte { return b[:16] }, ErrNoEGON},
		{"magic", func(b []byte) []byte { b[11] = '1'; return b }, ErrNoEGON},
		{"too long", func(b []byte) []byte { le.PutUint32(b[16:], 0x200); return b }, ErrBadLength},
		{"unaligned", func(b []byte) []byte { le.PutUint32(b[16:], 0x82); return b }, ErrBadLength},
		{"truncated", func(b []byte) []byte { return b[:0x80] }, ErrBadLength},
	}
	for _, tc := range tests {
		_, err := ParseEGON(tc.mod(testSPL(0x100)))
		if err != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestUImage(t *testing.T) {
	data := []byte("U-Boot payload that is not really U-Boot")
	img := MakeUImage(TypeFirmware, 0x4A000000, "U-Boot", data)
	if typ := ImageType(img); typ != TypeFirmware {
		t.Fatalf("ImageType = %d", typ)
	}
	h, d, err := LoadFirmware(img)
	if err != nil {
		t.Fatal(err)
	}
	if h.Load != 0x4A000000 || h.Name != "U-Boot" || string(d) != string(data) {
		t.Errorf("bad result: %+v %q", h, d)
	}

	bad := append([]byte(nil), img...)
	bad[UImageHeaderSize+3] ^= 1
	var ce *CRCError
	if _, _, err := LoadFirmware(bad); !errors.As(err, &ce) || ce.What != "data" {
		t.Errorf("data corruption: %v", err)
	}
	bad = append([]byte(nil), img...)
	bad[40] ^= 0x80
	if _, _, err := LoadFirmware(bad); !errors.As(err, &ce) || ce.What != "header" {
		t.Errorf("header corruption: %v", err)
	}
	if _, _, err := LoadFirmware(img[:UImageHeaderSize+4]); err == nil {
		t.Error("truncated image accepted")
	}
	script := MakeUImage(TypeScript, 0x43100000, "boot.scr", []byte("echo"))
	if _, _, err := LoadFirmware(script); err == nil {
		t.Error("script accepted as firmware")
	}
	if typ := ImageType(script); typ != TypeScript {
		t.Errorf("script type %d", typ)
	}
	if typ := ImageType(data); typ != TypeInvalid {
		t.Errorf("raw data type %d", typ)
	}
}

func TestSunxiSPLVersion(t *testing.T) {
	tests := []struct {
		sig  string
		want int
	}{
		{"SPL\x01", 1},
		{"SPL\x02", 2},
		{"SPL\x00", 0},
		{"SPL\x03", 0},
		{"XPL\x01", 0},
		{"SP", 0},
	}
	for _, tc := range tests {
		if v := SunxiSPLVersion([]byte(tc.sig)); v != tc.want {
			t.Errorf("%q: %d, want %d", tc.sig, v, tc.want)
		}
	}
}

func TestIsUEnv(t *testing.T) {
	if !IsUEnv([]byte("#=uEnv\nbootcmd=boot\n")) {
		t.Error("uEnv not detected")
	}
	if IsUEnv([]byte("#=uEnv")) || IsUEnv([]byte("bootcmd=boot")) {
		t.Error("false positive")
	}
}
