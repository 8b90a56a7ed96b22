// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package awusb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	usb "github.com/google/gousb"
)

type fakeOut struct {
	writes [][]byte
	err    error
}

func (f *fakeOut) WriteContext(ctx context.Context, p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.writes = append(f.writes, bytes.Clone(p))
	return len(p), nil
}

type fakeIn struct {
	data []byte
	err  error
}

func (f *fakeIn) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(f.data) == 0 {
		if f.err != nil {
			return 0, f.err
		}
		return 0, nil
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func response() []byte {
	r := make([]byte, responseLen)
	copy(r, "AWUS")
	return r
}

func TestAppendRequest(t *testing.T) {
	hdr := appendRequest(nil, reqWrite, 0x12345678)
	if len(hdr) != headerLen {
		t.Fatalf("header length %d, want %d", len(hdr), headerLen)
	}
	le := binary.LittleEndian
	if string(hdr[:8]) != "AWUC\x00\x00\x00\x00" {
		t.Errorf("bad signature %q", hdr[:8])
	}
	if v := le.Uint32(hdr[8:]); v != 0x12345678 {
		t.Errorf("length = %#x", v)
	}
	if v := le.Uint32(hdr[12:]); v != 0x0c000000 {
		t.Errorf("unknown1 = %#x", v)
	}
	if v := le.Uint16(hdr[16:]); v != reqWrite {
		t.Errorf("request = %#x", v)
	}
	if v := le.Uint32(hdr[18:]); v != 0x12345678 {
		t.Errorf("length2 = %#x", v)
	}
	if !bytes.Equal(hdr[22:], make([]byte, 10)) {
		t.Errorf("pad = % x", hdr[22:])
	}
}

func TestWriteChunks(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		progress bool
		chunks   int
	}{
		{"small", 100, false, 1},
		{"max", MaxBulkSend, false, 1},
		{"max+1", MaxBulkSend + 1, false, 2},
		{"progress", MaxBulkSend, true, 4},
		{"progress-odd", ProgressChunk*2 + 3, true, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := new(fakeOut)
			c := New(out, &fakeIn{data: response()})
			var calls, total int
			var progress func(int)
			if tc.progress {
				progress = func(n int) { calls++; total += n }
			}
			if err := c.Write(make([]byte, tc.size), progress); err != nil {
				t.Fatal(err)
			}
			// header + data chunks
			if got := len(out.writes) - 1; got != tc.chunks {
				t.Errorf("%d data chunks, want %d", got, tc.chunks)
			}
			if tc.progress && (calls != tc.chunks || total != tc.size) {
				t.Errorf("progress: %d calls, %d bytes", calls, total)
			}
		})
	}
}

func TestReadBadResponse(t *testing.T) {
	data := append([]byte{1, 2, 3, 4}, "AWUX"...)
	data = append(data, make([]byte, 9)...)
	c := New(new(fakeOut), &fakeIn{data: data})
	err := c.Read(make([]byte, 4))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("got %v, want ErrProtocol", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Op != "Read" {
		t.Fatalf("got %#v, want *Error with Op Read", err)
	}
}

func TestTimeout(t *testing.T) {
	c := New(new(fakeOut), &fakeIn{err: usb.TransferCancelled})
	if err := c.Read(make([]byte, 8)); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	c = New(&fakeOut{err: usb.TransferTimedOut}, new(fakeIn))
	if err := c.Write(make([]byte, 8), nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestParseBusAddr(t *testing.T) {
	tests := []struct {
		in  string
		loc Location
		ok  bool
	}{
		{"1:2", Location{1, 2}, true},
		{"003:015", Location{3, 15}, true},
		{"0:2", Location{}, false},
		{"1:", Location{}, false},
		{"12", Location{}, false},
		{"a:b", Location{}, false},
	}
	for _, tc := range tests {
		loc, err := ParseBusAddr(tc.in)
		if (err == nil) != tc.ok || loc != tc.loc {
			t.Errorf("ParseBusAddr(%q) = %v, %v", tc.in, loc, err)
		}
	}
	if s := (Location{1, 22}).String(); s != "001:022" {
		t.Errorf("String() = %s", s)
	}
}

func TestSelector(t *testing.T) {
	fel := &usb.DeviceDesc{Bus: 1, Address: 5, Vendor: VendorID, Product: ProductID}
	hub := &usb.DeviceDesc{Bus: 1, Address: 1, Vendor: 0x1d6b, Product: 0x0002}
	mouse := &usb.DeviceDesc{Bus: 2, Address: 3, Vendor: 0x046d, Product: 0xc077}

	// Without BUS:ADDR the other devices on the bus are not reported.
	sel := &selector{want: Location{-1, -1}}
	if sel.match(hub) || sel.match(mouse) {
		t.Error("non-FEL device matched")
	}
	if err := sel.notFound(); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if !sel.match(fel) {
		t.Error("FEL device not matched")
	}

	sel = &selector{want: Location{2, 3}}
	if sel.match(hub) || sel.match(fel) || sel.match(mouse) {
		t.Error("device matched")
	}
	err := sel.notFound()
	if errors.Is(err, ErrNotFound) || err == nil {
		t.Fatalf("got %v, want not a FEL device", err)
	}
	want := "Bus 002 Device 003 is not a FEL device"
	if !strings.HasPrefix(err.Error(), want) {
		t.Errorf("got %q", err)
	}

	sel = &selector{want: Location{1, 5}}
	if sel.match(hub) || !sel.match(fel) {
		t.Error("bad match for 001:005")
	}
}
