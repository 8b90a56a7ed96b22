// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// IsHex reports whether the file name has the Intel HEX extension.
func IsHex(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".hex")
}

// ParseHex reads the Intel HEX data from r and returns its data segments
// as sections.
func ParseHex(r io.Reader) (Sections, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, err
	}
	var ss Sections
	for _, seg := range mem.GetDataSegments() {
		a := uint64(seg.Address)
		ss = append(ss, &Section{Vaddr: a, Paddr: a, Data: seg.Data})
	}
	return ss, nil
}

// DumpHex writes data to w in the Intel HEX format, starting from addr.
func DumpHex(w io.Writer, addr uint32, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return err
	}
	return mem.DumpIntelHex(w, 16)
}

// LoadFile reads the named file. The "-" name means the standard input.
func LoadFile(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

// ReadSections reads the file content as sections. Intel HEX files are
// parsed, the other files are treated as raw binaries to be loaded at addr.
func ReadSections(name string, addr uint32) (Sections, error) {
	buf, err := LoadFile(name)
	if err != nil {
		return nil, err
	}
	if IsHex(name) {
		return ParseHex(bytes.NewReader(buf))
	}
	a := uint64(addr)
	return Sections{{Name: name, Vaddr: a, Paddr: a, Data: buf}}, nil
}

// SaveFile writes data read from addr to the named file, in the Intel HEX
// format if the name has the .hex extension. The "-" name means the
// standard output.
func SaveFile(name string, addr uint32, data []byte) error {
	var w io.Writer = os.Stdout
	if name != "-" {
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if IsHex(name) {
		return DumpHex(w, addr, data)
	}
	_, err := w.Write(data)
	return err
}
