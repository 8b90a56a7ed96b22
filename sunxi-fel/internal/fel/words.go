// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
)

// The readl/writel scratch code with its parameters takes lcodeWords words.
// The whole scratch buffer must not exceed 0x400 bytes.
const (
	lcodeWords = 12
	lcodeSize  = lcodeWords * 4

	// MaxWords is the maximum number of words transferred by a single
	// scratch code invocation.
	MaxWords = 0x100 - lcodeWords
)

// The loop in the scratch code copies r2 words from the address in r0 to
// the address in r1 (readl) or in the opposite direction (writel).
func lcode(load, store, addr uint32, n int) []uint32 {
	return []uint32{
		0xe59f0020,            // ldr   r0, [pc, #32]  ; addr
		0xe28f1024,            // add   r1, pc, #36    ; data
		0xe59f201c,            // ldr   r2, [pc, #28]  ; count
		0xe3520000 + MaxWords, // cmp   r2, #MaxWords
		0xc3a02000 + MaxWords, // movgt r2, #MaxWords
		0xe2522001,            // subs  r2, r2, #1
		0x412fff1e,            // bxmi  lr
		load,
		store,
		0xeafffffa, // b     loop
		addr,
		uint32(n),
	}
}

func appendWords(buf []byte, words ...uint32) []byte {
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return buf
}

func (d *Dev) limitWords(op string, n int) (int, error) {
	if n <= MaxWords {
		return n, nil
	}
	if !d.truncate {
		return 0, &LimitError{op, n, MaxWords}
	}
	glog.Warningf("%s: max. word count exceeded, truncating %d to %d", op, n, MaxWords)
	return MaxWords, nil
}

// runCode writes code to the scratch area and executes it.
func (d *Dev) runCode(code []byte) error {
	if err := d.write(d.Info.ScratchAddr, code, nil); err != nil {
		return err
	}
	return d.exec(d.Info.ScratchAddr)
}

func (d *Dev) runWords(words ...uint32) error {
	return d.runCode(appendWords(nil, words...))
}

// readlN reads len(dst) words from the sequential addresses starting at
// addr using the word sized loads. It returns the number of words read.
func (d *Dev) readlN(addr uint32, dst []uint32) (int, error) {
	n, err := d.limitWords("readl", len(dst))
	if err != nil || n == 0 {
		return 0, err
	}
	code := lcode(0xe4903004, 0xe4813004, addr, n) // ldr r3, [r0], #4; str r3, [r1], #4
	if err = d.runWords(code...); err != nil {
		return 0, err
	}
	buf := make([]byte, n*4)
	if err = d.read(d.Info.ScratchAddr+lcodeSize, buf); err != nil {
		return 0, err
	}
	for i := range n {
		dst[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return n, nil
}

// writelN writes src to the sequential addresses starting at addr using the
// word sized stores. It returns the number of words written.
func (d *Dev) writelN(addr uint32, src []uint32) (int, error) {
	n, err := d.limitWords("writel", len(src))
	if err != nil || n == 0 {
		return 0, err
	}
	code := lcode(0xe4913004, 0xe4803004, addr, n) // ldr r3, [r1], #4; str r3, [r0], #4
	code = append(code, src[:n]...)
	return n, d.runWords(code...)
}

// ReadlN reads n 32-bit words from the sequential addresses starting at
// addr. Contrary to Read it uses word sized loads so it can be used to read
// the peripheral registers.
func (d *Dev) ReadlN(addr uint32, n int) (vals []uint32, err error) {
	defer wrapErr("ReadlN", &err)
	if d.poisoned {
		return nil, ErrPoisoned
	}
	if n < 0 {
		return nil, fmt.Errorf("negative word count %d", n)
	}
	vals = make([]uint32, n)
	for i := 0; i < n; {
		k, err := d.readlN(addr+uint32(i*4), vals[i:min(n, i+MaxWords)])
		if err != nil {
			return nil, err
		}
		i += k
	}
	return vals, nil
}

// WritelN writes vals to the sequential addresses starting at addr using
// word sized stores.
func (d *Dev) WritelN(addr uint32, vals []uint32) (err error) {
	defer wrapErr("WritelN", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	for i := 0; i < len(vals); {
		k, err := d.writelN(addr+uint32(i*4), vals[i:min(len(vals), i+MaxWords)])
		if err != nil {
			return err
		}
		i += k
	}
	return nil
}

// ReadlNOnce performs a single scratch code run that reads n words. See
// WithTruncate for the requests that exceed MaxWords.
func (d *Dev) ReadlNOnce(addr uint32, n int) (vals []uint32, err error) {
	defer wrapErr("ReadlNOnce", &err)
	if d.poisoned {
		return nil, ErrPoisoned
	}
	if n < 0 {
		return nil, fmt.Errorf("negative word count %d", n)
	}
	vals = make([]uint32, n)
	n, err = d.readlN(addr, vals)
	return vals[:n], err
}

// WritelNOnce performs a single scratch code run that writes vals. It
// returns the number of words written. See WithTruncate for the requests
// that exceed MaxWords.
func (d *Dev) WritelNOnce(addr uint32, vals []uint32) (n int, err error) {
	defer wrapErr("WritelNOnce", &err)
	if d.poisoned {
		return 0, ErrPoisoned
	}
	return d.writelN(addr, vals)
}

func (d *Dev) Readl(addr uint32) (uint32, error) {
	vals, err := d.ReadlN(addr, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

func (d *Dev) Writel(addr, val uint32) error {
	return d.WritelN(addr, []uint32{val})
}
