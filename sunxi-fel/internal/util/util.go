// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

func Warn(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

func Fatal(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

// FatalError prints an error description and exits the program if the
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	os.Stderr.WriteString(s)
	os.Exit(1)
}

// ParseUint parses a 32-bit unsigned number. The 0x, 0o and 0b prefixes
// select the base like in Go literals.
func ParseUint(s string) (uint32, error) {
	u, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return uint32(u), nil
}

var pbuf = make([]byte, 80)

const (
	ptodo = "                         ] "
	pdone = " [========================="
)

func Progress(pre string, cur, max, scale int, post string) {
	pbuf = pbuf[:0]
	pbuf = append(pbuf, '\r')
	pbuf = append(pbuf, pre...)
	done := 25 * cur / max
	pbuf = append(pbuf, pdone[:2+done]...)
	pbuf = append(pbuf, ptodo[done:]...)
	pbuf = strconv.AppendInt(pbuf, int64(cur/scale), 10)
	pbuf = append(pbuf, ' ')
	pbuf = append(pbuf, post...)
	if cur == max {
		pbuf = append(pbuf, '\n')
	}
	os.Stderr.Write(pbuf)
}

// ProgressStyle selects the format of the transfer progress output.
type ProgressStyle uint8

const (
	NoProgress ProgressStyle = iota
	Bar                      // progress bar on stderr
	Gauge                    // percentage lines for "dialog --gauge"
	XGauge                   // dialog --gauge with the prompt updates
)

// Transfer tracks the progress of a group of transfers that share a common
// total size. Its Update method is suitable as the progress callback of the
// FEL write functions.
type Transfer struct {
	Style ProgressStyle
	Total int
	Out   io.Writer // defaults to os.Stdout for gauges

	done    int
	percent int
	start   time.Time
	now     func() time.Time
}

// NewTransfer returns a Transfer of total bytes or nil if style is
// NoProgress.
func NewTransfer(style ProgressStyle, total int) *Transfer {
	if style == NoProgress {
		return nil
	}
	return &Transfer{Style: style, Total: total, percent: -1}
}

// Func returns the progress callback or nil if t is nil.
func (t *Transfer) Func() func(n int) {
	if t == nil {
		return nil
	}
	return t.Update
}

func (t *Transfer) out() io.Writer {
	if t.Out == nil {
		return os.Stdout
	}
	return t.Out
}

func (t *Transfer) elapsed() time.Duration {
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	if t.start.IsZero() {
		t.start = now()
	}
	return now().Sub(t.start)
}

// Update reports n more bytes transferred.
func (t *Transfer) Update(n int) {
	t.done += n
	if t.Total <= 0 {
		return
	}
	done := min(t.done, t.Total)
	dt := t.elapsed()
	switch t.Style {
	case Bar:
		rate := 0
		if s := dt.Seconds(); s > 0 {
			rate = int(float64(done) / s / 1024)
		}
		Progress("", done, t.Total, 1024, "KiB, "+strconv.Itoa(rate)+" KiB/s ")
	case Gauge, XGauge:
		percent := done * 100 / t.Total
		if percent == t.percent {
			return
		}
		t.percent = percent
		if t.Style == Gauge {
			fmt.Fprintf(t.out(), "%d\n", percent)
			return
		}
		fmt.Fprintf(
			t.out(), "XXX\n%d\nTransferring %d of %d KiB (%.1f s)\nXXX\n",
			percent, done/1024, t.Total/1024, dt.Seconds(),
		)
	}
}

// EchoGauge updates the prompt of "dialog --gauge".
func EchoGauge(w io.Writer, msg string) {
	fmt.Fprintf(w, "XXX\n0\n%s\nXXX\n", msg)
}
