// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/image"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/thunk"
)

// SPLState is the phase of the SPL execution.
type SPLState uint8

const (
	StateIdle SPLState = iota
	StateUploadingThunk
	StateUploadingPayload
	StateExecuting
	StateVerifying
	StateDone
	StateFailed
)

var splStateNames = [...]string{
	StateIdle:             "idle",
	StateUploadingThunk:   "uploading thunk",
	StateUploadingPayload: "uploading payload",
	StateExecuting:        "executing",
	StateVerifying:        "verifying",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s SPLState) String() string {
	if int(s) < len(splStateNames) {
		return splStateNames[s]
	}
	return fmt.Sprintf("SPLState(%d)", s)
}

// SPLFailure is returned if the SPL did not return to FEL properly. Code
// contains the last 4 bytes of the header signature: ".???" if the thunk
// found the caches enabled, ".BAD" if the SPL checksum was wrong.
type SPLFailure struct {
	Code string
}

func (e *SPLFailure) Error() string {
	return fmt.Sprintf("SPL: failure code %q", e.Code)
}

// SPLDelay is the time given to the SPL before its result is read back.
var SPLDelay = 250 * time.Millisecond

const splDoneSignature = "eGON.FEL"

// ErrNoSwapBuffers is returned by WriteAndExecuteSPL if the SoC has no
// SRAM layout information.
var ErrNoSwapBuffers = errors.New("SPL: unsupported SoC type")

// SPLState returns the phase reached by the last WriteAndExecuteSPL.
func (d *Dev) SPLState() SPLState {
	return d.spl
}

// WriteAndExecuteSPL writes the SPL image from buf to the device and runs it
// using the thunk that moves the SRAM used by the BROM out of the way. The
// SPL must return to FEL. Only the part of buf covered by the eGON length
// is written.
func (d *Dev) WriteAndExecuteSPL(buf []byte) (err error) {
	defer wrapErr("WriteAndExecuteSPL", &err)
	if d.poisoned {
		return ErrPoisoned
	}
	d.spl = StateIdle
	defer func() {
		if err == nil {
			return
		}
		// After the thunk was started the SRAM may remain swapped and the
		// MMU disabled. The only clean failure is the one reported by
		// the thunk itself.
		var sf *SPLFailure
		if d.spl == StateExecuting || d.spl == StateVerifying && !errors.As(err, &sf) {
			d.poisoned = true
		}
		d.spl = StateFailed
	}()
	info := d.Info
	if len(info.SwapBuffers) == 0 {
		return ErrNoSwapBuffers
	}
	egon, err := image.ParseEGON(buf)
	if err != nil {
		return err
	}
	buf = buf[:egon.Length]
	if limit := thunk.Limit(info); egon.Length > limit {
		return &LimitError{"SPL", int(egon.Length), int(limit)}
	}
	th := thunk.ForArch(info.Arch)
	if n := th.BlobSize(len(info.SwapBuffers)); n > int(info.ThunkSize) {
		return &LimitError{"thunk", n, int(info.ThunkSize)}
	}
	if info.NeedsL2En {
		glog.V(1).Info("enabling the L2 cache")
		if err = d.runCode(code(enableL2)); err != nil {
			return
		}
	}
	if info.ICacheFix {
		glog.V(1).Info("disabling the I-cache")
		if err = d.runCode(code(disableICache)); err != nil {
			return
		}
	}
	if glog.V(1) {
		spIRQ, sp, err := d.StackInfo()
		if err != nil {
			return err
		}
		glog.Infof("stack pointers: sp_irq=0x%08X, sp=0x%08X", spIRQ, sp)
	}
	tt, err := d.backupAndDisableMMU()
	if err != nil {
		return
	}
	if tt == nil && info.MMUTTAddr != 0 {
		if tt, err = d.setupMMU(); err != nil {
			return
		}
	}

	// The thunk does not overlap the SPL and its backup buffers (see
	// thunk.Limit) so the upload order does not matter.
	d.spl = StateUploadingThunk
	blob := thunk.Build(th, info.SPLAddr, info.SwapBuffers)
	if err = d.write(info.ThunkAddr, blob, nil); err != nil {
		return
	}
	d.spl = StateUploadingPayload
	for _, seg := range thunk.Plan(info.SPLAddr, len(buf), info.SwapBuffers) {
		if err = d.write(seg.Addr, buf[seg.Offset:seg.Offset+seg.Len], nil); err != nil {
			return
		}
	}
	glog.V(1).Info("executing the SPL")
	d.spl = StateExecuting
	if err = d.exec(info.ThunkAddr); err != nil {
		return
	}
	time.Sleep(SPLDelay)

	d.spl = StateVerifying
	var sig [8]byte
	if err = d.read(info.SPLAddr+4, sig[:]); err != nil {
		return
	}
	if string(sig[:]) != splDoneSignature {
		return &SPLFailure{string(bytes.TrimRight(sig[4:], "\x00"))}
	}
	if tt != nil {
		if err = d.restoreAndEnableMMU(tt); err != nil {
			return
		}
	}
	d.spl = StateDone
	return nil
}
