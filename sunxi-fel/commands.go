// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang/glog"
	"zappem.net/pub/debug/xxd"

	"github.com/embeddedgo/sunxi/sunxi-fel/internal/fel"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/image"
	"github.com/embeddedgo/sunxi/sunxi-fel/internal/util"
)

type session struct {
	dev       *fel.Dev
	out       io.Writer
	progress  bool // -p
	autostart bool // start U-Boot at exit
	stop      bool // do not process the remaining commands
}

type command struct {
	names []string
	args  string
	descr string
	nargs int // minimum number of arguments
	run   func(s *session, args []string) (int, error)
}

var commands = []*command{
	{[]string{"spl"}, "FILE", "load and execute U-Boot SPL, also transfer the main U-Boot image if FILE contains it", 1, cmdSPL},
	{[]string{"uboot"}, "FILE", `like "spl", but start U-Boot when the program exits`, 1, cmdUBoot},
	{[]string{"hexdump", "hex"}, "ADDR LEN", "dump memory region in hex", 2, cmdHexdump},
	{[]string{"dump"}, "ADDR LEN", "binary memory dump", 2, cmdDump},
	{[]string{"execute", "exe"}, "ADDR", "call function at ADDR", 1, cmdExecute},
	{[]string{"reset64"}, "ADDR", "RMR request for AArch64 warm boot", 1, cmdReset64},
	{[]string{"memmove"}, "DST SRC SIZE", "copy SIZE bytes within the device memory", 3, cmdMemmove},
	{[]string{"readl"}, "ADDR", "read 32-bit value from the device memory", 1, cmdReadl},
	{[]string{"writel"}, "ADDR VAL", "write 32-bit value to the device memory", 2, cmdWritel},
	{[]string{"read"}, "ADDR LEN FILE", "write memory contents into FILE (Intel HEX if *.hex)", 3, cmdRead},
	{[]string{"write"}, "ADDR FILE", "store FILE contents into memory", 2, writeCmd(util.NoProgress)},
	{[]string{"write-with-progress"}, "ADDR FILE", `"write" with progress bar`, 2, writeCmd(util.Bar)},
	{[]string{"write-with-gauge"}, "ADDR FILE", `output progress for "dialog --gauge"`, 2, writeCmd(util.Gauge)},
	{[]string{"write-with-xgauge"}, "ADDR FILE", "extended gauge output (updates prompt)", 2, writeCmd(util.XGauge)},
	{[]string{"multiwrite", "multi"}, "N ADDR FILE...", `"write-with-progress" N files sharing a common progress status`, 3, multiCmd(util.Bar)},
	{[]string{"multiwrite-with-gauge", "multi-with-gauge"}, "N ADDR FILE...", `"multi" with "dialog --gauge" output`, 3, multiCmd(util.Gauge)},
	{[]string{"multiwrite-with-xgauge", "multi-with-xgauge"}, "N ADDR FILE...", `"multi" with extended gauge output`, 3, multiCmd(util.XGauge)},
	{[]string{"echo-gauge"}, "TEXT", "update prompt/caption for gauge output", 1, cmdEchoGauge},
	{[]string{"load"}, "ELF", "store the loadable sections of the ELF file into memory", 1, cmdLoad},
	{[]string{"version", "ver"}, "", "show BROM version", 0, cmdVersion},
	{[]string{"sid"}, "", "retrieve and output 128-bit SID key", 0, cmdSID},
	{[]string{"sid-registers"}, "", "retrieve SID key using the SID registers", 0, cmdSIDRegisters},
	{[]string{"soc-info"}, "", "print the SoC description", 0, cmdSoCInfo},
	{[]string{"clear"}, "ADDR LEN", "clear memory", 2, cmdClear},
	{[]string{"fill"}, "ADDR LEN VAL", "fill memory with the VAL byte", 3, cmdFill},
}

func lookupCommand(name string) *command {
	for _, c := range commands {
		for _, n := range c.names {
			if n == name {
				return c
			}
		}
	}
	return nil
}

func printCommandList(w io.Writer) {
	maxLen := 0
	for _, c := range commands {
		if n := len(c.names[0]) + 1 + len(c.args); maxLen < n {
			maxLen = n
		}
	}
	for _, c := range commands {
		fmt.Fprintf(w, "  %-*s  %s\n", maxLen, c.names[0]+" "+c.args, c.descr)
	}
}

// run executes the commands from args in order.
func (s *session) run(args []string) error {
	for len(args) > 0 && !s.stop {
		c := lookupCommand(args[0])
		if c == nil || len(args)-1 < c.nargs {
			return fmt.Errorf("invalid command %s", strings.Join(args, " "))
		}
		n, err := c.run(s, args[1:])
		if err != nil {
			return &cmdError{args[0], err}
		}
		args = args[1+n:]
	}
	return nil
}

func parseArgs(args []string) ([]uint32, error) {
	vals := make([]uint32, len(args))
	for i, a := range args {
		var err error
		if vals[i], err = util.ParseUint(a); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func cmdSPL(s *session, args []string) (int, error) {
	buf, err := util.LoadFile(args[0])
	if err != nil {
		return 0, err
	}
	return 1, s.dev.WriteSPLAndUBoot(buf)
}

func cmdUBoot(s *session, args []string) (int, error) {
	n, err := cmdSPL(s, args)
	if err != nil {
		return n, err
	}
	entry, size := s.dev.UBoot()
	s.autostart = entry != 0 && size != 0
	if !s.autostart {
		fmt.Fprintln(s.out, `Warning: "uboot" command failed to detect image! Can't execute U-Boot.`)
	}
	return n, nil
}

func (s *session) readMem(args []string) (uint32, []byte, error) {
	a, err := parseArgs(args[:2])
	if err != nil {
		return 0, nil, err
	}
	buf := make([]byte, a[1])
	if len(buf) != 0 {
		err = s.dev.Read(a[0], buf)
	}
	return a[0], buf, err
}

func cmdHexdump(s *session, args []string) (int, error) {
	addr, buf, err := s.readMem(args)
	if err != nil {
		return 0, err
	}
	for _, line := range xxd.Dump(int(addr), buf) {
		if _, err = fmt.Fprintln(s.out, line); err != nil {
			return 0, err
		}
	}
	return 2, nil
}

func cmdDump(s *session, args []string) (int, error) {
	_, buf, err := s.readMem(args)
	if err != nil {
		return 0, err
	}
	_, err = s.out.Write(buf)
	return 2, err
}

func cmdRead(s *session, args []string) (int, error) {
	addr, buf, err := s.readMem(args)
	if err != nil {
		return 0, err
	}
	return 3, util.SaveFile(args[2], addr, buf)
}

func cmdExecute(s *session, args []string) (int, error) {
	addr, err := util.ParseUint(args[0])
	if err != nil {
		return 0, err
	}
	return 1, s.dev.Execute(addr)
}

func cmdReset64(s *session, args []string) (int, error) {
	entry, err := util.ParseUint(args[0])
	if err != nil {
		return 0, err
	}
	// The device does not return to FEL.
	s.autostart, s.stop = false, true
	return 1, s.dev.RMRRequest(entry, true)
}

func cmdMemmove(s *session, args []string) (int, error) {
	a, err := parseArgs(args[:3])
	if err != nil {
		return 0, err
	}
	return 3, s.dev.Memmove(a[0], a[1], a[2])
}

func cmdReadl(s *session, args []string) (int, error) {
	addr, err := util.ParseUint(args[0])
	if err != nil {
		return 0, err
	}
	v, err := s.dev.Readl(addr)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(s.out, "0x%08x\n", v)
	return 1, nil
}

func cmdWritel(s *session, args []string) (int, error) {
	a, err := parseArgs(args[:2])
	if err != nil {
		return 0, err
	}
	return 2, s.dev.Writel(a[0], a[1])
}

func writeCmd(style util.ProgressStyle) func(s *session, args []string) (int, error) {
	return func(s *session, args []string) (int, error) {
		st := style
		if st == util.NoProgress && s.progress {
			st = util.Bar
		}
		return 2, s.upload(args[:2], st)
	}
}

func multiCmd(style util.ProgressStyle) func(s *session, args []string) (int, error) {
	return func(s *session, args []string) (int, error) {
		n, err := util.ParseUint(args[0])
		if err != nil {
			return 0, err
		}
		if int(n) > (len(args)-1)/2 {
			return 0, fmt.Errorf("too few arguments for uploading %d files", n)
		}
		return 1 + 2*int(n), s.upload(args[1:1+2*n], style)
	}
}

// upload writes the files described by the ADDR FILE pairs in args. The
// progress of all the files is reported together. If a file is a boot
// script or an uEnv.txt file its address is passed to U-Boot.
func (s *session) upload(args []string, style util.ProgressStyle) error {
	type file struct {
		addr     uint32
		sections util.Sections
	}
	files := make([]file, 0, len(args)/2)
	total := 0
	for i := 0; i < len(args); i += 2 {
		addr, err := util.ParseUint(args[i])
		if err != nil {
			return err
		}
		ss, err := util.ReadSections(args[i+1], addr)
		if err != nil {
			return err
		}
		total += ss.Size()
		files = append(files, file{addr, ss})
	}
	tr := util.NewTransfer(style, total)
	if tr != nil {
		tr.Out = s.out
	}
	for _, f := range files {
		for _, sec := range f.sections {
			if err := s.dev.WriteBuffer(uint32(sec.Paddr), sec.Data, tr.Func()); err != nil {
				return err
			}
		}
		if len(f.sections) != 1 {
			continue
		}
		data := f.sections[0].Data
		if image.ImageType(data) == image.TypeScript {
			if err := s.dev.PassFELInfo(f.addr, 0); err != nil {
				return err
			}
		}
		if image.IsUEnv(data) {
			if err := s.dev.PassFELInfo(f.addr, uint32(len(data))); err != nil {
				return err
			}
		}
	}
	return nil
}

func cmdEchoGauge(s *session, args []string) (int, error) {
	util.EchoGauge(s.out, args[0])
	return 1, nil
}

func cmdLoad(s *session, args []string) (int, error) {
	ss, err := util.ReadELF(args[0])
	if err != nil {
		return 0, err
	}
	if len(ss) == 0 {
		return 0, errors.New(args[0] + ": no loadable sections")
	}
	ss.SortByPaddr()
	style := util.NoProgress
	if s.progress {
		style = util.Bar
	}
	tr := util.NewTransfer(style, ss.Size())
	for _, sec := range ss {
		glog.V(1).Infof(
			"%s: Vaddr: %#x Paddr: %#x DataLen: %d",
			sec.Name, sec.Vaddr, sec.Paddr, len(sec.Data),
		)
		if err := s.dev.WriteBuffer(uint32(sec.Paddr), sec.Data, tr.Func()); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func cmdVersion(s *session, args []string) (int, error) {
	name := s.dev.Name
	if strings.HasPrefix(name, "0x") {
		name = "unknown"
	}
	fmt.Fprintln(s.out, s.dev.Version.Format(name))
	return 0, nil
}

func (s *session) printSID(forceRegisters bool) error {
	info := s.dev.Info
	if info.SIDBase == 0 {
		fmt.Fprintf(
			s.out, "SID registers for your SoC (%s) are unknown or inaccessible.\n",
			s.dev.Name,
		)
		return nil
	}
	if info.SIDFix || forceRegisters {
		glog.V(1).Infof("read SID key via registers, base = 0x%08X", info.SIDBase)
	} else {
		glog.V(1).Infof("SID key (e-fuses) at 0x%08X", info.SIDBase+info.SIDOffset)
	}
	key, err := s.dev.SIDRootKey(forceRegisters)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, formatSID(key))
	return nil
}

func formatSID(key [4]uint32) string {
	return fmt.Sprintf("%08x:%08x:%08x:%08x", key[0], key[1], key[2], key[3])
}

func cmdSID(s *session, args []string) (int, error) {
	return 0, s.printSID(false)
}

func cmdSIDRegisters(s *session, args []string) (int, error) {
	return 0, s.printSID(true)
}

func cmdSoCInfo(s *session, args []string) (int, error) {
	info := s.dev.Info
	w := s.out
	fmt.Fprintf(w, "SoC:          %s (0x%04X, %s)\n", s.dev.Name, info.ID, info.Arch)
	fmt.Fprintf(w, "SRAM size:    0x%X\n", info.SRAMSize)
	fmt.Fprintf(w, "SPL address:  0x%08X\n", info.SPLAddr)
	fmt.Fprintf(w, "scratch:      0x%08X\n", info.ScratchAddr)
	fmt.Fprintf(w, "thunk:        0x%08X, 0x%X bytes\n", info.ThunkAddr, info.ThunkSize)
	for i, sb := range info.SwapBuffers {
		fmt.Fprintf(
			w, "swap buffer %d: 0x%08X <-> 0x%08X, 0x%X bytes\n",
			i, sb.Buf1, sb.Buf2, sb.Size,
		)
	}
	if info.MMUTTAddr != 0 {
		fmt.Fprintf(w, "MMU table:    0x%08X\n", info.MMUTTAddr)
	}
	if info.SIDBase != 0 {
		fmt.Fprintf(w, "SID:          0x%08X+0x%X\n", info.SIDBase, info.SIDOffset)
	}
	if info.RVBAR != 0 {
		fmt.Fprintf(w, "RVBAR:        0x%08X\n", info.RVBAR)
	}
	if wd := info.Watchdog; wd != nil {
		fmt.Fprintf(w, "watchdog:     0x%08X = 0x%X\n", wd.Reg, wd.Val)
	}
	return 0, nil
}

func (s *session) fill(args []string, b byte) error {
	a, err := parseArgs(args[:2])
	if err != nil {
		return err
	}
	if a[1] == 0 {
		return nil
	}
	return s.dev.WriteBuffer(a[0], bytes.Repeat([]byte{b}, int(a[1])), nil)
}

func cmdClear(s *session, args []string) (int, error) {
	return 2, s.fill(args, 0)
}

func cmdFill(s *session, args []string) (int, error) {
	v, err := util.ParseUint(args[2])
	if err != nil {
		return 0, err
	}
	return 3, s.fill(args, byte(v))
}
