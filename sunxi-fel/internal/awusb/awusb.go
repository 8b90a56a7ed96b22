// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package awusb implements the Allwinner USB bulk transport used by the boot
// ROM in FEL mode. Every data transfer is preceded by a 32-byte "AWUC"
// request header and followed by a 13-byte "AWUS" response.
package awusb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	usb "github.com/google/gousb"
)

const (
	VendorID  usb.ID = 0x1f3a
	ProductID usb.ID = 0xefe8
)

const (
	// Timeout is the deadline of a single bulk transfer. MaxBulkSend is
	// selected so that it can be transferred at approx. 64 KiB/s within
	// this time.
	Timeout = 10 * time.Second

	MaxBulkSend   = 512 * 1024 // chunk size without progress notifications
	ProgressChunk = 128 * 1024 // chunk size with progress notifications
)

const (
	reqRead  uint16 = 0x11
	reqWrite uint16 = 0x12

	headerLen   = 32
	responseLen = 13
)

var (
	ErrTimeout  = errors.New("bulk transfer timed out")
	ErrProtocol = errors.New("protocol violation")
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "awusb: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// BulkReader is implemented by *gousb.InEndpoint.
type BulkReader interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// BulkWriter is implemented by *gousb.OutEndpoint.
type BulkWriter interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

// Conn is a connection to a single FEL device. It is not safe for
// concurrent use.
type Conn struct {
	Loc     Location
	Timeout time.Duration

	oe     BulkWriter
	ie     BulkReader
	closer func() error
	hdr    [headerLen]byte
	resp   [responseLen]byte
}

// New returns a connection that uses the provided bulk endpoints.
func New(oe BulkWriter, ie BulkReader) *Conn {
	return &Conn{Timeout: Timeout, oe: oe, ie: ie}
}

func (c *Conn) Close() (err error) {
	if c.closer != nil {
		err = c.closer()
		c.closer = nil
	}
	wrapErr("Close", &err)
	return
}

// appendRequest appends the AWUC header describing a transfer of length
// bytes to buf.
func appendRequest(buf []byte, req uint16, length uint32) []byte {
	le := binary.LittleEndian
	buf = append(buf, "AWUC\x00\x00\x00\x00"...)
	buf = le.AppendUint32(buf, length)
	buf = le.AppendUint32(buf, 0x0c000000)
	buf = le.AppendUint16(buf, req)
	buf = le.AppendUint32(buf, length)
	var pad [10]byte
	return append(buf, pad[:]...)
}

func transferErr(err error) error {
	if errors.Is(err, usb.TransferCancelled) || errors.Is(err, usb.TransferTimedOut) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w (%v)", ErrTimeout, err)
	}
	return err
}

func (c *Conn) timeout() time.Duration {
	if c.Timeout <= 0 {
		return Timeout
	}
	return c.Timeout
}

// send sends p to the device using the OUT endpoint. If progress is not nil
// it is called after every transferred chunk with the number of bytes sent.
func (c *Conn) send(p []byte, progress func(n int)) error {
	maxChunk := MaxBulkSend
	if progress != nil {
		maxChunk = ProgressChunk
	}
	for len(p) > 0 {
		chunk := p[:min(len(p), maxChunk)]
		ctx, done := context.WithTimeout(context.Background(), c.timeout())
		n, err := c.oe.WriteContext(ctx, chunk)
		done()
		if err != nil {
			return transferErr(err)
		}
		if n == 0 {
			return io.ErrNoProgress
		}
		p = p[n:]
		if progress != nil {
			progress(n)
		}
	}
	return nil
}

// recv fills p with the data received from the IN endpoint.
func (c *Conn) recv(p []byte) error {
	for len(p) > 0 {
		ctx, done := context.WithTimeout(context.Background(), c.timeout())
		n, err := c.ie.ReadContext(ctx, p)
		done()
		if err != nil {
			return transferErr(err)
		}
		if n == 0 {
			return io.ErrNoProgress
		}
		p = p[n:]
	}
	return nil
}

func (c *Conn) sendRequest(req uint16, length int) error {
	return c.send(appendRequest(c.hdr[:0], req, uint32(length)), nil)
}

func (c *Conn) readResponse() error {
	if err := c.recv(c.resp[:]); err != nil {
		return err
	}
	if string(c.resp[:4]) != "AWUS" {
		return fmt.Errorf("%w: bad response signature %q", ErrProtocol, c.resp[:4])
	}
	return nil
}

// Write performs the complete AWUSB write transaction: request header, data,
// response.
func (c *Conn) Write(p []byte, progress func(n int)) (err error) {
	defer wrapErr("Write", &err)
	if err = c.sendRequest(reqWrite, len(p)); err != nil {
		return
	}
	if err = c.send(p, progress); err != nil {
		return
	}
	return c.readResponse()
}

// Read performs the complete AWUSB read transaction: request header, data,
// response.
func (c *Conn) Read(p []byte) (err error) {
	defer wrapErr("Read", &err)
	if err = c.sendRequest(reqRead, len(p)); err != nil {
		return
	}
	if err = c.recv(p); err != nil {
		return
	}
	return c.readResponse()
}
