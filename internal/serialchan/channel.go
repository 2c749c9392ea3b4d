// Package serialchan abstracts the line-oriented byte stream coming from a
// serial device. Port talks to real hardware, Fake replays a canned buffer.
package serialchan

import (
	"errors"
	"time"
)

var (
	// ErrNotOpen is returned when a channel is used before Open or after Close.
	ErrNotOpen = errors.New("serial channel not open")

	// ErrAlreadyOpen is returned by Open on an open channel.
	ErrAlreadyOpen = errors.New("serial channel already open")

	// ErrNoTimeout is returned for a channel without a positive read timeout.
	// Such a channel could block a reader forever.
	ErrNoTimeout = errors.New("serial channel has no read timeout")
)

// ModemStatus holds the input control lines of a serial device.
type ModemStatus struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
}

// Channel is a byte source and sink with line reads bounded by a timeout.
type Channel interface {
	Open() error
	Close() error
	IsOpen() bool

	// ReadTimeout is the longest a single ReadLine call may block.
	ReadTimeout() time.Duration

	// ReadLine returns the next line including its terminator. It returns an
	// empty slice and a nil error when no complete line arrived within the
	// read timeout.
	ReadLine() ([]byte, error)

	Write(p []byte) (int, error)

	SetRTS(level bool) error
	SetDTR(level bool) error
	ModemStatus() (ModemStatus, error)
	SendBreak(d time.Duration) error
	ResetInput() error
	ResetOutput() error
}
