// Package keypress implements "hit any key to quit" for the capture CLI.
package keypress

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// MakeRaw puts the terminal f into raw mode so single key presses are
// delivered without waiting for Enter. The returned function restores the
// previous mode.
func MakeRaw(f *os.File) (restore func() error, err error) {
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("make terminal raw: %w", err)
	}
	return func() error { return term.Restore(fd, state) }, nil
}

// WaitForKey blocks until one byte can be read from r or ctx is done.
// It returns the key, or the read error, or ctx.Err(). The read is not
// interruptible; after a cancel it finishes in the background.
func WaitForKey(ctx context.Context, r io.Reader) (byte, error) {
	type result struct {
		key byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		var buf [1]byte
		_, err := io.ReadFull(r, buf[:])
		done <- result{key: buf[0], err: err}
	}()

	select {
	case res := <-done:
		return res.key, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
