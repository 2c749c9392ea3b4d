// Package console shows captured lines on a terminal.
package console

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"seriallog/internal/pubsub"
)

// Printer is a pubsub.Subscriber that writes each line to w.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	eol    string
	logger *slog.Logger
}

var _ pubsub.Subscriber = &Printer{}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithCRLF ends lines with "\r\n", as needed while the terminal is in raw mode.
func WithCRLF() PrinterOption {
	return func(p *Printer) { p.eol = "\r\n" }
}

// WithLogger sets the logger used to report write errors.
func WithLogger(logger *slog.Logger) PrinterOption {
	return func(p *Printer) { p.logger = logger }
}

func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{w: w, eol: "\n"}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default().With("component", "SerialPrinter")
	}
	return p
}

// Receive prints the rendered line. Write errors are logged, not returned;
// the console has no delivery guarantee.
func (p *Printer) Receive(line pubsub.Line) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.w, line.String()+p.eol); err != nil {
		p.logger.Warn("Failed to print line", "error", err)
	}
}

// CRLFWriter rewrites "\n" as "\r\n". A raw-mode terminal does not return the
// carriage on a bare line feed.
type CRLFWriter struct {
	W io.Writer
}

func (c CRLFWriter) Write(p []byte) (int, error) {
	out := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	if _, err := c.W.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
