// Package capture wires a serial channel, a LineReader, and its subscribers
// into one running capture session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"seriallog/internal/console"
	"seriallog/internal/filewriter"
	"seriallog/internal/reader"
	"seriallog/internal/serialchan"
	"seriallog/pkg/escape"
)

// ErrPipeline is wrapped by Run when the reader or the file writer failed.
var ErrPipeline = errors.New("capture pipeline failed")

// Options describes a capture session.
type Options struct {
	// Channel is opened by Run and closed before Run returns.
	Channel serialchan.Channel

	// LogFile enables file logging when not empty.
	LogFile      string
	Append       bool
	FileCodec    *escape.Codec // default escape.UTF8
	PollInterval time.Duration // default filewriter.DefaultPollInterval
	Opener       filewriter.OpenFunc

	Timestamp   bool
	ReaderCodec *escape.Codec // default escape.ASCII

	// Console receives every line. Nil means os.Stdout.
	Console io.Writer
	CRLF    bool

	Logger *slog.Logger
}

// Run opens the channel, starts the file writer (if any) and then the
// reader, and blocks until ctx is done or either component reports a fatal
// error. It then stops the reader, detaches and stops the writer, and closes
// the channel. A fatal error is returned wrapping ErrPipeline.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Channel == nil {
		return errors.New("capture: no serial channel")
	}

	ch := opts.Channel
	if err := ch.Open(); err != nil {
		return fmt.Errorf("open serial channel: %w", err)
	}
	defer func() {
		if err := ch.Close(); err != nil {
			logger.Warn("Failed to close serial channel", "error", err)
		}
	}()

	fatal := make(chan string, 2)
	report := func(msg string) {
		select {
		case fatal <- msg:
		default:
		}
	}

	readerOpts := []reader.Option{
		reader.WithTimestamps(opts.Timestamp),
		reader.WithErrorHandler(report),
	}
	if opts.ReaderCodec != nil {
		readerOpts = append(readerOpts, reader.WithCodec(opts.ReaderCodec))
	}
	rd := reader.New(ch, readerOpts...)
	pub := rd.Publisher()

	var fw *filewriter.Writer
	if opts.LogFile != "" {
		writerOpts := []filewriter.Option{
			filewriter.WithAppend(opts.Append),
			filewriter.WithErrorHandler(func(msg string) {
				pub.Detach(fw)
				report(msg)
			}),
		}
		if opts.FileCodec != nil {
			writerOpts = append(writerOpts, filewriter.WithCodec(opts.FileCodec))
		}
		if opts.PollInterval > 0 {
			writerOpts = append(writerOpts, filewriter.WithPollInterval(opts.PollInterval))
		}
		if opts.Opener != nil {
			writerOpts = append(writerOpts, filewriter.WithOpener(opts.Opener))
		}
		fw = filewriter.New(opts.LogFile, writerOpts...)
		pub.Attach(fw)
		if err := fw.Start(); err != nil {
			return err
		}
	}

	out := opts.Console
	if out == nil {
		out = os.Stdout
	}
	var printerOpts []console.PrinterOption
	if opts.CRLF {
		printerOpts = append(printerOpts, console.WithCRLF())
	}
	pub.Attach(console.NewPrinter(out, printerOpts...))

	if err := rd.Start(); err != nil {
		if fw != nil {
			fw.Stop()
		}
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Quit requested, stopping capture")
	case msg := <-fatal:
		logger.Error("Capture failed", "error", msg)
		runErr = fmt.Errorf("%w: %s", ErrPipeline, msg)
	}

	rd.Stop()
	if fw != nil {
		pub.Detach(fw)
		fw.Stop()
	}

	if runErr == nil {
		select {
		case msg := <-fatal:
			runErr = fmt.Errorf("%w: %s", ErrPipeline, msg)
		default:
		}
	}
	return runErr
}
