// Package filewriter persists captured lines to a file from its own goroutine,
// so file I/O latency never delays the serial reader.
package filewriter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"seriallog/internal/pubsub"
	"seriallog/pkg/escape"
)

const (
	// DefaultName identifies a Writer in logs and error messages.
	DefaultName = "FileWriter"

	// DefaultPollInterval bounds how long the worker waits for a new line
	// before it checks for a stop request again.
	DefaultPollInterval = 500 * time.Millisecond
)

// ErrAlreadyStarted is returned by Start on a writer that is not in the
// Created state.
var ErrAlreadyStarted = errors.New("writer already started")

// State is the lifecycle state of a Writer.
type State int

const (
	Created State = iota
	Running
	StopRequested
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case StopRequested:
		return "stop-requested"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// OpenFunc opens the output for writing. flag is os.O_TRUNC or os.O_APPEND.
type OpenFunc func(path string, flag int) (io.WriteCloser, error)

func openFile(path string, flag int) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|flag, 0644)
}

// Writer is a pubsub.Subscriber that queues lines and writes them to a file,
// one per line, from a dedicated goroutine.
type Writer struct {
	name    string
	path    string
	codec   *escape.Codec
	poll    time.Duration
	flag    int
	open    OpenFunc
	onError func(msg string)
	logger  *slog.Logger

	queue   *lineQueue
	written atomic.Int64

	mu    sync.Mutex
	state State
	done  chan struct{}
}

var _ pubsub.Subscriber = &Writer{}

// Option configures a Writer.
type Option func(*Writer)

// WithName sets the name used in logs and error messages.
func WithName(name string) Option {
	return func(w *Writer) { w.name = name }
}

// WithCodec sets the output encoding. The default is escape.UTF8.
func WithCodec(codec *escape.Codec) Option {
	return func(w *Writer) { w.codec = codec }
}

// WithPollInterval sets how long the worker waits for a line per iteration.
func WithPollInterval(d time.Duration) Option {
	return func(w *Writer) { w.poll = d }
}

// WithAppend appends to an existing file instead of truncating it.
func WithAppend(enabled bool) Option {
	return func(w *Writer) {
		if enabled {
			w.flag = os.O_APPEND
		} else {
			w.flag = os.O_TRUNC
		}
	}
}

// WithOpener replaces os.OpenFile, mostly for fault injection in tests.
func WithOpener(open OpenFunc) Option {
	return func(w *Writer) { w.open = open }
}

// WithErrorHandler sets the callback invoked once with a description of a
// fatal I/O error. It runs on the writer's goroutine after the output was
// closed. The owner should detach the writer from any publisher.
func WithErrorHandler(fn func(msg string)) Option {
	return func(w *Writer) { w.onError = fn }
}

// WithLogger sets the logger. The default is slog.Default() with a component
// attribute holding the writer's name.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// New creates a Writer for path. Nothing is opened until Start.
func New(path string, opts ...Option) *Writer {
	w := &Writer{
		name:  DefaultName,
		path:  path,
		codec: escape.UTF8,
		poll:  DefaultPollInterval,
		flag:  os.O_TRUNC,
		open:  openFile,
		queue: newLineQueue(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.poll <= 0 {
		w.poll = DefaultPollInterval
	}
	if w.logger == nil {
		w.logger = slog.Default().With("component", w.name)
	}
	return w
}

// Name returns the writer's name.
func (w *Writer) Name() string {
	return w.name
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// State returns the current lifecycle state.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Written returns the number of lines handed to the output so far.
func (w *Writer) Written() int {
	return int(w.written.Load())
}

// Receive queues the rendered line.
func (w *Writer) Receive(line pubsub.Line) {
	w.Put(line.String())
}

// Put queues text to be written as one line. It never blocks. Lines put after
// Stop was called, or after a fatal error, are dropped. Lines put before
// Start are written once the writer runs.
func (w *Writer) Put(text string) {
	if !w.queue.push(text) {
		w.logger.Debug("Dropped line, writer is stopped", "line", text)
	}
}

// Start opens the output and launches the worker. An open failure is
// returned here instead of going to the error handler.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Created {
		return fmt.Errorf("%s: %w (state %s)", w.name, ErrAlreadyStarted, w.state)
	}
	out, err := w.open(w.path, w.flag)
	if err != nil {
		return fmt.Errorf("%s: open %s: %w", w.name, w.path, err)
	}

	w.state = Running
	w.logger.Info("Start writing to file", "path", w.path, "encoding", w.codec.Name())
	go w.run(out)
	return nil
}

// Stop rejects further lines, waits until every line queued before the call
// is written, and closes the output. Stop is idempotent and may be called
// from any goroutine, including from the error handler.
func (w *Writer) Stop() {
	w.mu.Lock()
	switch w.state {
	case Created:
		w.state = Stopped
		w.queue.close()
		close(w.done)
	case Running:
		w.state = StopRequested
		w.queue.close()
		w.logger.Debug("Stop writing requested", "pending", w.queue.len())
	}
	w.mu.Unlock()

	<-w.done
}

func (w *Writer) run(out io.WriteCloser) {
	bw := bufio.NewWriter(out)
	err := w.loop(bw)
	if err == nil {
		if ferr := bw.Flush(); ferr != nil {
			err = fmt.Errorf("flush: %w", ferr)
		}
	}
	if cerr := out.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close: %w", cerr)
	}
	if err != nil {
		w.queue.close()
	}

	w.mu.Lock()
	w.state = Stopped
	w.mu.Unlock()
	close(w.done)

	if err == nil {
		w.logger.Info("Stopped writing to file", "path", w.path, "lines", w.Written())
		return
	}
	w.logger.Error("Writing to file failed", "path", w.path, "error", err, "lines", w.Written())
	if w.onError != nil {
		w.onError(fmt.Sprintf("%s: write to %s failed: %v", w.name, w.path, err))
	}
}

func (w *Writer) loop(bw *bufio.Writer) error {
	for {
		batch, closed := w.queue.take(w.poll)
		for _, text := range batch {
			data := append(w.codec.Encode(text), '\n')
			if _, err := bw.Write(data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			w.written.Add(1)
		}
		if len(batch) > 0 && w.queue.len() == 0 {
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("flush: %w", err)
			}
		}
		if closed && len(batch) == 0 {
			return nil
		}
	}
}
