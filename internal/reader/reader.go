// Package reader runs the goroutine that turns a serial channel into a stream
// of published lines.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"seriallog/internal/pubsub"
	"seriallog/internal/serialchan"
	"seriallog/pkg/escape"
)

// DefaultName identifies a LineReader in logs and error messages.
const DefaultName = "SerialReader"

// ErrAlreadyStarted is returned by Start on a reader that is not in the
// Created state.
var ErrAlreadyStarted = errors.New("reader already started")

// State is the lifecycle state of a LineReader.
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

// LineReader reads lines from a Channel on its own goroutine, decodes them,
// optionally stamps them with the elapsed time, and publishes them.
type LineReader struct {
	name       string
	ch         serialchan.Channel
	pub        *pubsub.Publisher
	codec      *escape.Codec
	timestamps bool
	onError    func(msg string)
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}

	// Set while the worker delivers a line to subscribers.
	notifying atomic.Bool

	// Owned by the worker goroutine.
	anchor   time.Time
	anchored bool
	last     time.Duration
	count    int
}

// Option configures a LineReader.
type Option func(*LineReader)

// WithName sets the name used in logs and error messages.
func WithName(name string) Option {
	return func(r *LineReader) { r.name = name }
}

// WithTimestamps enables or disables the elapsed-time prefix. It is enabled
// by default.
func WithTimestamps(enabled bool) Option {
	return func(r *LineReader) { r.timestamps = enabled }
}

// WithCodec sets the codec received bytes are decoded with. The default is
// escape.ASCII.
func WithCodec(codec *escape.Codec) Option {
	return func(r *LineReader) { r.codec = codec }
}

// WithErrorHandler sets the callback invoked once with a description of a
// fatal channel error. It runs on the reader's goroutine after the read loop
// has exited.
func WithErrorHandler(fn func(msg string)) Option {
	return func(r *LineReader) { r.onError = fn }
}

// WithLogger sets the logger. The default is slog.Default() with a component
// attribute holding the reader's name.
func WithLogger(logger *slog.Logger) Option {
	return func(r *LineReader) { r.logger = logger }
}

// WithClock replaces time.Now for timestamping.
func WithClock(now func() time.Time) Option {
	return func(r *LineReader) { r.now = now }
}

// New creates a LineReader over ch. The channel must be open when Start is
// called and stay open until Stop returns.
func New(ch serialchan.Channel, opts ...Option) *LineReader {
	r := &LineReader{
		name:       DefaultName,
		ch:         ch,
		codec:      escape.ASCII,
		timestamps: true,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", r.name)
	}
	r.pub = pubsub.NewPublisher(r.logger)
	return r
}

// Name returns the reader's name.
func (r *LineReader) Name() string {
	return r.name
}

// Publisher returns the publisher lines are fanned out through.
func (r *LineReader) Publisher() *pubsub.Publisher {
	return r.pub
}

// State returns the current lifecycle state.
func (r *LineReader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start launches the read loop. It fails if the reader was started or stopped
// before, if the channel is closed, or if the channel has no read timeout.
func (r *LineReader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Created {
		return fmt.Errorf("%s: %w (state %s)", r.name, ErrAlreadyStarted, r.state)
	}
	if !r.ch.IsOpen() {
		return fmt.Errorf("%s: %w", r.name, serialchan.ErrNotOpen)
	}
	if r.ch.ReadTimeout() <= 0 {
		return fmt.Errorf("%s: %w", r.name, serialchan.ErrNoTimeout)
	}

	r.state = Running
	r.logger.Info("Start reading from serial port")
	go r.run()
	return nil
}

// Stop asks the read loop to exit and waits until it has. The wait is bounded
// by the channel's read timeout. Stop is idempotent and may be called from
// any goroutine, including from the error handler and from a subscriber.
//
// While a line is being delivered, Stop only requests the stop and returns;
// the loop exits once the current delivery is over. This keeps a subscriber
// that stops its reader from waiting on itself.
func (r *LineReader) Stop() {
	r.mu.Lock()
	switch r.state {
	case Created:
		r.state = Stopped
		close(r.done)
	case Running:
		r.state = StopRequested
		close(r.stop)
		r.logger.Debug("Stop reading requested")
	}
	r.mu.Unlock()

	if r.notifying.Load() {
		return
	}
	<-r.done
}

func (r *LineReader) run() {
	err := r.loop()

	r.mu.Lock()
	r.state = Stopped
	r.mu.Unlock()
	close(r.done)

	if err == nil {
		r.logger.Info("Stopped reading from serial port", "lines", r.count)
		return
	}
	r.logger.Error("Reading from serial port failed", "error", err, "lines", r.count)
	if r.onError != nil {
		r.onError(fmt.Sprintf("%s: read from serial channel failed: %v", r.name, err))
	}
}

func (r *LineReader) stopRequested() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *LineReader) loop() error {
	for !r.stopRequested() {
		raw, err := r.ch.ReadLine()
		if err != nil {
			if r.stopRequested() {
				r.logger.Debug("Read interrupted by stop", "error", err)
				return nil
			}
			return err
		}
		if len(raw) == 0 {
			continue
		}
		r.publish(raw)
	}
	return nil
}

func (r *LineReader) publish(raw []byte) {
	now := r.now()
	if !r.anchored {
		r.anchor = now
		r.anchored = true
	}

	line := pubsub.Line{Text: r.codec.Decode(trimEOL(raw))}
	if r.timestamps {
		elapsed := now.Sub(r.anchor)
		if elapsed < r.last {
			elapsed = r.last
		}
		r.last = elapsed
		line.Elapsed = elapsed
		line.Stamped = true
	}

	r.logger.Debug("Line received", "n", r.count, "line", line.Text)
	r.count++
	r.notifying.Store(true)
	defer r.notifying.Store(false)
	r.pub.Notify(line)
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
