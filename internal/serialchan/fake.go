package serialchan

import (
	"bytes"
	"log/slog"
	"sync"
	"time"
)

// DefaultFakeReadTimeout is how long an exhausted Fake waits in ReadLine.
const DefaultFakeReadTimeout = 50 * time.Millisecond

type fault struct {
	call int // 1-based call number, 0 disables the fault
	err  error
}

// Fake is a Channel that replays a pre-loaded buffer. It is useful for
// development without hardware and for fault injection. Each Fake owns its
// data; nothing is shared between instances.
type Fake struct {
	mu      sync.Mutex
	data    []byte
	open    bool
	wake    chan struct{}
	timeout time.Duration

	readCalls  int
	writeCalls int
	readFault  fault
	writeFault fault
	written    bytes.Buffer

	logger *slog.Logger
}

var _ Channel = &Fake{}

// FakeOption configures a Fake.
type FakeOption func(*Fake)

// WithReadTimeout sets the fake's read timeout.
func WithReadTimeout(d time.Duration) FakeOption {
	return func(f *Fake) { f.timeout = d }
}

// WithReadFailure makes the nth ReadLine call return err.
func WithReadFailure(n int, err error) FakeOption {
	return func(f *Fake) { f.readFault = fault{call: n, err: err} }
}

// WithWriteFailure makes the nth Write call return err.
func WithWriteFailure(n int, err error) FakeOption {
	return func(f *Fake) { f.writeFault = fault{call: n, err: err} }
}

// WithFakeLogger sets the logger for ignored control operations.
func WithFakeLogger(logger *slog.Logger) FakeOption {
	return func(f *Fake) { f.logger = logger }
}

// NewFake creates a closed Fake that will replay data once opened. The data
// may contain arbitrary bytes, including malformed text.
func NewFake(data []byte, opts ...FakeOption) *Fake {
	f := &Fake{
		data:    append([]byte(nil), data...),
		timeout: DefaultFakeReadTimeout,
		logger:  slog.Default().With("component", "FakeSerial"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fake) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.open {
		return ErrAlreadyOpen
	}
	if f.timeout <= 0 {
		return ErrNoTimeout
	}
	f.open = true
	f.wake = make(chan struct{})
	f.logger.Debug("Ignored port configuration")
	return nil
}

// Close closes the fake and wakes a ReadLine waiting for data. Closing a
// closed Fake is a no-op.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.open {
		f.open = false
		close(f.wake)
	}
	return nil
}

func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *Fake) ReadTimeout() time.Duration {
	return f.timeout
}

// ReadLine returns the next newline-terminated segment, or the trailing
// unterminated segment at the end of the buffer. Once the buffer is empty it
// waits for the read timeout and returns no data.
func (f *Fake) ReadLine() ([]byte, error) {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return nil, ErrNotOpen
	}
	f.readCalls++
	if f.readFault.call > 0 && f.readCalls == f.readFault.call {
		f.mu.Unlock()
		return nil, f.readFault.err
	}
	if len(f.data) > 0 {
		n := bytes.IndexByte(f.data, '\n') + 1
		if n == 0 {
			n = len(f.data)
		}
		line := append([]byte(nil), f.data[:n]...)
		f.data = f.data[n:]
		f.mu.Unlock()
		return line, nil
	}
	wake := f.wake
	f.mu.Unlock()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-wake:
	}
	return []byte{}, nil
}

func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, ErrNotOpen
	}
	f.writeCalls++
	if f.writeFault.call > 0 && f.writeCalls == f.writeFault.call {
		return 0, f.writeFault.err
	}
	f.written.Write(p)
	return len(p), nil
}

// Written returns a copy of everything written to the fake.
func (f *Fake) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.written.Bytes())
}

// ReadCalls returns how many times ReadLine was called on the open fake.
func (f *Fake) ReadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls
}

func (f *Fake) ignored(op string, args ...any) error {
	if !f.IsOpen() {
		return ErrNotOpen
	}
	f.logger.Debug("Ignored "+op, args...)
	return nil
}

func (f *Fake) SetRTS(level bool) error {
	return f.ignored("setRTS", "level", level)
}

func (f *Fake) SetDTR(level bool) error {
	return f.ignored("setDTR", "level", level)
}

// ModemStatus returns fixed dummy values.
func (f *Fake) ModemStatus() (ModemStatus, error) {
	if err := f.ignored("modem status query"); err != nil {
		return ModemStatus{}, err
	}
	return ModemStatus{CTS: true, DSR: true, RI: false, DCD: true}, nil
}

func (f *Fake) SendBreak(d time.Duration) error {
	return f.ignored("sendBreak", "duration", d)
}

func (f *Fake) ResetInput() error {
	return f.ignored("flushInput")
}

func (f *Fake) ResetOutput() error {
	return f.ignored("flushOutput")
}
