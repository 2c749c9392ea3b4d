package serialchan

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// PortConfig holds the settings used when opening a hardware port.
type PortConfig struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Port is a Channel backed by a serial device, 8N1 with no flow control.
// ReadLine must only be called from one goroutine at a time.
type Port struct {
	name string
	cfg  PortConfig

	mu   sync.Mutex
	port serial.Port

	pending []byte
	buf     [512]byte
}

var _ Channel = &Port{}

// NewPort creates a closed Port for the named device.
func NewPort(name string, cfg PortConfig) *Port {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	return &Port{name: name, cfg: cfg}
}

// Name returns the device name.
func (p *Port) Name() string {
	return p.name
}

func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port != nil {
		return ErrAlreadyOpen
	}
	if p.cfg.ReadTimeout <= 0 {
		return ErrNoTimeout
	}

	port, err := serial.Open(p.name, &serial.Mode{BaudRate: p.cfg.BaudRate})
	if err != nil {
		return fmt.Errorf("open %s: %w", p.name, err)
	}
	if err := port.SetReadTimeout(p.cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set read timeout on %s: %w", p.name, err)
	}
	p.port = port
	p.pending = nil
	return nil
}

// Close closes the device. Closing a closed Port is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", p.name, err)
	}
	return nil
}

func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port != nil
}

func (p *Port) ReadTimeout() time.Duration {
	return p.cfg.ReadTimeout
}

func (p *Port) current() (serial.Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil, ErrNotOpen
	}
	return p.port, nil
}

// ReadLine assembles a line from raw reads. Bytes of an incomplete line stay
// buffered for the next call.
func (p *Port) ReadLine() ([]byte, error) {
	port, err := p.current()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(p.cfg.ReadTimeout)
	for {
		if i := bytes.IndexByte(p.pending, '\n'); i >= 0 {
			line := append([]byte(nil), p.pending[:i+1]...)
			p.pending = p.pending[i+1:]
			return line, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return []byte{}, nil
		}
		if err := port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("set read timeout on %s: %w", p.name, err)
		}
		n, err := port.Read(p.buf[:])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p.name, err)
		}
		p.pending = append(p.pending, p.buf[:n]...)
	}
}

func (p *Port) Write(data []byte) (int, error) {
	port, err := p.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Write(data)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", p.name, err)
	}
	return n, nil
}

func (p *Port) SetRTS(level bool) error {
	port, err := p.current()
	if err != nil {
		return err
	}
	return port.SetRTS(level)
}

func (p *Port) SetDTR(level bool) error {
	port, err := p.current()
	if err != nil {
		return err
	}
	return port.SetDTR(level)
}

func (p *Port) ModemStatus() (ModemStatus, error) {
	port, err := p.current()
	if err != nil {
		return ModemStatus{}, err
	}
	bits, err := port.GetModemStatusBits()
	if err != nil {
		return ModemStatus{}, fmt.Errorf("modem status of %s: %w", p.name, err)
	}
	return ModemStatus{CTS: bits.CTS, DSR: bits.DSR, RI: bits.RI, DCD: bits.DCD}, nil
}

func (p *Port) SendBreak(d time.Duration) error {
	port, err := p.current()
	if err != nil {
		return err
	}
	return port.Break(d)
}

func (p *Port) ResetInput() error {
	port, err := p.current()
	if err != nil {
		return err
	}
	p.pending = nil
	return port.ResetInputBuffer()
}

func (p *Port) ResetOutput() error {
	port, err := p.current()
	if err != nil {
		return err
	}
	return port.ResetOutputBuffer()
}
