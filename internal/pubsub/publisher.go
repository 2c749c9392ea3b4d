// Package pubsub fans captured lines out to subscribers.
//
// Fan-out is synchronous: Notify runs every subscriber on the caller's
// goroutine, so a slow subscriber delays the caller. Subscribers that do
// blocking I/O should queue internally, like filewriter.Writer does.
package pubsub

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Subscriber receives lines from a Publisher. Subscribers are compared by
// identity, so implementations should be pointer types.
type Subscriber interface {
	Receive(line Line)
}

// SubscriberFunc adapts a function to the Subscriber interface. Func values
// are not comparable, so wrap them in a pointer to Attach and Detach them.
type SubscriberFunc func(line Line)

func (f *SubscriberFunc) Receive(line Line) {
	(*f)(line)
}

// Publisher keeps an ordered set of subscribers. It does not own them.
type Publisher struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *slog.Logger
}

// NewPublisher creates a Publisher without subscribers. A nil logger means
// slog.Default().
func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger}
}

// Attach appends s to the subscriber list. Attaching a subscriber that is
// already attached does nothing and returns false.
func (p *Publisher) Attach(s Subscriber) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slices.Contains(p.subscribers, s) {
		p.logger.Debug("Subscriber already attached", "subscriber", fmt.Sprintf("%T", s))
		return false
	}
	p.subscribers = append(p.subscribers, s)
	return true
}

// Detach removes s. It returns false if s was not attached.
func (p *Publisher) Detach(s Subscriber) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := slices.Index(p.subscribers, s)
	if i < 0 {
		return false
	}
	p.subscribers = slices.Delete(slices.Clone(p.subscribers), i, i+1)
	return true
}

// Len returns the number of attached subscribers.
func (p *Publisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Notify passes line to every subscriber in attach order and returns after
// the last one returned. A panicking subscriber is logged and skipped.
//
// The list is copied before fan-out, so subscribers may Attach or Detach
// from within Receive. Those changes apply from the next Notify on.
func (p *Publisher) Notify(line Line) {
	p.mu.RLock()
	subscribers := p.subscribers
	p.mu.RUnlock()

	for _, s := range subscribers {
		p.deliver(s, line)
	}
}

func (p *Publisher) deliver(s Subscriber, line Line) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Subscriber panicked", "subscriber", fmt.Sprintf("%T", s), "panic", r)
		}
	}()
	s.Receive(line)
}
