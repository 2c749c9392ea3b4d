package reader

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"seriallog/internal/pubsub"
	"seriallog/internal/serialchan"
	"seriallog/pkg/escape"
)

// collector is a thread-safe subscriber for assertions from the test goroutine.
type collector struct {
	mu    sync.Mutex
	lines []pubsub.Line
}

func (c *collector) Receive(line pubsub.Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []pubsub.Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pubsub.Line(nil), c.lines...)
}

func (c *collector) texts() []string {
	var out []string
	for _, l := range c.snapshot() {
		out = append(out, l.Text)
	}
	return out
}

func (c *collector) waitFor(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.snapshot()) >= n },
		2*time.Second, 5*time.Millisecond, "expected %d lines", n)
}

// errorSink records error callback invocations.
type errorSink struct {
	mu   sync.Mutex
	msgs []string
}

func (e *errorSink) handle(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

func (e *errorSink) messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.msgs...)
}

func openFake(t *testing.T, data string, opts ...serialchan.FakeOption) *serialchan.Fake {
	t.Helper()
	opts = append([]serialchan.FakeOption{serialchan.WithReadTimeout(10 * time.Millisecond)}, opts...)
	f := serialchan.NewFake([]byte(data), opts...)
	require.NoError(t, f.Open())
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestLineReader_DecodesMalformedBytes(t *testing.T) {
	ch := openFake(t, "abc\n\xff\xfeok\r\n\nmid\x80dle\ntail")
	r := New(ch, WithTimestamps(false))
	c := &collector{}
	r.Publisher().Attach(c)

	require.NoError(t, r.Start())
	c.waitFor(t, 5)
	r.Stop()

	require.Equal(t, []string{"abc", `\xff\xfeok`, "", `mid\x80dle`, "tail"}, c.texts())
	for _, l := range c.snapshot() {
		require.False(t, l.Stamped)
	}
}

func TestLineReader_UTF8Codec(t *testing.T) {
	ch := openFake(t, "café\n\xc3\n")
	r := New(ch, WithTimestamps(false), WithCodec(escape.UTF8))
	c := &collector{}
	r.Publisher().Attach(c)

	require.NoError(t, r.Start())
	c.waitFor(t, 2)
	r.Stop()

	require.Equal(t, []string{"café", `\xc3`}, c.texts())
}

func TestLineReader_FailsOnThirdRead(t *testing.T) {
	ch := openFake(t, "one\ntwo\nthree\nfour\n",
		serialchan.WithReadFailure(3, errors.New("device unplugged")))
	errs := &errorSink{}
	r := New(ch, WithTimestamps(false), WithErrorHandler(errs.handle))
	c := &collector{}
	r.Publisher().Attach(c)

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return len(errs.messages()) == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.State() == Stopped },
		time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Len(t, errs.messages(), 1)
	require.Contains(t, errs.messages()[0], DefaultName)
	require.Contains(t, errs.messages()[0], "device unplugged")
	require.Equal(t, []string{"one", "two"}, c.texts())
	require.Equal(t, 3, ch.ReadCalls())

	r.Stop()
	require.Len(t, errs.messages(), 1)
}

func TestLineReader_ChannelClosedUnderneath(t *testing.T) {
	ch := openFake(t, "")
	errs := &errorSink{}
	r := New(ch, WithName("ConsoleReader"), WithErrorHandler(errs.handle))

	require.NoError(t, r.Start())
	require.NoError(t, ch.Close())

	require.Eventually(t, func() bool { return len(errs.messages()) == 1 },
		2*time.Second, 5*time.Millisecond)
	require.True(t, strings.HasPrefix(errs.messages()[0], "ConsoleReader: "))
	require.Contains(t, errs.messages()[0], serialchan.ErrNotOpen.Error())
	r.Stop()
	require.Equal(t, Stopped, r.State())
}

func TestLineReader_StopFromErrorHandler(t *testing.T) {
	ch := openFake(t, "x\n", serialchan.WithReadFailure(2, errors.New("framing error")))

	var r *LineReader
	returned := make(chan struct{})
	r = New(ch, WithErrorHandler(func(string) {
		r.Stop()
		close(returned)
	}))

	require.NoError(t, r.Start())
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked inside the error handler")
	}
	require.Equal(t, Stopped, r.State())
}

func TestLineReader_StopFromSubscriber(t *testing.T) {
	ch := openFake(t, "a\nb\nc\n")
	r := New(ch, WithTimestamps(false))
	c := &collector{}

	returned := make(chan struct{})
	var once sync.Once
	stopper := pubsub.SubscriberFunc(func(pubsub.Line) {
		once.Do(func() {
			r.Stop()
			close(returned)
		})
	})
	r.Publisher().Attach(c)
	r.Publisher().Attach(&stopper)

	require.NoError(t, r.Start())
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop blocked inside a subscriber, state %s", r.State())
	}

	require.Eventually(t, func() bool { return r.State() == Stopped },
		time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"a"}, c.texts())
	require.NotPanics(t, r.Stop)
}

func TestLineReader_StopIdempotent(t *testing.T) {
	ch := openFake(t, "a\nb\n")
	r := New(ch)

	require.NoError(t, r.Start())
	require.Equal(t, Running, r.State())

	r.Stop()
	require.Equal(t, Stopped, r.State())
	require.NotPanics(t, r.Stop)
	require.Equal(t, Stopped, r.State())
}

func TestLineReader_StopBeforeStart(t *testing.T) {
	r := New(openFake(t, ""))

	r.Stop()
	r.Stop()
	require.Equal(t, Stopped, r.State())
	require.ErrorIs(t, r.Start(), ErrAlreadyStarted)
}

func TestLineReader_StopIsPrompt(t *testing.T) {
	ch := openFake(t, "", serialchan.WithReadTimeout(50*time.Millisecond))
	r := New(ch)
	require.NoError(t, r.Start())

	start := time.Now()
	r.Stop()
	require.Less(t, time.Since(start), time.Second)
}

func TestLineReader_StopFromManyGoroutines(t *testing.T) {
	r := New(openFake(t, ""))
	require.NoError(t, r.Start())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Stop()
		}()
	}
	wg.Wait()
	require.Equal(t, Stopped, r.State())
}

func TestLineReader_StartTwice(t *testing.T) {
	r := New(openFake(t, ""))
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)

	require.ErrorIs(t, r.Start(), ErrAlreadyStarted)
}

func TestLineReader_StartOnClosedChannel(t *testing.T) {
	ch := serialchan.NewFake([]byte("x\n"))
	r := New(ch)

	require.ErrorIs(t, r.Start(), serialchan.ErrNotOpen)
	require.Equal(t, Created, r.State())
}

// fixedTimeoutChannel reports a read timeout that would block forever.
type fixedTimeoutChannel struct {
	*serialchan.Fake
}

func (fixedTimeoutChannel) ReadTimeout() time.Duration { return 0 }

func TestLineReader_StartWithoutTimeout(t *testing.T) {
	r := New(fixedTimeoutChannel{openFake(t, "")})
	require.ErrorIs(t, r.Start(), serialchan.ErrNoTimeout)
}

func TestLineReader_TimestampsNonDecreasing(t *testing.T) {
	base := time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)
	ticks := []time.Duration{
		0,
		1 * time.Second,
		500 * time.Millisecond, // clock stepped backwards
		3*time.Second + 250*time.Microsecond,
	}
	var mu sync.Mutex
	i := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		d := ticks[len(ticks)-1]
		if i < len(ticks) {
			d = ticks[i]
		}
		i++
		return base.Add(d)
	}

	ch := openFake(t, "l1\nl2\nl3\nl4\n")
	r := New(ch, WithClock(clock))
	c := &collector{}
	r.Publisher().Attach(c)

	require.NoError(t, r.Start())
	c.waitFor(t, 4)
	r.Stop()

	lines := c.snapshot()
	var offsets []time.Duration
	for j, l := range lines {
		require.True(t, l.Stamped)
		if j > 0 {
			require.GreaterOrEqual(t, l.Elapsed, lines[j-1].Elapsed)
		}
		offsets = append(offsets, l.Elapsed)
	}
	require.Equal(t, []time.Duration{0, time.Second, time.Second, 3*time.Second + 250*time.Microsecond}, offsets)
	require.Equal(t, "(00:00.000000) l1", lines[0].String())
	require.Equal(t, "(00:03.000250) l4", lines[3].String())
}

func TestLineReader_AnchorIsFirstLine(t *testing.T) {
	ch := openFake(t, "first\nsecond\n")
	r := New(ch)
	c := &collector{}
	r.Publisher().Attach(c)

	// Idle reads before data do not move the anchor; the first line is at zero
	require.NoError(t, r.Start())
	c.waitFor(t, 2)
	r.Stop()

	lines := c.snapshot()
	require.Equal(t, time.Duration(0), lines[0].Elapsed)
	require.GreaterOrEqual(t, lines[1].Elapsed, lines[0].Elapsed)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "created", Created.String())
	require.Equal(t, "running", Running.String())
	require.Equal(t, "stop-requested", StopRequested.String())
	require.Equal(t, "stopped", Stopped.String())
}
