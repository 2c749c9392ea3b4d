package pubsub

import (
	"fmt"
	"time"
)

// Line is one decoded line of captured text, optionally stamped with the time
// elapsed since the capture started.
type Line struct {
	Text    string        // Decoded content without line terminator
	Elapsed time.Duration // Offset from the first received line
	Stamped bool          // Whether Elapsed is rendered
}

// String renders the line as it is displayed and persisted. A stamped line
// gets a "(mm:ss.ffffff) " prefix where mm counts total minutes.
func (l Line) String() string {
	if !l.Stamped {
		return l.Text
	}
	return FormatElapsed(l.Elapsed) + " " + l.Text
}

// FormatElapsed formats d as "(mm:ss.ffffff)". Negative durations render as zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	us := d.Microseconds()
	minutes := us / int64(time.Minute/time.Microsecond)
	us -= minutes * int64(time.Minute/time.Microsecond)
	seconds := us / int64(time.Second/time.Microsecond)
	us -= seconds * int64(time.Second/time.Microsecond)
	return fmt.Sprintf("(%02d:%02d.%06d)", minutes, seconds, us)
}
