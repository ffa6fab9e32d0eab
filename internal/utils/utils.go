package utils

import (
	"context"
	"strings"
	"time"
)

var sleep = time.Sleep

// WaitFor blocks for d or until ctx is done.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Countdown waits for d in one-second steps, calling tick with the whole
// seconds remaining before each step: 3, 2, 1 for three seconds.
func Countdown(ctx context.Context, d time.Duration, tick func(remaining int)) error {
	seconds := int((d + time.Second - 1) / time.Second)
	for remaining := seconds; remaining > 0; remaining-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tick != nil {
			tick(remaining)
		}
		if err := WaitFor(ctx, time.Second); err != nil {
			return err
		}
	}
	return nil
}

// TruncateForLog shortens s to limit runes, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
