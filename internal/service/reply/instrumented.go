package reply

import (
	"context"
	"time"
)

// Recorder receives timing for each remote fetch.
type Recorder interface {
	RecordReply(duration time.Duration, failed bool)
}

// Instrumented wraps a Fetcher and reports call durations.
type Instrumented struct {
	next     Fetcher
	recorder Recorder
}

// WithMetrics decorates a fetcher. A nil recorder returns the fetcher
// unchanged.
func WithMetrics(next Fetcher, recorder Recorder) Fetcher {
	if recorder == nil {
		return next
	}
	return &Instrumented{next: next, recorder: recorder}
}

func (i *Instrumented) Fetch(ctx context.Context, message string, voice bool) (Reply, error) {
	start := time.Now()
	rep, err := i.next.Fetch(ctx, message, voice)
	i.recorder.RecordReply(time.Since(start), err != nil)
	return rep, err
}
