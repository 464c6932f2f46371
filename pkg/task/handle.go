package task

import (
	"context"
	"sync"
	"time"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/logtrace"
)

// ErrAlreadyRunning is returned by StartUnique when the operation and key
// pair is already tracked.
var ErrAlreadyRunning = errors.New("task already running")

// Handle owns one tracked task. It ends the task exactly once, either when
// End is called or when the watchdog fires.
type Handle struct {
	tr        Tracker
	operation string
	key       string
	started   time.Time
	stop      chan struct{}
	once      sync.Once
}

// StartUnique tracks (operation, key) and fails with ErrAlreadyRunning when
// the pair is already in flight. With a positive timeout a watchdog ends the
// task so a stuck caller cannot block the key forever.
func StartUnique(ctx context.Context, tr Tracker, operation, key string, timeout time.Duration) (*Handle, error) {
	if tr == nil || operation == "" || key == "" {
		return &Handle{}, nil
	}
	if !tr.TryStart(operation, key) {
		return nil, errors.Errorf("%s %s: %w", operation, key, ErrAlreadyRunning)
	}

	logtrace.Debug(ctx, "task: started", logtrace.Fields{
		logtrace.FieldMethod:     operation,
		logtrace.FieldContentKey: key,
	})
	h := &Handle{tr: tr, operation: operation, key: key, started: time.Now(), stop: make(chan struct{})}
	if timeout > 0 {
		go func() {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case <-timer.C:
				h.end(ctx, true)
			case <-h.stop:
			}
		}()
	}
	return h, nil
}

// Elapsed returns the time since the task started.
func (h *Handle) Elapsed() time.Duration {
	if h == nil || h.started.IsZero() {
		return 0
	}
	return time.Since(h.started)
}

// End stops tracking the task. Safe to call multiple times.
func (h *Handle) End(ctx context.Context) {
	h.end(ctx, false)
}

func (h *Handle) end(ctx context.Context, expired bool) {
	if h == nil || h.operation == "" || h.key == "" {
		return
	}
	h.once.Do(func() {
		close(h.stop)
		h.tr.End(h.operation, h.key)

		fields := logtrace.Fields{
			logtrace.FieldMethod:     h.operation,
			logtrace.FieldContentKey: h.key,
			"elapsed":                h.Elapsed().String(),
		}
		if expired {
			logtrace.Warn(ctx, "task: watchdog expired", fields)
		} else {
			logtrace.Debug(ctx, "task: ended", fields)
		}
	})
}
