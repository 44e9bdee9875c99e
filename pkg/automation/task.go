package automation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nergy-se/heatharmony/pkg/api/v1/types"
	"github.com/sirupsen/logrus"
)

type task struct {
	name       string
	interval   time.Duration
	startDelay time.Duration
	tick       func(ctx context.Context) error

	status types.TaskStatus
	mu     sync.Mutex
}

func (t *task) getStatus() types.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status
	s.Name = t.name
	return s
}

func (t *task) record(now time.Time, running bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = running
	if !now.IsZero() {
		t.status.LastTick = now
	}
	if err != nil {
		t.status.LastError = err.Error()
		t.status.Faults++
	} else if !now.IsZero() {
		t.status.LastError = ""
	}
}

// runTask ticks t until ctx is done. Tick errors are logged and the next tick
// is scheduled with jittered backoff. Only ErrInitializationTimeout ends the task.
func (w *Worker) runTask(ctx context.Context, t *task) error {
	t.record(time.Time{}, true, nil)
	defer t.record(time.Time{}, false, nil)

	bo := w.policy.BackOff()
	timer := time.NewTimer(t.startDelay)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			err := w.safeTick(ctx, t)
			t.record(w.now(), true, err)
			if errors.Is(err, ErrInitializationTimeout) {
				return err
			}

			next := t.interval
			if err != nil {
				logrus.WithField("task", t.name).Errorf("worker: tick failed: %s", err)
				if d := bo.NextBackOff(); d != backoff.Stop && d < next {
					next = d
				}
			} else {
				bo.Reset()
			}
			timer.Reset(next)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) safeTick(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("task", t.name).Errorf("worker: panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("%s: panic: %v", t.name, r)
		}
	}()
	return t.tick(ctx)
}
