package override

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/sirupsen/logrus"
)

var ErrActive = errors.New("override already active")

const restoreTimeout = time.Minute

type Policy int

const (
	// SupersedeAlways replaces a running override on every request.
	SupersedeAlways Policy = iota
	// SupersedeOnRequest rejects a new override while one runs unless the caller asks to supersede.
	SupersedeOnRequest
)

// Restore undoes an applied override. It may be nil.
type Restore func(ctx context.Context) error

// Effect performs the actuation for mode and returns how to undo it.
type Effect[M comparable] func(ctx context.Context, mode M) (Restore, error)

type Status[M comparable] struct {
	Active   bool       `json:"isActive"`
	// Pending is true while a delayed override waits for its start.
	Pending  bool       `json:"isPending,omitempty"`
	ID       string     `json:"id,omitempty"`
	Mode     M          `json:"mode"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
}

type active[M comparable] struct {
	id       string
	mode     M
	duration time.Duration
	startsAt time.Time
	started  bool
	since    time.Time
	expiry   time.Time
	restore  Restore
	cancel   context.CancelFunc
	done     chan struct{}
}

// Controller owns at most one timed override for one subsystem.
type Controller[M comparable] struct {
	subsystem changelog.Subsystem
	effect    Effect[M]
	policy    Policy
	max       time.Duration
	changes   *changelog.Log
	now       func() time.Time

	// transition serializes apply, clear and reconcile.
	transition sync.Mutex
	// actuation is held while the override or automatic control touches the device.
	actuation sync.Mutex
	mu        sync.RWMutex
	current   *active[M]
	wg        sync.WaitGroup
}

func New[M comparable](subsystem changelog.Subsystem, effect Effect[M], policy Policy, max time.Duration, changes *changelog.Log) *Controller[M] {
	return &Controller[M]{
		subsystem: subsystem,
		effect:    effect,
		policy:    policy,
		max:       max,
		changes:   changes,
		now:       time.Now,
	}
}

// Clamp limits d to [1h, max].
func (c *Controller[M]) Clamp(d time.Duration) time.Duration {
	if d < time.Hour {
		return time.Hour
	}
	if d > c.max {
		return c.max
	}
	return d
}

// Apply starts an override for d, after delay when delay is positive. A running or
// pending one is cancelled and restored first. With SupersedeOnRequest and
// supersede false ErrActive is returned instead.
func (c *Controller[M]) Apply(ctx context.Context, mode M, d, delay time.Duration, supersede bool) (Status[M], error) {
	c.transition.Lock()
	defer c.transition.Unlock()

	if cur := c.get(); cur != nil {
		if c.policy == SupersedeOnRequest && !supersede && c.live(cur) {
			return c.Status(), ErrActive
		}
		c.stop(cur)
	}

	d = c.Clamp(d)
	if delay < 0 {
		delay = 0
	}
	now := c.now()
	wctx, cancel := context.WithCancel(context.Background())
	a := &active[M]{
		id:       uuid.New().String(),
		mode:     mode,
		duration: d,
		startsAt: now.Add(delay),
		expiry:   now.Add(delay + d),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	logger := logrus.WithFields(logrus.Fields{
		"subsystem": c.subsystem,
		"id":        a.id,
	})

	if delay == 0 {
		c.actuation.Lock()
		err := c.start(ctx, a)
		c.actuation.Unlock()
		if err != nil {
			cancel()
			return c.Status(), fmt.Errorf("apply %s override: %w", c.subsystem, err)
		}
		c.wg.Add(1)
		go c.wait(wctx, a, 0)
		return c.Status(), nil
	}

	c.mu.Lock()
	c.current = a
	c.mu.Unlock()
	if c.changes != nil {
		c.changes.Add(c.subsystem, changelog.KindOverrideApplied, fmt.Sprintf("scheduled(%v) at %s", mode, a.startsAt.Format(time.RFC3339)))
	}
	logger.WithField("startsAt", a.startsAt.Format(time.RFC3339)).Infof("override: scheduled %v", mode)

	c.wg.Add(1)
	go c.wait(wctx, a, delay)
	return c.Status(), nil
}

// start runs the effect and makes a the current override. Caller holds actuation.
func (c *Controller[M]) start(ctx context.Context, a *active[M]) error {
	restore, err := c.effect(ctx, a.mode)
	if err != nil {
		return err
	}
	now := c.now()
	c.mu.Lock()
	a.restore = restore
	a.started = true
	a.since = now
	a.expiry = now.Add(a.duration)
	c.current = a
	c.mu.Unlock()

	if c.changes != nil {
		c.changes.Add(c.subsystem, changelog.KindOverrideApplied, fmt.Sprintf("applied(%v)", a.mode))
	}
	logrus.WithFields(logrus.Fields{
		"subsystem": c.subsystem,
		"id":        a.id,
		"until":     a.expiry.Format(time.RFC3339),
	}).Infof("override: applied %v", a.mode)
	return nil
}

func (c *Controller[M]) wait(ctx context.Context, a *active[M], delay time.Duration) {
	defer c.wg.Done()
	if delay > 0 && !c.delayedStart(ctx, a, delay) {
		c.cleanup(a)
		return
	}
	timer := time.NewTimer(a.duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	c.cleanup(a)
}

// delayedStart waits for delay and starts a. It returns false when a was
// cancelled first or its effect failed.
func (c *Controller[M]) delayedStart(ctx context.Context, a *active[M], delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return false
	}

	c.actuation.Lock()
	defer c.actuation.Unlock()
	if ctx.Err() != nil {
		return false
	}
	err := c.start(ctx, a)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"subsystem": c.subsystem,
			"id":        a.id,
		}).Errorf("override: delayed start failed: %s", err)
		return false
	}
	return true
}

func (c *Controller[M]) cleanup(a *active[M]) {
	c.actuation.Lock()
	c.mu.RLock()
	restore := a.restore
	c.mu.RUnlock()
	if restore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		err := restore(ctx)
		cancel()
		if err != nil {
			logrus.WithField("subsystem", c.subsystem).Errorf("override: restore failed: %s", err)
		}
	}

	c.mu.Lock()
	if c.current == a {
		c.current = nil
	}
	c.mu.Unlock()
	c.actuation.Unlock()

	if c.changes != nil {
		c.changes.Add(c.subsystem, changelog.KindOverrideCleared, fmt.Sprintf("cleared(was %v)", a.mode))
	}
	close(a.done)
}

// stop cancels a and waits until its restore has run. Caller holds transition.
func (c *Controller[M]) stop(a *active[M]) {
	a.cancel()
	<-a.done
}

func (c *Controller[M]) get() *active[M] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// live is true while a is pending or running and not yet expired.
func (c *Controller[M]) live(a *active[M]) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Before(a.expiry)
}

func (c *Controller[M]) started(a *active[M]) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return a.started
}

// Clear cancels the running or pending override. Returns false if there was none.
func (c *Controller[M]) Clear() bool {
	c.transition.Lock()
	defer c.transition.Unlock()
	cur := c.get()
	if cur == nil {
		return false
	}
	c.stop(cur)
	return true
}

// Reconcile clears an override whose expiry has passed and reports if one is
// running. A pending override is not running.
func (c *Controller[M]) Reconcile() bool {
	c.transition.Lock()
	defer c.transition.Unlock()
	cur := c.get()
	if cur == nil || !c.started(cur) {
		return false
	}
	if !c.live(cur) {
		c.stop(cur)
		return false
	}
	return true
}

// Automatic runs fn unless an override is running. The override cannot start or
// end while fn runs, so an effect applied concurrently always lands after fn.
func (c *Controller[M]) Automatic(fn func() error) (overridden bool, err error) {
	c.actuation.Lock()
	defer c.actuation.Unlock()
	if cur := c.get(); cur != nil && c.started(cur) {
		return true, nil
	}
	return false, fn()
}

// Status is a read only view. It never changes state.
func (c *Controller[M]) Status() Status[M] {
	cur := c.get()
	if cur == nil {
		return Status[M]{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.now().Before(cur.expiry) {
		return Status[M]{}
	}
	startsAt, until := cur.startsAt, cur.expiry
	st := Status[M]{
		Active:   cur.started,
		Pending:  !cur.started,
		ID:       cur.id,
		Mode:     cur.mode,
		StartsAt: &startsAt,
		Until:    &until,
	}
	if cur.started {
		since := cur.since
		st.Since = &since
	}
	return st
}

// Shutdown clears the running override and waits for all restores to finish.
func (c *Controller[M]) Shutdown() {
	c.Clear()
	c.wg.Wait()
}
