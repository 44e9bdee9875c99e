package override

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/stretchr/testify/assert"
)

type relay struct {
	on       bool
	setpoint float64
	restores int
	sync.Mutex
}

func (r *relay) water(ctx context.Context, mode string) (Restore, error) {
	r.Lock()
	defer r.Unlock()
	r.on = mode == "Enable"
	return nil, nil
}

func (r *relay) temperature(ctx context.Context, mode float64) (Restore, error) {
	r.Lock()
	defer r.Unlock()
	prev := r.setpoint
	r.setpoint = mode
	return func(ctx context.Context) error {
		r.Lock()
		defer r.Unlock()
		r.setpoint = prev
		r.restores++
		return nil
	}, nil
}

func descriptions(changes []changelog.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Description
	}
	return out
}

func TestSupersedeAlways(t *testing.T) {
	r := &relay{}
	log := changelog.New(nil)
	c := New[string](changelog.SubsystemWaterHeating, r.water, SupersedeAlways, 24*time.Hour, log)

	_, err := c.Apply(context.Background(), "Enable", 2*time.Hour, 0, false)
	assert.NoError(t, err)
	assert.True(t, r.on)

	st, err := c.Apply(context.Background(), "Disable", time.Hour, 0, false)
	assert.NoError(t, err)
	assert.False(t, r.on)
	assert.True(t, st.Active)
	assert.Equal(t, "Disable", st.Mode)

	assert.Equal(t, []string{
		"applied(Enable)",
		"cleared(was Enable)",
		"applied(Disable)",
	}, descriptions(log.List(time.Time{}, changelog.SubsystemWaterHeating)))

	c.Shutdown()
	assert.False(t, c.Status().Active)
}

func TestSupersedeOnRequest(t *testing.T) {
	r := &relay{setpoint: 20}
	c := New[float64](changelog.SubsystemInsideTemp, r.temperature, SupersedeOnRequest, 48*time.Hour, changelog.New(nil))

	_, err := c.Apply(context.Background(), 23, 2*time.Hour, 0, false)
	assert.NoError(t, err)
	assert.Equal(t, 23.0, r.setpoint)

	st, err := c.Apply(context.Background(), 18, 2*time.Hour, 0, false)
	assert.ErrorIs(t, err, ErrActive)
	assert.Equal(t, 23.0, st.Mode)
	assert.Equal(t, 23.0, r.setpoint)

	_, err = c.Apply(context.Background(), 18, 2*time.Hour, 0, true)
	assert.NoError(t, err)
	assert.Equal(t, 18.0, r.setpoint)
	assert.Equal(t, 1, r.restores)

	assert.True(t, c.Clear())
	assert.False(t, c.Clear())
	assert.Equal(t, 20.0, r.setpoint)
	assert.Equal(t, 2, r.restores)
}

func TestClampDuration(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	r := &relay{}
	c := New[string](changelog.SubsystemWaterHeating, r.water, SupersedeAlways, 24*time.Hour, nil)
	c.now = func() time.Time { return now }
	defer c.Shutdown()

	st, err := c.Apply(context.Background(), "Enable", 10*time.Minute, 0, false)
	assert.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), *st.Until)

	st, err = c.Apply(context.Background(), "Enable", 100*time.Hour, 0, false)
	assert.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), *st.Until)
}

func TestReconcileClearsExpired(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	r := &relay{setpoint: 21}
	log := changelog.New(nil)
	c := New[float64](changelog.SubsystemInsideTemp, r.temperature, SupersedeOnRequest, 48*time.Hour, log)
	c.now = func() time.Time { return now }

	_, err := c.Apply(context.Background(), 24, 3*time.Hour, 0, false)
	assert.NoError(t, err)
	assert.True(t, c.Reconcile())

	now = now.Add(3 * time.Hour)
	assert.False(t, c.Status().Active)
	assert.Equal(t, 24.0, r.setpoint, "status must not change state")

	assert.False(t, c.Reconcile())
	assert.Equal(t, 21.0, r.setpoint)
	assert.Equal(t, []string{"applied(24)", "cleared(was 24)"}, descriptions(log.List(time.Time{}, "")))
}

func TestApplyEffectError(t *testing.T) {
	c := New[string](changelog.SubsystemWaterHeating, func(ctx context.Context, mode string) (Restore, error) {
		return nil, errors.New("relay offline")
	}, SupersedeAlways, 24*time.Hour, nil)

	_, err := c.Apply(context.Background(), "Enable", time.Hour, 0, false)
	assert.EqualError(t, err, "apply water_heating override: relay offline")
	assert.False(t, c.Status().Active)
	assert.False(t, c.Reconcile())
}

func TestShutdownRestores(t *testing.T) {
	r := &relay{setpoint: 20}
	c := New[float64](changelog.SubsystemInsideTemp, r.temperature, SupersedeOnRequest, 48*time.Hour, nil)
	_, err := c.Apply(context.Background(), 25, 10*time.Hour, 0, false)
	assert.NoError(t, err)

	c.Shutdown()
	assert.Equal(t, 20.0, r.setpoint)
	assert.Equal(t, 1, r.restores)
}

func TestDelayedStart(t *testing.T) {
	r := &relay{setpoint: 20}
	log := changelog.New(nil)
	c := New[float64](changelog.SubsystemInsideTemp, r.temperature, SupersedeOnRequest, 48*time.Hour, log)
	defer c.Shutdown()

	st, err := c.Apply(context.Background(), 23, 2*time.Hour, 50*time.Millisecond, false)
	assert.NoError(t, err)
	assert.True(t, st.Pending)
	assert.False(t, st.Active)
	assert.NotNil(t, st.StartsAt)
	assert.False(t, c.Reconcile(), "pending is not running")

	overridden, err := c.Automatic(func() error { return nil })
	assert.NoError(t, err)
	assert.False(t, overridden, "automatic control continues while pending")

	_, err = c.Apply(context.Background(), 18, 2*time.Hour, 0, false)
	assert.ErrorIs(t, err, ErrActive)

	assert.Eventually(t, func() bool {
		return c.Status().Active
	}, time.Second, 5*time.Millisecond)
	r.Lock()
	assert.Equal(t, 23.0, r.setpoint)
	r.Unlock()
	assert.Equal(t, []string{"applied(23)"}, descriptions(log.List(time.Time{}, ""))[1:])
}

func TestClearWhilePending(t *testing.T) {
	r := &relay{setpoint: 20}
	log := changelog.New(nil)
	c := New[float64](changelog.SubsystemInsideTemp, r.temperature, SupersedeOnRequest, 48*time.Hour, log)

	_, err := c.Apply(context.Background(), 25, 2*time.Hour, time.Hour, false)
	assert.NoError(t, err)
	assert.True(t, c.Status().Pending)

	assert.True(t, c.Clear())
	c.Shutdown()
	assert.False(t, c.Status().Pending)
	assert.Equal(t, 20.0, r.setpoint)
	assert.Equal(t, 0, r.restores)
	list := descriptions(log.List(time.Time{}, ""))
	assert.Len(t, list, 2)
	assert.Equal(t, "cleared(was 25)", list[1])
}

func TestApplyWaitsForAutomatic(t *testing.T) {
	r := &relay{setpoint: 20}
	c := New[float64](changelog.SubsystemInsideTemp, r.temperature, SupersedeOnRequest, 48*time.Hour, nil)
	defer c.Shutdown()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		overridden, err := c.Automatic(func() error {
			close(entered)
			<-release
			r.Lock()
			r.setpoint = 19
			r.Unlock()
			return nil
		})
		assert.NoError(t, err)
		assert.False(t, overridden)
	}()
	<-entered

	applied := make(chan struct{})
	go func() {
		defer close(applied)
		_, err := c.Apply(context.Background(), 24, 2*time.Hour, 0, false)
		assert.NoError(t, err)
	}()

	select {
	case <-applied:
		t.Fatal("override applied while automatic control was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
	<-applied

	r.Lock()
	assert.Equal(t, 24.0, r.setpoint)
	r.Unlock()
	assert.True(t, c.Status().Active)

	overridden, err := c.Automatic(func() error {
		t.Fatal("automatic control ran during override")
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, overridden)
}
