package automation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/override"
	"github.com/stretchr/testify/assert"
)

func TestWaterOverrideSupersedes(t *testing.T) {
	tw := newTestWorker(time.Now())

	_, err := tw.Water.Apply(context.Background(), WaterEnable, 2*time.Hour, 0, false)
	assert.NoError(t, err)
	status, err := tw.Water.Apply(context.Background(), WaterDisable, time.Hour, 0, true)
	assert.NoError(t, err)
	assert.Equal(t, WaterDisable, status.Mode)
	assert.Equal(t, []bool{true, false}, tw.heater.sets)

	var got []string
	for _, c := range tw.changes.List(time.Time{}, changelog.SubsystemWaterHeating) {
		got = append(got, c.Description)
	}
	assert.Equal(t, []string{"applied(Enable)", "cleared(was Enable)", "applied(Disable)"}, got)
	tw.Water.Shutdown()
}

func TestTemperatureOverrideRejectsWithoutSupersede(t *testing.T) {
	tw := newTestWorker(time.Now())
	tw.telemetry.SetInsideSetpoint(20)
	defer tw.Temperature.Shutdown()

	_, err := tw.Temperature.Apply(context.Background(), 22, time.Hour, 0, false)
	assert.NoError(t, err)

	_, err = tw.Temperature.Apply(context.Background(), 24, time.Hour, 0, false)
	assert.ErrorIs(t, err, override.ErrActive)
	assert.Equal(t, 22.0, tw.floor.inside)

	status, err := tw.Temperature.Apply(context.Background(), 24, time.Hour, 0, true)
	assert.NoError(t, err)
	assert.Equal(t, 24.0, status.Mode)
	assert.Equal(t, 24.0, tw.floor.inside)
}

func TestSafeTickRecoversPanic(t *testing.T) {
	tw := newTestWorker(time.Now())
	tk := &task{name: "panics", tick: func(ctx context.Context) error {
		panic("boom")
	}}
	err := tw.safeTick(context.Background(), tk)
	assert.EqualError(t, err, "panics: panic: boom")
}

func TestWorkerRestartsAfterInitializationTimeout(t *testing.T) {
	tw := newTestWorker(time.Now())
	tw.Worker.now = time.Now
	tw.config.RestartDelay = 10 * time.Millisecond
	tw.config.InitializationGrace = 0
	tw.tasks[0].interval = time.Millisecond
	tw.tasks[1].startDelay = time.Hour
	tw.tasks[2].startDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	tw.Start(ctx)

	assert.Eventually(t, func() bool {
		return tw.Status().Restarts >= 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, tw.alarms.Has(alarm.WorkerRestarted))
	assert.True(t, tw.alarms.Has(alarm.InitTimeout))

	cancel()
	tw.Wait()
	status := tw.Status()
	assert.False(t, status.Running)
	if assert.Len(t, status.Tasks, 3) {
		assert.Equal(t, "valvesync", status.Tasks[0].Name)
		assert.Greater(t, status.Tasks[0].Faults, 0)
		assert.Contains(t, status.Tasks[0].LastError, "not initialized")
	}
}

func TestTaskBacksOffOnError(t *testing.T) {
	tw := newTestWorker(time.Now())
	tw.Worker.now = time.Now
	var ticks atomic.Int32
	tk := &task{name: "flaky", interval: time.Hour, tick: func(ctx context.Context) error {
		ticks.Add(1)
		return errors.New("unreachable")
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- tw.runTask(ctx, tk)
	}()

	assert.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	status := tk.getStatus()
	assert.False(t, status.Running)
	assert.Equal(t, "unreachable", status.LastError)
}
