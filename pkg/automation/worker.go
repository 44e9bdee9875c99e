package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/api/v1/types"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/controller"
	"github.com/nergy-se/heatharmony/pkg/override"
	"github.com/nergy-se/heatharmony/pkg/price"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInitializationTimeout is returned when telemetry never arrives within the grace period.
	ErrInitializationTimeout = errors.New("telemetry not initialized in time")
	// ErrUnexpectedExit is returned when a task stops without being asked to.
	ErrUnexpectedExit = errors.New("task exited unexpectedly")
)

type Devices struct {
	HeatPump     controller.HeatPump
	FloorHeating controller.FloorHeating
	Valves       controller.Valves
	WaterHeater  controller.WaterHeater
}

// Worker runs valve sync, water heating and inside temperature control as one
// group. If any of them fails the whole group is restarted after RestartDelay.
type Worker struct {
	config     config.Automation
	thresholds price.Thresholds
	devices    Devices
	prices     *price.Cache
	telemetry  *state.Telemetry
	alarms     *alarm.ActiveAlarms
	changes    *changelog.Log
	policy     retry.Policy

	Water       *override.Controller[WaterMode]
	Temperature *override.Controller[float64]

	now func() time.Time

	// uninitSince and lastPlan are only touched from their own task.
	uninitSince time.Time
	lastPlan    Plan

	mu       sync.RWMutex
	running  bool
	restarts int
	tasks    []*task
	wg       sync.WaitGroup
}

// NewWorker creates the worker. Calendar logic runs in loc.
func NewWorker(c config.Automation, loc *time.Location, devices Devices, prices *price.Cache, telemetry *state.Telemetry, alarms *alarm.ActiveAlarms, changes *changelog.Log, policy retry.Policy) *Worker {
	w := &Worker{
		config:     c,
		thresholds: price.NewThresholds(c.CheapThreshold, c.ModerateThreshold, c.ExpensiveThreshold),
		devices:    devices,
		prices:     prices,
		telemetry:  telemetry,
		alarms:     alarms,
		changes:    changes,
		policy:     policy,
		now:        func() time.Time { return time.Now().In(loc) },
	}
	w.Water = NewWaterOverride(devices.WaterHeater, c.MaxWaterOverride, changes)
	w.Temperature = NewTemperatureOverride(devices.FloorHeating, telemetry, c.MaxTempOverride, changes)
	w.tasks = []*task{
		{name: "valvesync", interval: c.ValveSyncInterval, tick: w.syncValves},
		{name: "waterheating", interval: c.WaterInterval, startDelay: c.WaterStartupDelay, tick: w.controlWater},
		{name: "insidetemperature", interval: c.InsideInterval, startDelay: c.InsideStartupDelay, tick: w.controlInside},
	}
	return w
}

func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the worker has stopped and all overrides are restored.
func (w *Worker) Wait() {
	w.wg.Wait()
	w.Water.Shutdown()
	w.Temperature.Shutdown()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		err := w.runOnce(ctx)
		if ctx.Err() != nil {
			logrus.Info("worker: stopped")
			return
		}

		w.mu.Lock()
		w.restarts++
		restarts := w.restarts
		w.mu.Unlock()
		w.alarms.Add(alarm.WorkerRestarted)
		logrus.WithFields(logrus.Fields{
			"restarts": restarts,
			"delay":    w.config.RestartDelay.String(),
		}).Errorf("worker: restarting after error: %s", err)

		select {
		case <-time.After(w.config.RestartDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	w.uninitSince = time.Time{}
	w.setRunning(true)
	defer w.setRunning(false)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range w.tasks {
		t := t
		g.Go(func() error {
			err := w.runTask(gctx, t)
			if err == nil && gctx.Err() == nil {
				return fmt.Errorf("%s: %w", t.name, ErrUnexpectedExit)
			}
			return err
		})
	}
	return g.Wait()
}

func (w *Worker) setRunning(b bool) {
	w.mu.Lock()
	w.running = b
	w.mu.Unlock()
}

func (w *Worker) Status() types.WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := types.WorkerStatus{
		Running:    w.running,
		Restarts:   w.restarts,
		Alarms:     w.alarms.List(),
		ServerTime: w.now(),
	}
	for _, t := range w.tasks {
		s.Tasks = append(s.Tasks, t.getStatus())
	}
	return s
}

// Snapshot is the current decision input including price and water heater state.
func (w *Worker) Snapshot(now time.Time) state.Snapshot {
	s := w.telemetry.Snapshot(now)
	if prices := w.prices.Get(); prices != nil {
		if p, ok := prices.CurrentPrice(now); ok {
			f := p.InexactFloat64()
			s.CurrentPrice = &f
		}
		if p, ok := prices.ActivePeriod(now); ok {
			s.CurrentRank = controller.Pointer(p.Rank)
		}
	}
	heater := w.devices.WaterHeater
	if last := heater.LastEnabled(); !last.IsZero() {
		s.HoursSinceWaterHeating = controller.Pointer(now.Sub(last).Hours())
	}
	s.WaterHeaterOn = controller.Pointer(heater.RelayOn())
	return s
}
