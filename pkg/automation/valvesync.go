package automation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/sirupsen/logrus"
)

// syncValves keeps the heat pump target aligned with the flow temperature the
// floor heating controller asks for.
func (w *Worker) syncValves(ctx context.Context) error {
	now := w.now()
	target := w.telemetry.HeatPumpTarget()
	demand := w.telemetry.FlowDemand()

	if target == 0 || demand == 0 {
		if w.uninitSince.IsZero() {
			w.uninitSince = now
		}
		waited := now.Sub(w.uninitSince)
		if waited > w.config.InitializationGrace {
			if w.alarms.Add(alarm.InitTimeout) {
				logrus.WithField("waited", waited.String()).Error("valvesync: telemetry not initialized")
			}
			return ErrInitializationTimeout
		}
		logrus.WithFields(logrus.Fields{
			"target": target,
			"demand": demand,
		}).Debug("valvesync: waiting for telemetry")
		return nil
	}
	w.uninitSince = time.Time{}
	w.alarms.Remove(alarm.InitTimeout)

	desired := desiredTarget(demand, w.config.HeatAddition, w.config.MinTarget, w.config.MaxTarget)
	if abs(desired-target) <= 1 {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"demand": demand,
		"from":   target,
		"to":     desired,
	}).Info("valvesync: syncing heat pump target")
	err := w.devices.HeatPump.SetTargetTemp(ctx, desired)
	if err != nil {
		return fmt.Errorf("set heat pump target: %w", err)
	}
	w.telemetry.SetHeatPumpTarget(desired)
	w.changes.Add(changelog.SubsystemValveSync, changelog.KindAutomatic, fmt.Sprintf("heat pump target %d -> %d (demand %.1f)", target, desired, demand))
	return nil
}

func desiredTarget(demand float64, addition, min, max int) int {
	desired := int(math.Round(demand)) + addition
	if desired < min {
		return min
	}
	if desired > max {
		return max
	}
	return desired
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
