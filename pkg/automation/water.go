package automation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/price"
	"github.com/sirupsen/logrus"
)

// controlWater turns the water heater on in cheap hours and off again when it
// has run long enough or the price is no longer good.
func (w *Worker) controlWater(ctx context.Context) error {
	if w.Water.Reconcile() {
		logrus.Debug("waterheating: override active")
		return nil
	}
	overridden, err := w.Water.Automatic(func() error {
		return w.waterTick(ctx)
	})
	if overridden {
		logrus.Debug("waterheating: override started before actuation")
	}
	return err
}

func (w *Worker) waterTick(ctx context.Context) error {
	now := w.now()
	heater := w.devices.WaterHeater

	if last := heater.LastDisabled(); !last.IsZero() && now.Sub(last) < w.config.WaterCooldown {
		logrus.WithField("lastDisabled", last.Format(time.RFC3339)).Debug("waterheating: cooling down")
		return nil
	}

	sinceEnable := time.Duration(math.MaxInt64)
	if last := heater.LastEnabled(); !last.IsZero() {
		sinceEnable = now.Sub(last)
	}
	if !heater.RelayOn() && sinceEnable > w.config.EmergencyAfter && !heater.LastEnabled().IsZero() {
		if w.alarms.Add(alarm.WaterHeaterOffLong) {
			logrus.WithField("since", sinceEnable.String()).Error("waterheating: heater has been off too long")
		}
	} else {
		w.alarms.Remove(alarm.WaterHeaterOffLong)
	}

	snap := w.prices.Get()
	switch snap.Classify(now, w.config.StaleGrace) {
	case price.DataPending:
		// yesterday had prices, wait for the refresh.
		if snap.Classify(now.AddDate(0, 0, -1), 0) == price.DataUsable {
			return nil
		}
		return w.waterWithoutPrices(ctx, now, sinceEnable)
	case price.DataStale:
		return w.waterWithoutPrices(ctx, now, sinceEnable)
	}

	current, hasPrice := snap.CurrentPrice(now)
	cheap := hasPrice && current.LessThanOrEqual(w.thresholds.Cheap)
	best, hasBest := snap.BestPeriod(now)
	inBest := hasBest && best.Contains(now)
	shouldEnable := cheap || (inBest && sinceEnable > w.config.RankOneReenableAfter)

	logger := logrus.WithFields(logrus.Fields{
		"price":        current.String(),
		"cheap":        cheap,
		"inBest":       inBest,
		"sinceEnable":  sinceEnable.Round(time.Minute).String(),
		"relayOn":      heater.RelayOn(),
		"shouldEnable": shouldEnable,
	})

	if heater.RelayOn() {
		ranLongEnough := sinceEnable >= w.config.RunLongEnough
		emergency := sinceEnable > w.config.EmergencyAfter
		if ranLongEnough || (!shouldEnable && !emergency) {
			logger.Info("waterheating: disabling")
			return w.setWater(ctx, false, changelog.KindAutomatic, fmt.Sprintf("disabled (ran %s)", sinceEnable.Round(time.Minute)))
		}
		return nil
	}

	if shouldEnable {
		logger.Info("waterheating: enabling")
		reason := "rank 1 period"
		if cheap {
			reason = fmt.Sprintf("price %s", current.StringFixed(3))
		}
		return w.setWater(ctx, true, changelog.KindAutomatic, "enabled ("+reason+")")
	}
	return nil
}

// waterWithoutPrices only runs the heater when prices have been missing for a
// whole day. It is enabled right after midnight if it has been off for a day.
func (w *Worker) waterWithoutPrices(ctx context.Context, now time.Time, sinceEnable time.Duration) error {
	heater := w.devices.WaterHeater
	if w.alarms.Add(alarm.PricesStale) {
		logrus.Error("waterheating: price data is stale")
	}

	if heater.RelayOn() {
		if sinceEnable >= w.config.RunLongEnough {
			return w.setWater(ctx, false, changelog.KindEmergency, "disabled without prices")
		}
		return nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Sub(midnight) >= w.config.WaterInterval {
		return nil
	}
	if last := heater.LastDisabled(); !last.IsZero() && now.Sub(last) <= w.config.StaleEmergencyOffTime {
		return nil
	}
	logrus.Warn("waterheating: emergency enable without prices")
	return w.setWater(ctx, true, changelog.KindEmergency, "enabled without prices")
}

func (w *Worker) setWater(ctx context.Context, on bool, kind changelog.Kind, description string) error {
	err := w.devices.WaterHeater.SetRelay(ctx, on)
	if err != nil {
		return fmt.Errorf("set water heater relay: %w", err)
	}
	w.changes.Add(changelog.SubsystemWaterHeating, kind, description)
	return nil
}
