package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/price"
	"github.com/sirupsen/logrus"
)

type Drive string

const (
	DriveAuto Drive = "auto"
	DriveMax  Drive = "max"
)

type ValveAction string

const (
	ValvesAuto ValveAction = "auto"
	ValvesOpen ValveAction = "open"
)

// Plan is what the inside temperature control wants the devices to do.
// Zero MinFlow or Inside means leave it as is.
type Plan struct {
	Reason  string
	MinFlow int
	Inside  float64
	Drive   Drive
	Valves  ValveAction
}

func (p Plan) String() string {
	s := p.Reason + ":"
	if p.MinFlow != 0 {
		s += fmt.Sprintf(" minflow=%d", p.MinFlow)
	}
	if p.Inside != 0 {
		s += fmt.Sprintf(" inside=%.1f", p.Inside)
	}
	return s + fmt.Sprintf(" drive=%s valves=%s", p.Drive, p.Valves)
}

type Inputs struct {
	Now     time.Time
	Outside float64
	Inside  float64
	Prices  *price.Snapshot
	State   price.DataState
}

func conservative(c config.Automation, reason string) Plan {
	return Plan{
		Reason:  reason,
		MinFlow: c.ConservativeFlow,
		Inside:  c.ConservativeInside,
		Drive:   DriveAuto,
		Valves:  ValvesAuto,
	}
}

func decide(c config.Automation, th price.Thresholds, in Inputs) Plan {
	if in.Inside > c.SafetyCeiling {
		return conservative(c, "safety ceiling")
	}

	if in.State != price.DataUsable || in.Prices == nil {
		h := in.Now.Hour()
		deepNight := h >= c.DeepNightStartHour && h < c.DeepNightEndHour
		if deepNight && in.Outside > c.WinterOutside && in.Outside < c.SummerOutside {
			return Plan{Reason: "no prices deep night", MinFlow: c.OpportunisticFlow, Drive: DriveMax, Valves: ValvesAuto}
		}
		return conservative(c, "no prices")
	}

	switch {
	case in.Outside >= c.SummerOutside:
		return decideSummer(c, th, in)
	case in.Outside <= c.WinterOutside:
		return decideWinter(c, th, in)
	}
	return decideShoulder(c, in)
}

func decideSummer(c config.Automation, th price.Thresholds, in Inputs) Plan {
	night := in.Prices.ActiveNight(in.Now)
	if night == nil {
		return Plan{Reason: "summer", MinFlow: c.SummerIdleFlow, Drive: DriveAuto, Valves: ValvesAuto}
	}

	p := Plan{Reason: "summer night", Valves: ValvesAuto}
	switch th.Tier(night.AvgPrice) {
	case price.TierCheap:
		p.MinFlow = c.SummerCheapFlow
	case price.TierModerate:
		p.MinFlow = c.SummerModerateFlow
	case price.TierNormal:
		p.MinFlow = c.SummerNormalFlow
	default:
		p.MinFlow = c.SummerExpensiveFlow
	}
	p.Drive = DriveMax
	if night.Duration() > c.LongNightWindow {
		p.Drive = DriveAuto
	}
	return p
}

func decideShoulder(c config.Automation, in Inputs) Plan {
	best, ok := in.Prices.BestPeriod(in.Now)
	if ok && best.Duration() > c.LongBestPeriod && best.Contains(in.Now) {
		return Plan{Reason: "shoulder long best period", MinFlow: c.ShoulderModerateFlow, Drive: DriveAuto, Valves: ValvesAuto}
	}
	if in.Prices.ActiveNight(in.Now) != nil {
		return Plan{Reason: "shoulder night", MinFlow: c.ShoulderNightFlow, Drive: DriveMax, Valves: ValvesOpen}
	}
	return Plan{Reason: "shoulder", MinFlow: c.ShoulderDefaultFlow, Drive: DriveAuto, Valves: ValvesAuto}
}

func decideWinter(c config.Automation, th price.Thresholds, in Inputs) Plan {
	p := Plan{Drive: DriveAuto, Valves: ValvesAuto}
	period, ok := in.Prices.ActivePeriod(in.Now)
	switch {
	case !ok:
		p.Reason = "winter no period"
		p.Inside = c.WinterDefault
	case th.Tier(period.AvgPrice) == price.TierExpensive:
		p.Reason = "winter expensive"
		p.Inside = c.WinterExpensive
	case period.Rank == 1:
		p.Reason = "winter cheapest"
		p.Inside = c.WinterCheapest
		p.Valves = ValvesOpen
	default:
		p.Reason = "winter"
		p.Inside = c.WinterNormal
	}
	return p
}

// controlInside decides a plan every tick and applies it when it changed.
func (w *Worker) controlInside(ctx context.Context) error {
	if w.Temperature.Reconcile() {
		logrus.Debug("insidetemperature: override active")
		w.lastPlan = Plan{}
		return nil
	}

	now := w.now()
	snap := w.prices.Get()
	in := Inputs{
		Now:     now,
		Outside: w.telemetry.Outside(),
		Inside:  w.telemetry.Inside(),
		Prices:  snap,
		State:   snap.Classify(now, w.config.StaleGrace),
	}
	plan := decide(w.config, w.thresholds, in)

	if in.Inside > w.config.SafetyCeiling {
		if w.alarms.Add(alarm.InsideTempTooHigh) {
			logrus.WithField("inside", in.Inside).Error("insidetemperature: above safety ceiling")
		}
	} else {
		w.alarms.Remove(alarm.InsideTempTooHigh)
	}

	overridden, err := w.Temperature.Automatic(func() error {
		return w.applyPlan(ctx, in, plan)
	})
	if overridden {
		logrus.Debug("insidetemperature: override started before actuation")
		w.lastPlan = Plan{}
	}
	return err
}

func (w *Worker) applyPlan(ctx context.Context, in Inputs, plan Plan) error {
	if plan == w.lastPlan {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"outside": in.Outside,
		"inside":  in.Inside,
		"prices":  in.State,
		"plan":    plan.String(),
	}).Info("insidetemperature: applying plan")

	err := w.apply(ctx, plan)
	if err != nil {
		return err
	}
	w.lastPlan = plan
	w.changes.Add(changelog.SubsystemInsideTemp, changelog.KindAutomatic, plan.String())
	return nil
}

func (w *Worker) apply(ctx context.Context, p Plan) error {
	floor := w.devices.FloorHeating
	if p.MinFlow != 0 {
		if err := floor.SetMinFlowTemp(ctx, p.MinFlow); err != nil {
			return fmt.Errorf("set min flow: %w", err)
		}
	}
	if p.Inside != 0 {
		if err := floor.SetInsideTemp(ctx, p.Inside); err != nil {
			return fmt.Errorf("set inside temperature: %w", err)
		}
	}

	switch p.Drive {
	case DriveAuto:
		if !floor.AutoDrive() {
			if err := floor.SetAutoDrive(ctx); err != nil {
				return fmt.Errorf("set auto drive: %w", err)
			}
		}
	case DriveMax:
		if err := floor.SetMaximumFlow(ctx); err != nil {
			return fmt.Errorf("set maximum flow: %w", err)
		}
	}

	valves := w.devices.Valves
	switch p.Valves {
	case ValvesAuto:
		target := w.config.ValveAutoTarget
		if err := valves.SetAuto(ctx, true, &target); err != nil {
			return fmt.Errorf("set valves auto: %w", err)
		}
	case ValvesOpen:
		if err := valves.SetPosition(ctx, 100); err != nil {
			return fmt.Errorf("open valves: %w", err)
		}
	}
	return nil
}
