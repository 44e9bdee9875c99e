package state

import (
	"math"
	"sync/atomic"
	"time"
)

// Telemetry is written by the device pollers and read by the automation loops.
// Zero means the value has not been reported yet.
type Telemetry struct {
	outside        atomicFloat
	inside         atomicFloat
	flowDemand     atomicFloat
	minFlow        atomicFloat
	insideSetpoint atomicFloat
	heatPumpTarget atomic.Int64
	outlet         atomicFloat
	waterPower     atomicFloat
	updated        atomic.Int64
}

type atomicFloat struct {
	v atomic.Uint64
}

func (a *atomicFloat) Load() float64 { return math.Float64frombits(a.v.Load()) }
func (a *atomicFloat) Store(f float64) { a.v.Store(math.Float64bits(f)) }

func (t *Telemetry) touch() { t.updated.Store(time.Now().Unix()) }

func (t *Telemetry) Outside() float64 { return t.outside.Load() }
func (t *Telemetry) Inside() float64 { return t.inside.Load() }
func (t *Telemetry) FlowDemand() float64 { return t.flowDemand.Load() }
func (t *Telemetry) MinFlow() float64 { return t.minFlow.Load() }
func (t *Telemetry) InsideSetpoint() float64 { return t.insideSetpoint.Load() }
func (t *Telemetry) HeatPumpTarget() int { return int(t.heatPumpTarget.Load()) }
func (t *Telemetry) HeatPumpOutlet() float64 { return t.outlet.Load() }
func (t *Telemetry) WaterHeaterPower() float64 { return t.waterPower.Load() }

func (t *Telemetry) SetOutside(v float64) {
	t.outside.Store(v)
	t.touch()
}

func (t *Telemetry) SetInside(v float64) {
	t.inside.Store(v)
	t.touch()
}

func (t *Telemetry) SetFlowDemand(v float64) {
	t.flowDemand.Store(v)
	t.touch()
}

func (t *Telemetry) SetMinFlow(v float64) {
	t.minFlow.Store(v)
	t.touch()
}

func (t *Telemetry) SetInsideSetpoint(v float64) {
	t.insideSetpoint.Store(v)
	t.touch()
}

func (t *Telemetry) SetHeatPumpTarget(v int) {
	t.heatPumpTarget.Store(int64(v))
	t.touch()
}

func (t *Telemetry) SetHeatPumpOutlet(v float64) {
	t.outlet.Store(v)
	t.touch()
}

func (t *Telemetry) SetWaterHeaterPower(v float64) {
	t.waterPower.Store(v)
	t.touch()
}

// LastUpdate is the time any field was last written.
func (t *Telemetry) LastUpdate() time.Time {
	u := t.updated.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

// Snapshot is the per tick view used by one decision. It is never stored.
type Snapshot struct {
	Time           time.Time `json:"time"`
	Outside        float64   `json:"outside"`
	Inside         float64   `json:"inside"`
	FlowDemand     float64   `json:"flowDemand"`
	HeatPumpTarget int       `json:"heatPumpTarget"`

	CurrentPrice *float64 `json:"currentPrice,omitempty"`
	CurrentRank  *int     `json:"currentRank,omitempty"`

	HoursSinceWaterHeating *float64 `json:"hoursSinceWaterHeating,omitempty"`
	WaterHeaterOn          *bool    `json:"waterHeaterOn,omitempty"`
}

func (t *Telemetry) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Time:           now,
		Outside:        t.Outside(),
		Inside:         t.Inside(),
		FlowDemand:     t.FlowDemand(),
		HeatPumpTarget: t.HeatPumpTarget(),
	}
}

// Map returns the snapshot as flat fields suitable for logrus.
func (s Snapshot) Map() map[string]interface{} {
	m := map[string]interface{}{
		"outside":        s.Outside,
		"inside":         s.Inside,
		"flowDemand":     s.FlowDemand,
		"heatPumpTarget": s.HeatPumpTarget,
	}
	if s.CurrentPrice != nil {
		m["currentPrice"] = *s.CurrentPrice
	}
	if s.CurrentRank != nil {
		m["currentRank"] = *s.CurrentRank
	}
	if s.HoursSinceWaterHeating != nil {
		m["hoursSinceWaterHeating"] = *s.HoursSinceWaterHeating
	}
	if s.WaterHeaterOn != nil {
		m["waterHeaterOn"] = boolToInt(*s.WaterHeaterOn)
	}
	return m
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
