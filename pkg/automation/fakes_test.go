package automation

import (
	"context"
	"sync"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/price"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/shopspring/decimal"
)

type fakeHeatPump struct {
	targets []int
	err     error
	sync.Mutex
}

func (f *fakeHeatPump) Poll(ctx context.Context) error { return nil }

func (f *fakeHeatPump) SetTargetTemp(ctx context.Context, temp int) error {
	f.Lock()
	defer f.Unlock()
	if f.err != nil {
		return f.err
	}
	f.targets = append(f.targets, temp)
	return nil
}

type fakeFloor struct {
	minFlow   int
	inside    float64
	autoDrive bool
	maxFlow   int
	calls     int
	// when set, SetMinFlowTemp signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
	sync.Mutex
}

func (f *fakeFloor) Poll(ctx context.Context) error { return nil }

func (f *fakeFloor) SetMinFlowTemp(ctx context.Context, temp int) error {
	f.Lock()
	entered, release := f.entered, f.release
	f.entered = nil
	f.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}

	f.Lock()
	defer f.Unlock()
	f.calls++
	f.minFlow = temp
	return nil
}

func (f *fakeFloor) SetInsideTemp(ctx context.Context, temp float64) error {
	f.Lock()
	defer f.Unlock()
	f.calls++
	f.inside = temp
	return nil
}

func (f *fakeFloor) SetAutoDrive(ctx context.Context) error {
	f.Lock()
	defer f.Unlock()
	f.calls++
	f.autoDrive = true
	return nil
}

func (f *fakeFloor) SetMaximumFlow(ctx context.Context) error {
	f.Lock()
	defer f.Unlock()
	f.calls++
	f.maxFlow++
	f.autoDrive = false
	return nil
}

func (f *fakeFloor) AutoDrive() bool {
	f.Lock()
	defer f.Unlock()
	return f.autoDrive
}

type fakeValves struct {
	position int
	auto     bool
	target   int
	sync.Mutex
}

func (f *fakeValves) Poll(ctx context.Context) error { return nil }

func (f *fakeValves) SetPosition(ctx context.Context, pos int) error {
	f.Lock()
	defer f.Unlock()
	f.position = pos
	f.auto = false
	return nil
}

func (f *fakeValves) SetAuto(ctx context.Context, enable bool, target *int) error {
	f.Lock()
	defer f.Unlock()
	f.auto = enable
	if target != nil {
		f.target = *target
	}
	return nil
}

type fakeHeater struct {
	on           bool
	lastEnabled  time.Time
	lastDisabled time.Time
	now          func() time.Time
	sets         []bool
	sync.Mutex
}

func (f *fakeHeater) Poll(ctx context.Context) error { return nil }

func (f *fakeHeater) SetRelay(ctx context.Context, on bool) error {
	f.Lock()
	defer f.Unlock()
	f.sets = append(f.sets, on)
	now := time.Now()
	if f.now != nil {
		now = f.now()
	}
	if on && !f.on {
		f.lastEnabled = now
	}
	if !on && f.on {
		f.lastDisabled = now
	}
	f.on = on
	return nil
}

func (f *fakeHeater) RelayOn() bool {
	f.Lock()
	defer f.Unlock()
	return f.on
}

func (f *fakeHeater) LastEnabled() time.Time {
	f.Lock()
	defer f.Unlock()
	return f.lastEnabled
}

func (f *fakeHeater) LastDisabled() time.Time {
	f.Lock()
	defer f.Unlock()
	return f.lastDisabled
}

func (f *fakeHeater) IsRunning() bool {
	return f.RelayOn()
}

type testWorker struct {
	*Worker
	hp     *fakeHeatPump
	floor  *fakeFloor
	valves *fakeValves
	heater *fakeHeater
	now    time.Time
}

func newTestWorker(now time.Time) *testWorker {
	c := config.Default()
	tw := &testWorker{
		hp:     &fakeHeatPump{},
		floor:  &fakeFloor{autoDrive: true},
		valves: &fakeValves{},
		heater: &fakeHeater{},
		now:    now,
	}
	tw.heater.now = func() time.Time { return tw.now }
	devices := Devices{
		HeatPump:     tw.hp,
		FloorHeating: tw.floor,
		Valves:       tw.valves,
		WaterHeater:  tw.heater,
	}
	policy := retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	tw.Worker = NewWorker(c.Automation, time.UTC, devices, &price.Cache{}, &state.Telemetry{}, &alarm.ActiveAlarms{}, changelog.New(func() time.Time { return tw.now }), policy)
	tw.Worker.now = func() time.Time { return tw.now }
	return tw
}

var testDay = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

// quotes returns 96 quarter hour quotes for the day starting at start.
func quotes(start time.Time, fn func(t time.Time) float64) []price.Quote {
	var q []price.Quote
	for i := 0; i < 96; i++ {
		t := start.Add(time.Duration(i) * price.SlotLength)
		q = append(q, price.Quote{Time: t, Price: decimal.NewFromFloat(fn(t))})
	}
	return q
}

func flat(p float64) func(time.Time) float64 {
	return func(time.Time) float64 { return p }
}

// dip is 0.15 all day except low between 02:00 and 04:00.
func dip(low float64) func(time.Time) float64 {
	return func(t time.Time) float64 {
		if t.Hour() >= 2 && t.Hour() < 4 {
			return low
		}
		return 0.15
	}
}

func (tw *testWorker) setPrices(today, tomorrow []price.Quote) *price.Snapshot {
	s := price.NewSnapshot(tw.now, today, tomorrow, nil)
	tw.prices.Set(s)
	return s
}
