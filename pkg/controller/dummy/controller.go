package dummy

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
)

// Dummy simulates every device. Used when no hardware is configured.
type Dummy struct {
	telemetry *state.Telemetry

	relayOn      bool
	lastEnabled  time.Time
	lastDisabled time.Time
	autoDrive    bool
	sync.Mutex
}

func New(telemetry *state.Telemetry) *Dummy {
	return &Dummy{
		telemetry: telemetry,
		autoDrive: true,
	}
}

func (d *Dummy) Poll(ctx context.Context) error {
	d.telemetry.SetOutside(float64(rand.Intn(30)-10) + 0.5)
	d.telemetry.SetInside(20 + rand.Float64()*2)
	d.telemetry.SetFlowDemand(float64(rand.Intn(20) + 25))
	if d.telemetry.HeatPumpTarget() == 0 {
		d.telemetry.SetHeatPumpTarget(30)
	}
	return nil
}

func (d *Dummy) SetTargetTemp(ctx context.Context, temp int) error {
	logrus.Info("dummy: SetTargetTemp: ", temp)
	d.telemetry.SetHeatPumpTarget(temp)
	return nil
}

func (d *Dummy) SetMinFlowTemp(ctx context.Context, temp int) error {
	logrus.Info("dummy: SetMinFlowTemp: ", temp)
	d.telemetry.SetMinFlow(float64(temp))
	return nil
}

func (d *Dummy) SetInsideTemp(ctx context.Context, temp float64) error {
	logrus.Info("dummy: SetInsideTemp: ", temp)
	d.telemetry.SetInsideSetpoint(temp)
	return nil
}

func (d *Dummy) SetAutoDrive(ctx context.Context) error {
	logrus.Info("dummy: SetAutoDrive")
	d.Lock()
	d.autoDrive = true
	d.Unlock()
	return nil
}

func (d *Dummy) SetMaximumFlow(ctx context.Context) error {
	logrus.Info("dummy: SetMaximumFlow")
	d.Lock()
	d.autoDrive = false
	d.Unlock()
	return nil
}

func (d *Dummy) AutoDrive() bool {
	d.Lock()
	defer d.Unlock()
	return d.autoDrive
}

func (d *Dummy) SetPosition(ctx context.Context, pos int) error {
	logrus.Info("dummy: SetPosition: ", pos)
	return nil
}

func (d *Dummy) SetAuto(ctx context.Context, enable bool, target *int) error {
	logrus.Info("dummy: SetAuto: ", enable)
	return nil
}

func (d *Dummy) SetRelay(ctx context.Context, on bool) error {
	logrus.Info("dummy: SetRelay: ", on)
	d.Lock()
	defer d.Unlock()
	d.relayOn = on
	if on {
		d.lastEnabled = time.Now()
	} else {
		d.lastDisabled = time.Now()
	}
	return nil
}

func (d *Dummy) RelayOn() bool {
	d.Lock()
	defer d.Unlock()
	return d.relayOn
}

func (d *Dummy) LastEnabled() time.Time {
	d.Lock()
	defer d.Unlock()
	return d.lastEnabled
}

func (d *Dummy) LastDisabled() time.Time {
	d.Lock()
	defer d.Unlock()
	return d.lastDisabled
}

func (d *Dummy) IsRunning() bool {
	return d.RelayOn()
}
