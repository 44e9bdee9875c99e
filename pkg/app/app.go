package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/api/v1/meter"
	"github.com/nergy-se/heatharmony/pkg/api/v1/types"
	"github.com/nergy-se/heatharmony/pkg/automation"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/controller"
	"github.com/nergy-se/heatharmony/pkg/controller/dummy"
	"github.com/nergy-se/heatharmony/pkg/controller/heishamon"
	"github.com/nergy-se/heatharmony/pkg/controller/modbushp"
	"github.com/nergy-se/heatharmony/pkg/controller/ouman"
	"github.com/nergy-se/heatharmony/pkg/controller/shellyem"
	"github.com/nergy-se/heatharmony/pkg/controller/shellytrv"
	"github.com/nergy-se/heatharmony/pkg/httpapi"
	"github.com/nergy-se/heatharmony/pkg/mbus"
	"github.com/nergy-se/heatharmony/pkg/modbusclient"
	"github.com/nergy-se/heatharmony/pkg/mqtt"
	"github.com/nergy-se/heatharmony/pkg/price"
	"github.com/nergy-se/heatharmony/pkg/request"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
)

type poller struct {
	name     string
	interval time.Duration
	poller   controller.Poller
}

type App struct {
	wg     *sync.WaitGroup
	config *config.Config

	telemetry *state.Telemetry
	prices    *price.Cache
	meter     *meter.Cache
	alarms    *alarm.ActiveAlarms
	changes   *changelog.Log

	devices   automation.Devices
	heishamon *heishamon.HeishaMon
	pollers   []poller
	closers   []func() error

	refresher *price.Refresher
	worker    *automation.Worker
	http      *httpapi.Server
	broker    *mqtt.Broker
}

func New(c *config.Config) (*App, error) {
	a := &App{
		wg:        &sync.WaitGroup{},
		config:    c,
		telemetry: &state.Telemetry{},
		prices:    &price.Cache{},
		meter:     &meter.Cache{},
		alarms:    &alarm.ActiveAlarms{},
		changes:   changelog.New(time.Now),
	}
	policy := retry.New(c.Retry)

	err := a.setupDevices(policy)
	if err != nil {
		return nil, err
	}

	source := price.NewHTTPSource(request.New(), c.Prices.TodayURL, c.Prices.TomorrowURL, c.Location())
	a.refresher = price.NewRefresher(source, a.prices, policy, a.alarms, a.changes, c.Prices, c.Location())
	a.worker = automation.NewWorker(c.Automation, c.Location(), a.devices, a.prices, a.telemetry, a.alarms, a.changes, policy)
	a.http = httpapi.New(c.HTTP, httpapi.Deps{
		Prices:               a.prices,
		Worker:               a.worker,
		WaterHeater:          a.devices.WaterHeater,
		Telemetry:            a.telemetry,
		Changes:              a.changes,
		DefaultWaterOverride: c.Automation.RunLongEnough,
		Location:             c.Location(),
	})
	if c.MQTT.Enabled {
		a.broker = mqtt.New(c.MQTT)
	}
	return a, nil
}

func (a *App) setupDevices(policy retry.Policy) error {
	c := a.config
	if types.HeatPumpType(c.HeatPump.Type) == types.HeatPumpTypeDummy {
		d := dummy.New(a.telemetry)
		a.devices = automation.Devices{HeatPump: d, FloorHeating: d, Valves: d, WaterHeater: d}
		a.pollers = append(a.pollers, poller{name: "dummy", interval: time.Minute, poller: d})
		return nil
	}

	client := request.New()
	switch types.HeatPumpType(c.HeatPump.Type) {
	case types.HeatPumpTypeHeishamon:
		a.heishamon = heishamon.New(client, c.HeatPump.URL, policy, a.telemetry)
		a.devices.HeatPump = a.heishamon
	case types.HeatPumpTypeModbus:
		mc := modbusclient.NewTCP(c.HeatPump.Address, byte(c.HeatPump.SlaveID), 5*time.Second)
		a.closers = append(a.closers, mc.Close)
		a.devices.HeatPump = modbushp.New(mc, modbushp.Registers{
			Target: uint16(c.HeatPump.TargetRegister),
			Outlet: uint16(c.HeatPump.OutletRegister),
		}, policy, a.telemetry)
	default:
		return fmt.Errorf("unknown heatpump type %q", c.HeatPump.Type)
	}
	a.pollers = append(a.pollers, poller{name: "heatpump", interval: c.HeatPump.PollInterval, poller: a.devices.HeatPump})

	a.devices.FloorHeating = ouman.New(client, c.FloorHeating.URL, c.FloorHeating.Username, c.FloorHeating.Password, policy, a.telemetry)
	a.pollers = append(a.pollers, poller{name: "floorheating", interval: c.FloorHeating.PollInterval, poller: a.devices.FloorHeating})

	a.devices.Valves = shellytrv.New(client, c.Valves.Hosts, policy, a.telemetry)
	a.pollers = append(a.pollers, poller{name: "valves", interval: c.Valves.PollInterval, poller: a.devices.Valves})

	var external *meter.Cache
	if types.PowerMeterType(c.WaterHeater.PowerMeter) == types.PowerMeterMbus {
		m := mbus.New(c.WaterHeater.MbusDevice)
		a.closers = append(a.closers, m.Close)
		a.pollers = append(a.pollers, poller{
			name:     "mbus",
			interval: c.WaterHeater.PollInterval,
			poller:   mbus.NewPoller(m, c.WaterHeater.MbusModel, c.WaterHeater.MbusPrimaryID, a.meter),
		})
		external = a.meter
	}
	a.devices.WaterHeater = shellyem.New(client, c.WaterHeater.URL, c.WaterHeater.RunningThreshold, policy, a.telemetry, external)
	a.pollers = append(a.pollers, poller{name: "waterheater", interval: c.WaterHeater.PollInterval, poller: a.devices.WaterHeater})
	return nil
}

func (a *App) Start(ctx context.Context) error {
	if a.broker != nil {
		err := a.broker.Start(ctx, a.wg)
		if err != nil {
			return fmt.Errorf("error starting mqtt broker: %w", err)
		}
		if a.heishamon != nil {
			err = a.broker.SubscribeHeisha(a.heishamon.HandleValue)
			if err != nil {
				return err
			}
		}
		a.changes.OnChange(a.broker.PublishChange)
	}

	for _, p := range a.pollers {
		a.wg.Add(1)
		go a.pollLoop(ctx, p)
	}

	err := a.refresher.Start(ctx)
	if err != nil {
		return err
	}

	a.worker.Start(ctx)
	a.http.Start(ctx, a.wg)

	a.wg.Add(1)
	go a.snapshotLoop(ctx)
	return nil
}

// Wait blocks until everything has stopped and running overrides are restored.
func (a *App) Wait() {
	a.worker.Wait()
	a.wg.Wait()
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			logrus.Errorf("app: close: %s", err)
		}
	}
}

func (a *App) pollLoop(ctx context.Context, p poller) {
	defer a.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			err := p.poller.Poll(ctx)
			if err != nil {
				if a.alarms.Add(alarm.DeviceUnreachable + ":" + p.name) {
					logrus.WithField("device", p.name).Errorf("app: poll failed: %s", err)
				}
			} else if a.alarms.Remove(alarm.DeviceUnreachable + ":" + p.name) {
				logrus.WithField("device", p.name).Info("app: device reachable again")
			}
			timer.Reset(p.interval)
		case <-ctx.Done():
			return
		}
	}
}

// snapshotLoop logs the decision inputs every quarter hour.
func (a *App) snapshotLoop(ctx context.Context) {
	defer a.wg.Done()
	delay := calculateNextDelay(time.Now())
	timer := time.NewTimer(delay)
	defer timer.Stop()
	logrus.Debug("scheduling first snapshot in ", delay)
	for {
		select {
		case <-timer.C:
			now := time.Now()
			timer.Reset(calculateNextDelay(now))
			logrus.WithFields(a.worker.Snapshot(now).Map()).Info("app: snapshot")
		case <-ctx.Done():
			return
		}
	}
}
