package modbushp

import (
	"context"
	"fmt"

	"github.com/nergy-se/heatharmony/pkg/controller"
	"github.com/nergy-se/heatharmony/pkg/modbusclient"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
)

type Registers struct {
	// holding register with the flow temperature target in whole degrees.
	Target uint16
	// input register with the outlet temperature, scale 10.
	Outlet uint16
}

// HeatPump controls a heat pump over modbus tcp.
type HeatPump struct {
	client    modbusclient.Client
	registers Registers
	policy    retry.Policy
	telemetry *state.Telemetry
}

func New(client modbusclient.Client, registers Registers, policy retry.Policy, telemetry *state.Telemetry) *HeatPump {
	return &HeatPump{
		client:    client,
		registers: registers,
		policy:    policy,
		telemetry: telemetry,
	}
}

func (hp *HeatPump) Poll(ctx context.Context) error {
	target, err := hp.client.ReadHoldingRegister16(hp.registers.Target)
	if err != nil {
		return err
	}
	outlet, err := controller.Scale10itof(hp.client.ReadInputRegister(hp.registers.Outlet))
	if err != nil {
		return err
	}
	hp.telemetry.SetHeatPumpTarget(target)
	hp.telemetry.SetHeatPumpOutlet(outlet)
	logrus.WithFields(logrus.Fields{
		"target": target,
		"outlet": outlet,
	}).Debug("modbushp: polled")
	return nil
}

func (hp *HeatPump) SetTargetTemp(ctx context.Context, temp int) error {
	err := hp.policy.Do(ctx, "modbus set target", func() error {
		_, err := hp.client.WriteSingleRegister(hp.registers.Target, modbusclient.Encode(temp))
		return err
	})
	if err != nil {
		return fmt.Errorf("error setting target %d: %w", temp, err)
	}
	hp.telemetry.SetHeatPumpTarget(temp)
	logrus.WithField("target", temp).Info("modbushp: target set")
	return nil
}
