package controller

import (
	"context"
	"time"
)

// Poller refreshes telemetry from one device.
type Poller interface {
	Poll(ctx context.Context) error
}

type HeatPump interface {
	Poller
	SetTargetTemp(ctx context.Context, temp int) error
}

// FloorHeating is the floor heating controller that owns the flow demand.
type FloorHeating interface {
	Poller
	SetMinFlowTemp(ctx context.Context, temp int) error
	SetInsideTemp(ctx context.Context, temp float64) error
	SetAutoDrive(ctx context.Context) error
	SetMaximumFlow(ctx context.Context) error
	AutoDrive() bool
}

// Valves are the thermostatic radiator valves, always set as a group.
type Valves interface {
	Poller
	SetPosition(ctx context.Context, pos int) error
	SetAuto(ctx context.Context, enable bool, target *int) error
}

type WaterHeater interface {
	Poller
	SetRelay(ctx context.Context, on bool) error
	RelayOn() bool
	// LastEnabled is zero until the relay has been turned on once.
	LastEnabled() time.Time
	LastDisabled() time.Time
	IsRunning() bool
}

func Scale100itof(i int, err error) (float64, error) {
	return float64(i) / 100.0, err
}

func Scale10itof(i int, err error) (float64, error) {
	return float64(i) / 10.0, err
}

func Pointer[K any](val K) *K {
	return &val
}
