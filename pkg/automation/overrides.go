package automation

import (
	"context"
	"time"

	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/controller"
	"github.com/nergy-se/heatharmony/pkg/override"
	"github.com/nergy-se/heatharmony/pkg/state"
)

type WaterMode string

const (
	WaterEnable  WaterMode = "Enable"
	WaterDisable WaterMode = "Disable"
)

// NewWaterOverride forces the water heater relay. A new request always replaces
// the running one. Nothing is restored, automatic control resumes on the next tick.
func NewWaterOverride(heater controller.WaterHeater, max time.Duration, changes *changelog.Log) *override.Controller[WaterMode] {
	effect := func(ctx context.Context, mode WaterMode) (override.Restore, error) {
		return nil, heater.SetRelay(ctx, mode == WaterEnable)
	}
	return override.New(changelog.SubsystemWaterHeating, effect, override.SupersedeAlways, max, changes)
}

// NewTemperatureOverride sets the inside temperature and restores the setpoint
// that was active before when it ends.
func NewTemperatureOverride(floor controller.FloorHeating, telemetry *state.Telemetry, max time.Duration, changes *changelog.Log) *override.Controller[float64] {
	effect := func(ctx context.Context, temp float64) (override.Restore, error) {
		previous := telemetry.InsideSetpoint()
		err := floor.SetInsideTemp(ctx, temp)
		if err != nil {
			return nil, err
		}
		if previous == 0 {
			return nil, nil
		}
		return func(ctx context.Context) error {
			return floor.SetInsideTemp(ctx, previous)
		}, nil
	}
	return override.New(changelog.SubsystemInsideTemp, effect, override.SupersedeOnRequest, max, changes)
}
