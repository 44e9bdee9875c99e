package dummy

import (
	"context"
	"testing"

	"github.com/nergy-se/heatharmony/pkg/controller"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/stretchr/testify/assert"
)

var (
	_ controller.HeatPump     = &Dummy{}
	_ controller.FloorHeating = &Dummy{}
	_ controller.Valves       = &Dummy{}
	_ controller.WaterHeater  = &Dummy{}
)

func TestDummy(t *testing.T) {
	tel := &state.Telemetry{}
	d := New(tel)
	assert.NoError(t, d.Poll(context.Background()))
	assert.Equal(t, 30, tel.HeatPumpTarget())
	assert.NotZero(t, tel.FlowDemand())

	assert.NoError(t, d.SetRelay(context.Background(), true))
	assert.True(t, d.IsRunning())
	assert.False(t, d.LastEnabled().IsZero())
}
