package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTelemetry(t *testing.T) {
	tel := &Telemetry{}
	assert.True(t, tel.LastUpdate().IsZero())
	assert.Equal(t, 0.0, tel.FlowDemand())

	tel.SetOutside(-7.5)
	tel.SetFlowDemand(31.6)
	tel.SetHeatPumpTarget(34)

	assert.Equal(t, -7.5, tel.Outside())
	assert.Equal(t, 31.6, tel.FlowDemand())
	assert.Equal(t, 34, tel.HeatPumpTarget())
	assert.False(t, tel.LastUpdate().IsZero())
}

func TestSnapshotMap(t *testing.T) {
	tel := &Telemetry{}
	tel.SetInside(21.5)
	s := tel.Snapshot(time.Now())
	price := 0.04
	on := true
	s.CurrentPrice = &price
	s.WaterHeaterOn = &on

	m := s.Map()
	assert.Equal(t, 21.5, m["inside"])
	assert.Equal(t, 0.04, m["currentPrice"])
	assert.Equal(t, int64(1), m["waterHeaterOn"])
	_, ok := m["currentRank"]
	assert.False(t, ok)
}
