package alarm

import (
	"sort"
	"sync"
)

const (
	PricesStale        = "prices_stale"
	PricesMissing      = "prices_missing"
	InitTimeout        = "initialization_timeout"
	WorkerRestarted    = "worker_restarted"
	DeviceUnreachable  = "device_unreachable"
	InsideTempTooHigh  = "inside_temperature_too_high"
	WaterHeaterOffLong = "water_heater_off_long"
)

type ActiveAlarms struct {
	activeAlarms []string
	sync.RWMutex
}

// Add adds string to alarm list and returns true if it was added. returns false if it already exists.
func (a *ActiveAlarms) Add(alarm string) bool {
	a.Lock()
	defer a.Unlock()
	for _, activeAlarm := range a.activeAlarms {
		if activeAlarm == alarm {
			return false
		}
	}

	a.activeAlarms = append(a.activeAlarms, alarm)
	return true
}

// Remove returns true if the alarm was active.
func (a *ActiveAlarms) Remove(alarm string) bool {
	a.Lock()
	defer a.Unlock()
	for i, activeAlarm := range a.activeAlarms {
		if activeAlarm == alarm {
			a.activeAlarms = append(a.activeAlarms[:i], a.activeAlarms[i+1:]...)
			return true
		}
	}
	return false
}

func (a *ActiveAlarms) Has(alarm string) bool {
	a.RLock()
	defer a.RUnlock()
	for _, activeAlarm := range a.activeAlarms {
		if activeAlarm == alarm {
			return true
		}
	}
	return false
}

func (a *ActiveAlarms) List() []string {
	a.RLock()
	l := make([]string, len(a.activeAlarms))
	copy(l, a.activeAlarms)
	a.RUnlock()
	sort.Strings(l)
	return l
}

func (a *ActiveAlarms) Clear() bool {
	hasActive := false
	a.Lock()
	if len(a.activeAlarms) > 0 {
		hasActive = true
		a.activeAlarms = nil
	}
	a.Unlock()
	return hasActive
}
