package types

import "time"

type HeatPumpType string

var HeatPumpTypeHeishamon = HeatPumpType("heishamon")
var HeatPumpTypeModbus = HeatPumpType("modbus")
var HeatPumpTypeDummy = HeatPumpType("dummy")

type PowerMeterType string

var PowerMeterShelly = PowerMeterType("shelly")
var PowerMeterMbus = PowerMeterType("mbus")

// TaskStatus is the run/fault status of one automation sub-loop.
type TaskStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastTick  time.Time `json:"lastTick,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Faults    int       `json:"faults"`
}

type WorkerStatus struct {
	Running    bool         `json:"isWorkerRunning"`
	Restarts   int          `json:"restarts"`
	Tasks      []TaskStatus `json:"tasks"`
	Alarms     []string     `json:"alarms,omitempty"`
	ServerTime time.Time    `json:"serverTime"`
}

type OverrideStatus struct {
	Active bool       `json:"isActive"`
	Mode   string     `json:"mode,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
