package shellytrv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nergy-se/heatharmony/pkg/request"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
)

type TargetT struct {
	Enabled bool    `json:"enabled"`
	Value   float64 `json:"value"`
}

type Tmp struct {
	Value   float64 `json:"value"`
	IsValid bool    `json:"is_valid"`
}

type Thermostat struct {
	Pos     float64 `json:"pos"`
	TargetT TargetT `json:"target_t"`
	Tmp     Tmp     `json:"tmp"`
}

type Status struct {
	Thermostats []Thermostat `json:"thermostats"`
	Bat         struct {
		Value int `json:"value"`
	} `json:"bat"`
}

type Device struct {
	Host      string    `json:"host"`
	Position  int       `json:"position"`
	Auto      bool      `json:"auto"`
	Temp      float64   `json:"temperature"`
	Battery   int       `json:"battery"`
	Ok        bool      `json:"ok"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Valves drives all Shelly TRV devices as one group.
type Valves struct {
	client    *request.Client
	policy    retry.Policy
	telemetry *state.Telemetry
	devices   []*Device
	mutex     sync.Mutex
}

func New(client *request.Client, hosts []string, policy retry.Policy, telemetry *state.Telemetry) *Valves {
	v := &Valves{
		client:    client,
		policy:    policy,
		telemetry: telemetry,
	}
	for _, h := range hosts {
		v.devices = append(v.devices, &Device{Host: strings.TrimRight(h, "/"), Position: -1})
	}
	return v
}

func (v *Valves) baseURL(d *Device) string {
	if strings.HasPrefix(d.Host, "http://") || strings.HasPrefix(d.Host, "https://") {
		return d.Host
	}
	return "http://" + d.Host
}

// Poll reads every device. The room temperature is the average of valid readings.
func (v *Valves) Poll(ctx context.Context) error {
	var errs []error
	var sum float64
	var n int
	for _, d := range v.devices {
		status := &Status{}
		err := v.client.GetJSON(ctx, v.baseURL(d)+"/status", status)
		v.mutex.Lock()
		d.UpdatedAt = time.Now()
		if err != nil || len(status.Thermostats) == 0 {
			d.Ok = false
			v.mutex.Unlock()
			if err == nil {
				err = fmt.Errorf("no thermostat reported")
			}
			errs = append(errs, fmt.Errorf("%s: %w", d.Host, err))
			continue
		}
		th := status.Thermostats[0]
		d.Ok = true
		d.Position = int(th.Pos)
		d.Auto = th.TargetT.Enabled
		d.Temp = th.Tmp.Value
		d.Battery = status.Bat.Value
		v.mutex.Unlock()
		if th.Tmp.IsValid {
			sum += th.Tmp.Value
			n++
		}
	}
	if n > 0 {
		v.telemetry.SetInside(sum / float64(n))
	}
	return errors.Join(errs...)
}

func (v *Valves) SetPosition(ctx context.Context, pos int) error {
	var errs []error
	for _, d := range v.devices {
		v.mutex.Lock()
		current := d.Position
		v.mutex.Unlock()
		if current == pos {
			logrus.Debugf("shellytrv: %s already at %d", d.Host, pos)
			continue
		}
		th := &Thermostat{}
		err := v.policy.Do(ctx, "trv set position "+d.Host, func() error {
			return v.client.GetJSON(ctx, fmt.Sprintf("%s/thermostat/0?pos=%d", v.baseURL(d), pos), th)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Host, err))
			continue
		}
		v.mutex.Lock()
		d.Position = int(th.Pos)
		d.UpdatedAt = time.Now()
		v.mutex.Unlock()
		logrus.WithFields(logrus.Fields{"host": d.Host, "pos": pos}).Info("shellytrv: position set")
	}
	return errors.Join(errs...)
}

type tempControl struct {
	TargetT TargetT `json:"target_t"`
}

// SetAuto toggles the valves own temperature control, optionally with a new target.
func (v *Valves) SetAuto(ctx context.Context, enable bool, target *int) error {
	var errs []error
	for _, d := range v.devices {
		v.mutex.Lock()
		current := d.Auto
		v.mutex.Unlock()
		if current == enable && target == nil {
			continue
		}
		u := fmt.Sprintf("%s/settings/thermostat/0/?target_t_enabled=0", v.baseURL(d))
		if enable {
			u = fmt.Sprintf("%s/settings/thermostat/0/?target_t_enabled=1", v.baseURL(d))
			if target != nil {
				u += fmt.Sprintf("&target_t=%d", *target)
			}
		}
		resp := &tempControl{}
		err := v.policy.Do(ctx, "trv set auto "+d.Host, func() error {
			return v.client.GetJSON(ctx, u, resp)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Host, err))
			continue
		}
		v.mutex.Lock()
		d.Auto = resp.TargetT.Enabled
		if d.Auto {
			d.Position = -1
		}
		v.mutex.Unlock()
	}
	return errors.Join(errs...)
}

func (v *Valves) Devices() []Device {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	out := make([]Device, len(v.devices))
	for i, d := range v.devices {
		out[i] = *d
	}
	return out
}
