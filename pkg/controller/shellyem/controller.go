package shellyem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nergy-se/heatharmony/pkg/api/v1/meter"
	"github.com/nergy-se/heatharmony/pkg/request"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
)

// meterMaxAge is how old an external meter reading may be before the relay's own is used.
const meterMaxAge = 5 * time.Minute

type Relay struct {
	IsOn      bool   `json:"ison"`
	HasTimer  bool   `json:"has_timer"`
	Overpower bool   `json:"overpower"`
	Source    string `json:"source"`
}

type Status struct {
	Relays     []Relay `json:"relays"`
	TotalPower float64 `json:"total_power"`
}

// ShellyEM switches the water heater contactor through a Shelly 3EM relay.
type ShellyEM struct {
	client    *request.Client
	url       string
	threshold float64
	policy    retry.Policy
	telemetry *state.Telemetry
	// external is set when power is read from another meter, ie mbus.
	external *meter.Cache
	now      func() time.Time

	relayOn      bool
	lastEnabled  time.Time
	lastDisabled time.Time
	power        float64
	mutex        sync.RWMutex
}

func New(client *request.Client, url string, threshold float64, policy retry.Policy, telemetry *state.Telemetry, external *meter.Cache) *ShellyEM {
	return &ShellyEM{
		client:    client,
		url:       strings.TrimRight(url, "/"),
		threshold: threshold,
		policy:    policy,
		telemetry: telemetry,
		external:  external,
		now:       time.Now,
	}
}

func (s *ShellyEM) Poll(ctx context.Context) error {
	status := &Status{}
	err := s.client.GetJSON(ctx, s.url+"/status", status)
	if err != nil {
		return err
	}

	power := status.TotalPower
	if s.external != nil {
		if d, ok := s.external.Fresh(s.now(), meterMaxAge); ok {
			power = d.Current_W
		}
	}

	s.mutex.Lock()
	if len(status.Relays) > 0 {
		s.relayOn = status.Relays[0].IsOn
	}
	s.power = power
	s.mutex.Unlock()
	s.telemetry.SetWaterHeaterPower(power)
	return nil
}

func (s *ShellyEM) SetRelay(ctx context.Context, on bool) error {
	turn := "off"
	if on {
		turn = "on"
	}
	relay := &Relay{}
	err := s.policy.Do(ctx, "shelly relay "+turn, func() error {
		return s.client.GetJSON(ctx, fmt.Sprintf("%s/relay/0?turn=%s", s.url, turn), relay)
	})
	if err != nil {
		return err
	}
	if relay.IsOn != on {
		return fmt.Errorf("relay did not turn %s", turn)
	}

	s.mutex.Lock()
	s.relayOn = on
	if on {
		s.lastEnabled = s.now()
	} else {
		s.lastDisabled = s.now()
	}
	s.mutex.Unlock()
	logrus.WithField("on", on).Info("shellyem: relay switched")
	return nil
}

func (s *ShellyEM) RelayOn() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.relayOn
}

func (s *ShellyEM) LastEnabled() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastEnabled
}

func (s *ShellyEM) LastDisabled() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastDisabled
}

// IsRunning is true when the heater draws more than the threshold.
func (s *ShellyEM) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.power > s.threshold
}

func (s *ShellyEM) Latest() meter.Data {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return meter.Data{
		Id:        s.url,
		Model:     "shelly-3em",
		Time:      s.now(),
		Current_W: s.power,
	}
}
