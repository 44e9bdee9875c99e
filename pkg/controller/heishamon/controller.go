package heishamon

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nergy-se/heatharmony/pkg/request"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
)

type Topic struct {
	Topic       string `json:"Topic"`
	Name        string `json:"Name"`
	Value       string `json:"Value"`
	Description string `json:"Description"`
}

type Response struct {
	Heatpump []Topic `json:"heatpump"`
}

// HeishaMon talks to a Panasonic heat pump through the HeishaMon http api.
type HeishaMon struct {
	client    *request.Client
	url       string
	policy    retry.Policy
	telemetry *state.Telemetry
}

func New(client *request.Client, url string, policy retry.Policy, telemetry *state.Telemetry) *HeishaMon {
	return &HeishaMon{
		client:    client,
		url:       strings.TrimRight(url, "/"),
		policy:    policy,
		telemetry: telemetry,
	}
}

func (h *HeishaMon) Poll(ctx context.Context) error {
	resp := &Response{}
	err := h.client.GetJSON(ctx, h.url+"/json", resp)
	if err != nil {
		return err
	}
	for _, t := range resp.Heatpump {
		h.HandleValue(t.Topic, t.Value)
	}
	return nil
}

// HandleValue stores a reading identified by TOP code or by mqtt topic name.
func (h *HeishaMon) HandleValue(topic, value string) {
	switch topic {
	case "TOP7", "Main_Target_Temp":
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			logrus.Warnf("heishamon: invalid target %q", value)
			return
		}
		h.telemetry.SetHeatPumpTarget(v)
	case "TOP6", "Main_Outlet_Temp":
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			logrus.Warnf("heishamon: invalid outlet %q", value)
			return
		}
		h.telemetry.SetHeatPumpOutlet(v)
	}
}

func (h *HeishaMon) SetTargetTemp(ctx context.Context, temp int) error {
	u := fmt.Sprintf("%s/command?SetZ1HeatRequestTemperature=%d", h.url, temp)
	err := h.policy.Do(ctx, "heishamon set target", func() error {
		_, err := h.client.Get(ctx, u)
		return err
	})
	if err != nil {
		return err
	}
	h.telemetry.SetHeatPumpTarget(temp)
	logrus.WithField("target", temp).Info("heishamon: target set")
	return nil
}
