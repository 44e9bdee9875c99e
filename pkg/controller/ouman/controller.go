package ouman

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/nergy-se/heatharmony/pkg/request"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/sirupsen/logrus"
)

const (
	codeOutside        = "S_275_85"
	codeFlowDemand     = "S_227_85"
	codeMinFlow        = "S_54_85"
	codeInsideSetpoint = "S_81_85"
	codeDriveMode      = "S_59_85"
	codeValve          = "S_92_85"
)

// Ouman controls an Ouman EH-800 floor heating controller over its http api.
type Ouman struct {
	client    *request.Client
	url       string
	username  string
	password  string
	policy    retry.Policy
	telemetry *state.Telemetry

	loggedIn  bool
	autoDrive bool
	mutex     sync.Mutex
}

func New(client *request.Client, baseURL, username, password string, policy retry.Policy, telemetry *state.Telemetry) *Ouman {
	return &Ouman{
		client:    client,
		url:       strings.TrimRight(baseURL, "/"),
		username:  username,
		password:  password,
		policy:    policy,
		telemetry: telemetry,
		autoDrive: true,
	}
}

func (o *Ouman) login(ctx context.Context) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.loggedIn || o.username == "" {
		return nil
	}
	u := fmt.Sprintf("%s/login?uid=%s;pwd=%s", o.url, url.QueryEscape(o.username), url.QueryEscape(o.password))
	if _, err := o.client.Get(ctx, u); err != nil {
		return fmt.Errorf("ouman login: %w", err)
	}
	o.loggedIn = true
	return nil
}

func (o *Ouman) Poll(ctx context.Context) error {
	if err := o.login(ctx); err != nil {
		return err
	}
	u := fmt.Sprintf("%s/request?%s;%s;%s;%s", o.url, codeOutside, codeFlowDemand, codeMinFlow, codeInsideSetpoint)
	b, err := o.client.Get(ctx, u)
	if err != nil {
		return err
	}
	readings, err := parseReadings(string(b))
	if err != nil {
		o.mutex.Lock()
		o.loggedIn = false
		o.mutex.Unlock()
		return err
	}
	for code, v := range readings {
		switch code {
		case codeOutside:
			o.telemetry.SetOutside(v)
		case codeFlowDemand:
			o.telemetry.SetFlowDemand(v)
		case codeMinFlow:
			o.telemetry.SetMinFlow(v)
		case codeInsideSetpoint:
			o.telemetry.SetInsideSetpoint(v)
		default:
			logrus.Warnf("ouman: unknown code %s", code)
		}
	}
	return nil
}

// parseReadings parses "request?S_275_85=-3.2;S_227_85=31.5;".
func parseReadings(body string) (map[string]float64, error) {
	_, kv, ok := strings.Cut(strings.TrimRight(body, "\x00\r\n "), "?")
	if !ok {
		return nil, fmt.Errorf("ouman: unexpected response %q", body)
	}
	readings := make(map[string]float64)
	for _, pair := range strings.Split(kv, ";") {
		if pair == "" {
			continue
		}
		code, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("ouman: invalid pair %q", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("ouman: invalid value for %s: %w", code, err)
		}
		readings[strings.TrimPrefix(code, "@_")] = f
	}
	return readings, nil
}

func (o *Ouman) update(ctx context.Context, name string, values string) (map[string]float64, error) {
	if err := o.login(ctx); err != nil {
		return nil, err
	}
	var readings map[string]float64
	err := o.policy.Do(ctx, name, func() error {
		b, err := o.client.Get(ctx, fmt.Sprintf("%s/update?%s", o.url, values))
		if err != nil {
			return err
		}
		readings, err = parseReadings(string(b))
		return err
	})
	return readings, err
}

func (o *Ouman) SetMinFlowTemp(ctx context.Context, temp int) error {
	r, err := o.update(ctx, "ouman set min flow", fmt.Sprintf("@_%s=%d;", codeMinFlow, temp))
	if err != nil {
		return err
	}
	if v, ok := r[codeMinFlow]; ok {
		o.telemetry.SetMinFlow(v)
	}
	return nil
}

func (o *Ouman) SetInsideTemp(ctx context.Context, temp float64) error {
	r, err := o.update(ctx, "ouman set inside", fmt.Sprintf("@_%s=%s;", codeInsideSetpoint, strconv.FormatFloat(temp, 'f', -1, 64)))
	if err != nil {
		return err
	}
	if v, ok := r[codeInsideSetpoint]; ok {
		o.telemetry.SetInsideSetpoint(v)
	}
	return nil
}

// SetMaximumFlow switches to manual drive with the mixing valve fully open.
func (o *Ouman) SetMaximumFlow(ctx context.Context) error {
	r, err := o.update(ctx, "ouman set max flow", fmt.Sprintf("%s=6;%s=100;", codeDriveMode, codeValve))
	if err != nil {
		return err
	}
	if r[codeValve] == 100 {
		o.mutex.Lock()
		o.autoDrive = false
		o.mutex.Unlock()
	}
	return nil
}

func (o *Ouman) SetAutoDrive(ctx context.Context) error {
	_, err := o.update(ctx, "ouman set auto drive", fmt.Sprintf("%s=0;", codeDriveMode))
	if err != nil {
		return err
	}
	o.mutex.Lock()
	o.autoDrive = true
	o.mutex.Unlock()
	return nil
}

func (o *Ouman) AutoDrive() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.autoDrive
}
