package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/koding/multiconfig"
	"github.com/nergy-se/heatharmony/pkg/api/v1/types"
)

// Config is loaded once at startup and never mutated afterwards. Components get the
// section they need passed explicitly.
type Config struct {
	LogLevel string `default:"info"`
	Timezone string `default:"Europe/Helsinki"`

	Prices       Prices
	HeatPump     HeatPump
	FloorHeating FloorHeating
	WaterHeater  WaterHeater
	Valves       Valves
	MQTT         MQTT
	HTTP         HTTP
	Automation   Automation
	Retry        Retry

	location *time.Location
}

type Prices struct {
	TodayURL    string
	TomorrowURL string
	// cron spec with seconds. Retries hourly in the afternoon until tomorrow's prices are published.
	RefreshCron  string `default:"0 0 15-22 * * *"`
	RolloverCron string `default:"0 1 0 * * *"`
}

type HeatPump struct {
	Type string `default:"heishamon"`
	URL  string

	// modbus only
	Address        string
	SlaveID        int `default:"1"`
	TargetRegister int `default:"0"`
	OutletRegister int `default:"1"`

	PollInterval time.Duration `default:"5m"`
}

type FloorHeating struct {
	URL          string
	Username     string
	Password     string
	PollInterval time.Duration `default:"5m"`
}

type WaterHeater struct {
	URL string
	// "shelly" reads power from the relay device itself, "mbus" from an M-Bus meter.
	PowerMeter       string        `default:"shelly"`
	MbusDevice       string        `default:"/dev/ttyAMA0"`
	MbusModel        string        `default:"garo-GNM3D-MBUS"`
	MbusPrimaryID    string        `default:"1"`
	RunningThreshold float64       `default:"100"`
	PollInterval     time.Duration `default:"1m"`
}

type Valves struct {
	// host or ip per thermostatic radiator valve.
	Hosts        []string
	PollInterval time.Duration `default:"60m"`
}

type MQTT struct {
	Enabled      bool   `default:"false"`
	Address      string `default:":1883"`
	HeishaPrefix string `default:"panasonic_heat_pump/main"`
	ChangesTopic string `default:"heatharmony/changes"`
}

type HTTP struct {
	Address    string `default:":8080"`
	APIKey     string
	APIKeyFile string
}

type Retry struct {
	MaxAttempts int           `default:"3"`
	BaseDelay   time.Duration `default:"10s"`
	MaxDelay    time.Duration `default:"1m"`
	Jitter      float64       `default:"0.5"`
}

// Automation holds every tunable of the heating decision loop.
type Automation struct {
	RestartDelay time.Duration `default:"1m"`

	ValveSyncInterval   time.Duration `default:"5m"`
	InitializationGrace time.Duration `default:"30m"`
	HeatAddition        int           `default:"3"`
	MinTarget           int           `default:"20"`
	MaxTarget           int           `default:"65"`

	WaterInterval         time.Duration `default:"10m"`
	WaterStartupDelay     time.Duration `default:"1m"`
	WaterCooldown         time.Duration `default:"30m"`
	StaleGrace            time.Duration `default:"2h"`
	CheapThreshold        float64       `default:"0.05"`
	RankOneReenableAfter  time.Duration `default:"3h"`
	RunLongEnough         time.Duration `default:"3h"`
	EmergencyAfter        time.Duration `default:"48h"`
	StaleEmergencyOffTime time.Duration `default:"24h"`
	MaxWaterOverride      time.Duration `default:"24h"`

	InsideInterval     time.Duration `default:"15m"`
	InsideStartupDelay time.Duration `default:"2m"`
	MaxTempOverride    time.Duration `default:"48h"`

	ModerateThreshold  float64 `default:"0.10"`
	ExpensiveThreshold float64 `default:"0.20"`

	SafetyCeiling      float64       `default:"26"`
	SummerOutside      float64       `default:"15"`
	WinterOutside      float64       `default:"-5"`
	LongNightWindow    time.Duration `default:"8h"`
	LongBestPeriod     time.Duration `default:"16h"`
	DeepNightStartHour int           `default:"1"`
	DeepNightEndHour   int           `default:"5"`

	ConservativeFlow   int     `default:"20"`
	ConservativeInside float64 `default:"19"`
	OpportunisticFlow  int     `default:"40"`

	SummerCheapFlow     int `default:"45"`
	SummerModerateFlow  int `default:"38"`
	SummerNormalFlow    int `default:"30"`
	SummerExpensiveFlow int `default:"20"`
	SummerIdleFlow      int `default:"20"`

	ShoulderModerateFlow int `default:"35"`
	ShoulderNightFlow    int `default:"45"`
	ShoulderDefaultFlow  int `default:"25"`

	WinterExpensive float64 `default:"19"`
	WinterCheapest  float64 `default:"22"`
	WinterNormal    float64 `default:"20"`
	WinterDefault   float64 `default:"20"`

	ValveAutoTarget int `default:"21"`
}

// Load reads defaults, environment and flags. When HEATHARMONY_CONFIG points at a
// toml, json or yaml file it is read as well.
func Load() (*Config, error) {
	c := &Config{}
	loader := multiconfig.New()
	if path := os.Getenv("HEATHARMONY_CONFIG"); path != "" {
		loader = multiconfig.NewWithPath(path)
	}
	err := loader.Load(c)
	if err != nil {
		return nil, err
	}
	err = c.loadAPIKey()
	if err != nil {
		return nil, err
	}
	return c, c.Validate()
}

// Default returns a config with all default tags applied. Used by tests and tools.
func Default() *Config {
	c := &Config{}
	_ = (&multiconfig.TagLoader{}).Load(c)
	c.location = time.Local
	return c
}

func (c *Config) loadAPIKey() error {
	if c.HTTP.APIKeyFile == "" {
		return nil
	}
	if _, err := os.Stat(c.HTTP.APIKeyFile); err != nil {
		return nil
	}
	b, err := os.ReadFile(c.HTTP.APIKeyFile)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil // dont load empty key
	}
	c.HTTP.APIKey = strings.TrimSpace(string(b))
	return nil
}

func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	switch types.HeatPumpType(c.HeatPump.Type) {
	case types.HeatPumpTypeHeishamon:
		if c.HeatPump.URL == "" {
			return fmt.Errorf("heatpump url is required for %s", c.HeatPump.Type)
		}
	case types.HeatPumpTypeModbus:
		if c.HeatPump.Address == "" {
			return fmt.Errorf("heatpump address is required for %s", c.HeatPump.Type)
		}
	case types.HeatPumpTypeDummy:
		return nil // everything else is simulated
	default:
		return fmt.Errorf("unknown heatpump type %q", c.HeatPump.Type)
	}

	if c.Prices.TodayURL == "" || c.Prices.TomorrowURL == "" {
		return fmt.Errorf("prices todayurl and tomorrowurl are required")
	}
	if c.FloorHeating.URL == "" {
		return fmt.Errorf("floorheating url is required")
	}
	if c.WaterHeater.URL == "" {
		return fmt.Errorf("waterheater url is required")
	}
	switch types.PowerMeterType(c.WaterHeater.PowerMeter) {
	case types.PowerMeterShelly, types.PowerMeterMbus:
	default:
		return fmt.Errorf("unknown waterheater powermeter %q", c.WaterHeater.PowerMeter)
	}
	a := c.Automation
	if a.MinTarget >= a.MaxTarget {
		return fmt.Errorf("automation mintarget %d must be below maxtarget %d", a.MinTarget, a.MaxTarget)
	}
	if a.MaxWaterOverride < time.Hour || a.MaxTempOverride < time.Hour {
		return fmt.Errorf("max override durations must be at least one hour")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry maxattempts must be at least 1")
	}
	return nil
}

// Location is the local zone all calendar day logic runs in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}
