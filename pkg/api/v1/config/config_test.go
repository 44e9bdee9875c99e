package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	c := Default()
	c.HeatPump.URL = "http://heishamon.local"
	c.Prices.TodayURL = "http://prices/today"
	c.Prices.TomorrowURL = "http://prices/tomorrow"
	c.FloorHeating.URL = "http://ouman.local"
	c.WaterHeater.URL = "http://shelly.local"
	return c
}

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, "heishamon", c.HeatPump.Type)
	assert.Equal(t, 5*time.Minute, c.Automation.ValveSyncInterval)
	assert.Equal(t, 30*time.Minute, c.Automation.InitializationGrace)
	assert.Equal(t, 20, c.Automation.MinTarget)
	assert.Equal(t, 65, c.Automation.MaxTarget)
	assert.Equal(t, 0.05, c.Automation.CheapThreshold)
	assert.Equal(t, 24*time.Hour, c.Automation.MaxWaterOverride)
	assert.Equal(t, 3, c.Retry.MaxAttempts)
	assert.Equal(t, "0 0 15-22 * * *", c.Prices.RefreshCron)
}

func TestValidate(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.Validate())
	assert.Equal(t, "Europe/Helsinki", c.Location().String())

	c = validConfig()
	c.HeatPump.Type = "nibe"
	assert.EqualError(t, c.Validate(), `unknown heatpump type "nibe"`)

	c = validConfig()
	c.HeatPump.Type = "modbus"
	assert.EqualError(t, c.Validate(), "heatpump address is required for modbus")

	c = validConfig()
	c.Automation.MinTarget = 70
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Automation.MaxTempOverride = time.Minute
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Timezone = "Mars/Olympus"
	assert.Error(t, c.Validate())

	c = Default()
	c.HeatPump.Type = "dummy"
	assert.NoError(t, c.Validate())
}

func TestLoadAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apikey")

	c := validConfig()
	c.HTTP.APIKeyFile = path
	assert.NoError(t, c.loadAPIKey())
	assert.Equal(t, "", c.HTTP.APIKey)

	err := os.WriteFile(path, []byte("secret\n"), 0600)
	assert.NoError(t, err)
	assert.NoError(t, c.loadAPIKey())
	assert.Equal(t, "secret", c.HTTP.APIKey)
}
