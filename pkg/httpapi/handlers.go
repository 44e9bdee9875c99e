package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nergy-se/heatharmony/pkg/api/v1/types"
	"github.com/nergy-se/heatharmony/pkg/automation"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/override"
	"github.com/nergy-se/heatharmony/pkg/price"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/nergy-se/heatharmony/pkg/version"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, types.ErrorResponse{Message: msg})
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "pong",
		"serverTime": s.now(),
		"version":    json.RawMessage(version.Version),
	})
}

func (s *Server) uptime(c *gin.Context) {
	now := s.now()
	up := now.Sub(s.started)
	c.JSON(http.StatusOK, gin.H{
		"startupTime": s.started,
		"serverTime":  now,
		"uptime": gin.H{
			"totalSeconds": up.Seconds(),
			"text":         up.Round(time.Second).String(),
		},
	})
}

func (s *Server) todayPrices(c *gin.Context) {
	snap := s.deps.Prices.Get()
	if snap == nil || len(snap.Today) == 0 {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": snap.Today})
}

func (s *Server) tomorrowPrices(c *gin.Context) {
	snap := s.deps.Prices.Get()
	if snap == nil || !snap.HasTomorrow(s.now()) {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": snap.Tomorrow})
}

func (s *Server) lowPeriods(get func(*price.Snapshot) []price.Period) gin.HandlerFunc {
	return func(c *gin.Context) {
		periods := []price.Period{}
		if snap := s.deps.Prices.Get(); snap != nil {
			periods = append(periods, get(snap)...)
		}
		c.JSON(http.StatusOK, gin.H{"periods": periods})
	}
}

func (s *Server) nightPeriod(c *gin.Context) {
	snap := s.deps.Prices.Get()
	if snap == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	night := snap.Night
	if active := snap.ActiveNight(s.now()); active != nil {
		night = *active
	}
	c.JSON(http.StatusOK, gin.H{"period": night})
}

type statusResponse struct {
	types.WorkerStatus
	Telemetry state.Snapshot `json:"telemetry"`
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		WorkerStatus: s.deps.Worker.Status(),
		Telemetry:    s.deps.Worker.Snapshot(s.now()),
	})
}

func (s *Server) tasks(c *gin.Context) {
	status := s.deps.Worker.Status()
	c.JSON(http.StatusOK, gin.H{
		"tasks":      status.Tasks,
		"serverTime": status.ServerTime,
	})
}

type temperatureOverrideRequest struct {
	Hours            int     `json:"hours"`
	Temperature      float64 `json:"temperature"`
	OverRidePrevious bool    `json:"overRidePrevious"`
	// Delay in hours before the setpoint changes. Negative is treated as 0.
	Delay            int     `json:"delay"`
}

func (s *Server) temperatureOverrideStatus(c *gin.Context) {
	status := s.deps.Worker.Temperature.Status()
	resp := gin.H{
		"isActive":   status.Active,
		"isPending":  status.Pending,
		"until":      status.Until,
		"serverTime": s.now(),
	}
	if status.Pending {
		resp["startsAt"] = status.StartsAt
	}
	if status.Active || status.Pending {
		resp["targetTemp"] = status.Mode
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) applyTemperatureOverride(c *gin.Context) {
	req := &temperatureOverrideRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Hours <= 0 || req.Hours > 48 {
		badRequest(c, "Hours must be between 1 and 48.")
		return
	}
	if req.Temperature < 10 || req.Temperature > 30 {
		badRequest(c, "Temperature must be between 10°C and 30°C.")
		return
	}

	if req.Delay < 0 {
		req.Delay = 0
	}

	status, err := s.deps.Worker.Temperature.Apply(c.Request.Context(), req.Temperature,
		time.Duration(req.Hours)*time.Hour, time.Duration(req.Delay)*time.Hour, req.OverRidePrevious)
	if errors.Is(err, override.ErrActive) {
		c.JSON(http.StatusConflict, types.ErrorResponse{Message: "Override already in progress."})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, types.ErrorResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":     "Override scheduled",
		"temperature": req.Temperature,
		"hours":       req.Hours,
		"delayHours":  req.Delay,
		"startsAt":    status.StartsAt,
		"until":       status.Until,
		"requestedAt": s.now(),
	})
}

func (s *Server) clearTemperatureOverride(c *gin.Context) {
	if !s.deps.Worker.Temperature.Clear() {
		c.JSON(http.StatusConflict, types.ErrorResponse{Message: "No override in progress."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Override cancelled.",
		"cancelledAt": s.now(),
	})
}

func (s *Server) emLatest(c *gin.Context) {
	heater := s.deps.WaterHeater
	resp := gin.H{
		"isOverridden": s.deps.Worker.Water.Status().Active,
		"isRunning":    heater.IsRunning(),
		"isOn":         heater.RelayOn(),
		"power":        s.deps.Telemetry.WaterHeaterPower(),
	}
	if last := heater.LastEnabled(); !last.IsZero() {
		resp["lastEnabled"] = last
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) emChanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"changes": s.deps.Changes.List(time.Time{}, changelog.SubsystemWaterHeating),
	})
}

func (s *Server) setRelay(on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.deps.WaterHeater.SetRelay(c.Request.Context(), on)
		if err != nil {
			c.JSON(http.StatusBadGateway, types.ErrorResponse{Message: err.Error()})
			return
		}
		desc := "disabled by request"
		if on {
			desc = "enabled by request"
		}
		s.deps.Changes.Add(changelog.SubsystemWaterHeating, changelog.KindManual, desc)
		c.Status(http.StatusAccepted)
	}
}

func (s *Server) applyWaterOverride(mode automation.WaterMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := s.deps.DefaultWaterOverride
		if p := c.Param("hours"); p != "" {
			h, err := strconv.Atoi(p)
			if err != nil {
				badRequest(c, fmt.Sprintf("invalid hours %q", p))
				return
			}
			if h <= 0 {
				badRequest(c, "hours must be > 0")
				return
			}
			d = time.Duration(h) * time.Hour
		}

		water := s.deps.Worker.Water
		status, err := water.Apply(c.Request.Context(), mode, d, 0, true)
		if err != nil {
			c.JSON(http.StatusBadGateway, types.ErrorResponse{Message: err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"mode":  mode,
			"hours": water.Clamp(d).Hours(),
			"until": status.Until,
		})
	}
}

func (s *Server) clearWaterOverride(c *gin.Context) {
	s.deps.Worker.Water.Clear()
	c.Status(http.StatusOK)
}

func (s *Server) waterOverrideStatus(c *gin.Context) {
	status := s.deps.Worker.Water.Status()
	c.JSON(http.StatusOK, gin.H{
		"overrideMode":     status.Mode,
		"isOverrideActive": status.Active,
		"overrideUntil":    status.Until,
	})
}

func (s *Server) listChanges(c *gin.Context) {
	var since time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, fmt.Sprintf("invalid since %q", v))
			return
		}
		since = t
	}
	c.JSON(http.StatusOK, gin.H{
		"changes": s.deps.Changes.List(since, changelog.Subsystem(c.Query("subsystem"))),
	})
}
