package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/automation"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/controller"
	"github.com/nergy-se/heatharmony/pkg/price"
	"github.com/nergy-se/heatharmony/pkg/state"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Prices      *price.Cache
	Worker      *automation.Worker
	WaterHeater controller.WaterHeater
	Telemetry   *state.Telemetry
	Changes     *changelog.Log
	// DefaultWaterOverride is used when no hours are given.
	DefaultWaterOverride time.Duration
	// Location defaults to time.Local.
	Location *time.Location
}

type Server struct {
	config  config.HTTP
	deps    Deps
	now     func() time.Time
	started time.Time
}

func New(c config.HTTP, deps Deps) *Server {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		config:  c,
		deps:    deps,
		now:     func() time.Time { return time.Now().In(loc) },
		started: time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(recovery())
	router.Use(logger())
	router.Use(apiKey(s.config.APIKey))

	appstatus := router.Group("/appstatus")
	{
		appstatus.GET("/ping", s.ping)
		appstatus.GET("/uptime", s.uptime)
	}

	prices := router.Group("/prices")
	{
		prices.GET("/today", s.todayPrices)
		prices.GET("/tomorrow", s.tomorrowPrices)
		prices.GET("/lowperiods/today", s.lowPeriods(func(p *price.Snapshot) []price.Period { return p.TodayPeriods }))
		prices.GET("/lowperiods/tomorrow", s.lowPeriods(func(p *price.Snapshot) []price.Period { return p.TomorrowPeriods }))
		prices.GET("/lowperiods/all", s.lowPeriods(func(p *price.Snapshot) []price.Period { return p.Periods() }))
		prices.GET("/nightperiod", s.nightPeriod)
	}

	heat := router.Group("/heatautomation")
	{
		heat.GET("/status", s.status)
		heat.GET("/tasks", s.tasks)
		heat.GET("/override", s.temperatureOverrideStatus)
		heat.POST("/override", s.applyTemperatureOverride)
		heat.DELETE("/override", s.clearTemperatureOverride)
	}

	em := router.Group("/em")
	{
		em.GET("/latest", s.emLatest)
		em.GET("/changes", s.emChanges)
		em.POST("/enable", s.setRelay(true))
		em.POST("/disable", s.setRelay(false))
		em.DELETE("/override", s.clearWaterOverride)
		em.DELETE("/override/delete", s.clearWaterOverride)
		em.POST("/override/enable", s.applyWaterOverride(automation.WaterEnable))
		em.POST("/override/enable/:hours", s.applyWaterOverride(automation.WaterEnable))
		em.POST("/override/disable", s.applyWaterOverride(automation.WaterDisable))
		em.POST("/override/disable/:hours", s.applyWaterOverride(automation.WaterDisable))
		em.GET("/override/status", s.waterOverrideStatus)
	}

	router.GET("/changes", s.listChanges)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", APIKeyHeader},
	}).Handler(router)
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) {
	srv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		logrus.WithField("address", s.config.Address).Info("httpapi: listening")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("httpapi: %s", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			logrus.Errorf("httpapi: shutdown: %s", err)
		}
	}()
}
