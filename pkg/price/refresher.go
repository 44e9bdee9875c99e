package price

import (
	"context"
	"fmt"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Refresher fetches prices on a cron schedule and swaps the cached snapshot.
type Refresher struct {
	source  Source
	cache   *Cache
	policy  retry.Policy
	alarms  *alarm.ActiveAlarms
	changes *changelog.Log
	config  config.Prices
	loc     *time.Location
	now     func() time.Time
	cron    *cron.Cron
}

func NewRefresher(source Source, cache *Cache, policy retry.Policy, alarms *alarm.ActiveAlarms, changes *changelog.Log, c config.Prices, loc *time.Location) *Refresher {
	return &Refresher{
		source:  source,
		cache:   cache,
		policy:  policy,
		alarms:  alarms,
		changes: changes,
		config:  c,
		loc:     loc,
		now:     time.Now,
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
	}
}

// Start does one refresh and schedules the rest. The schedule stops with ctx.
func (r *Refresher) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		logrus.Errorf("price: initial refresh failed: %s", err)
	}

	if _, err := r.cron.AddFunc(r.config.RefreshCron, func() { r.refreshTomorrow(ctx) }); err != nil {
		return fmt.Errorf("register price refresh: %w", err)
	}
	if _, err := r.cron.AddFunc(r.config.RolloverCron, func() { r.refresh(ctx) }); err != nil {
		return fmt.Errorf("register price rollover: %w", err)
	}
	r.cron.Start()
	logrus.Info("price: scheduler started")

	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
		logrus.Info("price: scheduler stopped")
	}()
	return nil
}

// refreshTomorrow runs hourly in the afternoon until tomorrows prices are published.
func (r *Refresher) refreshTomorrow(ctx context.Context) {
	if r.cache.Get().HasTomorrow(r.now().In(r.loc)) {
		return
	}
	r.refresh(ctx)
}

func (r *Refresher) refresh(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		logrus.Errorf("price: refresh failed: %s", err)
	}
}

// Refresh fetches both days and replaces the cached snapshot. The previous
// snapshot is kept when fetching fails.
func (r *Refresher) Refresh(ctx context.Context) error {
	var today, tomorrow []Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.policy.Do(gctx, "prices today", func() error {
			var err error
			today, err = r.source.GetTodayPrices(gctx)
			return err
		})
	})
	g.Go(func() error {
		return r.policy.Do(gctx, "prices tomorrow", func() error {
			var err error
			tomorrow, err = r.source.GetTomorrowPrices(gctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		if r.alarms.Add(alarm.PricesStale) {
			logrus.Errorf("price: alarm %s", alarm.PricesStale)
		}
		return err
	}

	now := r.now().In(r.loc)
	prev := r.cache.Get()
	s := NewSnapshot(now, today, tomorrow, prev)
	r.cache.Set(s)

	if len(s.TodayPeriods) == 0 {
		r.alarms.Add(alarm.PricesMissing)
		logrus.Errorf("price: no usable quotes for today")
	} else {
		r.alarms.Remove(alarm.PricesMissing)
	}
	r.alarms.Remove(alarm.PricesStale)

	logrus.WithFields(logrus.Fields{
		"today":        len(today),
		"tomorrow":     len(tomorrow),
		"periods":      len(s.TodayPeriods),
		"nightStart":   s.Night.Start.Format("15:04"),
		"nightEnd":     s.Night.End.Format("15:04"),
		"nightDefault": s.Night.Default,
	}).Info("price: refreshed")

	if r.changes != nil && (prev == nil || !prev.HasTomorrow(now) && s.HasTomorrow(now)) {
		r.changes.Add(changelog.SubsystemPrices, changelog.KindAutomatic,
			fmt.Sprintf("prices updated: %d periods today, %d tomorrow", len(s.TodayPeriods), len(s.TomorrowPeriods)))
	}
	return nil
}
