package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nergy-se/heatharmony/pkg/alarm"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/changelog"
	"github.com/nergy-se/heatharmony/pkg/request"
	"github.com/nergy-se/heatharmony/pkg/retry"
	"github.com/stretchr/testify/assert"
)

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/today":
			w.Write([]byte(`[{"date":"2025-01-10 00:15:00","value":0.02},{"date":"2025-01-10 00:00:00","value":0.01}]`))
		case "/tomorrow":
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := NewHTTPSource(request.New(), srv.URL+"/today", srv.URL+"/tomorrow", time.UTC)
	today, err := s.GetTodayPrices(context.Background())
	assert.NoError(t, err)
	assert.Len(t, today, 2)
	assert.Equal(t, testDay, today[0].Time)

	tomorrow, err := s.GetTomorrowPrices(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, tomorrow)
}

type mockSource struct {
	today    []Quote
	tomorrow []Quote
	err      error
	calls    int
}

func (m *mockSource) GetTodayPrices(ctx context.Context) ([]Quote, error) {
	m.calls++
	return m.today, m.err
}

func (m *mockSource) GetTomorrowPrices(ctx context.Context) ([]Quote, error) {
	return m.tomorrow, m.err
}

func newTestRefresher(src Source) (*Refresher, *Cache, *alarm.ActiveAlarms) {
	cache := &Cache{}
	alarms := &alarm.ActiveAlarms{}
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	r := NewRefresher(src, cache, policy, alarms, changelog.New(nil), config.Default().Prices, time.UTC)
	r.now = func() time.Time { return testDay.Add(15 * time.Hour) }
	return r, cache, alarms
}

func TestRefresherRefresh(t *testing.T) {
	src := &mockSource{today: dipDay(testDay), tomorrow: dipDay(testDay.Add(24 * time.Hour))}
	r, cache, alarms := newTestRefresher(src)

	err := r.Refresh(context.Background())
	assert.NoError(t, err)
	s := cache.Get()
	assert.NotNil(t, s)
	assert.Len(t, s.TodayPeriods, 3)
	assert.Len(t, s.TomorrowPeriods, 3)
	assert.Empty(t, alarms.List())

	// tomorrow already present, the afternoon job does nothing
	r.refreshTomorrow(context.Background())
	assert.Equal(t, 1, src.calls)
}

func TestRefresherKeepsSnapshotOnError(t *testing.T) {
	src := &mockSource{today: dipDay(testDay)}
	r, cache, alarms := newTestRefresher(src)
	assert.NoError(t, r.Refresh(context.Background()))
	first := cache.Get()

	src.err = errors.New("feed down")
	err := r.Refresh(context.Background())
	assert.EqualError(t, err, "feed down")
	assert.Same(t, first, cache.Get())
	assert.True(t, alarms.Has(alarm.PricesStale))

	src.err = nil
	assert.NoError(t, r.Refresh(context.Background()))
	assert.False(t, alarms.Has(alarm.PricesStale))
}

func TestRefresherEmptyPrices(t *testing.T) {
	r, cache, alarms := newTestRefresher(&mockSource{})
	assert.NoError(t, r.Refresh(context.Background()))
	assert.Empty(t, cache.Get().TodayPeriods)
	assert.True(t, cache.Get().Night.Default)
	assert.True(t, alarms.Has(alarm.PricesMissing))
}
