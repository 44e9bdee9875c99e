package price

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func dipDay(start time.Time) []Quote {
	return day(start, func(t time.Time) string {
		if t.Hour() == 2 || t.Hour() == 3 {
			return "0.01"
		}
		return "0.20"
	})
}

func TestSnapshotCurrentPrice(t *testing.T) {
	today := day(testDay, func(t time.Time) string {
		if t.Hour() == 2 && t.Minute() == 15 {
			return "0.015"
		}
		return "0.20"
	})
	s := NewSnapshot(testDay.Add(12*time.Hour), today, nil, nil)

	p, ok := s.CurrentPrice(testDay.Add(2*time.Hour + 20*time.Minute))
	assert.True(t, ok)
	assert.True(t, p.Equal(d("0.015")))

	p, ok = s.CurrentPrice(testDay.Add(2*time.Hour + 30*time.Minute))
	assert.True(t, ok)
	assert.True(t, p.Equal(d("0.20")))

	_, ok = s.CurrentPrice(testDay.Add(30 * time.Hour))
	assert.False(t, ok)
}

func TestSnapshotPeriods(t *testing.T) {
	s := NewSnapshot(testDay.Add(15*time.Hour), dipDay(testDay), dipDay(testDay.Add(24*time.Hour)), nil)

	assert.Len(t, s.Periods(), 6)
	assert.Equal(t, testDay, s.Periods()[0].Start)

	p, ok := s.ActivePeriod(testDay.Add(3 * time.Hour))
	assert.True(t, ok)
	assert.Equal(t, 1, p.Rank)

	best, ok := s.BestPeriod(testDay.Add(26 * time.Hour))
	assert.True(t, ok)
	assert.Equal(t, testDay.Add(26*time.Hour), best.Start)

	assert.True(t, s.HasTomorrow(testDay.Add(15*time.Hour)))
	assert.False(t, s.HasTomorrow(testDay.Add(25*time.Hour)))
}

func TestSnapshotClassify(t *testing.T) {
	grace := 2 * time.Hour
	todayOnly := NewSnapshot(testDay.Add(12*time.Hour), dipDay(testDay), nil, nil)

	assert.Equal(t, DataUsable, todayOnly.Classify(testDay.Add(12*time.Hour), grace))
	assert.Equal(t, DataPending, todayOnly.Classify(testDay.Add(25*time.Hour), grace))
	assert.Equal(t, DataStale, todayOnly.Classify(testDay.Add(27*time.Hour), grace))

	both := NewSnapshot(testDay.Add(15*time.Hour), dipDay(testDay), dipDay(testDay.Add(24*time.Hour)), nil)
	assert.Equal(t, DataUsable, both.Classify(testDay.Add(25*time.Hour), grace))

	var missing *Snapshot
	assert.Equal(t, DataStale, missing.Classify(testDay.Add(12*time.Hour), grace))

	empty := NewSnapshot(testDay.Add(12*time.Hour), nil, nil, nil)
	assert.Equal(t, DataStale, empty.Classify(testDay.Add(12*time.Hour), grace))
}

func TestSnapshotKeepsRunningNight(t *testing.T) {
	today, tomorrow := twoDays(func(t time.Time) string {
		if t.Day() == 11 && t.Hour() >= 1 && t.Hour() < 7 {
			return "0.02"
		}
		return "0.10"
	})
	first := NewSnapshot(testDay.Add(15*time.Hour), today, tomorrow, nil)
	assert.False(t, first.Night.Default)

	rollover := testDay.Add(24*time.Hour + time.Minute)
	second := NewSnapshot(rollover, tomorrow, nil, first)
	assert.True(t, second.Night.Default)
	assert.NotNil(t, second.PrevNight)

	assert.Nil(t, second.ActiveNight(rollover))
	n := second.ActiveNight(testDay.Add(26 * time.Hour))
	assert.NotNil(t, n)
	assert.Equal(t, testDay.Add(25*time.Hour), n.Start)

	third := NewSnapshot(testDay.Add(39*time.Hour), tomorrow, nil, second)
	assert.Nil(t, third.PrevNight)
}

func TestThresholdsTier(t *testing.T) {
	th := NewThresholds(0.05, 0.10, 0.20)
	assert.Equal(t, TierCheap, th.Tier(d("-0.01")))
	assert.Equal(t, TierCheap, th.Tier(d("0.05")))
	assert.Equal(t, TierModerate, th.Tier(d("0.08")))
	assert.Equal(t, TierNormal, th.Tier(d("0.15")))
	assert.Equal(t, TierNormal, th.Tier(d("0.20")))
	assert.Equal(t, TierExpensive, th.Tier(d("0.2001")))
}

func TestCache(t *testing.T) {
	c := &Cache{}
	assert.Nil(t, c.Get())
	s := NewSnapshot(testDay, nil, nil, nil)
	c.Set(s)
	assert.Same(t, s, c.Get())
}
