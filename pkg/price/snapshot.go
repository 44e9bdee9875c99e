package price

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierCheap     Tier = "cheap"
	TierModerate  Tier = "moderate"
	TierNormal    Tier = "normal"
	TierExpensive Tier = "expensive"
)

type Thresholds struct {
	Cheap     decimal.Decimal
	Moderate  decimal.Decimal
	Expensive decimal.Decimal
}

func NewThresholds(cheap, moderate, expensive float64) Thresholds {
	return Thresholds{
		Cheap:     decimal.NewFromFloat(cheap),
		Moderate:  decimal.NewFromFloat(moderate),
		Expensive: decimal.NewFromFloat(expensive),
	}
}

func (t Thresholds) Tier(p decimal.Decimal) Tier {
	switch {
	case p.LessThanOrEqual(t.Cheap):
		return TierCheap
	case p.LessThanOrEqual(t.Moderate):
		return TierModerate
	case p.LessThanOrEqual(t.Expensive):
		return TierNormal
	default:
		return TierExpensive
	}
}

type DataState string

const (
	DataUsable  DataState = "usable"
	DataPending DataState = "pending"
	DataStale   DataState = "stale"
)

// Snapshot is one analyzed price fetch. It is never modified after creation;
// a refresh replaces it as a whole.
type Snapshot struct {
	FetchedAt       time.Time `json:"fetchedAt"`
	Today           []Quote   `json:"-"`
	Tomorrow        []Quote   `json:"-"`
	TodayPeriods    []Period  `json:"today"`
	TomorrowPeriods []Period  `json:"tomorrow"`
	Night           Night     `json:"night"`
	// PrevNight is last nights window until it has ended.
	PrevNight *Night `json:"prevNight,omitempty"`
}

// NewSnapshot analyzes both days. prev may be nil.
func NewSnapshot(now time.Time, today, tomorrow []Quote, prev *Snapshot) *Snapshot {
	s := &Snapshot{
		FetchedAt:       now,
		Today:           today,
		Tomorrow:        tomorrow,
		TodayPeriods:    Analyze(today),
		TomorrowPeriods: Analyze(tomorrow),
		Night:           NightWindow(now, today, tomorrow),
	}
	if prev != nil && prev.Night.End.After(now) && prev.Night.Start.Before(s.Night.Start) {
		n := prev.Night
		s.PrevNight = &n
	}
	return s
}

// Periods returns the periods of both days in chronological order.
func (s *Snapshot) Periods() []Period {
	all := make([]Period, 0, len(s.TodayPeriods)+len(s.TomorrowPeriods))
	all = append(all, s.TodayPeriods...)
	all = append(all, s.TomorrowPeriods...)
	return Chronological(all)
}

// ActivePeriod is the period containing now.
func (s *Snapshot) ActivePeriod(now time.Time) (Period, bool) {
	for _, p := range s.Periods() {
		if p.Contains(now) {
			return p, true
		}
	}
	return Period{}, false
}

// BestPeriod is the rank 1 period of the calendar day of now.
func (s *Snapshot) BestPeriod(now time.Time) (Period, bool) {
	for _, p := range s.Periods() {
		if p.Rank == 1 && sameDay(p.Start, now) {
			return p, true
		}
	}
	return Period{}, false
}

// ActiveNight returns the night window containing now, if any.
func (s *Snapshot) ActiveNight(now time.Time) *Night {
	if s.Night.Contains(now) {
		n := s.Night
		return &n
	}
	if s.PrevNight != nil && s.PrevNight.Contains(now) {
		n := *s.PrevNight
		return &n
	}
	return nil
}

// CurrentPrice is the quote covering now, or the active period average when
// no quote covers it.
func (s *Snapshot) CurrentPrice(now time.Time) (decimal.Decimal, bool) {
	quotes := make([]Quote, 0, len(s.Today)+len(s.Tomorrow))
	quotes = append(quotes, s.Today...)
	quotes = append(quotes, s.Tomorrow...)
	sortQuotes(quotes)

	i := sort.Search(len(quotes), func(i int) bool {
		return quotes[i].Time.After(now)
	})
	if i > 0 {
		q := quotes[i-1]
		step := SlotLength
		if i < len(quotes) {
			if d := quotes[i].Time.Sub(q.Time); d > 0 && d <= time.Hour {
				step = d
			}
		}
		if now.Before(q.Time.Add(step)) {
			return q.Price, true
		}
	}
	if p, ok := s.ActivePeriod(now); ok {
		return p.AvgPrice, true
	}
	return decimal.Zero, false
}

// Classify reports if the data can be used for decisions. Data is usable when a
// period starts on the current day. Right after midnight it is pending for grace.
func (s *Snapshot) Classify(now time.Time, grace time.Duration) DataState {
	if s != nil {
		for _, p := range s.Periods() {
			if sameDay(p.Start, now) {
				return DataUsable
			}
		}
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Sub(midnight) < grace {
		return DataPending
	}
	return DataStale
}

// HasTomorrow is true when the tomorrow quotes belong to the day after now.
func (s *Snapshot) HasTomorrow(now time.Time) bool {
	if s == nil || len(s.Tomorrow) == 0 {
		return false
	}
	return s.Tomorrow[0].Time.After(endOfDay(now))
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

// Cache holds the latest snapshot.
type Cache struct {
	snapshot *Snapshot
	sync.RWMutex
}

func (c *Cache) Get() *Snapshot {
	c.RLock()
	defer c.RUnlock()
	return c.snapshot
}

func (c *Cache) Set(s *Snapshot) {
	c.Lock()
	c.snapshot = s
	c.Unlock()
}
