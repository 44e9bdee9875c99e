package price

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	nightStartHour = 22
	nightEndHour   = 8
	// minNightSlots is the number of 15 minute quotes needed to search for a window.
	minNightSlots   = 24
	minNightLength  = 6
	maxNightLength  = 10
	defaultNightLen = 10 * time.Hour
)

// Night is the cheapest contiguous block between 22:00 and 08:00 the next day.
type Night struct {
	Period
	Default bool `json:"isDefault"`
}

// NightWindow searches the night starting at 22:00 on day. It needs quotes from
// both days, otherwise the default window 22:00-08:00 is returned.
func NightWindow(day time.Time, today, tomorrow []Quote) Night {
	loc := day.Location()
	from := time.Date(day.Year(), day.Month(), day.Day(), nightStartHour, 0, 0, 0, loc)
	to := time.Date(day.Year(), day.Month(), day.Day()+1, nightEndHour, 0, 0, 0, loc)

	slots := nightSlots(from, to, today, tomorrow)
	if len(today) == 0 || len(tomorrow) == 0 || len(slots) < minNightSlots {
		return defaultNight(from, to, slots)
	}

	var best *Night
	for hours := minNightLength; hours <= maxNightLength; hours++ {
		n := hours * int(time.Hour/SlotLength)
		for i := 0; i+n <= len(slots); i++ {
			window := slots[i : i+n]
			if !contiguous(window) {
				continue
			}
			prices := make([]decimal.Decimal, n)
			for j, q := range window {
				prices[j] = q.Price
			}
			candidate := Night{Period: Period{
				Start:    window[0].Time,
				End:      window[n-1].Time.Add(SlotLength),
				AvgPrice: average(prices),
			}}
			if best == nil || betterNight(candidate, *best) {
				c := candidate
				best = &c
			}
		}
	}
	if best == nil {
		return defaultNight(from, to, slots)
	}
	return *best
}

func betterNight(a, b Night) bool {
	if c := a.AvgPrice.Cmp(b.AvgPrice); c != 0 {
		return c < 0
	}
	if a.Duration() != b.Duration() {
		return a.Duration() > b.Duration()
	}
	return a.Start.Before(b.Start)
}

func contiguous(window []Quote) bool {
	for i := 1; i < len(window); i++ {
		if window[i].Time.Sub(window[i-1].Time) != SlotLength {
			return false
		}
	}
	return true
}

// nightSlots returns the unique quotes in [from, to) sorted by time.
func nightSlots(from, to time.Time, days ...[]Quote) []Quote {
	var slots []Quote
	for _, quotes := range days {
		for _, q := range quotes {
			if q.Time.Before(from) || !q.Time.Before(to) {
				continue
			}
			slots = append(slots, q)
		}
	}
	sortQuotes(slots)
	out := slots[:0]
	for _, q := range slots {
		if len(out) > 0 && out[len(out)-1].Time.Equal(q.Time) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func defaultNight(from, to time.Time, slots []Quote) Night {
	end := from.Add(defaultNightLen)
	if end.After(to) {
		end = to
	}
	prices := make([]decimal.Decimal, 0, len(slots))
	for _, q := range slots {
		if q.Time.Before(end) {
			prices = append(prices, q.Price)
		}
	}
	return Night{
		Period:  Period{Start: from, End: end, AvgPrice: average(prices)},
		Default: true,
	}
}
