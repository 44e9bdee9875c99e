package price

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// rankedTop is how many ranks are reserved for periods of at least minRankedLength.
	rankedTop       = 5
	minRankedLength = time.Hour
)

var (
	mergeTolerance = decimal.NewFromFloat(0.2)
	mergeMinDiff   = decimal.NewFromFloat(0.01)
)

type Bucket struct {
	Hour     time.Time
	Quotes   []Quote
	AvgPrice decimal.Decimal
}

// Period is a merged run of consecutive hours with similar price. It covers [Start, End).
type Period struct {
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
	Rank     int             `json:"rank"`
}

func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

func (p Period) Hours() float64 {
	return p.Duration().Hours()
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Analyze groups, merges and ranks one day of quotes. The result is sorted by rank.
func Analyze(quotes []Quote) []Period {
	return Rank(Merge(Group(quotes)))
}

// Group buckets quotes by hour. Zones with whole hour offsets get calendar hours.
func Group(quotes []Quote) []Bucket {
	if len(quotes) == 0 {
		return nil
	}
	sorted := make([]Quote, len(quotes))
	copy(sorted, quotes)
	sortQuotes(sorted)

	var buckets []Bucket
	for _, q := range sorted {
		// absolute hours keep the two wall clock 03:00 hours apart on the autumn clock change
		hour := q.Time.Truncate(time.Hour)
		if n := len(buckets); n > 0 && buckets[n-1].Hour.Equal(hour) {
			buckets[n-1].Quotes = append(buckets[n-1].Quotes, q)
			continue
		}
		buckets = append(buckets, Bucket{Hour: hour, Quotes: []Quote{q}})
	}

	for i := range buckets {
		prices := make([]decimal.Decimal, len(buckets[i].Quotes))
		for j, q := range buckets[i].Quotes {
			prices[j] = q.Price
		}
		buckets[i].AvgPrice = average(prices)
	}
	return buckets
}

// Merge joins consecutive buckets while the next hour follows directly and its
// average stays within 20% (at least 0.01) of the running average. The result
// is unranked and chronological.
func Merge(buckets []Bucket) []Period {
	if len(buckets) == 0 {
		return nil
	}
	step := slotStep(buckets)

	var periods []Period
	run := []Bucket{buckets[0]}
	avgs := []decimal.Decimal{buckets[0].AvgPrice}

	closeRun := func() {
		first := run[0]
		last := run[len(run)-1]
		end := last.Quotes[len(last.Quotes)-1].Time.Add(step)
		if hourEnd := last.Hour.Add(time.Hour); hourEnd.Before(end) {
			end = hourEnd
		}
		periods = append(periods, Period{
			Start:    first.Quotes[0].Time,
			End:      end,
			AvgPrice: average(avgs),
		})
	}

	for _, b := range buckets[1:] {
		last := run[len(run)-1]
		if b.Hour.Equal(last.Hour.Add(time.Hour)) && similar(b.AvgPrice, average(avgs)) {
			run = append(run, b)
			avgs = append(avgs, b.AvgPrice)
			continue
		}
		closeRun()
		run = []Bucket{b}
		avgs = []decimal.Decimal{b.AvgPrice}
	}
	closeRun()
	return periods
}

func similar(next, running decimal.Decimal) bool {
	limit := decimal.Max(running.Abs().Mul(mergeTolerance), mergeMinDiff)
	return next.Sub(running).Abs().LessThanOrEqual(limit)
}

// slotStep is the smallest gap between quotes, used as the length of the last slot.
func slotStep(buckets []Bucket) time.Duration {
	var step time.Duration
	var prev time.Time
	for _, b := range buckets {
		for _, q := range b.Quotes {
			if !prev.IsZero() {
				if d := q.Time.Sub(prev); d > 0 && (step == 0 || d < step) {
					step = d
				}
			}
			prev = q.Time
		}
	}
	if step == 0 {
		return SlotLength
	}
	if step > time.Hour {
		return time.Hour
	}
	return step
}

// Rank orders periods by (price, start). Ranks 1-5 go to the cheapest periods of
// at least one hour, the remaining ranks follow in the same order. The returned
// slice is sorted by rank.
func Rank(periods []Period) []Period {
	ranked := make([]Period, len(periods))
	copy(ranked, periods)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].AvgPrice.Cmp(ranked[j].AvgPrice); c != 0 {
			return c < 0
		}
		return ranked[i].Start.Before(ranked[j].Start)
	})
	for i := range ranked {
		ranked[i].Rank = 0
	}

	next := 1
	for i := range ranked {
		if next > rankedTop {
			break
		}
		if ranked[i].Duration() >= minRankedLength {
			ranked[i].Rank = next
			next++
		}
	}
	for i := range ranked {
		if ranked[i].Rank == 0 {
			ranked[i].Rank = next
			next++
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank < ranked[j].Rank
	})
	return ranked
}

// Chronological returns a copy of periods sorted by start.
func Chronological(periods []Period) []Period {
	out := make([]Period, len(periods))
	copy(out, periods)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
