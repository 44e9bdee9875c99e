package price

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TimeLayout is the timestamp format of the price feed, in local time.
const TimeLayout = "2006-01-02 15:04:05"

// SlotLength is the expected resolution of the feed.
const SlotLength = 15 * time.Minute

type Quote struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// RawQuote is one entry as served by the price feed.
type RawQuote struct {
	Date  string          `json:"date"`
	Value json.RawMessage `json:"value"`
}

// ParseQuotes converts raw feed entries to quotes sorted by time. Entries that
// cannot be parsed are skipped.
func ParseQuotes(raw []RawQuote, loc *time.Location) []Quote {
	quotes := make([]Quote, 0, len(raw))
	for _, r := range raw {
		t, err := time.ParseInLocation(TimeLayout, r.Date, loc)
		if err != nil {
			logrus.WithField("date", r.Date).Debugf("price: skipping quote: %s", err)
			continue
		}
		var p decimal.Decimal
		if len(r.Value) == 0 || string(r.Value) == "null" {
			logrus.WithField("date", r.Date).Debug("price: skipping quote without value")
			continue
		}
		if err := p.UnmarshalJSON(r.Value); err != nil {
			logrus.WithField("date", r.Date).Debugf("price: skipping quote: %s", err)
			continue
		}
		quotes = append(quotes, Quote{Time: t, Price: p})
	}
	sortQuotes(quotes)
	return quotes
}

func sortQuotes(quotes []Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Time.Before(quotes[j].Time)
	})
}

func average(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}
