package price

import (
	"context"
	"time"

	"github.com/nergy-se/heatharmony/pkg/request"
)

// Source supplies the raw quotes. An empty list is not an error.
type Source interface {
	GetTodayPrices(ctx context.Context) ([]Quote, error)
	GetTomorrowPrices(ctx context.Context) ([]Quote, error)
}

// HTTPSource reads the json feed [{"date":"2006-01-02 15:04:05","value":0.031}].
type HTTPSource struct {
	client      *request.Client
	todayURL    string
	tomorrowURL string
	loc         *time.Location
}

func NewHTTPSource(client *request.Client, todayURL, tomorrowURL string, loc *time.Location) *HTTPSource {
	return &HTTPSource{
		client:      client,
		todayURL:    todayURL,
		tomorrowURL: tomorrowURL,
		loc:         loc,
	}
}

func (s *HTTPSource) GetTodayPrices(ctx context.Context) ([]Quote, error) {
	return s.fetch(ctx, s.todayURL)
}

func (s *HTTPSource) GetTomorrowPrices(ctx context.Context) ([]Quote, error) {
	return s.fetch(ctx, s.tomorrowURL)
}

func (s *HTTPSource) fetch(ctx context.Context, u string) ([]Quote, error) {
	var raw []RawQuote
	err := s.client.GetJSON(ctx, u, &raw)
	if err != nil {
		return nil, err
	}
	return ParseQuotes(raw, s.loc), nil
}
