package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nergy-se/heatharmony/pkg/retry"
)

var httpClient = &http.Client{
	Timeout: time.Second * 30,
}

type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error calling %s StatusCode: %d", e.URL, e.StatusCode)
}

// Client is a small json http client shared by the device drivers and the price source.
type Client struct {
	http     *http.Client
	username string
	password string
	header   http.Header
}

type Option func(*Client)

func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		http:   httpClient,
		header: http.Header{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the body. A 4xx status is returned as a permanent error.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, u, nil)
}

func (c *Client) GetJSON(ctx context.Context, u string, v interface{}) error {
	b, err := c.Get(ctx, u)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// PostJSON sends body as json. v may be nil when the response is ignored.
func (c *Client) PostJSON(ctx context.Context, u string, body, v interface{}) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	b, err := c.do(ctx, http.MethodPost, u, r)
	if err != nil {
		return err
	}
	if v == nil || len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.header {
		req.Header[k] = v
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, retry.Permanent(&StatusError{URL: u, StatusCode: resp.StatusCode})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
