package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "pw", pass)
		assert.Equal(t, "abc", r.Header.Get("X-Test"))
		w.Write([]byte(`{"value":12.5}`))
	}))
	defer srv.Close()

	c := New(WithBasicAuth("admin", "pw"), WithHeader("X-Test", "abc"))
	v := struct {
		Value float64 `json:"value"`
	}{}
	err := c.GetJSON(context.Background(), srv.URL, &v)
	assert.NoError(t, err)
	assert.Equal(t, 12.5, v.Value)
}

func TestStatusErrors(t *testing.T) {
	code := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	defer srv.Close()

	c := New()
	_, err := c.Get(context.Background(), srv.URL)
	se := &StatusError{}
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	code = http.StatusBadGateway
	err = c.PostJSON(context.Background(), srv.URL, map[string]int{"a": 1}, nil)
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}
