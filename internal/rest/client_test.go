package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"dna":"acgt"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{})
	var out struct {
		DNA string `json:"dna"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, time.Second, &out))
	assert.Equal(t, "acgt", out.DNA)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(Options{})
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"q": "x"}, time.Second, &out))
	assert.True(t, out.OK)
}

func TestGetJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Options{})
	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, time.Second, &out)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.True(t, se.Temporary())
}

func TestGetJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	c := NewClient(Options{})
	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, time.Second, &out)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestGetJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{})
	var out map[string]any
	start := time.Now()
	err := c.GetJSON(context.Background(), srv.URL, 50*time.Millisecond, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGetJSON_RetriesTemporaryFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"n":3}`))
	}))
	defer srv.Close()

	c := NewClient(Options{Retries: 3, RetryWait: time.Millisecond})
	var out struct {
		N int `json:"n"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, 5*time.Second, &out))
	assert.Equal(t, 3, out.N)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Options{Retries: 3, RetryWait: time.Millisecond})
	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, time.Second, &out)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSON_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{})
	var out map[string]any
	require.Error(t, c.GetJSON(context.Background(), srv.URL, time.Second, &out))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSON_NegativeRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{Retries: -1, RetryWait: time.Millisecond})
	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, 2*time.Second, &out)
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), calls.Load())
}
