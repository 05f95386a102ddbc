package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Options{Service: "test", MaxElapsed: 5 * time.Second, Header: http.Header{"X-Key": {"secret"}}})
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	require.True(t, out.OK)
	require.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Options{Service: "test", MaxElapsed: 5 * time.Second})
	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
	require.Error(t, err)
	require.True(t, IsStatus(err, http.StatusForbidden))
	require.Equal(t, int32(1), calls.Load())
}

func TestPostJSON_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{Service: "test"})
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"a": "b"}, nil)
	require.True(t, IsStatus(err, http.StatusServiceUnavailable))
	require.Equal(t, int32(1), calls.Load())
}
