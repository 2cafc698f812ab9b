package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/resilience"
)

func fastOptions(baseURL string) Options {
	return Options{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Rate:    1000,
		Burst:   1000,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		},
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "TOUR-1", r.URL.Query().Get("tourId"))
		assert.Equal(t, "cbb", r.URL.Query().Get("category"))
		_ = json.NewEncoder(w).Encode([]model.FlatRecord{
			{"CycleNo": "1", "ItemName": "CBB 1", "Criteria": "okay"},
		})
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL), StaticToken("token-1"))
	rows, err := c.Fetch(context.Background(), "TOUR-1", model.CategoryCBB)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CBB 1", rows[0]["ItemName"])
}

func TestCreate_EchoesStoredRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var rec model.FlatRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		rec["Id"] = "srv-1"
		_ = json.NewEncoder(w).Encode(rec)
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL), StaticToken("token-1"))
	stored, err := c.Create(context.Background(), model.FlatRecord{"ItemName": "CBB 1"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", stored["Id"])
	assert.Equal(t, "CBB 1", stored["ItemName"])
}

func TestDo_EmptyTokenMeansUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL), StaticToken(""))
	_, err := c.Fetch(context.Background(), "TOUR-1", model.CategoryCBB)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, int32(0), hits.Load(), "no request goes out without a token")
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]model.FlatRecord{})
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL), StaticToken("token-1"))
	_, err := c.Fetch(context.Background(), "TOUR-1", model.CategoryCBB)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCreate_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "duplicate record", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL), StaticToken("token-1"))
	_, err := c.Create(context.Background(), model.FlatRecord{"ItemName": "CBB 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Equal(t, int32(1), hits.Load(), "4xx responses are permanent")
}
