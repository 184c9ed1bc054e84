package paymentgw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTransaction_Paid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/transactions/PC2506010000017" {
			t.Errorf("path = %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Transaction{
			OrderNumber: "PC2506010000017",
			Status:      StatusPaid,
			CardLast4:   "4242",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tx, err := client.GetTransaction(ctx, "PC2506010000017")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, tx.Status)
	assert.Equal(t, "4242", tx.CardLast4)
}

func TestGetTransaction_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	tx, err := NewClient(ts.URL).GetTransaction(context.Background(), "PC1")
	assert.Nil(t, tx)

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 5*time.Second, rl.RetryAfter)
}

func TestGetTransaction_NotRegistered(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).GetTransaction(context.Background(), "PC1")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestGetTransaction_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).GetTransaction(context.Background(), "PC1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotRegistered)
}

func TestClientNotConfigured(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Configured())

	_, err := c.GetTransaction(context.Background(), "PC1")
	assert.Error(t, err)

	assert.Equal(t, "http://gw:8081", NewClient("gw:8081/").baseURL)
}
