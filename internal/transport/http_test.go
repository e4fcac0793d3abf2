package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Send(t *testing.T) {
	var got httpSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"prov-1"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
	res, err := tr.Send(context.Background(), testMessage)
	require.NoError(t, err)
	assert.Equal(t, "prov-1", res.MessageID)
	assert.Equal(t, "a@example.com", got.To)
	assert.Equal(t, "c1", got.Tags["campaign_id"])
	assert.Equal(t, "<https://t.example.com/u>", got.Headers["List-Unsubscribe"])
}

func TestHTTPTransport_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusTooManyRequests, false},
		{http.StatusServiceUnavailable, false},
		{http.StatusBadGateway, false},
		{http.StatusBadRequest, true},
		{http.StatusUnprocessableEntity, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			_, err := NewHTTPTransport(srv.URL, "", srv.Client()).Send(context.Background(), testMessage)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, domain.ErrTransportRejected))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestHTTPTransport_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPTransport(srv.URL, "", srv.Client()).Send(ctx, testMessage)
	assert.ErrorIs(t, err, domain.ErrTransportUnavailable)
}
