package ocpp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobNhz/zaptec-invoice-app/services/zaptec"
)

func TestSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ocpp-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/chargers/c1/sessions":
			w.Write([]byte(`[{"StartDate":"2026-01-05T10:00:00","kWh":4.2}]`))
		case "/chargers/c2/sessions":
			w.Write([]byte(`{"Data":[{"StartDate":"2026-01-06T10:00:00","Energy":1.5}]}`))
		case "/chargers/c3/sessions":
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL+"/", "ocpp-token")
	ctx := context.Background()

	sessions, err := client.Sessions(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 4.2, zaptec.ExtractKWh(sessions[0]))

	sessions, err = client.Sessions(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1.5, zaptec.ExtractKWh(sessions[0]))

	sessions, err = client.Sessions(ctx, "c3")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = client.Sessions(ctx, "missing")
	assert.ErrorIs(t, err, zaptec.ErrUpstream)
}
