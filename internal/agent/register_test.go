package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
)

func TestHTTPRegistrarRetriesUntilAccepted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RegisterPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		if calls.Add(1) < 3 {
			http.Error(w, "database locked", http.StatusServiceUnavailable)
			return
		}
		var reg fleetv1alpha1.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(fleetv1alpha1.RegistrationResponse{Status: "success", AgentID: "known-" + reg.ID})
	}))
	defer srv.Close()

	r := NewHTTPRegistrar(srv.URL+"/", nil).WithBackoff(time.Millisecond, 5)
	id, err := r.Register(context.Background(), &fleetv1alpha1.Registration{ID: "a1", Hostname: "h", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, "known-a1", id)
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPRegistrarGivesUp(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "missing agent id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"status":"success"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			r := NewHTTPRegistrar(srv.URL, nil).WithBackoff(time.Millisecond, 3)
			_, err := r.Register(context.Background(), &fleetv1alpha1.Registration{ID: "a1"})
			require.Error(t, err)
			require.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestDiscoverAgentID(t *testing.T) {
	require.Equal(t, "configured", DiscoverAgentID("configured", "host"))

	a := DiscoverAgentID("", "host-1")
	require.Equal(t, a, DiscoverAgentID("", "host-1"))
	require.NotEqual(t, a, DiscoverAgentID("", "host-2"))
}
