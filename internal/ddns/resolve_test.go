package ddns_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/CZERTAINLY/ddns/internal/ddns"
	"github.com/CZERTAINLY/ddns/internal/model"
	"github.com/stretchr/testify/require"
)

// ipServer answers the public address on several paths.
func ipServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "198.51.100.4\n")
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ip":"198.51.100.5","country":"CZ"}`)
	})
	mux.HandleFunc("/v6", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "2001:db8::1")
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not an ip")
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
		_, _ = io.WriteString(w, "198.51.100.9")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolver(t *testing.T) {
	t.Parallel()
	srv := ipServer(t)

	type then struct {
		ip  string
		err string
	}
	var testCases = []struct {
		scenario string
		given    []model.IPSource
		then     then
	}{
		{
			scenario: "text",
			given:    []model.IPSource{{URL: srv.URL + "/text", Format: model.IPFormatText}},
			then:     then{ip: "198.51.100.4"},
		},
		{
			scenario: "json",
			given:    []model.IPSource{{URL: srv.URL + "/json", Format: model.IPFormatJSON, Field: "ip"}},
			then:     then{ip: "198.51.100.5"},
		},
		{
			scenario: "json missing field",
			given:    []model.IPSource{{URL: srv.URL + "/json", Format: model.IPFormatJSON, Field: "addr"}},
			then:     then{err: `field "addr" not found`},
		},
		{
			scenario: "first failing source is skipped",
			given: []model.IPSource{
				{URL: srv.URL + "/down", Format: model.IPFormatText},
				{URL: srv.URL + "/text", Format: model.IPFormatText},
			},
			then: then{ip: "198.51.100.4"},
		},
		{
			scenario: "fast source wins over slow one",
			given: []model.IPSource{
				{URL: srv.URL + "/slow", Format: model.IPFormatText},
				{URL: srv.URL + "/json", Format: model.IPFormatJSON, Field: "ip"},
			},
			then: then{ip: "198.51.100.5"},
		},
		{
			scenario: "ipv6 is rejected",
			given:    []model.IPSource{{URL: srv.URL + "/v6", Format: model.IPFormatText}},
			then:     then{err: "2001:db8::1 is not an IPv4 address"},
		},
		{
			scenario: "all fail",
			given: []model.IPSource{
				{URL: srv.URL + "/down", Format: model.IPFormatText},
				{URL: srv.URL + "/garbage", Format: model.IPFormatText},
			},
			then: then{err: "ParseAddr"},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			// limit 1 keeps the sources ordered
			limit := 1
			if tt.scenario == "fast source wins over slow one" {
				limit = 2
			}
			r := ddns.NewResolver(tt.given, limit, ddns.WithHTTPClient(srv.Client()))
			ip, err := r.Resolve(t.Context())
			if tt.then.err != "" {
				require.ErrorContains(t, err, tt.then.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, netip.MustParseAddr(tt.then.ip), ip)
		})
	}
}

func TestResolverNoSources(t *testing.T) {
	t.Parallel()
	r := ddns.NewResolver(nil, 2)
	_, err := r.Resolve(t.Context())
	require.ErrorIs(t, err, ddns.ErrNoIPSources)
}

func TestResolverCanceled(t *testing.T) {
	t.Parallel()
	srv := ipServer(t)
	r := ddns.NewResolver([]model.IPSource{
		{URL: srv.URL + "/slow", Format: model.IPFormatText},
		{URL: srv.URL + "/slow", Format: model.IPFormatText},
	}, 2, ddns.WithHTTPClient(srv.Client()))

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := r.Resolve(ctx)
		require.ErrorIs(t, err, context.Canceled)
		require.NotErrorIs(t, err, ddns.ErrNoIPSources)
	})

	t.Run("while waiting", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()
		_, err := r.Resolve(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
