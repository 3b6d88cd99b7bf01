package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRobotsGate_DisallowHonored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /admin\nDisallow: /drafts\n")
	}))
	defer srv.Close()

	gate := NewRobotsGate(srv.Client(), "claimsift/1.0", time.Minute)
	ctx := context.Background()

	assert.False(t, gate.Allowed(ctx, mustParse(t, srv.URL+"/admin/settings")))
	assert.False(t, gate.Allowed(ctx, mustParse(t, srv.URL+"/drafts")))
	assert.True(t, gate.Allowed(ctx, mustParse(t, srv.URL+"/articles/2024/flood-claims")))
}

func TestRobotsGate_AgentSpecificRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: claimsift\nDisallow: /\n\nUser-agent: *\nDisallow:\n")
	}))
	defer srv.Close()

	gate := NewRobotsGate(srv.Client(), "claimsift/1.0", time.Minute)

	assert.False(t, gate.Allowed(context.Background(), mustParse(t, srv.URL+"/anything")))
}

func TestRobotsGate_MissingRobotsAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	gate := NewRobotsGate(srv.Client(), "claimsift/1.0", time.Minute)

	assert.True(t, gate.Allowed(context.Background(), mustParse(t, srv.URL+"/anywhere")))
}

func TestRobotsGate_FetchFailureAllows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	gate := NewRobotsGate(&http.Client{Timeout: time.Second}, "claimsift/1.0", time.Minute)

	assert.True(t, gate.Allowed(context.Background(), mustParse(t, srv.URL+"/story")))
}

func TestRobotsGate_CachesRulesPerOrigin(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	}))
	defer srv.Close()

	gate := NewRobotsGate(srv.Client(), "claimsift/1.0", time.Minute)
	ctx := context.Background()

	gate.Allowed(ctx, mustParse(t, srv.URL+"/one"))
	gate.Allowed(ctx, mustParse(t, srv.URL+"/two"))
	gate.Allowed(ctx, mustParse(t, srv.URL+"/private/three"))

	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsGate_QueryStringChecked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /search?\n")
	}))
	defer srv.Close()

	gate := NewRobotsGate(srv.Client(), "claimsift/1.0", time.Minute)
	ctx := context.Background()

	assert.False(t, gate.Allowed(ctx, mustParse(t, srv.URL+"/search?q=claim")))
	assert.True(t, gate.Allowed(ctx, mustParse(t, srv.URL+"/search-tips")))
}
