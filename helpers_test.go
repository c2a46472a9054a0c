package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// stepClock is a settable clock.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingAcquirer hands out numbered tokens and records how often it ran.
type countingAcquirer struct {
	calls int
	err   error
}

func (a *countingAcquirer) Acquire(context.Context) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return "fresh-" + string(rune('0'+a.calls)), nil
}

// testEnv is a remote wired to an httptest server.
type testEnv struct {
	remote   *remote
	acquirer *countingAcquirer
	cache    *cacheStore
	clock    *stepClock
	server   *httptest.Server
	hits     *hitCounter
}

type hitCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (h *hitCounter) inc(path string) {
	h.mu.Lock()
	h.counts[path]++
	h.mu.Unlock()
}

func (h *hitCounter) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[path]
}

func (h *hitCounter) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.counts {
		n += c
	}
	return n
}

// newTestEnv starts a server for handler. The session starts with token "stale"
// on disk, so the first authenticated call does not need the acquirer.
func newTestEnv(t *testing.T, now time.Time, handler http.HandlerFunc) *testEnv {
	t.Helper()
	hits := &hitCounter{counts: map[string]int{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.inc(r.Method + " " + r.URL.Path)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	clk := &stepClock{now: now}
	cache, err := newCacheStore(dir, clk)
	require.NoError(t, err)

	cfg := defaultConfig()
	cfg.BaseURL = server.URL
	api, err := newAPIClient(cfg)
	require.NoError(t, err)
	api.http = server.Client()
	api.limiter = rate.NewLimiter(rate.Inf, 1)

	acq := &countingAcquirer{}
	log := newNopLogger()
	sess := newSessionManager(dir, "", acq, log)
	require.NoError(t, writeFileAtomic(sess.path, []byte("stale\n"), 0o600))

	return &testEnv{
		remote:   &remote{api: api, session: sess, log: log},
		acquirer: acq,
		cache:    cache,
		clock:    clk,
		server:   server,
		hits:     hits,
	}
}

func sessionCookie(r *http.Request) string {
	c, err := r.Cookie("session")
	if err != nil {
		return ""
	}
	return c.Value
}

// memberPage wraps body in a page rendered for a logged-in user.
func memberPage(body string) string {
	return `<!DOCTYPE html><html><body><header><a href="/2024/auth/logout">[Log Out]</a></header><main>` + body + `</main></body></html>`
}

func publicPage(body string) string {
	return `<!DOCTYPE html><html><body><header><a href="/2024/auth/login">[Log In]</a></header><main>` + body + `</main></body></html>`
}

// afterEvent is a moment when every 2015-2025 day is unlocked.
var afterEvent = time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)
