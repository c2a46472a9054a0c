package main

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const privateBoardPath = "/2024/leaderboard/private/view/42.json"

const privateBoardJSONFixture = `{
  "event": "2024",
  "owner_id": 42,
  "members": {
    "42": {"id": 42, "name": "owner", "stars": 4, "local_score": 30, "global_score": 0, "last_star_ts": 1733100000,
           "completion_day_level": {"1": {"1": {"get_star_ts": 1733030000, "star_index": 1}, "2": {"get_star_ts": 1733031000, "star_index": 2}},
                                    "2": {"1": {"get_star_ts": 1733100000, "star_index": 3}}}},
    "7":  {"id": 7, "name": null, "stars": 3, "local_score": 30, "global_score": 0, "last_star_ts": 1733200000,
           "completion_day_level": {"1": {"1": {"get_star_ts": 1733040000, "star_index": 4}}}},
    "9":  {"id": 9, "name": "third", "stars": 1, "local_score": 10, "global_score": 0, "last_star_ts": 1733050000,
           "completion_day_level": {}}
  }
}`

func newLeaderboards(env *testEnv, ttl time.Duration) *leaderboards {
	return &leaderboards{remote: env.remote, cache: env.cache, ttl: ttl, log: newNopLogger()}
}

func TestDecodePrivateBoard(t *testing.T) {
	s, err := decodePrivateBoard([]byte(privateBoardJSONFixture), 2024, 42)
	require.NoError(t, err)

	entries := s.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"42", "7", "9"}, s.Order)

	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 1, entries[1].Rank, "tied score shares the rank")
	assert.Equal(t, 3, entries[2].Rank)

	assert.Equal(t, "(anonymous user #7)", entries[1].Name)
	assert.True(t, entries[1].Anonymous)
	assert.Equal(t, []int{1, 2}, entries[0].Completion[1])
	assert.Equal(t, []int{1}, entries[0].Completion[2])
	assert.Equal(t, 42, s.BoardID)
}

func TestLeaderboards_PrivateServedFromCacheWithinTTL(t *testing.T) {
	env := newTestEnv(t, afterEvent, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(privateBoardJSONFixture))
	})
	lb := newLeaderboards(env, 900*time.Second)
	ctx := context.Background()

	snap, cachedAt, err := lb.Private(ctx, 42, 2024, false)
	require.NoError(t, err)
	assert.Nil(t, cachedAt, "first fetch is live")
	assert.Len(t, snap.Members, 3)
	assert.Equal(t, 1, env.hits.get("GET "+privateBoardPath))

	env.clock.advance(900 * time.Second)
	snap, cachedAt, err = lb.Private(ctx, 42, 2024, false)
	require.NoError(t, err)
	require.NotNil(t, cachedAt)
	assert.Equal(t, afterEvent.Unix(), cachedAt.Unix())
	assert.Len(t, snap.Members, 3)
	assert.Equal(t, 1, env.hits.get("GET "+privateBoardPath), "no network call within ttl")

	env.clock.advance(time.Second)
	_, cachedAt, err = lb.Private(ctx, 42, 2024, false)
	require.NoError(t, err)
	assert.Nil(t, cachedAt)
	assert.Equal(t, 2, env.hits.get("GET "+privateBoardPath), "expired entry triggers a fetch")
}

func TestLeaderboards_PrivateForceBypassesCache(t *testing.T) {
	env := newTestEnv(t, afterEvent, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(privateBoardJSONFixture))
	})
	lb := newLeaderboards(env, time.Hour)

	_, _, err := lb.Private(context.Background(), 42, 2024, false)
	require.NoError(t, err)
	_, cachedAt, err := lb.Private(context.Background(), 42, 2024, true)
	require.NoError(t, err)
	assert.Nil(t, cachedAt)
	assert.Equal(t, 2, env.hits.get("GET "+privateBoardPath))
}

func TestLeaderboards_PrivateReacquiresStaleToken(t *testing.T) {
	env := newTestEnv(t, afterEvent, func(w http.ResponseWriter, r *http.Request) {
		if sessionCookie(r) == "stale" {
			_, _ = w.Write([]byte(publicPage("<p>login</p>")))
			return
		}
		_, _ = w.Write([]byte(privateBoardJSONFixture))
	})
	lb := newLeaderboards(env, time.Hour)

	snap, _, err := lb.Private(context.Background(), 42, 2024, false)
	require.NoError(t, err)
	assert.Len(t, snap.Members, 3)
	assert.Equal(t, 1, env.acquirer.calls)
	assert.Equal(t, 2, env.hits.get("GET "+privateBoardPath))

	token, err := env.remote.session.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "fresh-1", token, "new token is persisted")
}

func TestLeaderboards_PrivateAuthFailureRetriesOnce(t *testing.T) {
	env := newTestEnv(t, afterEvent, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(publicPage("<p>login</p>")))
	})
	lb := newLeaderboards(env, time.Hour)

	for i := 1; i <= 3; i++ {
		_, _, err := lb.Private(context.Background(), 42, 2024, false)
		require.ErrorIs(t, err, ErrAuthFailure)
		assert.Equal(t, i, env.acquirer.calls, "one re-acquisition per call")
		assert.Equal(t, 2*i, env.hits.get("GET "+privateBoardPath), "one retry per call")
	}

	_, ok, err := env.cache.read("lb_priv_2024_42")
	require.NoError(t, err)
	assert.False(t, ok, "failed fetch leaves no cache entry")
}

func TestLeaderboards_FailedRefreshKeepsPreviousEntry(t *testing.T) {
	var fail atomic.Bool
	env := newTestEnv(t, afterEvent, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(privateBoardJSONFixture))
	})
	lb := newLeaderboards(env, time.Hour)

	_, _, err := lb.Private(context.Background(), 42, 2024, false)
	require.NoError(t, err)

	fail.Store(true)
	_, _, err = lb.Private(context.Background(), 42, 2024, true)
	var ae *apiError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusInternalServerError, ae.StatusCode)

	e, ok, err := env.cache.read("lb_priv_2024_42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, privateBoardJSONFixture, string(e.Payload))
}

func TestLeaderboards_GlobalCachedPerScope(t *testing.T) {
	overall := publicPage(`<div class="leaderboard-entry" data-user-id="1"><span class="leaderboard-position">  1)</span> <span class="leaderboard-totalscore"> 4000</span> alpha</div>`)
	day := publicPage(`<p><span class="leaderboard-daydesc-both">both stars</span></p>` +
		`<div class="leaderboard-entry" data-user-id="2"><span class="leaderboard-position">  1)</span> <span class="leaderboard-time">Dec 03  00:04:00</span> bravo</div>` +
		`<p><span class="leaderboard-daydesc-first">first star</span></p>` +
		`<div class="leaderboard-entry" data-user-id="3"><span class="leaderboard-position">  1)</span> <span class="leaderboard-time">Dec 03  00:01:00</span> charlie</div>`)
	env := newTestEnv(t, afterEvent, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, sessionCookie(r), "global boards are public")
		switch r.URL.Path {
		case "/2024/leaderboard":
			_, _ = w.Write([]byte(overall))
		case "/2024/leaderboard/day/3":
			_, _ = w.Write([]byte(day))
		default:
			http.NotFound(w, r)
		}
	})
	lb := newLeaderboards(env, time.Hour)
	ctx := context.Background()

	snap, _, err := lb.Global(ctx, 2024, dayScope{}, false)
	require.NoError(t, err)
	assert.Equal(t, "alpha", snap.Entries()[0].Name)

	snap, _, err = lb.Global(ctx, 2024, dayScope{Day: 3, Part: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, "charlie", snap.Entries()[0].Name)

	snap, _, err = lb.Global(ctx, 2024, dayScope{Day: 3, Part: 2}, false)
	require.NoError(t, err)
	assert.Equal(t, "bravo", snap.Entries()[0].Name)
	assert.Equal(t, 2, env.hits.get("GET /2024/leaderboard/day/3"), "each part has its own cache entry")

	_, cachedAt, err := lb.Global(ctx, 2024, dayScope{Day: 3, Part: 2}, false)
	require.NoError(t, err)
	assert.NotNil(t, cachedAt)
	assert.Equal(t, 3, env.hits.total())
	assert.Zero(t, env.acquirer.calls)
}

func TestParseDayScope(t *testing.T) {
	s, err := parseDayScope("", 2024)
	require.NoError(t, err)
	assert.True(t, s.whole())

	s, err = parseDayScope("07:2", 2024)
	require.NoError(t, err)
	assert.Equal(t, dayScope{Day: 7, Part: 2}, s)

	for _, bad := range []string{"26:1", "3:3", "x", "13:1", "3:1junk", " 3:1", "0:1", "003:1", "3:"} {
		year := 2024
		if bad == "13:1" {
			year = 2025
		}
		_, err := parseDayScope(bad, year)
		assert.Error(t, err, bad)
	}
}
