package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// dayScope selects a whole event (zero value) or one day and part.
type dayScope struct {
	Day  int
	Part int
}

func (s dayScope) whole() bool { return s.Day == 0 }

func (s dayScope) String() string {
	if s.whole() {
		return "overall"
	}
	return fmt.Sprintf("day %d part %d", s.Day, s.Part)
}

var reDayScope = regexp.MustCompile(`^(\d{1,2}):([12])$`)

// parseDayScope parses "d:p"; an empty string is the whole event.
func parseDayScope(s string, year int) (dayScope, error) {
	if s == "" {
		return dayScope{}, nil
	}
	m := reDayScope.FindStringSubmatch(s)
	var d int
	if m != nil {
		d, _ = strconv.Atoi(m[1])
	}
	if m == nil || d < 1 || d > eventDays(year) {
		return dayScope{}, fmt.Errorf("day:part must be in the form 'd:p' with d in 1-%d and p 1 or 2", eventDays(year))
	}
	p, _ := strconv.Atoi(m[2])
	return dayScope{Day: d, Part: p}, nil
}

// memberEntry is one leaderboard member. Rank 0 means no rank has been declared yet.
type memberEntry struct {
	ID             string
	Rank           int
	Score          int
	Name           string
	Anonymous      bool
	Supporter      bool
	Sponsor        bool
	Link           string
	Stars          int
	GlobalScore    int
	LastStar       time.Time
	Completion     map[int][]int // private boards: day -> completed parts
	TimeToComplete string        // global day boards
}

// snapshot is a leaderboard as of one fetch. Order lists member ids in board order.
type snapshot struct {
	Year    int
	Scope   dayScope
	BoardID int
	Members map[string]memberEntry
	Order   []string
}

func newSnapshot(year int, scope dayScope, entries []memberEntry) *snapshot {
	s := &snapshot{
		Year:    year,
		Scope:   scope,
		Members: make(map[string]memberEntry, len(entries)),
		Order:   make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		if _, dup := s.Members[e.ID]; dup {
			continue
		}
		s.Members[e.ID] = e
		s.Order = append(s.Order, e.ID)
	}
	return s
}

// Entries returns members in board order.
func (s *snapshot) Entries() []memberEntry {
	out := make([]memberEntry, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, s.Members[id])
	}
	return out
}

// privateBoardJSON is the private leaderboard API document.
type privateBoardJSON struct {
	Event   string                       `json:"event"`
	OwnerID int                          `json:"owner_id"`
	Members map[string]privateMemberJSON `json:"members"`
}

type privateMemberJSON struct {
	ID                 int                                `json:"id"`
	Name               *string                            `json:"name"`
	Stars              int                                `json:"stars"`
	LocalScore         int                                `json:"local_score"`
	GlobalScore        int                                `json:"global_score"`
	LastStarTS         int64                              `json:"last_star_ts"`
	CompletionDayLevel map[string]map[string]starTimeJSON `json:"completion_day_level"`
}

type starTimeJSON struct {
	GetStarTS int64 `json:"get_star_ts"`
	StarIndex int64 `json:"star_index"`
}

// decodePrivateBoard builds a snapshot ordered by local score. A rank is declared
// only where the score changes, so tied members share it.
func decodePrivateBoard(payload []byte, year, boardID int) (*snapshot, error) {
	var doc privateBoardJSON
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse private leaderboard: %w", err)
	}

	members := make([]privateMemberJSON, 0, len(doc.Members))
	for _, m := range doc.Members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.LocalScore != b.LocalScore {
			return a.LocalScore > b.LocalScore
		}
		if a.LastStarTS != b.LastStarTS {
			return a.LastStarTS < b.LastStarTS
		}
		return a.ID < b.ID
	})

	declared := make([]int, len(members))
	for i, m := range members {
		if i == 0 || m.LocalScore != members[i-1].LocalScore {
			declared[i] = i + 1
		}
	}
	ranks := fillRanks(declared)

	entries := make([]memberEntry, len(members))
	for i, m := range members {
		e := memberEntry{
			ID:          strconv.Itoa(m.ID),
			Rank:        ranks[i],
			Score:       m.LocalScore,
			Stars:       m.Stars,
			GlobalScore: m.GlobalScore,
			Completion:  make(map[int][]int, len(m.CompletionDayLevel)),
		}
		if m.LastStarTS > 0 {
			e.LastStar = time.Unix(m.LastStarTS, 0)
		}
		if m.Name != nil && *m.Name != "" {
			e.Name = *m.Name
		} else {
			e.Name = fmt.Sprintf("(anonymous user #%d)", m.ID)
			e.Anonymous = true
		}
		for day, parts := range m.CompletionDayLevel {
			d, err := strconv.Atoi(day)
			if err != nil {
				continue
			}
			for part := range parts {
				if p, err := strconv.Atoi(part); err == nil {
					e.Completion[d] = append(e.Completion[d], p)
				}
			}
			sort.Ints(e.Completion[d])
		}
		entries[i] = e
	}

	s := newSnapshot(year, dayScope{}, entries)
	s.BoardID = boardID
	return s, nil
}

// leaderboards serves private and global leaderboards through the cache.
type leaderboards struct {
	remote *remote
	cache  *cacheStore
	ttl    time.Duration
	log    *logger
}

// Private returns a private board. cachedAt is non-nil when the snapshot came from
// the cache and holds the time it was fetched.
func (l *leaderboards) Private(ctx context.Context, boardID, year int, force bool) (snap *snapshot, cachedAt *time.Time, err error) {
	key := fmt.Sprintf("lb_priv_%d_%d", year, boardID)
	req := apiRequest{
		method: http.MethodGet,
		path:   fmt.Sprintf("/%d/leaderboard/private/view/%d.json", year, boardID),
		authed: true,
	}
	decode := func(b []byte) (*snapshot, error) { return decodePrivateBoard(b, year, boardID) }
	snap, cachedAt, err = l.load(ctx, key, force, req, classifyBoardJSON, decode)
	if errors.Is(err, ErrNotYetAvailable) {
		return nil, nil, fmt.Errorf("private leaderboard %d for %d: %w", boardID, year, err)
	}
	return snap, cachedAt, err
}

// Global returns the overall board or one day's board for part.
func (l *leaderboards) Global(ctx context.Context, year int, scope dayScope, force bool) (snap *snapshot, cachedAt *time.Time, err error) {
	key := fmt.Sprintf("lb_glob_%d", year)
	path := fmt.Sprintf("/%d/leaderboard", year)
	if !scope.whole() {
		key = fmt.Sprintf("lb_glob_%d_%d_%d", year, scope.Day, scope.Part)
		path = fmt.Sprintf("/%d/leaderboard/day/%d", year, scope.Day)
	}
	req := apiRequest{method: http.MethodGet, path: path}
	decode := func(b []byte) (*snapshot, error) {
		rows, err := parseGlobalBoard(b, scope.Part)
		if err != nil {
			return nil, err
		}
		return newSnapshot(year, scope, resolveRows(rows, !scope.whole())), nil
	}
	snap, cachedAt, err = l.load(ctx, key, force, req, classifyPublicPage, decode)
	if errors.Is(err, ErrNotYetAvailable) {
		return nil, nil, &notAvailableError{Year: year, Day: scope.Day, Part: scope.Part}
	}
	return snap, cachedAt, err
}

// load serves key from the cache when fresh, otherwise fetches, decodes and stores
// the raw payload. A payload that fails to decode is never cached.
func (l *leaderboards) load(ctx context.Context, key string, force bool, req apiRequest, classify classifier, decode func([]byte) (*snapshot, error)) (*snapshot, *time.Time, error) {
	if !force {
		e, ok, err := l.cache.fresh(key, l.ttl)
		if err != nil {
			l.log.warnf("cache read %s: %v", key, err)
		}
		if ok {
			snap, err := decode(e.Payload)
			if err == nil {
				l.log.debugf("cache hit: %s (fetched %s)", key, e.FetchedAt.Format(time.RFC3339))
				at := e.FetchedAt
				return snap, &at, nil
			}
			l.log.warnf("discarding cached %s: %v", key, err)
		}
	}

	l.log.debugf("cache miss: %s", key)
	body, err := l.remote.fetch(ctx, req, classify)
	if err != nil {
		return nil, nil, err
	}
	snap, err := decode(body)
	if err != nil {
		return nil, nil, err
	}
	if err := l.cache.write(key, body); err != nil {
		return nil, nil, err
	}
	return snap, nil, nil
}
