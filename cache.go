package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// cacheSentinel is the placeholder file that survives a purge.
const cacheSentinel = ".gitkeep"

var cacheKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// cacheEntry is one persisted payload and the time it was fetched.
type cacheEntry struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// cacheFile is the on-disk encoding of a cacheEntry. fetched_at is unix seconds
// with microsecond precision.
type cacheFile struct {
	FetchedAt float64 `json:"fetched_at"`
	Payload   []byte  `json:"payload"`
}

// cacheStore keeps one file per key under dir.
type cacheStore struct {
	dir   string
	clock clock
}

func newCacheStore(dir string, c clock) (*cacheStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	sentinel := filepath.Join(dir, cacheSentinel)
	if _, err := os.Stat(sentinel); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(sentinel, nil, 0o644); err != nil {
			return nil, fmt.Errorf("create cache sentinel: %w", err)
		}
	}
	if c == nil {
		c = systemClock{}
	}
	return &cacheStore{dir: dir, clock: c}, nil
}

func (s *cacheStore) path(key string) (string, error) {
	if !cacheKeyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// now is the clock reading at the precision timestamps are stored with.
func (s *cacheStore) now() time.Time {
	return s.clock.Now().Truncate(time.Microsecond)
}

// read returns the entry for key. ok is false when nothing is stored.
func (s *cacheStore) read(key string) (entry cacheEntry, ok bool, err error) {
	p, err := s.path(key)
	if err != nil {
		return cacheEntry{}, false, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cacheEntry{}, false, nil
		}
		return cacheEntry{}, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	var f cacheFile
	if err := json.Unmarshal(b, &f); err != nil {
		return cacheEntry{}, false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	at := time.UnixMicro(int64(math.Round(f.FetchedAt * 1e6)))
	return cacheEntry{Key: key, Payload: f.Payload, FetchedAt: at}, true, nil
}

// write stamps payload with the current time and replaces any prior entry for key.
func (s *cacheStore) write(key string, payload []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	now := s.now()
	if prev, ok, err := s.read(key); err == nil && ok && prev.FetchedAt.After(now) {
		now = prev.FetchedAt
	}
	b, err := json.Marshal(cacheFile{FetchedAt: float64(now.UnixMicro()) / 1e6, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	if err := writeFileAtomic(p, b, 0o600); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

// fresh reads key and reports it only if it is within ttl of now.
func (s *cacheStore) fresh(key string, ttl time.Duration) (cacheEntry, bool, error) {
	e, ok, err := s.read(key)
	if err != nil || !ok {
		return cacheEntry{}, false, err
	}
	if !isFresh(s.now(), e.FetchedAt, ttl) {
		return cacheEntry{}, false, nil
	}
	return e, true, nil
}

// purgeAll removes every entry under dir except the sentinel. The directory stays.
func (s *cacheStore) purgeAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.Name() == cacheSentinel {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

// isFresh reports whether an entry fetched at fetchedAt is no older than ttl at now.
func isFresh(now, fetchedAt time.Time, ttl time.Duration) bool {
	return now.Sub(fetchedAt) <= ttl
}
