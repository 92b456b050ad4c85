// Package cache is MFP's durable snippet-execution cache: a single
// sqlite file, one writer at a time, per-entry TTL expiry plus LRU
// eviction once the entry count ceiling is reached. Grounded on the
// sqlite-backed store idiom used elsewhere in the corpus for small
// embedded stores: WAL journal mode, a busy timeout instead of
// application-level retry loops, and a sync.RWMutex serializing
// writers against readers.
package cache

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mfp-dev/mfp/internal/errs"
	"github.com/mfp-dev/mfp/internal/hashutil"
	"github.com/mfp-dev/mfp/internal/spec"
)

const schema = `
CREATE TABLE IF NOT EXISTS snippet_cache (
	id             TEXT PRIMARY KEY,
	code           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	servers_used   TEXT NOT NULL DEFAULT '[]',
	success        INTEGER NOT NULL DEFAULT 1,
	result_summary TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	last_used_at   TIMESTAMP NOT NULL,
	use_count      INTEGER NOT NULL DEFAULT 1,
	ttl_seconds    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snippet_cache_last_used_at ON snippet_cache(last_used_at);
`

// Store is a sqlite-backed CacheEntry store. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	defaultTTL time.Duration
	maxEntries int
}

// Open opens (creating if needed) the sqlite database at path and
// ensures its schema exists. defaultTTL is used for Put calls that
// don't specify a per-entry ttl.
func Open(path string, defaultTTL time.Duration, maxEntries int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errs.Wrap(errs.InternalError, err, "cache: open %s: %v", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.InternalError, err, "cache: init schema: %v", err)
	}
	return &Store{db: db, defaultTTL: defaultTTL, maxEntries: maxEntries}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached entry for id, or ok=false on a miss or an
// entry whose per-row ttl_seconds has elapsed since last_used_at
// (expired rows are deleted lazily on read, not swept on a timer). A
// hit bumps use_count and last_used_at.
func (s *Store) Get(id string) (*spec.CacheEntry, bool, error) {
	s.mu.RLock()
	e, err := scanEntry(s.db.QueryRow(`
		SELECT id, code, description, servers_used, success, result_summary,
		       created_at, last_used_at, use_count, ttl_seconds
		FROM snippet_cache WHERE id = ?`, id))
	s.mu.RUnlock()

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.InternalError, err, "cache: get %s: %v", id, err)
	}

	if time.Since(e.LastUsedAt) > time.Duration(e.TTLSeconds)*time.Second {
		s.mu.Lock()
		s.db.Exec(`DELETE FROM snippet_cache WHERE id = ?`, id)
		s.mu.Unlock()
		return nil, false, nil
	}

	s.mu.Lock()
	now := time.Now()
	_, err = s.db.Exec(`UPDATE snippet_cache SET use_count = use_count + 1, last_used_at = ? WHERE id = ?`, now, id)
	s.mu.Unlock()
	if err != nil {
		return nil, false, errs.Wrap(errs.InternalError, err, "cache: touch %s: %v", id, err)
	}
	e.UseCount++
	e.LastUsedAt = now
	return e, true, nil
}

// Put upserts the entry for code's normalized id. On insert use_count
// is 1 and created_at=last_used_at=now; on a hit against an existing
// id, use_count is incremented and description/result_summary/
// servers_used/ttl are overwritten with the new call's values. ttl<=0
// falls back to the store's defaultTTL.
func (s *Store) Put(code, description string, serversUsed []string, success bool, resultSummary string, ttl time.Duration) (*spec.CacheEntry, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	id := hashutil.CodeID(code)

	serversJSON, err := json.Marshal(serversUsed)
	if err != nil {
		return nil, errs.Wrap(errs.InternalError, err, "cache: marshal servers_used: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ttlSeconds := int64(ttl / time.Second)
	_, err = s.db.Exec(`
		INSERT INTO snippet_cache (id, code, description, servers_used, success, result_summary, created_at, last_used_at, use_count, ttl_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			description    = excluded.description,
			servers_used   = excluded.servers_used,
			success        = excluded.success,
			result_summary = excluded.result_summary,
			last_used_at   = excluded.last_used_at,
			ttl_seconds    = excluded.ttl_seconds,
			use_count      = snippet_cache.use_count + 1
	`, id, code, description, string(serversJSON), success, resultSummary, now, now, ttlSeconds)
	if err != nil {
		return nil, errs.Wrap(errs.InternalError, err, "cache: put %s: %v", id, err)
	}

	if err := s.evictLRULocked(); err != nil {
		return nil, err
	}

	entry, err := scanEntry(s.db.QueryRow(`
		SELECT id, code, description, servers_used, success, result_summary,
		       created_at, last_used_at, use_count, ttl_seconds
		FROM snippet_cache WHERE id = ?`, id))
	if err != nil {
		return nil, errs.Wrap(errs.InternalError, err, "cache: reload after put %s: %v", id, err)
	}
	return entry, nil
}

// evictLRULocked deletes the oldest-by-last-use rows once the table
// exceeds maxEntries. Caller must hold s.mu.
func (s *Store) evictLRULocked() error {
	if s.maxEntries <= 0 {
		return nil
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snippet_cache`).Scan(&count); err != nil {
		return errs.Wrap(errs.InternalError, err, "cache: count: %v", err)
	}
	over := count - s.maxEntries
	if over <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM snippet_cache WHERE id IN (
			SELECT id FROM snippet_cache ORDER BY last_used_at ASC LIMIT ?
		)
	`, over)
	if err != nil {
		return errs.Wrap(errs.InternalError, err, "cache: evict: %v", err)
	}
	return nil
}

// Search returns every non-expired entry whose description contains
// query (case-insensitive), most-recently-used first, capped at limit.
func (s *Store) Search(query string, limit int) ([]spec.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, code, description, servers_used, success, result_summary,
		       created_at, last_used_at, use_count, ttl_seconds
		FROM snippet_cache
		WHERE description LIKE ? AND (unixepoch('now') - unixepoch(last_used_at)) <= ttl_seconds
		ORDER BY last_used_at DESC LIMIT ?
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, errs.Wrap(errs.InternalError, err, "cache: search: %v", err)
	}
	defer rows.Close()

	var out []spec.CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errs.Wrap(errs.InternalError, err, "cache: scan: %v", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Stats reports the current entry count, used by operators to sanity
// check maxEntries tuning without opening the sqlite file by hand.
func (s *Store) Stats() (count int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err = s.db.QueryRow(`SELECT COUNT(*) FROM snippet_cache`).Scan(&count)
	if err != nil {
		return 0, errs.Wrap(errs.InternalError, err, "cache: stats: %v", err)
	}
	return count, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*spec.CacheEntry, error) {
	var e spec.CacheEntry
	var serversJSON string
	if err := row.Scan(&e.ID, &e.Code, &e.Description, &serversJSON, &e.Success, &e.ResultSummary,
		&e.CreatedAt, &e.LastUsedAt, &e.UseCount, &e.TTLSeconds); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(serversJSON), &e.ServersUsed); err != nil {
		return nil, err
	}
	return &e, nil
}
