package cache

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"tsnc/internal/source"
)

// Index is the derived, rebuildable secondary index SPEC_FULL.md's
// domain-stack table describes: a sqlite-backed table of (module_id, path,
// mtime, cache_path) so a driver can enumerate or prune stale .cache files
// without opening each one. The per-module binary format in cache.go
// remains authoritative; Index never substitutes for the Read/Write
// validation it performs.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if absent) the sqlite index file at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "cache: open index")
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS modules (
	module_id   INTEGER PRIMARY KEY,
	path        TEXT NOT NULL,
	mtime       INTEGER NOT NULL,
	cache_path  TEXT NOT NULL
)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cache: create index table")
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// Upsert records (or refreshes) one module's index row after Write
// succeeds.
func (ix *Index) Upsert(id source.ModuleID, path string, mtime time.Time, cachePath string) error {
	const q = `
INSERT INTO modules (module_id, path, mtime, cache_path) VALUES (?, ?, ?, ?)
ON CONFLICT(module_id) DO UPDATE SET path=excluded.path, mtime=excluded.mtime, cache_path=excluded.cache_path`
	_, err := ix.db.Exec(q, uint32(id), path, mtime.Unix(), cachePath)
	return err
}

// Row is one enumerated index entry.
type Row struct {
	ModuleID  uint32
	Path      string
	Mtime     int64
	CachePath string
}

// StaleAsOf returns every indexed module whose recorded mtime predates the
// one now observed for its path, the set a prune pass would remove.
func (ix *Index) StaleAsOf(current map[string]time.Time) ([]Row, error) {
	rows, err := ix.db.Query(`SELECT module_id, path, mtime, cache_path FROM modules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ModuleID, &r.Path, &r.Mtime, &r.CachePath); err != nil {
			return nil, err
		}
		if live, ok := current[r.Path]; ok && live.Unix() > r.Mtime {
			stale = append(stale, r)
		}
	}
	return stale, rows.Err()
}

// Remove drops one module's index row, used after its .cache file is
// pruned or recompiled under a new id.
func (ix *Index) Remove(id source.ModuleID) error {
	_, err := ix.db.Exec(`DELETE FROM modules WHERE module_id = ?`, uint32(id))
	return err
}
