// Package checksum memoizes file digests across builds. Records are keyed
// by canonical path and validated by size and modification time, so a file
// is only rehashed after it actually changes. Avoiding needless rehashing
// dominates build cost on a large archive.
package checksum

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite"
)

// Record is the cache's unit of persistence. A record is valid only while
// Size and MTime match the live file.
type Record struct {
	Path   string
	Size   int64
	MTime  int64
	MD5    string
	SHA512 string
}

// Cache is the in-memory working copy of the persisted cache. Mutations
// stay in memory until Commit, which replaces the on-disk store atomically;
// a failed build leaves the previous store untouched.
type Cache struct {
	path string

	mu      sync.Mutex
	records map[string]Record
	// seen tracks paths referenced since Open. Commit drops the rest, so
	// records for files deleted from the archive do not accumulate.
	seen map[string]bool
}

// Open loads the cache at path. A missing file yields an empty cache.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, records: make(map[string]Record), seen: make(map[string]bool)}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checksum cache: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT path, size, mtime, md5, sha512 FROM checksums`)
	if err != nil {
		return nil, fmt.Errorf("read checksum cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Path, &rec.Size, &rec.MTime, &rec.MD5, &rec.SHA512); err != nil {
			return nil, fmt.Errorf("scan checksum record: %w", err)
		}
		c.records[rec.Path] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checksum cache: %w", err)
	}
	return c, nil
}

// Lookup returns the cached digests for path if size and mtime both match
// exactly.
func (c *Cache) Lookup(path string, size, mtime int64) (md5, sha512 string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(path)
	rec, found := c.records[path]
	if !found || rec.Size != size || rec.MTime != mtime {
		return "", "", false
	}
	return rec.MD5, rec.SHA512, true
}

// Put overwrites the record for rec.Path.
func (c *Cache) Put(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(rec.Path)
	c.records[rec.Path] = rec
}

// mark notes a live path. Callers hold c.mu.
func (c *Cache) mark(path string) {
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	c.seen[path] = true
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Commit writes every record referenced since Open to a fresh database
// beside the store and renames it into place, so a crash mid-commit can
// never leave the cache corrupted or half-written. Records nothing looked
// up or stored this run are dropped.
func (c *Cache) Commit() error {
	tmp := c.path + ".tmp"
	os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return fmt.Errorf("create cache temp: %w", err)
	}

	err = func() error {
		if _, err := db.Exec(`CREATE TABLE checksums (
			path TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			mtime INTEGER NOT NULL,
			md5 TEXT NOT NULL,
			sha512 TEXT NOT NULL
		)`); err != nil {
			return fmt.Errorf("create cache schema: %w", err)
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO checksums (path, size, mtime, md5, sha512) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, rec := range c.records {
			if !c.seen[rec.Path] {
				// Nothing referenced this path since Open: the file is
				// gone from the archive and so is its record.
				continue
			}
			if _, err := stmt.Exec(rec.Path, rec.Size, rec.MTime, rec.MD5, rec.SHA512); err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("write cache record %s: %w", rec.Path, err)
			}
		}
		stmt.Close()
		return tx.Commit()
	}()
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit checksum cache: %w", err)
	}

	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit checksum cache: %w", err)
	}
	return nil
}
