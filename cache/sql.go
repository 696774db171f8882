package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"rocksniff/diag"
	"rocksniff/song"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS songs (
	id                      INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	psarcFile               TEXT NOT NULL,
	psarcFileHash           TEXT NOT NULL,
	songid                  TEXT NOT NULL,
	songname                TEXT NOT NULL,
	artistname              TEXT NOT NULL,
	albumname               TEXT,
	songLength              REAL,
	albumYear               INTEGER,
	arrangements            TEXT,
	album_art               BLOB,
	toolkit_version         TEXT,
	toolkit_author          TEXT,
	toolkit_package_version TEXT,
	toolkit_comment         TEXT
);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS songs (
	id                      SERIAL PRIMARY KEY,
	psarcFile               TEXT NOT NULL,
	psarcFileHash           TEXT NOT NULL,
	songid                  TEXT NOT NULL,
	songname                TEXT NOT NULL,
	artistname              TEXT NOT NULL,
	albumname               TEXT,
	songLength              REAL,
	albumYear               INTEGER,
	arrangements            TEXT,
	album_art               BYTEA,
	toolkit_version         TEXT,
	toolkit_author          TEXT,
	toolkit_package_version TEXT,
	toolkit_comment         TEXT
);`

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS filepath ON songs (psarcFile);`,
	`CREATE INDEX IF NOT EXISTS songid ON songs (songid);`,
}

// songRow mirrors the songs table. Postgres folds the unquoted column names
// to lower case, so the db tags are lower case too.
type songRow struct {
	PsarcFile             string          `db:"psarcfile"`
	PsarcFileHash         string          `db:"psarcfilehash"`
	SongID                string          `db:"songid"`
	SongName              string          `db:"songname"`
	ArtistName            string          `db:"artistname"`
	AlbumName             sql.NullString  `db:"albumname"`
	SongLength            sql.NullFloat64 `db:"songlength"`
	AlbumYear             sql.NullInt64   `db:"albumyear"`
	Arrangements          sql.NullString  `db:"arrangements"`
	AlbumArt              []byte          `db:"album_art"`
	ToolkitVersion        sql.NullString  `db:"toolkit_version"`
	ToolkitAuthor         sql.NullString  `db:"toolkit_author"`
	ToolkitPackageVersion sql.NullString  `db:"toolkit_package_version"`
	ToolkitComment        sql.NullString  `db:"toolkit_comment"`
}

const selectColumns = `psarcFile AS psarcfile, psarcFileHash AS psarcfilehash, songid, songname, artistname,
	albumname, songLength AS songlength, albumYear AS albumyear, arrangements, album_art,
	toolkit_version, toolkit_author, toolkit_package_version, toolkit_comment`

// SQLCache stores songs in a sqlite or postgres database through sqlx.
type SQLCache struct {
	db   *sqlx.DB
	diag *diag.Diagnostics
}

// NewSQLCache opens driver ("sqlite3" or "postgres") and creates the schema.
func NewSQLCache(driver, dsn string, d *diag.Diagnostics) (*SQLCache, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One connection keeps in-memory databases alive and serialises writers.
		db.SetMaxOpenConns(1)
	}

	schema := sqliteSchema
	if db.DriverName() == "postgres" {
		schema = postgresSchema
	}
	for _, q := range append([]string{schema}, indexes...) {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create cache schema: %w", err)
		}
	}

	d.Debug(diag.Cache, "cache", driver, "cache initialised")
	return &SQLCache{db: db, diag: d}, nil
}

func (c *SQLCache) Contains(path, hash string) bool {
	var n int
	q := c.db.Rebind(`SELECT COUNT(1) FROM songs WHERE psarcFile = ? AND psarcFileHash = ?`)
	if err := c.db.Get(&n, q, path, hash); err != nil {
		c.diag.Logger("cache").Warn("Cache lookup failed for", path, err)
		return false
	}
	return n > 0
}

func (c *SQLCache) Get(songID string) *song.Details {
	var row songRow
	q := c.db.Rebind(`SELECT ` + selectColumns + ` FROM songs WHERE songid = ? LIMIT 1`)
	if err := c.db.Get(&row, q, songID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.diag.Logger("cache").Warn("Cache read failed for", songID, err)
		}
		return nil
	}

	d := &song.Details{
		SongID:     row.SongID,
		SongName:   row.SongName,
		ArtistName: row.ArtistName,
		AlbumName:  row.AlbumName.String,
		SongLength: float32(row.SongLength.Float64),
		AlbumYear:  int(row.AlbumYear.Int64),
		AlbumArt:   row.AlbumArt,
		FileHash:   row.PsarcFileHash,
		Toolkit: song.Toolkit{
			Version:        row.ToolkitVersion.String,
			Author:         row.ToolkitAuthor.String,
			PackageVersion: row.ToolkitPackageVersion.String,
			Comment:        row.ToolkitComment.String,
		},
	}
	if row.Arrangements.Valid && row.Arrangements.String != "" {
		if err := json.Unmarshal([]byte(row.Arrangements.String), &d.Arrangements); err != nil {
			c.diag.Logger("cache").Warn("Bad arrangements for", songID, err)
		}
	}
	return d
}

func (c *SQLCache) Add(path string, details map[string]*song.Details) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := c.insert(tx, path, "", details); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SQLCache) Remove(path string, songIDs []string) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := remove(tx, path, songIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace swaps the rows of path in one transaction.
func (c *SQLCache) Replace(path, hash string, details map[string]*song.Details) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := remove(tx, path, songIDs(details)); err != nil {
		return err
	}
	if err := c.insert(tx, path, hash, details); err != nil {
		return err
	}
	return tx.Commit()
}

// insert writes one row per song. An empty hash falls back to each song's
// FileHash.
func (c *SQLCache) insert(tx *sqlx.Tx, path, hash string, details map[string]*song.Details) error {
	q := tx.Rebind(`INSERT INTO songs (
		psarcFile, psarcFileHash, songid, songname, artistname, albumname, songLength, albumYear,
		arrangements, album_art, toolkit_version, toolkit_author, toolkit_package_version, toolkit_comment
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for id, d := range details {
		if d == nil {
			continue
		}
		arr, err := json.Marshal(d.Arrangements)
		if err != nil {
			return err
		}
		var art []byte
		if len(d.AlbumArt) > 0 {
			art = d.AlbumArt
		}
		h := hash
		if h == "" {
			h = d.FileHash
		}
		if _, err := tx.Exec(q, path, h, id, d.SongName, d.ArtistName, d.AlbumName,
			d.SongLength, d.AlbumYear, string(arr), art,
			d.Toolkit.Version, d.Toolkit.Author, d.Toolkit.PackageVersion, d.Toolkit.Comment); err != nil {
			return fmt.Errorf("failed to cache %s: %w", id, err)
		}
		c.diag.Debug(diag.Cache, "cache", "Cached", filepath.Base(path)+"/"+id)
	}
	return nil
}

func remove(tx *sqlx.Tx, path string, songIDs []string) error {
	if _, err := tx.Exec(tx.Rebind(`DELETE FROM songs WHERE psarcFile = ?`), path); err != nil {
		return err
	}
	if len(songIDs) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM songs WHERE songid IN (?)`, songIDs)
	if err != nil {
		return err
	}
	_, err = tx.Exec(tx.Rebind(q), args...)
	return err
}

func (c *SQLCache) Close() error {
	return c.db.Close()
}
