// SQLite-backed persistence using ncruces/go-sqlite3/driver, which provides
// a database/sql interface.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/kittclouds/notesynth/pkg/query"
)

// SQLiteStore is the SQLite-backed data store.
// Thread-safe for concurrent retrieval goroutines.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema defines all tables with temporal versioning for notes.
const schema = `
-- Notes (Temporal versioning pattern)
-- Composite primary key (id, version) enables full version history
CREATE TABLE IF NOT EXISTS notes (
    id TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    title TEXT NOT NULL,
    folder TEXT NOT NULL DEFAULT '',
    extension TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    metadata TEXT,
    mtime INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    valid_from INTEGER NOT NULL,
    valid_to INTEGER,
    is_current INTEGER DEFAULT 1,
    change_reason TEXT,
    PRIMARY KEY (id, version)
);

-- Partial indexes for current versions (fast queries)
CREATE INDEX IF NOT EXISTS idx_notes_current ON notes(id) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_notes_folder ON notes(folder) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title COLLATE NOCASE) WHERE is_current = 1;
-- Index for history queries
CREATE INDEX IF NOT EXISTS idx_notes_history ON notes(id, valid_from);

-- Links (Graph)
-- No foreign keys: links may point at notes that do not exist yet
CREATE TABLE IF NOT EXISTS links (
    source_id TEXT NOT NULL,
    target TEXT NOT NULL,
    target_id TEXT NOT NULL DEFAULT '',
    subpath TEXT,
    kind TEXT NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

CREATE TABLE IF NOT EXISTS tags (
    note_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY (note_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);
`

const noteColumns = `id, version, title, folder, extension, content, metadata, mtime,
	created_at, updated_at, valid_from, valid_to, is_current, change_reason`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// VecVersion reports the version of the sqlite-vec extension loaded into
// the connection.
func (s *SQLiteStore) VecVersion() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v string
	if err := s.db.QueryRow(`SELECT vec_version()`).Scan(&v); err != nil {
		return "", fmt.Errorf("failed to query vec_version: %w", err)
	}
	return v, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var note Note
	var isCurrent int
	var validTo sql.NullInt64
	var metadata, reason sql.NullString

	if err := row.Scan(
		&note.ID, &note.Version, &note.Title, &note.Folder, &note.Extension,
		&note.Content, &metadata, &note.MTime, &note.CreatedAt, &note.UpdatedAt,
		&note.ValidFrom, &validTo, &isCurrent, &reason,
	); err != nil {
		return nil, err
	}

	note.Metadata = metadata.String
	note.ChangeReason = reason.String
	note.IsCurrent = isCurrent != 0
	if validTo.Valid {
		note.ValidTo = &validTo.Int64
	}
	return &note, nil
}

func scanNotes(rows *sql.Rows) ([]*Note, error) {
	defer rows.Close()
	var notes []*Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// =============================================================================
// Note CRUD
// =============================================================================

// CreateNote creates a new note with version 1.
func (s *SQLiteStore) CreateNote(note *Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(note)
}

func (s *SQLiteStore) createLocked(note *Note) error {
	if note.Version == 0 {
		note.Version = 1
	}
	if note.ValidFrom == 0 {
		note.ValidFrom = note.CreatedAt
	}
	note.IsCurrent = true
	return s.insertLocked(note)
}

func (s *SQLiteStore) insertLocked(note *Note) error {
	_, err := s.db.Exec(`
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, note.ID, note.Version, note.Title, note.Folder, note.Extension,
		note.Content, note.Metadata, note.MTime, note.CreatedAt, note.UpdatedAt,
		note.ValidFrom, note.ValidTo, boolToInt(note.IsCurrent), note.ChangeReason)
	if err != nil {
		return fmt.Errorf("failed to insert note %s: %w", note.ID, err)
	}
	return nil
}

// UpdateNote creates a new version of an existing note.
func (s *SQLiteStore) UpdateNote(note *Note, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var currentVersion int
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT version, created_at FROM notes
		WHERE id = ? AND is_current = 1
	`, note.ID).Scan(&currentVersion, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Note doesn't exist, fall back to create
		return s.createLocked(note)
	}
	if err != nil {
		return err
	}

	// Close old current version
	if _, err := s.db.Exec(`
		UPDATE notes SET valid_to = ?, is_current = 0
		WHERE id = ? AND is_current = 1
	`, note.UpdatedAt, note.ID); err != nil {
		return err
	}

	note.Version = currentVersion + 1
	note.CreatedAt = createdAt // Preserve original creation time
	note.ValidFrom = note.UpdatedAt
	note.ValidTo = nil
	note.IsCurrent = true
	note.ChangeReason = reason
	return s.insertLocked(note)
}

// UpsertNote is a convenience method that creates or updates.
func (s *SQLiteStore) UpsertNote(note *Note) error {
	s.mu.RLock()
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM notes WHERE id = ? AND is_current = 1 LIMIT 1`, note.ID).Scan(&exists)
	s.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		return s.CreateNote(note)
	}
	if err != nil {
		return err
	}
	return s.UpdateNote(note, "upsert")
}

// GetNote retrieves the current version of a note by ID.
func (s *SQLiteStore) GetNote(id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *SQLiteStore) getLocked(id string) (*Note, error) {
	note, err := scanNote(s.db.QueryRow(`
		SELECT `+noteColumns+` FROM notes WHERE id = ? AND is_current = 1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return note, err
}

// GetNoteVersion retrieves a specific version of a note.
func (s *SQLiteStore) GetNoteVersion(id string, version int) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, err := scanNote(s.db.QueryRow(`
		SELECT `+noteColumns+` FROM notes WHERE id = ? AND version = ?
	`, id, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return note, err
}

// ListNoteVersions returns all versions of a note, newest first.
func (s *SQLiteStore) ListNoteVersions(id string) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+noteColumns+` FROM notes WHERE id = ? ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, err
	}
	return scanNotes(rows)
}

// GetNoteAtTime retrieves the version of a note that was current at a given timestamp.
func (s *SQLiteStore) GetNoteAtTime(id string, timestamp int64) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, err := scanNote(s.db.QueryRow(`
		SELECT `+noteColumns+`
		FROM notes
		WHERE id = ?
		  AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY version DESC LIMIT 1
	`, id, timestamp, timestamp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return note, err
}

// RestoreNoteVersion restores a previous version by creating a new version with the old content.
func (s *SQLiteStore) RestoreNoteVersion(id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := scanNote(s.db.QueryRow(`
		SELECT `+noteColumns+` FROM notes WHERE id = ? AND version = ?
	`, id, version))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var maxVersion int
	if err := s.db.QueryRow(`SELECT MAX(version) FROM notes WHERE id = ?`, id).Scan(&maxVersion); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if _, err := s.db.Exec(`
		UPDATE notes SET valid_to = ?, is_current = 0
		WHERE id = ? AND is_current = 1
	`, now, id); err != nil {
		return err
	}

	old.Version = maxVersion + 1
	old.UpdatedAt = now
	old.ValidFrom = now
	old.ValidTo = nil
	old.IsCurrent = true
	old.ChangeReason = "restore"
	return s.insertLocked(old)
}

// DeleteNote removes all versions of a note, its links and tags.
func (s *SQLiteStore) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range []string{
		`DELETE FROM notes WHERE id = ?`,
		`DELETE FROM links WHERE source_id = ?`,
		`DELETE FROM tags WHERE note_id = ?`,
		`UPDATE links SET target_id = '' WHERE target_id = ?`,
	} {
		if _, err := s.db.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete note %s: %w", id, err)
		}
	}
	return nil
}

// ListNotes returns current versions of all notes in folder or below.
func (s *SQLiteStore) ListNotes(folder string) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folder = strings.Trim(folder, "/")
	rows, err := s.db.Query(`
		SELECT `+noteColumns+` FROM notes
		WHERE is_current = 1 AND (? = '' OR folder = ? OR folder LIKE ? ESCAPE '\')
		ORDER BY id
	`, folder, folder, escapeLike(folder)+"/%")
	if err != nil {
		return nil, err
	}
	return scanNotes(rows)
}

// CountNotes returns the total number of notes (current versions only).
func (s *SQLiteStore) CountNotes() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM notes WHERE is_current = 1").Scan(&count)
	return count, err
}

// =============================================================================
// Links and tags
// =============================================================================

// ReplaceLinks swaps the recorded links of a note in one transaction.
func (s *SQLiteStore) ReplaceLinks(sourceID string, links []*Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM links WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	for _, l := range links {
		if _, err := tx.Exec(`
			INSERT INTO links (source_id, target, target_id, subpath, kind, start_offset, end_offset)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sourceID, l.Target, l.TargetID, l.Subpath, l.Kind, l.Start, l.End); err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
	}
	return tx.Commit()
}

// ListLinks returns the links of a note in document order.
func (s *SQLiteStore) ListLinks(sourceID string) ([]*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT source_id, target, target_id, subpath, kind, start_offset, end_offset
		FROM links WHERE source_id = ? ORDER BY start_offset
	`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		var l Link
		var sub sql.NullString
		if err := rows.Scan(&l.SourceID, &l.Target, &l.TargetID, &sub, &l.Kind, &l.Start, &l.End); err != nil {
			return nil, err
		}
		l.Subpath = sub.String
		links = append(links, &l)
	}
	return links, rows.Err()
}

// Backlinks returns the ids of notes linking to or embedding targetID.
func (s *SQLiteStore) Backlinks(targetID string) ([]string, error) {
	return s.queryStrings(`
		SELECT DISTINCT source_id FROM links WHERE target_id = ? ORDER BY source_id
	`, targetID)
}

// Outgoing returns the ids of notes sourceID links to or embeds.
func (s *SQLiteStore) Outgoing(sourceID string) ([]string, error) {
	return s.queryStrings(`
		SELECT DISTINCT target_id FROM links
		WHERE source_id = ? AND target_id != '' ORDER BY target_id
	`, sourceID)
}

// ReplaceTags swaps the tags of a note.
func (s *SQLiteStore) ReplaceTags(noteID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tags WHERE note_id = ?`, noteID); err != nil {
		return err
	}
	for _, t := range normalizeTags(tags) {
		if _, err := tx.Exec(`INSERT INTO tags (note_id, tag) VALUES (?, ?)`, noteID, t); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	return tx.Commit()
}

// ListTags returns the tags of a note, sorted.
func (s *SQLiteStore) ListTags(noteID string) ([]string, error) {
	return s.queryStrings(`SELECT tag FROM tags WHERE note_id = ? ORDER BY tag`, noteID)
}

func (s *SQLiteStore) queryStrings(stmt string, args ...any) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// Resolution and queries
// =============================================================================

// ResolveLink finds the note a link path points to.
func (s *SQLiteStore) ResolveLink(link, fromID string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(link, fromID)
}

func (s *SQLiteStore) resolveLocked(link, fromID string) (*Note, error) {
	link = strings.TrimPrefix(strings.TrimSpace(link), "/")
	if link == "" {
		return nil, nil
	}
	base := path.Base(link)
	stem := strings.TrimSuffix(base, path.Ext(base))

	rows, err := s.db.Query(`
		SELECT `+noteColumns+` FROM notes
		WHERE is_current = 1
		  AND (lower(id) = lower(?) OR lower(title) = lower(?) OR lower(title) = lower(?))
	`, link, base, stem)
	if err != nil {
		return nil, err
	}
	candidates, err := scanNotes(rows)
	if err != nil {
		return nil, err
	}
	return bestLinkMatch(link, fromID, candidates), nil
}

// Select compiles the query's source expression to SQL.
func (s *SQLiteStore) Select(q *query.Query) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &sqlCompiler{s: s}
	where, err := c.compile(q.Source)
	if err != nil {
		return nil, err
	}

	order := "n.id"
	if q.Sort != nil {
		dir := " ASC"
		if q.Sort.Desc {
			dir = " DESC"
		}
		switch q.Sort.Field {
		case query.FieldMTime:
			order = "n.mtime" + dir + ", n.id"
		case query.FieldName:
			order = "n.title COLLATE NOCASE" + dir + ", n.id"
		case query.FieldPath:
			order = "n.id" + dir
		}
	}

	stmt := "SELECT n.id FROM notes n WHERE n.is_current = 1 AND (" + where + ") ORDER BY " + order
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.Query(stmt, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// sqlCompiler turns a source expression into a WHERE fragment over the
// current notes aliased n. Link targets are resolved up front.
type sqlCompiler struct {
	s    *SQLiteStore
	args []any
}

func (c *sqlCompiler) compile(e query.Expr) (string, error) {
	switch v := e.(type) {
	case nil:
		return "1", nil
	case query.Folder:
		folder := strings.Trim(v.Path, "/")
		if folder == "" {
			return "1", nil
		}
		c.args = append(c.args, folder, escapeLike(folder)+"/%")
		return `(n.folder = ? OR n.folder LIKE ? ESCAPE '\')`, nil
	case query.Tag:
		c.args = append(c.args, v.Name, escapeLike(v.Name)+"/%")
		return `EXISTS (SELECT 1 FROM tags t WHERE t.note_id = n.id AND (t.tag = ? OR t.tag LIKE ? ESCAPE '\'))`, nil
	case query.LinksTo:
		target, err := c.s.resolveLocked(v.Target, "")
		if err != nil {
			return "", err
		}
		if target == nil {
			return "0", nil
		}
		c.args = append(c.args, target.ID)
		return `EXISTS (SELECT 1 FROM links l WHERE l.source_id = n.id AND l.target_id = ?)`, nil
	case query.LinkedFrom:
		source, err := c.s.resolveLocked(v.Source, "")
		if err != nil {
			return "", err
		}
		if source == nil {
			return "0", nil
		}
		c.args = append(c.args, source.ID)
		return `EXISTS (SELECT 1 FROM links l WHERE l.source_id = ? AND l.target_id = n.id)`, nil
	case query.And:
		return c.binary(v.Left, v.Right, " AND ")
	case query.Or:
		return c.binary(v.Left, v.Right, " OR ")
	case query.Not:
		inner, err := c.compile(v.Expr)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	default:
		return "", fmt.Errorf("unsupported query expression %T", e)
	}
}

func (c *sqlCompiler) binary(left, right query.Expr, op string) (string, error) {
	l, err := c.compile(left)
	if err != nil {
		return "", err
	}
	r, err := c.compile(right)
	if err != nil {
		return "", err
	}
	return "(" + l + op + r + ")", nil
}

// =============================================================================
// Helpers
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
