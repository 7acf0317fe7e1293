package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// NoteRow is a row in the notes table: the note plus its vault location and
// file checksum.
type NoteRow struct {
	models.Note
	Path     string
	Checksum string
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ListQuery selects notes for ListNotes. Limit <= 0 returns every match.
type ListQuery struct {
	Scope  models.Scope
	Limit  int
	Offset int
	Sort   string // "updated_at" (default, newest first), "created_at", "title"
}

const noteColumns = `id, path, title, notebook_id, is_trashed, is_archived,
	position_x, position_y, layout_type, checksum, content, created_at, updated_at`

// UpsertNote inserts or replaces a note, its FTS entry, and its outgoing
// references within a transaction.
func (db *DB) UpsertNote(row NoteRow, refs []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}

	// A file whose frontmatter id changed leaves a stale row on the same path.
	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ? AND id <> ?`, row.Path, row.ID); err != nil {
		return fmt.Errorf("index: clear path: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path        = excluded.path,
			title       = excluded.title,
			notebook_id = excluded.notebook_id,
			is_trashed  = excluded.is_trashed,
			is_archived = excluded.is_archived,
			position_x  = excluded.position_x,
			position_y  = excluded.position_y,
			layout_type = excluded.layout_type,
			checksum    = excluded.checksum,
			content     = excluded.content,
			created_at  = excluded.created_at,
			updated_at  = excluded.updated_at
	`, row.ID, row.Path, row.Title, row.NotebookID, row.IsTrashed, row.IsArchived,
		nullFloat(row.PositionX), nullFloat(row.PositionY), row.LayoutType,
		row.Checksum, row.Content, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if err := ftsUpsert(tx, row.ID, row.Title, row.Content); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM refs WHERE source = ?`, row.ID); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range refs {
			if _, err := stmt.Exec(row.ID, target); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note, its FTS entry, and its outgoing references.
// References pointing at the note stay in other notes and become dangling.
func (db *DB) DeleteNote(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM refs WHERE source = ?`, id); err != nil {
		return fmt.Errorf("index: delete refs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// DeleteByPath removes the note stored at path, if any.
func (db *DB) DeleteByPath(path string) error {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM notes WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: lookup path: %w", err)
	}
	return db.DeleteNote(id)
}

// GetNote returns the row for id or apperr.ErrNotFound.
func (db *DB) GetNote(id string) (*NoteRow, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	r, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return r, nil
}

// ListNotes returns the notes matching q and the total match count.
func (db *DB) ListNotes(q ListQuery) ([]NoteRow, int, error) {
	var (
		where []string
		args  []any
	)
	if q.Scope.NotebookID != "" {
		where = append(where, "notebook_id = ?")
		args = append(args, q.Scope.NotebookID)
	}
	if !q.Scope.IncludeTrashed {
		where = append(where, "is_trashed = 0")
	}
	if !q.Scope.IncludeArchived {
		where = append(where, "is_archived = 0")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	query := `SELECT ` + noteColumns + ` FROM notes` + cond + ` ORDER BY ` + orderBy(q.Sort)
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		r, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("index: scan note: %w", err)
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// GetChecksum returns the stored checksum for the note at path, or "" if
// none is indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums maps every indexed path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the ids of non-trashed notes that reference target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT r.source
		FROM refs r
		JOIN notes n ON n.id = r.source
		WHERE r.target = ? AND n.is_trashed = 0
		ORDER BY r.source
	`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*NoteRow, error) {
	var (
		r    NoteRow
		x, y sql.NullFloat64
	)
	err := s.Scan(&r.ID, &r.Path, &r.Title, &r.NotebookID, &r.IsTrashed, &r.IsArchived,
		&x, &y, &r.LayoutType, &r.Checksum, &r.Content, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if x.Valid && y.Valid {
		r.PositionX, r.PositionY = &x.Float64, &y.Float64
	}
	return &r, nil
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func orderBy(sort string) string {
	switch sort {
	case "title":
		return "title COLLATE NOCASE ASC, id ASC"
	case "created_at":
		return "created_at ASC, id ASC"
	default:
		return "updated_at DESC, id ASC"
	}
}
