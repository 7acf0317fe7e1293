// Package noteservice reads and writes notes through the vault and keeps the
// SQLite index in step. It is the note repository behind the REST API, the
// MCP server and the graph controller.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/layout"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/reference"
	"github.com/starford/notegraph/internal/storage"
)

const maxTitleLen = 500

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	models.Note
	Checksum   string                `json:"checksum"`
	Backlinks  []string              `json:"backlinks"`
	References []reference.Reference `json:"references"`
	// Display is the content with reference tokens rendered for reading.
	Display string `json:"display"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	NotebookID string    `json:"notebook_id,omitempty"`
	Checksum   string    `json:"checksum"`
	IsTrashed  bool      `json:"is_trashed"`
	IsArchived bool      `json:"is_archived"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateInput holds the fields of a new note.
type CreateInput struct {
	Title      string
	Content    string
	NotebookID string
}

// Validate checks the input.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, maxTitleLen)),
	)
}

// Service coordinates storage and index operations.
type Service struct {
	store      storage.Provider
	db         *index.DB
	liveTitles bool

	// mu serialises read-modify-write cycles on vault files.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLiveTitles renders references with the current title of their target
// instead of the stored snapshot. Content is never rewritten.
func WithLiveTitles(on bool) Option {
	return func(s *Service) { s.liveTitles = on }
}

// NewService creates a new note service.
func NewService(store storage.Provider, db *index.DB, opts ...Option) *Service {
	s := &Service{store: store, db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateNote writes a new note under a fresh id and indexes it.
func (s *Service) CreateNote(ctx context.Context, in CreateInput) (*NoteDetail, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	n := &models.Note{
		ID:         uuid.NewString(),
		Title:      in.Title,
		Content:    in.Content,
		NotebookID: in.NotebookID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	path := storage.NotePath(n.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	data, err := s.write(path, n)
	if err != nil {
		return nil, err
	}
	return s.detail(n, data)
}

// GetNote reads a note from the vault and enriches it with backlinks and
// its references.
func (s *Service) GetNote(_ context.Context, id string) (*NoteDetail, error) {
	n, data, _, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return s.detail(n, data)
}

// UpdateNote applies patch to the note and persists it. A non-empty
// patch.IfMatch must equal the current checksum of the file.
func (s *Service) UpdateNote(ctx context.Context, id string, patch models.NotePatch) (*models.Note, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, data, path, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if patch.IfMatch != "" && patch.IfMatch != storage.Checksum(data) {
		return nil, apperr.ErrConflict
	}

	applyPatch(n, patch)
	n.UpdatedAt = time.Now().UTC()

	if _, err := s.write(path, n); err != nil {
		return nil, err
	}
	return n, nil
}

// DeleteNote removes a note from the vault and the index. References to it
// in other notes become dangling.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.db.GetNote(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(row.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("noteservice: delete file: %w", err)
	}
	return s.db.DeleteNote(id)
}

// ListNotes returns every note in scope ordered by creation time.
func (s *Service) ListNotes(ctx context.Context, scope models.Scope) ([]models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, _, err := s.db.ListNotes(index.ListQuery{Scope: scope, Sort: "created_at"})
	if err != nil {
		return nil, err
	}
	notes := make([]models.Note, len(rows))
	for i, r := range rows {
		notes[i] = r.Note
	}
	return notes, nil
}

// ListPage returns one page of notes and the total count.
func (s *Service) ListPage(_ context.Context, q index.ListQuery) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			ID:         r.ID,
			Title:      r.Title,
			NotebookID: r.NotebookID,
			Checksum:   r.Checksum,
			IsTrashed:  r.IsTrashed,
			IsArchived: r.IsArchived,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Backlinks returns the ids of notes that reference id.
func (s *Service) Backlinks(_ context.Context, id string) ([]string, error) {
	bl, err := s.db.Backlinks(id)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

// References returns the references stored in a note, titles rendered the
// same way as in GetNote.
func (s *Service) References(_ context.Context, id string) ([]reference.Reference, error) {
	n, _, _, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return s.references(n.Content), nil
}

// load reads the note with id from the vault. The index supplies the path.
func (s *Service) load(id string) (*models.Note, []byte, string, error) {
	row, err := s.db.GetNote(id)
	if err != nil {
		return nil, nil, "", err
	}
	data, err := s.store.Read(row.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, "", apperr.ErrNotFound
		}
		return nil, nil, "", fmt.Errorf("noteservice: read %s: %w", row.Path, err)
	}
	n, err := parser.Parse(row.Path, data)
	if err != nil {
		return nil, nil, "", err
	}
	return n, data, row.Path, nil
}

// write renders n to path and re-indexes it.
func (s *Service) write(path string, n *models.Note) ([]byte, error) {
	data, err := parser.Render(n)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, data); err != nil {
		return nil, fmt.Errorf("noteservice: write %s: %w", path, err)
	}
	if err := index.IndexFile(s.db, path, data); err != nil {
		return nil, fmt.Errorf("noteservice: index %s: %w", path, err)
	}
	return data, nil
}

func (s *Service) detail(n *models.Note, data []byte) (*NoteDetail, error) {
	bl, err := s.db.Backlinks(n.ID)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Note:       *n,
		Checksum:   storage.Checksum(data),
		Backlinks:  nonNilSlice(bl),
		References: s.references(n.Content),
		Display:    reference.RenderConnected(n.Content, s.titleFunc()),
	}, nil
}

func (s *Service) references(content string) []reference.Reference {
	refs := nonNilSlice(reference.Extract(content))
	if titles := s.titleFunc(); titles != nil {
		for i := range refs {
			if t, ok := titles(refs[i].ID); ok {
				refs[i].Title = t
			}
		}
	}
	return refs
}

func (s *Service) titleFunc() reference.TitleFunc {
	if !s.liveTitles {
		return nil
	}
	return func(id string) (string, bool) {
		row, err := s.db.GetNote(id)
		if err != nil || !row.Eligible() {
			return "", false
		}
		return row.Title, true
	}
}

func validatePatch(p models.NotePatch) error {
	err := validation.Errors{
		"title": validation.Validate(p.Title, validation.NilOrNotEmpty, validation.RuneLength(1, maxTitleLen)),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	if pl := p.Placement; pl != nil {
		if (pl.X == nil) != (pl.Y == nil) {
			return fmt.Errorf("%w: position_x and position_y must be set together", apperr.ErrInvalidArgument)
		}
		if pl.Layout != "" {
			if _, err := layout.ParseType(pl.Layout); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyPatch(n *models.Note, p models.NotePatch) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.NotebookID != nil {
		n.NotebookID = *p.NotebookID
	}
	if p.IsTrashed != nil {
		n.IsTrashed = *p.IsTrashed
	}
	if p.IsArchived != nil {
		n.IsArchived = *p.IsArchived
	}
	if pl := p.Placement; pl != nil {
		n.PositionX, n.PositionY = pl.X, pl.Y
		n.LayoutType = pl.Layout
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
