// Package models defines the domain types for notegraph.
package models

import "time"

// Note is a single note stored in the vault.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	NotebookID string    `json:"notebook_id,omitempty"`
	IsTrashed  bool      `json:"is_trashed"`
	IsArchived bool      `json:"is_archived"`
	PositionX  *float64  `json:"position_x"`
	PositionY  *float64  `json:"position_y"`
	LayoutType string    `json:"layout_type,omitempty"` // empty when never positioned
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Eligible reports whether the note takes part in the reference graph.
func (n *Note) Eligible() bool {
	return !n.IsTrashed && !n.IsArchived
}

// HasPosition reports whether both persisted coordinates are set.
func (n *Note) HasPosition() bool {
	return n.PositionX != nil && n.PositionY != nil
}

// NoteMetadata is a lightweight representation of a vault file.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope narrows a note listing.
type Scope struct {
	NotebookID      string
	IncludeTrashed  bool
	IncludeArchived bool
}

// Placement is the persisted layout state of a note. X and Y are written
// together; nil clears them.
type Placement struct {
	X      *float64
	Y      *float64
	Layout string
}

// NotePatch is a partial note update. Nil fields are left untouched.
type NotePatch struct {
	Title      *string
	Content    *string
	NotebookID *string
	IsTrashed  *bool
	IsArchived *bool
	Placement  *Placement
	// IfMatch, when non-empty, must equal the current file checksum.
	IfMatch string
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
