package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notegraph/internal/controller"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/layout"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/reference"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title      string `json:"title" example:"Hello" validate:"required"`
	Content    string `json:"content" example:"Body text"`
	NotebookID string `json:"notebook_id,omitempty" example:"work"`
}

// PositionRequest sets or clears the stored position of a note. Null X and Y
// clear it.
type PositionRequest struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Layout string   `json:"layout" example:"grid"`
}

// UpdateNoteRequest is the request body for patching a note. Absent fields
// are left untouched.
type UpdateNoteRequest struct {
	Title      *string          `json:"title,omitempty"`
	Content    *string          `json:"content,omitempty"`
	NotebookID *string          `json:"notebook_id,omitempty"`
	IsTrashed  *bool            `json:"is_trashed,omitempty"`
	IsArchived *bool            `json:"is_archived,omitempty"`
	Position   *PositionRequest `json:"position,omitempty"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// ReferencesResponse lists the outgoing references and the backlinks of a note.
type ReferencesResponse struct {
	References []reference.Reference `json:"references"`
	Backlinks  []string              `json:"backlinks"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// GraphView is the rendered graph returned by the graph endpoints.
type GraphView = controller.View

// ConnectRequest creates an edge by appending a reference to the source note.
type ConnectRequest struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceAnchor string `json:"source_anchor,omitempty" example:"source-bottom"`
	TargetAnchor string `json:"target_anchor,omitempty" example:"target-top"`
	Notebook     string `json:"notebook,omitempty"`
}

// MoveRequest persists a dragged node position.
type MoveRequest struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Layout   string  `json:"layout" example:"circular"`
	Notebook string  `json:"notebook,omitempty"`
}

// LayoutRequest switches the graph layout and clears stored positions.
type LayoutRequest struct {
	Layout   string  `json:"layout" example:"grid" validate:"required"`
	Notebook string  `json:"notebook,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
}

var layoutNames = []any{
	string(layout.Circular), string(layout.Grid), string(layout.Horizontal), string(layout.Vertical),
}

// Validate checks the request.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required),
	)
}

// Validate checks the request.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty),
		validation.Field(&r.Position),
	)
}

// Validate checks the request.
func (r PositionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Layout, validation.In(layoutNames...)),
	)
}

// Validate checks the request.
func (r ConnectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Target, validation.Required),
	)
}

// Validate checks the request.
func (r MoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Layout, validation.Required, validation.In(layoutNames...)),
	)
}

// Validate checks the request.
func (r LayoutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Layout, validation.Required, validation.In(layoutNames...)),
		validation.Field(&r.Width, validation.Min(0.0)),
		validation.Field(&r.Height, validation.Min(0.0)),
	)
}
