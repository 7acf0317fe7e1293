// Package parser reads and writes vault note files: a YAML frontmatter block
// carrying note metadata followed by the note content.
package parser

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/reference"
)

const delim = "---"

// Frontmatter is the metadata header of a note file.
type Frontmatter struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	Notebook  string    `yaml:"notebook,omitempty"`
	Trashed   bool      `yaml:"trashed,omitempty"`
	Archived  bool      `yaml:"archived,omitempty"`
	PositionX *float64  `yaml:"position_x,omitempty"`
	PositionY *float64  `yaml:"position_y,omitempty"`
	Layout    string    `yaml:"layout,omitempty"`
	Created   time.Time `yaml:"created,omitempty"`
	Updated   time.Time `yaml:"updated,omitempty"`
}

// Parse decodes a note file. filePath supplies the id when the frontmatter
// has none. A missing or invalid frontmatter block is not an error: the
// whole file becomes the content.
func Parse(filePath string, data []byte) (*models.Note, error) {
	fm, body := splitFrontmatter(data)

	n := &models.Note{Content: body}
	if fm != nil {
		n.ID = fm.ID
		n.Title = fm.Title
		n.NotebookID = fm.Notebook
		n.IsTrashed = fm.Trashed
		n.IsArchived = fm.Archived
		n.LayoutType = fm.Layout
		n.CreatedAt = fm.Created
		n.UpdatedAt = fm.Updated
		// Half a position is no position.
		if fm.PositionX != nil && fm.PositionY != nil {
			n.PositionX, n.PositionY = fm.PositionX, fm.PositionY
		}
	}
	if n.ID == "" {
		n.ID = idFromPath(filePath)
	}
	if n.Title == "" {
		n.Title = deriveTitle(body)
	}
	return n, nil
}

// pathNamespace seeds the ids of files that carry no usable id.
var pathNamespace = uuid.MustParse("5b0c6f0e-2d1a-4c8e-9f53-7a1e4b2d9c60")

// idFromPath returns the filename stem when it can appear in a reference
// token, otherwise a name-based UUID of the path. Both are stable across
// re-indexing.
func idFromPath(filePath string) string {
	stem := strings.TrimSuffix(path.Base(filePath), ".md")
	if reference.ValidID(stem) {
		return stem
	}
	return uuid.NewSHA1(pathNamespace, []byte(filePath)).String()
}

// Render encodes n as a note file. Parse(Render(n)) reproduces the content
// byte for byte.
func Render(n *models.Note) ([]byte, error) {
	fm := Frontmatter{
		ID:       n.ID,
		Title:    n.Title,
		Notebook: n.NotebookID,
		Trashed:  n.IsTrashed,
		Archived: n.IsArchived,
		Layout:   n.LayoutType,
		Created:  n.CreatedAt.UTC(),
		Updated:  n.UpdatedAt.UTC(),
	}
	if n.HasPosition() {
		fm.PositionX, fm.PositionY = n.PositionX, n.PositionY
	}
	head, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(head)
	buf.WriteString(delim + "\n")
	buf.WriteString(n.Content)
	return buf.Bytes(), nil
}

// splitFrontmatter separates the YAML block between leading --- delimiters
// from the content. Exactly one newline after the closing delimiter belongs
// to the delimiter line.
func splitFrontmatter(data []byte) (*Frontmatter, string) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	switch {
	case bytes.HasPrefix(after, []byte("\r\n")):
		after = after[2:]
	case bytes.HasPrefix(after, []byte("\n")):
		after = after[1:]
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, string(data)
	}
	return &fm, string(after)
}

// deriveTitle returns the first H1 heading of body, or "".
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
