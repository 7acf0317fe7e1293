// Package graph derives the reference graph (nodes = notes, edges =
// references) from a note collection.
package graph

import (
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/reference"
)

// Anchors used for edges derived from note content.
const (
	DefaultSourceAnchor = "source-bottom"
	DefaultTargetAnchor = "target-top"
)

// Position is a 2D coordinate on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one eligible note.
type Node struct {
	ID         string       `json:"id"`
	Label      string       `json:"label"`
	NotebookID string       `json:"notebook_id,omitempty"`
	Position   Position     `json:"position"`
	Note       *models.Note `json:"-"`
}

// Edge is a reference from Source to Target.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceAnchor string `json:"source_anchor"`
	TargetAnchor string `json:"target_anchor"`
}

// Graph is the derived, never persisted, graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// EdgeID returns the deterministic id of an edge. Parts are joined with
// hyphens, which note ids may contain too, so distinct edges over
// non-UUID ids can collide ("a-b"->"c" and "a"->"b-c"). EdgeSet keys edges
// by endpoints and anchors, and its id lookups refuse ambiguous matches.
func EdgeID(source, target, sourceAnchor, targetAnchor string) string {
	return pairPrefix(source, target) + sourceAnchor + "-" + targetAnchor
}

func pairPrefix(source, target string) string {
	return "edge-" + source + "-" + target + "-"
}

// NewEdge builds an edge, substituting the default anchors for empty ones.
func NewEdge(source, target, sourceAnchor, targetAnchor string) Edge {
	if sourceAnchor == "" {
		sourceAnchor = DefaultSourceAnchor
	}
	if targetAnchor == "" {
		targetAnchor = DefaultTargetAnchor
	}
	return Edge{
		ID:           EdgeID(source, target, sourceAnchor, targetAnchor),
		Source:       source,
		Target:       target,
		SourceAnchor: sourceAnchor,
		TargetAnchor: targetAnchor,
	}
}

// Eligible returns the notes that are neither trashed nor archived.
func Eligible(notes []models.Note) []models.Note {
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if n.Eligible() {
			out = append(out, n)
		}
	}
	return out
}

// Index maps note ids to notes. The returned pointers alias notes.
func Index(notes []models.Note) map[string]*models.Note {
	byID := make(map[string]*models.Note, len(notes))
	for i := range notes {
		byID[notes[i].ID] = &notes[i]
	}
	return byID
}

// ResolveReferences returns the ids referenced by note that exist in
// eligible, deduplicated, in first-seen order. Dangling references are
// dropped.
func ResolveReferences(note *models.Note, eligible map[string]*models.Note) []string {
	ids := reference.ExtractIDs(note.Content)
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, ok := eligible[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// BuildNodes returns one unpositioned node per note, in input order.
func BuildNodes(notes []models.Note) []Node {
	nodes := make([]Node, len(notes))
	for i := range notes {
		n := &notes[i]
		nodes[i] = Node{
			ID:         n.ID,
			Label:      n.Title,
			NotebookID: n.NotebookID,
			Note:       n,
		}
	}
	return nodes
}

// BuildEdges resolves the references of every note against notes and
// returns the deduplicated edge list under the default anchors.
func BuildEdges(notes []models.Note) []Edge {
	byID := Index(notes)
	set := NewEdgeSet()
	for i := range notes {
		src := &notes[i]
		for _, target := range ResolveReferences(src, byID) {
			set.Add(NewEdge(src.ID, target, DefaultSourceAnchor, DefaultTargetAnchor))
		}
	}
	return set.Edges()
}

// Build returns nodes and edges for notes. Callers filter scope beforehand.
func Build(notes []models.Note) Graph {
	return Graph{
		Nodes: BuildNodes(notes),
		Edges: BuildEdges(notes),
	}
}
