package graph

import "strings"

// edgeKey identifies an edge by what it connects. Ids are derived from the
// same fields but can collide, see EdgeID.
type edgeKey struct {
	source, target             string
	sourceAnchor, targetAnchor string
}

func keyOf(e Edge) edgeKey {
	return edgeKey{e.Source, e.Target, e.SourceAnchor, e.TargetAnchor}
}

// EdgeSet is an insertion-ordered set of edges keyed by endpoints and
// anchors.
type EdgeSet struct {
	order []edgeKey
	byKey map[edgeKey]Edge
}

// NewEdgeSet returns a set holding edges, first occurrence wins.
func NewEdgeSet(edges ...Edge) *EdgeSet {
	s := &EdgeSet{byKey: make(map[edgeKey]Edge, len(edges))}
	for _, e := range edges {
		s.Add(e)
	}
	return s
}

// Add inserts e unless an edge with the same endpoints and anchors is
// present. It reports whether e was inserted.
func (s *EdgeSet) Add(e Edge) bool {
	k := keyOf(e)
	if _, ok := s.byKey[k]; ok {
		return false
	}
	s.byKey[k] = e
	s.order = append(s.order, k)
	return true
}

// Get looks up an edge by id. An id shared by several edges matches none.
func (s *EdgeSet) Get(id string) (Edge, bool) {
	var (
		found Edge
		n     int
	)
	for _, k := range s.order {
		if e := s.byKey[k]; e.ID == id {
			found = e
			n++
		}
	}
	return found, n == 1
}

// Resolve looks up id, falling back to the edge between the same pair of
// notes when id names other anchors. Anchors are not derivable from note
// content, so an id handed out for a manually drawn edge only matches an
// edge in a freshly built set by its endpoints. The fallback gives up when
// more than one pair matches.
func (s *EdgeSet) Resolve(id string) (Edge, bool) {
	if e, ok := s.Get(id); ok {
		return e, true
	}
	var (
		found Edge
		n     int
	)
	seen := make(map[[2]string]bool)
	for _, k := range s.order {
		pair := [2]string{k.source, k.target}
		if seen[pair] || !strings.HasPrefix(id, pairPrefix(k.source, k.target)) {
			continue
		}
		seen[pair] = true
		found = s.byKey[k]
		n++
	}
	return found, n == 1
}

// Has reports whether exactly one edge carries id.
func (s *EdgeSet) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// RemoveFunc deletes every edge for which fn returns true and returns the
// removed edges.
func (s *EdgeSet) RemoveFunc(fn func(Edge) bool) []Edge {
	var removed []Edge
	kept := s.order[:0]
	for _, k := range s.order {
		e := s.byKey[k]
		if fn(e) {
			removed = append(removed, e)
			delete(s.byKey, k)
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	return removed
}

// Len returns the number of edges.
func (s *EdgeSet) Len() int { return len(s.order) }

// Edges returns the edges in insertion order. The slice is a copy and never nil.
func (s *EdgeSet) Edges() []Edge {
	out := make([]Edge, len(s.order))
	for i, k := range s.order {
		out[i] = s.byKey[k]
	}
	return out
}
