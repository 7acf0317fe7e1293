// Package layout assigns canvas coordinates to graph nodes using simple
// deterministic strategies.
package layout

import (
	"fmt"
	"math"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/models"
)

// Type names a layout strategy.
type Type string

// Layout strategies.
const (
	Circular   Type = "circular"
	Grid       Type = "grid"
	Horizontal Type = "horizontal"
	Vertical   Type = "vertical"
)

// Default is used when no layout has been chosen.
const Default = Circular

const maxRadius = 400

// Types lists every supported strategy.
func Types() []Type {
	return []Type{Circular, Grid, Horizontal, Vertical}
}

// ParseType validates s. An empty string selects Default.
func ParseType(s string) (Type, error) {
	if s == "" {
		return Default, nil
	}
	for _, t := range Types() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("layout: unknown type %q: %w", s, apperr.ErrInvalidArgument)
}

// Viewport is the canvas size the formulas scale to.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultViewport is used when the client does not report its size.
var DefaultViewport = Viewport{Width: 1200, Height: 800}

// Compute returns the formula position of the node at index out of total.
func Compute(index, total int, t Type, vp Viewport) graph.Position {
	w, h := vp.Width, vp.Height
	i := float64(index)

	switch t {
	case Grid:
		cols := int(math.Ceil(math.Sqrt(float64(total))))
		if cols < 1 {
			cols = 1
		}
		col, row := index%cols, index/cols
		return graph.Position{X: float64(col) * (w / 4), Y: float64(row) * (h / 4)}
	case Horizontal:
		return graph.Position{X: i * (w / 4), Y: h/4 + math.Sin(i)*(h/8)}
	case Vertical:
		return graph.Position{X: w/4 + math.Sin(i)*(w/8), Y: i * (h / 4)}
	default:
		radius := math.Min(math.Min(w, h)/3, maxRadius)
		var angle float64
		if total > 0 {
			angle = i * 2 * math.Pi / float64(total)
		}
		return graph.Position{
			X: math.Cos(angle)*radius + radius + w/4,
			Y: math.Sin(angle)*radius + radius + h/4,
		}
	}
}

// Position returns the stored position of n when it was computed under t,
// otherwise the formula position.
func Position(n *models.Note, index, total int, t Type, vp Viewport) graph.Position {
	if n != nil && n.HasPosition() && Type(n.LayoutType) == t {
		return graph.Position{X: *n.PositionX, Y: *n.PositionY}
	}
	return Compute(index, total, t, vp)
}

// Apply positions nodes in place.
func Apply(nodes []graph.Node, t Type, vp Viewport) {
	for i := range nodes {
		nodes[i].Position = Position(nodes[i].Note, i, len(nodes), t, vp)
	}
}
