package engine

import (
	"github.com/kubilitics/kubilitics-topoview/internal/geometry"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
)

// Transform is a zoom transform: screen = K*p + (X, Y).
type Transform struct {
	K float64 `json:"k"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Identity is the neutral transform.
var Identity = Transform{K: 1}

// Invert maps a screen point into simulation space.
func (t Transform) Invert(p geometry.Point) geometry.Point {
	return geometry.Point{X: (p.X - t.X) / t.K, Y: (p.Y - t.Y) / t.K}
}

// Apply maps a simulation point onto the screen.
func (t Transform) Apply(p geometry.Point) geometry.Point {
	return geometry.Point{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

// ItemFrame is the render state of one item. Sizes are in simulation units
// and already divided by the zoom factor, so they stay constant on screen.
type ItemFrame struct {
	Layer         string  `json:"layer"`
	ID            string  `json:"id"`
	Label         string  `json:"label"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Scale         float64 `json:"scale"`
	Radius        float64 `json:"radius"`
	FontSize      float64 `json:"fontSize"`
	LetterSpacing float64 `json:"letterSpacing"`
	Class         string  `json:"class"`
	Pinned        bool    `json:"pinned,omitempty"`
}

// LinkFrame is the render state of one link.
type LinkFrame struct {
	Layer       string  `json:"layer"`
	ID          string  `json:"id"`
	SourceX     float64 `json:"sourceX"`
	SourceY     float64 `json:"sourceY"`
	TargetX     float64 `json:"targetX"`
	TargetY     float64 `json:"targetY"`
	StrokeWidth float64 `json:"strokeWidth"`
	Class       string  `json:"class"`
}

// Frame is everything a surface needs to draw one tick.
type Frame struct {
	View      string      `json:"view"`
	Transform Transform   `json:"transform"`
	Alpha     float64     `json:"alpha"`
	Focus     *graph.Ref  `json:"focus,omitempty"`
	Items     []ItemFrame `json:"items"`
	Links     []LinkFrame `json:"links"`
}

// Renderer receives a frame after every tick and after zoom or focus changes.
type Renderer interface {
	Render(Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Frame)

func (f RendererFunc) Render(fr Frame) { f(fr) }

// Frame snapshots the current render state.
func (e *GraphEngine) Frame() Frame {
	k := e.transform.K
	fr := Frame{
		View:      e.variant.Name(),
		Transform: e.transform,
		Items:     make([]ItemFrame, 0, e.itemCount()),
	}
	if e.sim != nil {
		fr.Alpha = e.sim.Alpha()
	}
	if e.focused != nil {
		ref := e.focused.Ref()
		fr.Focus = &ref
	}
	for _, l := range e.items {
		for _, d := range l.Data {
			fr.Items = append(fr.Items, ItemFrame{
				Layer:         l.Name,
				ID:            d.ID,
				Label:         d.DisplayName,
				X:             d.X,
				Y:             d.Y,
				Scale:         1 / k,
				Radius:        e.opts.ItemRadius / k,
				FontSize:      e.opts.FontSize / k,
				LetterSpacing: e.opts.LetterSpacing / k,
				Class:         d.State().Class(),
				Pinned:        d.Pinned,
			})
		}
	}
	for _, l := range e.links {
		for _, d := range l.Data {
			src, tgt := e.lookupItem(d.Source), e.lookupItem(d.Target)
			if src == nil || tgt == nil {
				continue
			}
			fr.Links = append(fr.Links, LinkFrame{
				Layer:       l.Name,
				ID:          d.ID,
				SourceX:     src.X,
				SourceY:     src.Y,
				TargetX:     tgt.X,
				TargetY:     tgt.Y,
				StrokeWidth: e.opts.StrokeWidth / k,
				Class:       d.State().Class(),
			})
		}
	}
	return fr
}

func (e *GraphEngine) itemCount() int {
	n := 0
	for _, l := range e.items {
		n += len(l.Data)
	}
	return n
}

func (e *GraphEngine) render() {
	if e.renderer == nil || !e.initialized {
		return
	}
	e.renderer.Render(e.Frame())
}
