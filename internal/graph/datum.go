// Package graph reconciles domain collections into layers of physics-bound datums.
package graph

import (
	"errors"
	"math"

	"github.com/kubilitics/kubilitics-topoview/internal/force"
)

// ErrUnknownDatum is returned when a layer/id pair has no indexed datum.
var ErrUnknownDatum = errors.New("unknown datum")

// Ref identifies a datum across layers.
type Ref struct {
	Layer string `json:"layer"`
	ID    string `json:"id"`
}

// IsZero reports whether r is the empty reference.
func (r Ref) IsZero() bool { return r.Layer == "" && r.ID == "" }

// Attrs are the attributes a mapper derives from one domain record. They are
// merged onto an existing datum on every reconciliation.
type Attrs struct {
	DisplayName string
	Highlighted bool
	SourceData  any
	// Source and Target are only set for link layers.
	Source Ref
	Target Ref
}

// Datum is the physics-bound representation of one domain entity. Its Node is
// owned by the simulation once the datum is fed to it. New datums start at NaN
// so that the simulation or a placement positions them.
type Datum struct {
	force.Node

	ID          string
	LayerName   string
	DisplayName string
	Highlighted bool
	SourceData  any

	// Pinned marks a manual pin from a drag. Placement pins leave it false.
	Pinned bool

	Source Ref
	Target Ref

	Focus FocusClass
}

func newDatum(layer, id string, attrs Attrs) *Datum {
	d := &Datum{ID: id, LayerName: layer}
	d.X, d.Y = math.NaN(), math.NaN()
	d.merge(attrs)
	return d
}

func (d *Datum) merge(attrs Attrs) {
	d.DisplayName = attrs.DisplayName
	d.Highlighted = attrs.Highlighted
	d.SourceData = attrs.SourceData
	d.Source = attrs.Source
	d.Target = attrs.Target
}

// Ref returns the datum reference.
func (d *Datum) Ref() Ref { return Ref{Layer: d.LayerName, ID: d.ID} }

// PinAt fixes the datum at (x, y) as a manual pin.
func (d *Datum) PinAt(x, y float64) {
	d.Fix(x, y)
	d.Pinned = true
}

// Unpin releases a manual pin.
func (d *Datum) Unpin() {
	d.Release()
	d.Pinned = false
}

// State returns the visual state of the datum.
func (d *Datum) State() VisualState {
	return VisualState{Focus: d.Focus, Highlighted: d.Highlighted}
}

// FocusClass is the focus related visual class of a datum.
type FocusClass int

const (
	Unfocused FocusClass = iota
	Focused
	Faded
)

// VisualState combines the focus class with the domain highlight flag.
type VisualState struct {
	Focus       FocusClass
	Highlighted bool
}

// Class returns the CSS-like class list of the state.
func (v VisualState) Class() string {
	var class string
	switch v.Focus {
	case Focused:
		class = "focused"
	case Faded:
		class = "faded"
	}
	if v.Highlighted {
		if class != "" {
			return class + " highlighted"
		}
		return "highlighted"
	}
	return class
}
