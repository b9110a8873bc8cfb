// Package engine runs the shared force simulation behind every graph view and
// handles pointer, drag and zoom input on top of it.
//
// A GraphEngine is owned by one goroutine. The exported methods are
// synchronous and must not be called concurrently; Run serializes input coming
// from other goroutines through Dispatch.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/kubilitics/kubilitics-topoview/internal/force"
	"github.com/kubilitics/kubilitics-topoview/internal/geometry"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/metrics"
)

var (
	ErrNotInitialized = errors.New("engine not initialized")
	ErrDestroyed      = errors.New("engine destroyed")
)

// Variant is a concrete graph definition.
type Variant interface {
	Name() string
	ItemLayers() []*graph.Layer
	LinkLayers() []*graph.Layer
	// IsFocused decides whether candidate is related to focused.
	IsFocused(focused *graph.Datum, candidateLayer *graph.Layer, candidate *graph.Datum) (bool, error)
	// SortLayersDataForNiceDisplay reorders layer data after every reconciliation.
	SortLayersDataForNiceDisplay()
	// ConfigureSimulation registers variant specific forces. items is in node order.
	ConfigureSimulation(sim *force.Simulation, items []*graph.Datum)
}

// Relayouter is implemented by variants whose placement depends on the whole
// layer, so that every changing update re-places items that are not manually pinned.
type Relayouter interface {
	RelayoutOnChange() bool
}

type dragGesture struct {
	datum  *graph.Datum
	offset geometry.Point
}

// GraphEngine orchestrates layers, simulation, focus and input of one view.
type GraphEngine struct {
	variant  Variant
	opts     Options
	log      *slog.Logger
	renderer Renderer

	items  []*graph.Layer
	links  []*graph.Layer
	layers map[string]*graph.Layer

	sim       *force.Simulation
	linkForce *force.Links
	transform Transform

	handlers    graph.FocusHandlers
	focused     *graph.Datum
	drags       map[int]*dragGesture
	pendingPins map[graph.Ref]models.Pin

	initialized bool
	destroyed   bool
	loop        *loop
}

// New returns an engine for the variant. Init must be called before use.
func New(variant Variant, renderer Renderer, opts Options) *GraphEngine {
	opts = opts.withDefaults()
	e := &GraphEngine{
		variant:     variant,
		opts:        opts,
		log:         opts.Logger.With("view", variant.Name()),
		renderer:    renderer,
		layers:      map[string]*graph.Layer{},
		transform:   Identity,
		drags:       map[int]*dragGesture{},
		pendingPins: map[graph.Ref]models.Pin{},
		loop:        newLoop(),
	}
	e.items = variant.ItemLayers()
	e.links = variant.LinkLayers()
	for _, l := range e.items {
		e.layers[l.Name] = l
	}
	for _, l := range e.links {
		e.layers[l.Name] = l
	}
	return e
}

// Init creates the simulation and its base forces.
func (e *GraphEngine) Init() error {
	if e.destroyed {
		return ErrDestroyed
	}
	if e.initialized {
		return nil
	}
	e.sim = force.New(e.opts.Seed)
	if e.opts.AlphaDecay > 0 {
		e.sim.SetAlphaDecay(e.opts.AlphaDecay)
	}
	e.sim.SetForce("charge", force.NewManyBody(e.opts.Charge))
	e.linkForce = force.NewLinks(nil, e.opts.LinkDistance)
	e.sim.SetForce("link", e.linkForce)
	e.variant.ConfigureSimulation(e.sim, nil)
	e.initialized = true
	e.log.Debug("engine initialized")
	return nil
}

// Destroy stops the simulation and the event loop. It is safe to call twice.
func (e *GraphEngine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	if e.sim != nil {
		e.sim.Stop()
	}
	e.loop.stop()
	e.log.Debug("engine destroyed")
}

// Name returns the view name.
func (e *GraphEngine) Name() string { return e.variant.Name() }

// Simulation exposes the simulation for inspection.
func (e *GraphEngine) Simulation() *force.Simulation { return e.sim }

// Transform returns the current zoom transform.
func (e *GraphEngine) Transform() Transform { return e.transform }

// Layer returns a layer by name.
func (e *GraphEngine) Layer(name string) (*graph.Layer, bool) {
	l, ok := e.layers[name]
	return l, ok
}

// Datum returns the datum behind a reference.
func (e *GraphEngine) Datum(ref graph.Ref) (*graph.Datum, bool) {
	l, ok := e.layers[ref.Layer]
	if !ok {
		return nil, false
	}
	return l.Get(ref.ID)
}

func (e *GraphEngine) lookupItem(ref graph.Ref) *graph.Datum {
	l, ok := e.layers[ref.Layer]
	if !ok || l.Kind != graph.ItemKind {
		return nil
	}
	return l.Indexed[ref.ID]
}

// Update reconciles every layer against ds and feeds the result to the
// simulation. The simulation is reheated only when membership changed.
func (e *GraphEngine) Update(ds *models.Dataset, handlers graph.FocusHandlers) (bool, error) {
	if e.destroyed {
		return false, ErrDestroyed
	}
	if !e.initialized {
		return false, ErrNotInitialized
	}
	e.handlers = handlers

	changed := false
	created := map[*graph.Datum]bool{}
	for _, l := range e.items {
		res := graph.Reconcile(l, ds, nil)
		changed = changed || res.Changed
		for _, d := range res.Created {
			created[d] = true
		}
	}
	for _, l := range e.links {
		res := graph.Reconcile(l, ds, e.lookupItem)
		changed = changed || res.Changed
	}

	e.variant.SortLayersDataForNiceDisplay()
	e.place(created, changed)

	var (
		itemData []*graph.Datum
		nodes    []*force.Node
	)
	for _, l := range e.items {
		for _, d := range l.Data {
			itemData = append(itemData, d)
			nodes = append(nodes, &d.Node)
		}
	}
	var links []force.Link
	for _, l := range e.links {
		for _, d := range l.Data {
			links = append(links, force.Link{Source: &e.lookupItem(d.Source).Node, Target: &e.lookupItem(d.Target).Node})
		}
	}
	e.sim.SetNodes(nodes)
	e.linkForce.SetLinks(links)
	e.sim.SetForce("link", e.linkForce)
	e.variant.ConfigureSimulation(e.sim, itemData)

	metrics.EngineUpdatesTotal.WithLabelValues(e.variant.Name(), strconv.FormatBool(changed)).Inc()
	if changed {
		e.sim.SetAlpha(1)
		e.sim.Restart()
		metrics.SimulationRestartsTotal.WithLabelValues(e.variant.Name()).Inc()
	}

	if e.focused != nil {
		if current, ok := e.Datum(e.focused.Ref()); ok && current == e.focused {
			if err := e.applyFocus(); err != nil {
				return changed, err
			}
		} else {
			e.Unfocus()
		}
	}
	e.log.Debug("dataset reconciled", "changed", changed, "nodes", len(nodes), "links", len(links))
	return changed, nil
}

func (e *GraphEngine) place(created map[*graph.Datum]bool, changed bool) {
	relayout := false
	if r, ok := e.variant.(Relayouter); ok && changed {
		relayout = r.RelayoutOnChange()
	}
	for _, l := range e.items {
		for i, d := range l.Data {
			if l.Place != nil && (created[d] || (relayout && !d.Pinned)) {
				l.Place(d, i, l.Data)
			}
			if created[d] {
				if pin, ok := e.pendingPins[d.Ref()]; ok {
					d.PinAt(pin.X, pin.Y)
					delete(e.pendingPins, d.Ref())
				}
			}
		}
	}
}

// Tick advances the simulation once and renders. It returns false when the
// simulation is cold.
func (e *GraphEngine) Tick() bool {
	if e.sim == nil || !e.sim.Step() {
		return false
	}
	metrics.SimulationTicksTotal.WithLabelValues(e.variant.Name()).Inc()
	e.render()
	return true
}

// Zoom applies a zoom transform, clamping the factor to the configured range.
func (e *GraphEngine) Zoom(t Transform) {
	t.K = e.opts.ClampZoom(t.K)
	e.transform = t
	e.render()
}

func (e *GraphEngine) hitBound() float64 {
	return e.opts.FocusThreshold / e.transform.K
}

func (e *GraphEngine) closestItem(p geometry.Point, bound float64) *graph.Datum {
	var candidates []*graph.Datum
	for _, l := range e.items {
		candidates = append(candidates, l.Data...)
	}
	i := geometry.Closest(candidates, bound, func(d *graph.Datum) float64 {
		return geometry.Distance(p, geometry.Point{X: d.X, Y: d.Y})
	})
	if i < 0 {
		return nil
	}
	return candidates[i]
}

func (e *GraphEngine) closestLink(p geometry.Point, bound float64) *graph.Datum {
	var candidates []*graph.Datum
	for _, l := range e.links {
		candidates = append(candidates, l.Data...)
	}
	i := geometry.Closest(candidates, bound, func(d *graph.Datum) float64 {
		src, tgt := e.lookupItem(d.Source), e.lookupItem(d.Target)
		if src == nil || tgt == nil {
			return math.Inf(1)
		}
		return geometry.DistanceToSegment(p, geometry.Segment{
			A: geometry.Point{X: src.X, Y: src.Y},
			B: geometry.Point{X: tgt.X, Y: tgt.Y},
		})
	})
	if i < 0 {
		return nil
	}
	return candidates[i]
}

// PointerMove hit-tests a screen point: the closest item wins, then the
// closest link; nothing in range unfocuses.
func (e *GraphEngine) PointerMove(screen geometry.Point) error {
	p := e.transform.Invert(screen)
	bound := e.hitBound()
	target := e.closestItem(p, bound)
	if target == nil {
		target = e.closestLink(p, bound)
	}
	if target == nil {
		e.Unfocus()
		return nil
	}
	return e.Focus(target.Ref())
}

// FocusState returns the focused reference, if any.
func (e *GraphEngine) FocusState() (graph.Ref, bool) {
	if e.focused == nil {
		return graph.Ref{}, false
	}
	return e.focused.Ref(), true
}

// Focus focuses the referenced datum. It is a no-op when the datum is already
// focused or while a drag is active.
func (e *GraphEngine) Focus(ref graph.Ref) error {
	if e.focused != nil && e.focused.Ref() == ref {
		return nil
	}
	if len(e.drags) > 0 {
		return nil
	}
	l, ok := e.layers[ref.Layer]
	if !ok {
		return fmt.Errorf("focus layer %q: %w", ref.Layer, graph.ErrUnknownDatum)
	}
	d, ok := l.Get(ref.ID)
	if !ok {
		return fmt.Errorf("focus %s/%s: %w", ref.Layer, ref.ID, graph.ErrUnknownDatum)
	}
	e.Unfocus()
	e.focused = d
	if h := graph.ResolveHandler(l.FocusHandler, e.handlers, d); h != nil {
		h(d.SourceData)
	}
	metrics.FocusChangesTotal.WithLabelValues(e.variant.Name()).Inc()
	if err := e.applyFocus(); err != nil {
		return err
	}
	e.render()
	return nil
}

func (e *GraphEngine) applyFocus() error {
	for _, l := range e.layers {
		for _, d := range l.Data {
			ok, err := e.variant.IsFocused(e.focused, l, d)
			if err != nil {
				return fmt.Errorf("evaluate focus of %s/%s: %w", l.Name, d.ID, err)
			}
			if ok {
				d.Focus = graph.Focused
			} else {
				d.Focus = graph.Faded
			}
		}
	}
	return nil
}

// Unfocus clears the focus and restores every datum.
func (e *GraphEngine) Unfocus() {
	if e.focused != nil {
		prev := e.focused
		e.focused = nil
		if l, ok := e.layers[prev.LayerName]; ok {
			if h := graph.ResolveHandler(l.FocusHandler, e.handlers, prev); h != nil {
				h(nil)
			}
		}
		e.render()
	}
	for _, l := range e.layers {
		for _, d := range l.Data {
			d.Focus = graph.Unfocused
		}
	}
}

// DragStart grabs the closest item under a pointer and pins it. The first
// concurrent gesture keeps the simulation warm. It returns false when no item
// is in range or the pointer is already dragging.
func (e *GraphEngine) DragStart(pointerID int, screen geometry.Point) bool {
	if _, active := e.drags[pointerID]; active {
		return false
	}
	if !e.initialized {
		return false
	}
	p := e.transform.Invert(screen)
	d := e.closestItem(p, e.hitBound())
	if d == nil {
		return false
	}
	e.Unfocus()
	if len(e.drags) == 0 {
		e.sim.SetAlphaTarget(e.opts.WarmAlphaTarget)
		e.sim.Restart()
	}
	e.drags[pointerID] = &dragGesture{datum: d, offset: geometry.Point{X: d.X - p.X, Y: d.Y - p.Y}}
	d.PinAt(d.X, d.Y)
	return true
}

// DragMove re-pins the dragged item under the pointer.
func (e *GraphEngine) DragMove(pointerID int, screen geometry.Point) {
	g, ok := e.drags[pointerID]
	if !ok {
		return
	}
	p := e.transform.Invert(screen)
	g.datum.PinAt(p.X+g.offset.X, p.Y+g.offset.Y)
}

// DragEnd releases a gesture. The item stays pinned; the last gesture lets
// the simulation cool down again. It returns the dropped item, or false when
// an update removed it during the gesture.
func (e *GraphEngine) DragEnd(pointerID int) (*graph.Datum, bool) {
	g, ok := e.drags[pointerID]
	if !ok {
		return nil, false
	}
	delete(e.drags, pointerID)
	if len(e.drags) == 0 {
		e.sim.SetAlphaTarget(0)
	}
	if e.lookupItem(g.datum.Ref()) != g.datum {
		return nil, false
	}
	return g.datum, true
}

// Dragging reports the number of active gestures.
func (e *GraphEngine) Dragging() int { return len(e.drags) }

// Unpin releases a manual pin.
func (e *GraphEngine) Unpin(ref graph.Ref) error {
	d := e.lookupItem(ref)
	if d == nil {
		return fmt.Errorf("unpin %s/%s: %w", ref.Layer, ref.ID, graph.ErrUnknownDatum)
	}
	d.Unpin()
	if e.sim != nil {
		e.sim.SetAlpha(math.Max(e.sim.Alpha(), e.opts.WarmAlphaTarget))
		e.sim.Restart()
	}
	return nil
}

// Pins returns every manual pin.
func (e *GraphEngine) Pins() []models.Pin {
	var pins []models.Pin
	for _, l := range e.items {
		for _, d := range l.Data {
			if d.Pinned && d.Fixed() {
				pins = append(pins, models.Pin{Layer: l.Name, ID: d.ID, X: *d.FX, Y: *d.FY})
			}
		}
	}
	return pins
}

// ApplyPins pins existing items and remembers the others until they appear.
func (e *GraphEngine) ApplyPins(pins []models.Pin) {
	for _, pin := range pins {
		ref := graph.Ref{Layer: pin.Layer, ID: pin.ID}
		if d := e.lookupItem(ref); d != nil {
			d.PinAt(pin.X, pin.Y)
			continue
		}
		e.pendingPins[ref] = pin
	}
}
