package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/geometry"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-topoview/internal/repository"
	"github.com/kubilitics/kubilitics-topoview/internal/topology"
)

// ErrInvalidInput is returned for malformed or unknown client input.
var ErrInvalidInput = errors.New("invalid input")

// Input event types accepted from clients.
const (
	InputPointerMove = "pointermove"
	InputDragStart   = "dragstart"
	InputDragMove    = "dragmove"
	InputDragEnd     = "dragend"
	InputZoom        = "zoom"
	InputFocus       = "focus"
	InputUnfocus     = "unfocus"
	InputUnpin       = "unpin"
	InputSaveLayout  = "savelayout"
)

// Message types sent to clients.
const (
	MessageFrame = "frame"
	MessageFocus = "focus"
	MessageError = "error"
)

// Input is one pointer, zoom or focus event of a client. Coordinates are in
// screen space.
type Input struct {
	Type      string  `json:"type"`
	PointerID int     `json:"pointerId,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	K         float64 `json:"k,omitempty"`
	Layer     string  `json:"layer,omitempty"`
	ID        string  `json:"id,omitempty"`
}

// FocusEvent reports the record of a newly focused datum, or a nil record
// when focus is cleared.
type FocusEvent struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

// Message is sent to a client.
type Message struct {
	Type  string        `json:"type"`
	Frame *engine.Frame `json:"frame,omitempty"`
	Focus *FocusEvent   `json:"focus,omitempty"`
	Error string        `json:"error,omitempty"`
}

var focusKinds = []string{
	models.KindPod,
	models.KindService,
	models.KindReplicaSet,
	models.KindStatefulSet,
	models.KindDaemonSet,
	models.KindDeployment,
	models.KindAllowedRoute,
}

// Session drives one view for one client: dataset updates and client input go
// into its engine, frames and focus events come out through send.
type Session struct {
	view      string
	namespace string
	engine    *engine.GraphEngine
	datasets  DatasetService
	layouts   repository.LayoutRepository
	send      func(Message)
	handlers  graph.FocusHandlers
	log       *slog.Logger
}

// NewSession creates a session for a view. layouts may be nil, in which case
// pins are not persisted. send is called from the engine goroutine.
func NewSession(view, namespace string, datasets DatasetService, layouts repository.LayoutRepository, opts engine.Options, send func(Message)) (*Session, error) {
	variant, err := topology.NewVariant(view)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		view:      view,
		namespace: namespace,
		datasets:  datasets,
		layouts:   layouts,
		send:      send,
		log:       log.With("view", view, "namespace", namespace),
	}
	s.handlers = graph.FocusHandlers{}
	for _, kind := range focusKinds {
		s.handlers[kind] = func(rec any) {
			s.send(Message{Type: MessageFocus, Focus: &FocusEvent{Kind: kind, Record: rec}})
		}
	}
	s.engine = engine.New(variant, engine.RendererFunc(func(fr engine.Frame) {
		s.send(Message{Type: MessageFrame, Frame: &fr})
	}), opts)
	return s, nil
}

// View returns the view name.
func (s *Session) View() string { return s.view }

// Run restores the stored layout, then runs the engine and feeds it every
// published dataset until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if s.layouts != nil {
		layout, err := s.layouts.GetLayout(ctx, s.view)
		switch {
		case err == nil:
			s.engine.ApplyPins(layout.Pins)
		case errors.Is(err, repository.ErrNotFound):
		default:
			s.log.Warn("failed to load layout", "error", err)
		}
	}

	updates, unsubscribe := s.datasets.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.engine.Run(gctx) })
	g.Go(func() error {
		for {
			if err := s.refresh(gctx); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return nil
			case <-updates:
			}
		}
	})
	err := g.Wait()
	s.engine.Destroy()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Session) refresh(ctx context.Context) error {
	ds, gen, err := s.datasets.Dataset(ctx, s.namespace)
	if errors.Is(err, ErrNoDataset) {
		return nil
	}
	if err != nil {
		return err
	}
	ctx, span := tracing.StartSpan(ctx, "engine.update")
	defer span.End()
	return s.engine.Do(ctx, func(e *engine.GraphEngine) error {
		changed, err := e.Update(ds, s.handlers)
		if err != nil {
			return fmt.Errorf("update %s to generation %d: %w", s.view, gen, err)
		}
		s.log.Debug("session updated", "generation", gen, "changed", changed)
		return nil
	})
}

// Handle applies one client input. Pins are persisted after the engine has
// applied the gesture.
func (s *Session) Handle(ctx context.Context, in Input) error {
	pt := geometry.Point{X: in.X, Y: in.Y}
	ref := graph.Ref{Layer: in.Layer, ID: in.ID}

	switch in.Type {
	case InputPointerMove:
		return s.engine.Do(ctx, func(e *engine.GraphEngine) error { return e.PointerMove(pt) })
	case InputDragStart:
		return s.engine.Dispatch(ctx, func(e *engine.GraphEngine) { e.DragStart(in.PointerID, pt) })
	case InputDragMove:
		return s.engine.Dispatch(ctx, func(e *engine.GraphEngine) { e.DragMove(in.PointerID, pt) })
	case InputDragEnd:
		var pin *models.Pin
		err := s.engine.Do(ctx, func(e *engine.GraphEngine) error {
			d, ok := e.DragEnd(in.PointerID)
			if ok && d.Pinned && d.Fixed() {
				pin = &models.Pin{Layer: d.LayerName, ID: d.ID, X: *d.FX, Y: *d.FY}
			}
			return nil
		})
		if err != nil || pin == nil || s.layouts == nil {
			return err
		}
		return s.layouts.UpsertPins(ctx, s.view, []models.Pin{*pin})
	case InputZoom:
		return s.engine.Dispatch(ctx, func(e *engine.GraphEngine) { e.Zoom(engine.Transform{K: in.K, X: in.X, Y: in.Y}) })
	case InputFocus:
		if ref.IsZero() {
			return fmt.Errorf("%w: focus without layer and id", ErrInvalidInput)
		}
		return s.engine.Do(ctx, func(e *engine.GraphEngine) error { return e.Focus(ref) })
	case InputUnfocus:
		return s.engine.Dispatch(ctx, func(e *engine.GraphEngine) { e.Unfocus() })
	case InputUnpin:
		if err := s.engine.Do(ctx, func(e *engine.GraphEngine) error { return e.Unpin(ref) }); err != nil {
			return err
		}
		if s.layouts == nil {
			return nil
		}
		return s.layouts.DeletePin(ctx, s.view, ref.Layer, ref.ID)
	case InputSaveLayout:
		var pins []models.Pin
		if err := s.engine.Do(ctx, func(e *engine.GraphEngine) error {
			pins = e.Pins()
			return nil
		}); err != nil {
			return err
		}
		if s.layouts == nil {
			return nil
		}
		return s.layouts.SaveLayout(ctx, &models.Layout{View: s.view, Pins: pins})
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}
}
