package service

import (
	"context"
	"errors"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/repository"
	"github.com/kubilitics/kubilitics-topoview/internal/topology"
)

// DefaultSnapshotTicks is the number of simulation steps of a snapshot.
const DefaultSnapshotTicks = 300

// RenderSnapshot lays a view out without a client: stored pins are applied,
// the simulation runs ticks steps and the resulting frame is returned.
func RenderSnapshot(ctx context.Context, datasets DatasetService, layouts repository.LayoutRepository, view, namespace string, ticks int, opts engine.Options) (engine.Frame, error) {
	variant, err := topology.NewVariant(view)
	if err != nil {
		return engine.Frame{}, err
	}
	ds, _, err := datasets.Dataset(ctx, namespace)
	if err != nil {
		return engine.Frame{}, err
	}
	e := engine.New(variant, nil, opts)
	defer e.Destroy()
	if err := e.Init(); err != nil {
		return engine.Frame{}, err
	}
	if layouts != nil {
		layout, err := layouts.GetLayout(ctx, view)
		switch {
		case err == nil:
			e.ApplyPins(layout.Pins)
		case !errors.Is(err, repository.ErrNotFound):
			return engine.Frame{}, err
		}
	}
	if _, err := e.Update(ds, nil); err != nil {
		return engine.Frame{}, err
	}
	if ticks <= 0 {
		ticks = DefaultSnapshotTicks
	}
	e.Simulation().Tick(ticks)
	return e.Frame(), nil
}
