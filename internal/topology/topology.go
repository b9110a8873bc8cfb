// Package topology defines the concrete graph views: cluster topology,
// network policy routes and pod health.
package topology

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

// View names.
const (
	ViewCluster       = "cluster"
	ViewNetworkPolicy = "networkPolicy"
	ViewHealth        = "health"
)

// Layer names.
const (
	LayerPods          = "pods"
	LayerServices      = "services"
	LayerReplicaSets   = "replicaSets"
	LayerStatefulSets  = "statefulSets"
	LayerDaemonSets    = "daemonSets"
	LayerDeployments   = "deployments"
	LayerServiceLinks  = "serviceLinks"
	LayerRSLinks       = "replicaSetLinks"
	LayerSTSLinks      = "statefulSetLinks"
	LayerDSLinks       = "daemonSetLinks"
	LayerDeployLinks   = "deploymentLinks"
	LayerAllowedRoutes = "allowedRoutes"
)

const (
	columnWidth = 120.0
	rowHeight   = 30.0
)

// Views lists the available view names.
func Views() []string {
	return []string{ViewCluster, ViewNetworkPolicy, ViewHealth}
}

// NewVariant returns a fresh variant for a view name.
func NewVariant(view string) (engine.Variant, error) {
	switch view {
	case ViewCluster:
		return NewClusterGraph(), nil
	case ViewNetworkPolicy:
		return NewNetworkPolicyGraph(), nil
	case ViewHealth:
		return NewHealthGraph(), nil
	default:
		return nil, fmt.Errorf("unknown view %q", view)
	}
}

func itemRef(layer string, r models.ObjectRef) graph.Ref {
	return graph.Ref{Layer: layer, ID: r.Key()}
}

func linkID(source, target models.ObjectRef) string {
	return source.Key() + "->" + target.Key()
}

// stackY centers index among n rows.
func stackY(index, n int) float64 {
	return (float64(index) - float64(n-1)/2) * rowHeight
}

// columnPlacement stacks new items of a layer in one column by sibling index.
func columnPlacement(x float64) graph.Placement {
	return func(d *graph.Datum, index int, siblings []*graph.Datum) {
		d.X = x
		d.Y = stackY(index, len(siblings))
		d.VX, d.VY = 0, 0
	}
}

func controllerLayer(name, label string, collection func(*models.Dataset) []models.Controller, x float64, kind string) *graph.Layer {
	return graph.NewItemLayer(name, label, graph.Extract(
		collection,
		func(c models.Controller) string { return c.Ref().Key() },
		func(c models.Controller) graph.Attrs { return graph.Attrs{DisplayName: c.DisplayName, SourceData: c} },
	), columnPlacement(x), graph.ByName(kind))
}

func controllerLinkLayer(name, kind, controllerLayer string, collection func(*models.Dataset) []models.Controller) *graph.Layer {
	return graph.NewLinkLayer(name, func(ds *models.Dataset) []graph.Entry {
		if ds == nil {
			return nil
		}
		var entries []graph.Entry
		for _, c := range collection(ds) {
			for _, p := range c.TargetPods {
				entries = append(entries, graph.Entry{
					ID: linkID(c.Ref(), p),
					Attrs: graph.Attrs{
						SourceData: models.ControllerLink{Kind: kind, Controller: c, Pod: p},
						Source:     itemRef(controllerLayer, c.Ref()),
						Target:     itemRef(LayerPods, p),
					},
				})
			}
		}
		return entries
	}, graph.Computed(func(h graph.FocusHandlers, _ *graph.Datum) graph.FocusHandler {
		return reportAs(h[kind], func(rec any) any { return rec.(models.ControllerLink).Controller })
	}))
}

// reportAs wraps a handler so that it receives the owner of a link record.
func reportAs(h graph.FocusHandler, owner func(any) any) graph.FocusHandler {
	if h == nil {
		return nil
	}
	return func(rec any) {
		if rec == nil {
			h(nil)
			return
		}
		h(owner(rec))
	}
}

// checkIndexed fails when d is not the datum the layer indexes under its id.
func checkIndexed(l *graph.Layer, d *graph.Datum) error {
	if d == nil {
		return fmt.Errorf("%s: nil datum: %w", l.Name, graph.ErrUnknownDatum)
	}
	if cur, ok := l.Get(d.ID); !ok || cur != d {
		return fmt.Errorf("%s/%s: %w", l.Name, d.ID, graph.ErrUnknownDatum)
	}
	return nil
}

// relations indexes directed link endpoints of a set of link layers.
type relations struct {
	out map[graph.Ref][]graph.Ref
	in  map[graph.Ref][]graph.Ref
}

func buildRelations(layers ...*graph.Layer) relations {
	r := relations{out: map[graph.Ref][]graph.Ref{}, in: map[graph.Ref][]graph.Ref{}}
	for _, l := range layers {
		for _, d := range l.Data {
			r.out[d.Source] = append(r.out[d.Source], d.Target)
			r.in[d.Target] = append(r.in[d.Target], d.Source)
		}
	}
	return r
}

// reach returns every ref reachable from ref in up to hops steps following
// links in one direction, ref included.
func (r relations) reach(ref graph.Ref, hops int, edges map[graph.Ref][]graph.Ref) map[graph.Ref]bool {
	seen := map[graph.Ref]bool{ref: true}
	frontier := []graph.Ref{ref}
	for ; hops > 0 && len(frontier) > 0; hops-- {
		var next []graph.Ref
		for _, f := range frontier {
			for _, n := range edges[f] {
				if !seen[n] {
					seen[n] = true
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return seen
}

// focusCache memoizes the related set of the focused datum until the next
// reconciliation.
type focusCache struct {
	focused *graph.Datum
	related map[graph.Ref]bool
}

func (c *focusCache) get(focused *graph.Datum, compute func() map[graph.Ref]bool) map[graph.Ref]bool {
	if c.focused != focused || c.related == nil {
		c.focused = focused
		c.related = compute()
	}
	return c.related
}

func (c *focusCache) reset() { *c = focusCache{} }

func sortByID(l *graph.Layer) {
	slices.SortStableFunc(l.Data, func(a, b *graph.Datum) int { return cmp.Compare(a.ID, b.ID) })
}

// indexOf maps datum refs of a layer to their position.
func indexOf(l *graph.Layer) map[graph.Ref]int {
	idx := make(map[graph.Ref]int, len(l.Data))
	for i, d := range l.Data {
		idx[d.Ref()] = i
	}
	return idx
}
