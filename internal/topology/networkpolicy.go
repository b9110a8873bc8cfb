package topology

import (
	"cmp"
	"slices"

	"github.com/kubilitics/kubilitics-topoview/internal/force"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

// NetworkPolicyGraph shows pods joined by the routes network policies allow.
type NetworkPolicyGraph struct {
	pods, routes *graph.Layer

	rel    relations
	cache  focusCache
	layout *namespaceLayout
}

// NewNetworkPolicyGraph returns an empty network policy view.
func NewNetworkPolicyGraph() *NetworkPolicyGraph {
	g := &NetworkPolicyGraph{}
	g.pods = graph.NewItemLayer(LayerPods, "Pods", graph.Extract(
		func(ds *models.Dataset) []models.Pod { return ds.Pods },
		func(p models.Pod) string { return p.Ref().Key() },
		func(p models.Pod) graph.Attrs {
			return graph.Attrs{DisplayName: p.DisplayName, Highlighted: p.Highlighted, SourceData: p}
		},
	), g.placePod, graph.ByName(models.KindPod))
	g.routes = graph.NewLinkLayer(LayerAllowedRoutes, graph.Extract(
		func(ds *models.Dataset) []models.AllowedRoute { return ds.AllowedRoutes },
		func(r models.AllowedRoute) string { return linkID(r.SourcePod, r.TargetPod) },
		func(r models.AllowedRoute) graph.Attrs {
			return graph.Attrs{
				SourceData: r,
				Source:     itemRef(LayerPods, r.SourcePod),
				Target:     itemRef(LayerPods, r.TargetPod),
			}
		},
	), graph.ByName(models.KindAllowedRoute))
	return g
}

func podNamespace(d *graph.Datum) string {
	if p, ok := d.SourceData.(models.Pod); ok {
		return p.Namespace
	}
	return ""
}

// namespaceLayout is the column, first index and pod count of every
// namespace among pods sorted by namespace.
type namespaceLayout struct {
	size                  int
	columns, first, count map[string]int
}

func newNamespaceLayout(pods []*graph.Datum) *namespaceLayout {
	l := &namespaceLayout{size: len(pods), columns: map[string]int{}, first: map[string]int{}, count: map[string]int{}}
	for i, d := range pods {
		ns := podNamespace(d)
		if _, ok := l.columns[ns]; !ok {
			l.columns[ns] = len(l.columns)
			l.first[ns] = i
		}
		l.count[ns]++
	}
	return l
}

// layoutFor returns the layout computed after the last sort, rebuilding it
// only when pods is not the sorted data it was computed from.
func (g *NetworkPolicyGraph) layoutFor(pods []*graph.Datum) *namespaceLayout {
	if g.layout == nil || g.layout.size != len(pods) {
		g.layout = newNamespaceLayout(pods)
	}
	return g.layout
}

func namespaceX(column, columns int) float64 {
	return (float64(column) - float64(columns-1)/2) * columnWidth * 2
}

// placePod puts every namespace in its own column.
func (g *NetworkPolicyGraph) placePod(d *graph.Datum, index int, siblings []*graph.Datum) {
	l := g.layoutFor(siblings)
	ns := podNamespace(d)
	d.X = namespaceX(l.columns[ns], len(l.columns))
	d.Y = stackY(index-l.first[ns], l.count[ns])
	d.VX, d.VY = 0, 0
}

func (g *NetworkPolicyGraph) Name() string { return ViewNetworkPolicy }

func (g *NetworkPolicyGraph) ItemLayers() []*graph.Layer { return []*graph.Layer{g.pods} }

func (g *NetworkPolicyGraph) LinkLayers() []*graph.Layer { return []*graph.Layer{g.routes} }

// IsFocused treats pods joined by a route in either direction as mutually
// focused. Only routes touching the focused pod are focused.
func (g *NetworkPolicyGraph) IsFocused(focused *graph.Datum, l *graph.Layer, d *graph.Datum) (bool, error) {
	if err := checkIndexed(l, d); err != nil {
		return false, err
	}
	fl := g.pods
	if focused.LayerName == LayerAllowedRoutes {
		fl = g.routes
	}
	if err := checkIndexed(fl, focused); err != nil {
		return false, err
	}
	if focused == d {
		return true, nil
	}
	if fl == g.routes {
		return l == g.pods && (d.Ref() == focused.Source || d.Ref() == focused.Target), nil
	}
	if l == g.routes {
		return d.Source == focused.Ref() || d.Target == focused.Ref(), nil
	}
	related := g.cache.get(focused, func() map[graph.Ref]bool {
		set := g.rel.reach(focused.Ref(), 1, g.rel.out)
		for ref := range g.rel.reach(focused.Ref(), 1, g.rel.in) {
			set[ref] = true
		}
		return set
	})
	return related[d.Ref()], nil
}

// SortLayersDataForNiceDisplay groups pods by namespace.
func (g *NetworkPolicyGraph) SortLayersDataForNiceDisplay() {
	g.rel = buildRelations(g.routes)
	g.cache.reset()
	slices.SortStableFunc(g.pods.Data, func(a, b *graph.Datum) int {
		return cmp.Or(cmp.Compare(podNamespace(a), podNamespace(b)), cmp.Compare(a.ID, b.ID))
	})
	g.layout = newNamespaceLayout(g.pods.Data)
	sortByID(g.routes)
}

// ConfigureSimulation pulls pods toward their namespace column.
func (g *NetworkPolicyGraph) ConfigureSimulation(sim *force.Simulation, items []*graph.Datum) {
	l := g.layoutFor(items)
	xs := make([]float64, len(items))
	for i, d := range items {
		xs[i] = namespaceX(l.columns[podNamespace(d)], len(l.columns))
	}
	sim.SetForce("x", force.NewPosition(force.AxisX, 0.1, func(i int) float64 { return xs[i] }))
	sim.SetForce("y", force.NewPosition(force.AxisY, 0.05, func(int) float64 { return 0 }))
}
