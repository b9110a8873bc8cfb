package topology

import (
	"cmp"
	"math"
	"slices"

	"github.com/kubilitics/kubilitics-topoview/internal/force"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

// Column of every cluster item layer, left to right.
var clusterColumns = map[string]int{
	LayerDeployments:  0,
	LayerReplicaSets:  1,
	LayerStatefulSets: 2,
	LayerDaemonSets:   3,
	LayerPods:         4,
	LayerServices:     5,
}

func clusterX(layer string) float64 {
	return float64(clusterColumns[layer]-clusterColumns[LayerPods]) * columnWidth
}

// ClusterGraph shows pods with the services, controllers and deployments
// targeting them.
type ClusterGraph struct {
	pods, services, replicaSets, statefulSets, daemonSets, deployments *graph.Layer
	serviceLinks, rsLinks, stsLinks, dsLinks, deployLinks              *graph.Layer

	layers map[string]*graph.Layer
	rel    relations
	cache  focusCache
}

// NewClusterGraph returns an empty cluster view.
func NewClusterGraph() *ClusterGraph {
	g := &ClusterGraph{
		pods: graph.NewItemLayer(LayerPods, "Pods", graph.Extract(
			func(ds *models.Dataset) []models.Pod { return ds.Pods },
			func(p models.Pod) string { return p.Ref().Key() },
			func(p models.Pod) graph.Attrs {
				return graph.Attrs{DisplayName: p.DisplayName, Highlighted: p.Highlighted, SourceData: p}
			},
		), columnPlacement(clusterX(LayerPods)), graph.ByName(models.KindPod)),
		services: graph.NewItemLayer(LayerServices, "Services", graph.Extract(
			func(ds *models.Dataset) []models.Service { return ds.Services },
			func(s models.Service) string { return s.Ref().Key() },
			func(s models.Service) graph.Attrs { return graph.Attrs{DisplayName: s.DisplayName, SourceData: s} },
		), columnPlacement(clusterX(LayerServices)), graph.ByName(models.KindService)),
		replicaSets: controllerLayer(LayerReplicaSets, "Replica sets",
			func(ds *models.Dataset) []models.Controller { return ds.ReplicaSets },
			clusterX(LayerReplicaSets), models.KindReplicaSet),
		statefulSets: controllerLayer(LayerStatefulSets, "Stateful sets",
			func(ds *models.Dataset) []models.Controller { return ds.StatefulSets },
			clusterX(LayerStatefulSets), models.KindStatefulSet),
		daemonSets: controllerLayer(LayerDaemonSets, "Daemon sets",
			func(ds *models.Dataset) []models.Controller { return ds.DaemonSets },
			clusterX(LayerDaemonSets), models.KindDaemonSet),
		deployments: graph.NewItemLayer(LayerDeployments, "Deployments", graph.Extract(
			func(ds *models.Dataset) []models.Deployment { return ds.Deployments },
			func(d models.Deployment) string { return d.Ref().Key() },
			func(d models.Deployment) graph.Attrs { return graph.Attrs{DisplayName: d.DisplayName, SourceData: d} },
		), columnPlacement(clusterX(LayerDeployments)), graph.ByName(models.KindDeployment)),
		serviceLinks: graph.NewLinkLayer(LayerServiceLinks, serviceLinks, graph.Computed(
			func(h graph.FocusHandlers, _ *graph.Datum) graph.FocusHandler {
				return reportAs(h[models.KindService], func(rec any) any { return rec.(models.ServiceLink).Service })
			})),
		rsLinks: controllerLinkLayer(LayerRSLinks, models.KindReplicaSet, LayerReplicaSets,
			func(ds *models.Dataset) []models.Controller { return ds.ReplicaSets }),
		stsLinks: controllerLinkLayer(LayerSTSLinks, models.KindStatefulSet, LayerStatefulSets,
			func(ds *models.Dataset) []models.Controller { return ds.StatefulSets }),
		dsLinks: controllerLinkLayer(LayerDSLinks, models.KindDaemonSet, LayerDaemonSets,
			func(ds *models.Dataset) []models.Controller { return ds.DaemonSets }),
		deployLinks: graph.NewLinkLayer(LayerDeployLinks, deploymentLinks, graph.Computed(
			func(h graph.FocusHandlers, _ *graph.Datum) graph.FocusHandler {
				return reportAs(h[models.KindDeployment], func(rec any) any { return rec.(models.DeploymentLink).Deployment })
			})),
		layers: map[string]*graph.Layer{},
	}
	for _, l := range append(g.ItemLayers(), g.LinkLayers()...) {
		g.layers[l.Name] = l
	}
	return g
}

func serviceLinks(ds *models.Dataset) []graph.Entry {
	if ds == nil {
		return nil
	}
	var entries []graph.Entry
	for _, s := range ds.Services {
		for _, p := range s.TargetPods {
			entries = append(entries, graph.Entry{
				ID: linkID(s.Ref(), p),
				Attrs: graph.Attrs{
					SourceData: models.ServiceLink{Service: s, Pod: p},
					Source:     itemRef(LayerServices, s.Ref()),
					Target:     itemRef(LayerPods, p),
				},
			})
		}
	}
	return entries
}

func deploymentLinks(ds *models.Dataset) []graph.Entry {
	if ds == nil {
		return nil
	}
	var entries []graph.Entry
	for _, d := range ds.Deployments {
		for _, rs := range d.TargetReplicaSets {
			entries = append(entries, graph.Entry{
				ID: linkID(d.Ref(), rs),
				Attrs: graph.Attrs{
					SourceData: models.DeploymentLink{Deployment: d, ReplicaSet: rs},
					Source:     itemRef(LayerDeployments, d.Ref()),
					Target:     itemRef(LayerReplicaSets, rs),
				},
			})
		}
	}
	return entries
}

func (g *ClusterGraph) Name() string { return ViewCluster }

func (g *ClusterGraph) ItemLayers() []*graph.Layer {
	return []*graph.Layer{g.pods, g.services, g.replicaSets, g.statefulSets, g.daemonSets, g.deployments}
}

func (g *ClusterGraph) LinkLayers() []*graph.Layer {
	return []*graph.Layer{g.serviceLinks, g.rsLinks, g.stsLinks, g.dsLinks, g.deployLinks}
}

// IsFocused relates items targeting each other directly or through one
// intermediate (deployment, replica set, pod). A link is focused when both its
// ends are; a focused link only focuses its ends.
func (g *ClusterGraph) IsFocused(focused *graph.Datum, l *graph.Layer, d *graph.Datum) (bool, error) {
	if err := checkIndexed(l, d); err != nil {
		return false, err
	}
	fl, ok := g.layers[focused.LayerName]
	if !ok {
		return false, graph.ErrUnknownDatum
	}
	if err := checkIndexed(fl, focused); err != nil {
		return false, err
	}
	if focused == d {
		return true, nil
	}
	if fl.Kind == graph.LinkKind {
		return l.Kind == graph.ItemKind && (d.Ref() == focused.Source || d.Ref() == focused.Target), nil
	}
	related := g.cache.get(focused, func() map[graph.Ref]bool {
		set := g.rel.reach(focused.Ref(), 2, g.rel.out)
		for ref := range g.rel.reach(focused.Ref(), 2, g.rel.in) {
			set[ref] = true
		}
		return set
	})
	if l.Kind == graph.LinkKind {
		return related[d.Source] && related[d.Target], nil
	}
	return related[d.Ref()], nil
}

// SortLayersDataForNiceDisplay orders owners by id, replica sets by deployment,
// and pods by service then controller so related items sit next to each other.
func (g *ClusterGraph) SortLayersDataForNiceDisplay() {
	g.rel = buildRelations(g.LinkLayers()...)
	g.cache.reset()

	for _, l := range []*graph.Layer{g.deployments, g.services, g.statefulSets, g.daemonSets} {
		sortByID(l)
	}
	deployIdx := indexOf(g.deployments)
	slices.SortStableFunc(g.replicaSets.Data, func(a, b *graph.Datum) int {
		return cmp.Or(
			cmp.Compare(g.ownerIndex(a, deployIdx), g.ownerIndex(b, deployIdx)),
			cmp.Compare(a.ID, b.ID),
		)
	})

	serviceIdx := indexOf(g.services)
	controllerIdx := map[graph.Ref]int{}
	for _, l := range []*graph.Layer{g.replicaSets, g.statefulSets, g.daemonSets} {
		for _, d := range l.Data {
			controllerIdx[d.Ref()] = len(controllerIdx)
		}
	}
	slices.SortStableFunc(g.pods.Data, func(a, b *graph.Datum) int {
		return cmp.Or(
			cmp.Compare(g.ownerIndex(a, serviceIdx), g.ownerIndex(b, serviceIdx)),
			cmp.Compare(g.ownerIndex(a, controllerIdx), g.ownerIndex(b, controllerIdx)),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// ownerIndex returns the lowest index among the owners of d found in idx, or
// MaxInt for orphans.
func (g *ClusterGraph) ownerIndex(d *graph.Datum, idx map[graph.Ref]int) int {
	best := math.MaxInt
	for _, owner := range g.rel.in[d.Ref()] {
		if i, ok := idx[owner]; ok && i < best {
			best = i
		}
	}
	return best
}

// ConfigureSimulation pulls every item toward its kind column and its row.
func (g *ClusterGraph) ConfigureSimulation(sim *force.Simulation, items []*graph.Datum) {
	xs := make([]float64, len(items))
	ys := make([]float64, len(items))
	rows := map[string]int{}
	for i, d := range items {
		l := g.layers[d.LayerName]
		xs[i] = clusterX(d.LayerName)
		ys[i] = stackY(rows[d.LayerName], len(l.Data))
		rows[d.LayerName]++
	}
	sim.SetForce("x", force.NewPosition(force.AxisX, 0.2, func(i int) float64 { return xs[i] }))
	sim.SetForce("y", force.NewPosition(force.AxisY, 0.05, func(i int) float64 { return ys[i] }))
}
