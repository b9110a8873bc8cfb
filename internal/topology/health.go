package topology

import (
	"cmp"
	"math"
	"slices"

	"github.com/kubilitics/kubilitics-topoview/internal/force"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

const healthCell = 24.0

// HealthGraph lays pods out on a grid, unhealthiest first.
type HealthGraph struct {
	pods *graph.Layer
}

// NewHealthGraph returns an empty health view.
func NewHealthGraph() *HealthGraph {
	return &HealthGraph{
		pods: graph.NewItemLayer(LayerPods, "Pods", graph.Extract(
			func(ds *models.Dataset) []models.PodHealth { return ds.PodHealths },
			func(h models.PodHealth) string { return h.Ref().Key() },
			func(h models.PodHealth) graph.Attrs {
				return graph.Attrs{DisplayName: h.DisplayName, Highlighted: h.Score() < 1, SourceData: h}
			},
		), gridPlacement, graph.ByName(models.KindPod)),
	}
}

// gridPlacement fixes pods on a centered square grid. It does not mark them
// as manually pinned, so they reflow when the grid changes.
func gridPlacement(d *graph.Datum, index int, siblings []*graph.Datum) {
	cols := int(math.Ceil(math.Sqrt(float64(len(siblings)))))
	if cols == 0 {
		cols = 1
	}
	rows := (len(siblings) + cols - 1) / cols
	x := (float64(index%cols) - float64(cols-1)/2) * healthCell
	y := (float64(index/cols) - float64(rows-1)/2) * healthCell
	d.Fix(x, y)
}

func score(d *graph.Datum) float64 {
	if h, ok := d.SourceData.(models.PodHealth); ok {
		return h.Score()
	}
	return 1
}

func (g *HealthGraph) Name() string { return ViewHealth }

func (g *HealthGraph) ItemLayers() []*graph.Layer { return []*graph.Layer{g.pods} }

func (g *HealthGraph) LinkLayers() []*graph.Layer { return nil }

// RelayoutOnChange reflows the grid whenever pods come or go.
func (g *HealthGraph) RelayoutOnChange() bool { return true }

func (g *HealthGraph) IsFocused(focused *graph.Datum, l *graph.Layer, d *graph.Datum) (bool, error) {
	if err := checkIndexed(l, d); err != nil {
		return false, err
	}
	if err := checkIndexed(g.pods, focused); err != nil {
		return false, err
	}
	return focused == d, nil
}

func (g *HealthGraph) SortLayersDataForNiceDisplay() {
	slices.SortStableFunc(g.pods.Data, func(a, b *graph.Datum) int {
		return cmp.Or(cmp.Compare(score(a), score(b)), cmp.Compare(a.ID, b.ID))
	})
}

// ConfigureSimulation keeps a light repulsion only; placement pins every pod.
func (g *HealthGraph) ConfigureSimulation(sim *force.Simulation, _ []*graph.Datum) {
	sim.SetForce("x", nil)
	sim.SetForce("y", nil)
}
