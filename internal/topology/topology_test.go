package topology

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/geometry"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

func ref(name string) models.ObjectRef { return models.ObjectRef{Namespace: "default", Name: name} }

func pods(names ...string) []models.Pod {
	out := make([]models.Pod, 0, len(names))
	for _, n := range names {
		out = append(out, models.Pod{Namespace: "default", Name: n, DisplayName: n})
	}
	return out
}

func newEngine(t *testing.T, v engine.Variant, ds *models.Dataset, handlers graph.FocusHandlers) *engine.GraphEngine {
	t.Helper()
	e := engine.New(v, nil, engine.Options{})
	require.NoError(t, e.Init())
	_, err := e.Update(ds, handlers)
	require.NoError(t, err)
	return e
}

func focusOf(t *testing.T, e *engine.GraphEngine, layer, id string) graph.FocusClass {
	t.Helper()
	d, ok := e.Datum(graph.Ref{Layer: layer, ID: id})
	require.True(t, ok, "missing %s/%s", layer, id)
	return d.Focus
}

func TestClusterGraph_ServiceScenario(t *testing.T) {
	ds := &models.Dataset{
		Pods:     pods("pod1", "pod2", "pod3"),
		Services: []models.Service{{Namespace: "default", Name: "svc", DisplayName: "svc", TargetPods: []models.ObjectRef{ref("pod1"), ref("pod2")}}},
	}
	g := NewClusterGraph()
	e := newEngine(t, g, ds, nil)

	assert.Len(t, g.pods.Data, 3)
	assert.Len(t, g.services.Data, 1)
	require.Len(t, g.serviceLinks.Data, 2)
	assert.ElementsMatch(t, []string{"default/svc->default/pod1", "default/svc->default/pod2"},
		[]string{g.serviceLinks.Data[0].ID, g.serviceLinks.Data[1].ID})

	require.NoError(t, e.Focus(graph.Ref{Layer: LayerServices, ID: "default/svc"}))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerPods, "default/pod1"))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerPods, "default/pod2"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerPods, "default/pod3"))
	for _, l := range g.serviceLinks.Data {
		assert.Equal(t, graph.Focused, l.Focus, l.ID)
	}
}

func clusterDataset() *models.Dataset {
	return &models.Dataset{
		Pods: pods("web-1", "web-2", "db-0", "log-x"),
		Services: []models.Service{
			{Namespace: "default", Name: "web", TargetPods: []models.ObjectRef{ref("web-1"), ref("web-2")}},
			{Namespace: "default", Name: "db", TargetPods: []models.ObjectRef{ref("db-0")}},
		},
		ReplicaSets: []models.Controller{
			{Namespace: "default", Name: "web-abc", TargetPods: []models.ObjectRef{ref("web-1")}},
			{Namespace: "default", Name: "web-old", TargetPods: []models.ObjectRef{ref("web-2")}},
		},
		StatefulSets: []models.Controller{{Namespace: "default", Name: "db", TargetPods: []models.ObjectRef{ref("db-0")}}},
		DaemonSets:   []models.Controller{{Namespace: "default", Name: "log", TargetPods: []models.ObjectRef{ref("log-x")}}},
		Deployments: []models.Deployment{
			{Namespace: "default", Name: "web", TargetReplicaSets: []models.ObjectRef{ref("web-abc")}},
			{Namespace: "default", Name: "legacy", TargetReplicaSets: []models.ObjectRef{ref("web-old")}},
		},
	}
}

func TestClusterGraph_FocusingPodReachesOwnersTwoHops(t *testing.T) {
	var got []any
	handlers := graph.FocusHandlers{models.KindPod: func(rec any) { got = append(got, rec) }}
	g := NewClusterGraph()
	e := newEngine(t, g, clusterDataset(), handlers)

	require.NoError(t, e.Focus(graph.Ref{Layer: LayerPods, ID: "default/web-1"}))
	require.Len(t, got, 1)
	assert.Equal(t, "web-1", got[0].(models.Pod).Name)

	focused := map[string]bool{}
	for _, key := range []string{
		LayerPods + "/default/web-1",
		LayerServices + "/default/web",
		LayerReplicaSets + "/default/web-abc",
		LayerDeployments + "/default/web",
		LayerServiceLinks + "/default/web->default/web-1",
		LayerRSLinks + "/default/web-abc->default/web-1",
		LayerDeployLinks + "/default/web->default/web-abc",
	} {
		focused[key] = true
	}
	for _, l := range append(g.ItemLayers(), g.LinkLayers()...) {
		for _, d := range l.Data {
			want := graph.Faded
			if focused[l.Name+"/"+d.ID] {
				want = graph.Focused
			}
			assert.Equal(t, want, d.Focus, "%s/%s", l.Name, d.ID)
		}
	}

	e.Unfocus()
	assert.Equal(t, []any{got[0], nil}, got)
	for _, l := range append(g.ItemLayers(), g.LinkLayers()...) {
		for _, d := range l.Data {
			assert.Equal(t, graph.Unfocused, d.Focus, "%s/%s", l.Name, d.ID)
		}
	}
}

func TestClusterGraph_FocusingDeploymentReachesPods(t *testing.T) {
	e := newEngine(t, NewClusterGraph(), clusterDataset(), nil)
	require.NoError(t, e.Focus(graph.Ref{Layer: LayerDeployments, ID: "default/web"}))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerReplicaSets, "default/web-abc"))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerPods, "default/web-1"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerPods, "default/web-2"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerServices, "default/web"))
}

func TestClusterGraph_LinkFocusReportsOwner(t *testing.T) {
	var kinds []string
	var records []any
	handlers := graph.FocusHandlers{}
	for _, k := range []string{models.KindService, models.KindReplicaSet, models.KindDeployment} {
		handlers[k] = func(rec any) { kinds = append(kinds, k); records = append(records, rec) }
	}
	e := newEngine(t, NewClusterGraph(), clusterDataset(), handlers)

	require.NoError(t, e.Focus(graph.Ref{Layer: LayerRSLinks, ID: "default/web-abc->default/web-1"}))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerReplicaSets, "default/web-abc"))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerPods, "default/web-1"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerDeployments, "default/web"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerServiceLinks, "default/web->default/web-1"))

	require.NoError(t, e.Focus(graph.Ref{Layer: LayerServiceLinks, ID: "default/db->default/db-0"}))
	require.NoError(t, e.Focus(graph.Ref{Layer: LayerDeployLinks, ID: "default/web->default/web-abc"}))

	assert.Equal(t, []string{
		models.KindReplicaSet, models.KindReplicaSet,
		models.KindService, models.KindService,
		models.KindDeployment,
	}, kinds)
	assert.Equal(t, "web-abc", records[0].(models.Controller).Name)
	assert.Nil(t, records[1])
	assert.Equal(t, "db", records[2].(models.Service).Name)
	assert.Equal(t, "web", records[4].(models.Deployment).Name)
}

func TestClusterGraph_SortsPodsByOwner(t *testing.T) {
	g := NewClusterGraph()
	ds := clusterDataset()
	// reverse input order must not matter
	ds.Pods = pods("log-x", "web-2", "db-0", "web-1")
	newEngine(t, g, ds, nil)

	var ids []string
	for _, d := range g.pods.Data {
		ids = append(ids, d.ID)
	}
	// services: db, web; controllers: web-old, web-abc, db, log
	assert.Equal(t, []string{"default/db-0", "default/web-2", "default/web-1", "default/log-x"}, ids)

	var rs []string
	for _, d := range g.replicaSets.Data {
		rs = append(rs, d.ID)
	}
	// deployments: legacy(0) web(1)
	assert.Equal(t, []string{"default/web-old", "default/web-abc"}, rs)
}

func TestClusterGraph_PlacesKindsInColumns(t *testing.T) {
	g := NewClusterGraph()
	newEngine(t, g, clusterDataset(), nil)
	for _, l := range g.ItemLayers() {
		seen := map[float64]bool{}
		for _, d := range l.Data {
			assert.Equal(t, clusterX(l.Name), d.X, "%s/%s", l.Name, d.ID)
			assert.False(t, seen[d.Y], "duplicate row in %s", l.Name)
			seen[d.Y] = true
		}
	}
	assert.Less(t, clusterX(LayerDeployments), clusterX(LayerReplicaSets))
	assert.Less(t, clusterX(LayerPods), clusterX(LayerServices))
}

func TestClusterGraph_PinSurvivesUpdates(t *testing.T) {
	ds := &models.Dataset{Pods: pods("a", "b")}
	g := NewClusterGraph()
	e := newEngine(t, g, ds, nil)

	a, _ := e.Datum(graph.Ref{Layer: LayerPods, ID: "default/a"})
	a.X, a.Y = 0, 0
	b, _ := e.Datum(graph.Ref{Layer: LayerPods, ID: "default/b"})
	b.X, b.Y = 500, 500
	require.True(t, e.DragStart(1, geometry.Point{X: 1, Y: 1}))
	e.DragMove(1, geometry.Point{X: 41, Y: 61})
	_, ok := e.DragEnd(1)
	require.True(t, ok)

	changed, err := e.Update(&models.Dataset{Pods: pods("a", "b", "c", "d")}, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	c, _ := e.Datum(graph.Ref{Layer: LayerPods, ID: "default/c"})
	d, _ := e.Datum(graph.Ref{Layer: LayerPods, ID: "default/d"})
	assert.Equal(t, c.X, d.X)
	assert.NotEqual(t, c.Y, d.Y)

	for i := 0; i < 50; i++ {
		e.Tick()
	}
	assert.Equal(t, 40.0, a.X)
	assert.Equal(t, 60.0, a.Y)
	assert.True(t, a.Pinned)
}

func TestClusterGraph_UnknownDatum(t *testing.T) {
	g := NewClusterGraph()
	newEngine(t, g, &models.Dataset{Pods: pods("a")}, nil)
	focused, _ := g.pods.Get("default/a")

	stray := &graph.Datum{ID: "default/ghost", LayerName: LayerPods}
	_, err := g.IsFocused(focused, g.pods, stray)
	assert.ErrorIs(t, err, graph.ErrUnknownDatum)
	_, err = g.IsFocused(stray, g.pods, focused)
	assert.ErrorIs(t, err, graph.ErrUnknownDatum)
}

func TestNetworkPolicyGraph_NeighborRule(t *testing.T) {
	ds := &models.Dataset{
		Pods: []models.Pod{
			{Namespace: "shop", Name: "front"},
			{Namespace: "shop", Name: "cart"},
			{Namespace: "pay", Name: "api"},
			{Namespace: "pay", Name: "audit"},
		},
		AllowedRoutes: []models.AllowedRoute{
			{SourcePod: models.ObjectRef{Namespace: "shop", Name: "front"}, TargetPod: models.ObjectRef{Namespace: "shop", Name: "cart"}},
			{SourcePod: models.ObjectRef{Namespace: "shop", Name: "cart"}, TargetPod: models.ObjectRef{Namespace: "pay", Name: "api"}},
			{SourcePod: models.ObjectRef{Namespace: "pay", Name: "audit"}, TargetPod: models.ObjectRef{Namespace: "pay", Name: "api"}},
		},
	}
	g := NewNetworkPolicyGraph()
	e := newEngine(t, g, ds, nil)

	require.NoError(t, e.Focus(graph.Ref{Layer: LayerPods, ID: "pay/api"}))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerPods, "shop/cart"))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerPods, "pay/audit"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerPods, "shop/front"))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerAllowedRoutes, "shop/cart->pay/api"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerAllowedRoutes, "shop/front->shop/cart"))

	require.NoError(t, e.Focus(graph.Ref{Layer: LayerPods, ID: "shop/front"}))
	assert.Equal(t, graph.Focused, focusOf(t, e, LayerPods, "shop/cart"))
	assert.Equal(t, graph.Faded, focusOf(t, e, LayerPods, "pay/api"))
}

func TestNetworkPolicyGraph_NamespaceColumns(t *testing.T) {
	ds := &models.Dataset{Pods: []models.Pod{
		{Namespace: "b", Name: "x"},
		{Namespace: "a", Name: "y"},
		{Namespace: "a", Name: "z"},
	}}
	g := NewNetworkPolicyGraph()
	newEngine(t, g, ds, nil)

	require.Len(t, g.pods.Data, 3)
	assert.Equal(t, "a/y", g.pods.Data[0].ID)
	y, z, x := g.pods.Data[0], g.pods.Data[1], g.pods.Data[2]
	assert.Equal(t, y.X, z.X)
	assert.NotEqual(t, y.Y, z.Y)
	assert.Less(t, y.X, x.X)
}

func TestNetworkPolicyGraph_NamespaceLayoutBuiltOncePerUpdate(t *testing.T) {
	ds := &models.Dataset{}
	for i := range 50 {
		ds.Pods = append(ds.Pods, models.Pod{Namespace: fmt.Sprintf("ns-%d", i%5), Name: fmt.Sprintf("p-%02d", i)})
	}
	g := NewNetworkPolicyGraph()
	newEngine(t, g, ds, nil)

	layout := g.layout
	require.NotNil(t, layout)
	assert.Equal(t, 50, layout.size)
	assert.Len(t, layout.columns, 5)

	// Placing against the sorted data reuses the layout of the last sort.
	d := g.pods.Data[12]
	g.placePod(d, 12, g.pods.Data)
	assert.Same(t, layout, g.layout)
	assert.Equal(t, namespaceX(layout.columns["ns-1"], 5), d.X)

	// A different pod set gets its own layout.
	g.placePod(d, 0, g.pods.Data[:10])
	assert.NotSame(t, layout, g.layout)
}

func TestHealthGraph_GridAndOrder(t *testing.T) {
	ds := &models.Dataset{PodHealths: []models.PodHealth{
		{Namespace: "default", Name: "ok", Containers: 1, ContainersRunning: 1, ContainersReady: 1, ContainersWithoutRestart: 1},
		{Namespace: "default", Name: "bad", Containers: 2},
		{Namespace: "default", Name: "meh", Containers: 1, ContainersRunning: 1, ContainersReady: 1},
	}}
	g := NewHealthGraph()
	e := newEngine(t, g, ds, nil)

	var ids []string
	for _, d := range g.pods.Data {
		ids = append(ids, d.ID)
		assert.True(t, d.Fixed())
		assert.False(t, d.Pinned)
	}
	assert.Equal(t, []string{"default/bad", "default/meh", "default/ok"}, ids)
	bad, _ := g.pods.Get("default/bad")
	ok, _ := g.pods.Get("default/ok")
	assert.True(t, bad.Highlighted)
	assert.False(t, ok.Highlighted)

	require.NoError(t, e.Focus(bad.Ref()))
	assert.Equal(t, graph.Faded, ok.Focus)
	assert.Equal(t, graph.Focused, bad.Focus)
	assert.Equal(t, "focused highlighted", bad.State().Class())
}

func TestHealthGraph_ReflowKeepsManualPins(t *testing.T) {
	g := NewHealthGraph()
	e := newEngine(t, g, &models.Dataset{PodHealths: []models.PodHealth{
		{Namespace: "default", Name: "a"},
		{Namespace: "default", Name: "b"},
	}}, nil)
	a, _ := g.pods.Get("default/a")
	b, _ := g.pods.Get("default/b")
	b.PinAt(300, 300)
	before := *a.FX

	_, err := e.Update(&models.Dataset{PodHealths: []models.PodHealth{
		{Namespace: "default", Name: "a"},
		{Namespace: "default", Name: "b"},
		{Namespace: "default", Name: "c"},
		{Namespace: "default", Name: "d"},
		{Namespace: "default", Name: "e"},
	}}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, before, *a.FX)
	assert.Equal(t, 300.0, *b.FX)
	assert.Equal(t, 300.0, *b.FY)
}

func TestNewVariant(t *testing.T) {
	for _, name := range Views() {
		v, err := NewVariant(name)
		require.NoError(t, err)
		assert.Equal(t, name, v.Name())
	}
	_, err := NewVariant("nope")
	assert.Error(t, err)
}
