package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
	"github.com/kubilitics/kubilitics-topoview/internal/topology"
)

func plain(s string) []string {
	return strings.Split(s, "\n")
}

func TestRenderFrame_ItemsLinksAndLabels(t *testing.T) {
	fr := &engine.Frame{
		Transform: engine.Transform{K: 1},
		Items: []engine.ItemFrame{
			{Layer: topology.LayerServices, ID: "a/s", Label: "s", X: 4, Y: 8, Class: "focused"},
			{Layer: topology.LayerPods, ID: "a/p", Label: "p", X: 84, Y: 8, Class: "faded"},
			{Layer: topology.LayerPods, ID: "a/q", Label: "q", X: 4, Y: 40, Pinned: true},
		},
		Links: []engine.LinkFrame{
			{Layer: topology.LayerServiceLinks, SourceX: 4, SourceY: 8, TargetX: 84, TargetY: 8},
		},
	}
	rows := plain(renderFrame(fr, 20, 4))
	require.Len(t, rows, 4)
	assert.Equal(t, "S.s.......o", strings.TrimRight(rows[0], " "), "label of focused service overwrites link cells")
	assert.Equal(t, "#", strings.TrimRight(rows[2], " "))
}

func TestRenderFrame_Empty(t *testing.T) {
	rows := plain(renderFrame(nil, 5, 2))
	require.Len(t, rows, 2)
	assert.Equal(t, "     ", rows[0])
}

func TestCanvasLine_Diagonal(t *testing.T) {
	c := newCanvas(4, 4)
	c.line(0, 0, 3, 3, styleLink)
	for i := 0; i < 4; i++ {
		assert.Equal(t, '.', c.at(i, i).ch)
	}
	assert.Equal(t, ' ', c.at(1, 0).ch)
}

func newTestModel() (model, *inputQueue) {
	inputs := newInputQueue(16)
	return initialModel(Options{View: topology.ViewCluster}, inputs), inputs
}

func next(t *testing.T, inputs *inputQueue) service.Input {
	t.Helper()
	in, ok := inputs.tryPop()
	if !ok {
		t.Fatal("no input queued")
	}
	return in
}

func TestModel_ResizeCentersView(t *testing.T) {
	m, inputs := newTestModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 23})
	m = updated.(model)

	in := next(t, inputs)
	assert.Equal(t, service.InputZoom, in.Type)
	assert.Equal(t, 320.0, in.X)
	assert.Equal(t, 160.0, in.Y)
	assert.Equal(t, 1.0, in.K)

	updated, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	_ = updated
	assert.Zero(t, inputs.Len(), "only the first size centers")
}

func TestModel_MouseDrives(t *testing.T) {
	m, inputs := newTestModel()

	updated, _ := m.Update(tea.MouseMsg{X: 2, Y: 1, Action: tea.MouseActionMotion, Button: tea.MouseButtonNone})
	m = updated.(model)
	in := next(t, inputs)
	assert.Equal(t, service.InputPointerMove, in.Type)
	assert.Equal(t, 20.0, in.X)
	assert.Equal(t, 8.0, in.Y)

	updated, _ = m.Update(tea.MouseMsg{X: 2, Y: 1, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m = updated.(model)
	assert.Equal(t, service.InputDragStart, next(t, inputs).Type)

	updated, _ = m.Update(tea.MouseMsg{X: 5, Y: 3, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft})
	m = updated.(model)
	assert.Equal(t, service.InputDragMove, next(t, inputs).Type)

	updated, _ = m.Update(tea.MouseMsg{X: 5, Y: 3, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
	m = updated.(model)
	assert.Equal(t, service.InputDragEnd, next(t, inputs).Type)
	assert.False(t, m.dragging)

	updated, _ = m.Update(tea.MouseMsg{X: 0, Y: 1, Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	m = updated.(model)
	in = next(t, inputs)
	assert.Equal(t, service.InputZoom, in.Type)
	assert.InDelta(t, zoomStep, in.K, 1e-9)
	// The point under the pointer stays in place.
	assert.InDelta(t, 4-4*zoomStep, in.X, 1e-9)
}

func TestModel_KeysAndMessages(t *testing.T) {
	m, inputs := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(model)
	assert.Equal(t, service.InputUnfocus, next(t, inputs).Type)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'u'}})
	m = updated.(model)
	assert.Zero(t, inputs.Len(), "nothing focused to unpin")

	ref := graph.Ref{Layer: topology.LayerPods, ID: "a/p"}
	updated, _ = m.Update(frameMsg{frame: engine.Frame{View: topology.ViewCluster, Transform: engine.Transform{K: 2}, Focus: &ref}})
	m = updated.(model)
	assert.Equal(t, 2.0, m.transform.K)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'u'}})
	m = updated.(model)
	in := next(t, inputs)
	assert.Equal(t, service.InputUnpin, in.Type)
	assert.Equal(t, "a/p", in.ID)

	updated, _ = m.Update(focusMsg{event: service.FocusEvent{Kind: models.KindService, Record: models.Service{Namespace: "a", Name: "s", TargetPods: []models.ObjectRef{{Namespace: "a", Name: "p"}}}}})
	m = updated.(model)
	assert.Equal(t, "service a/s  1 pods", m.focus)
	assert.Contains(t, m.View(), "service a/s")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", describe(service.FocusEvent{Kind: models.KindPod}))
	assert.Equal(t, "route a/x -> a/y  all ports", describe(service.FocusEvent{
		Kind:   models.KindAllowedRoute,
		Record: models.AllowedRoute{SourcePod: models.ObjectRef{Namespace: "a", Name: "x"}, TargetPod: models.ObjectRef{Namespace: "a", Name: "y"}},
	}))
	assert.Equal(t, "pod a/x  health 50%  ready 1/2", describe(service.FocusEvent{
		Kind:   models.KindPod,
		Record: models.PodHealth{Namespace: "a", Name: "x", Containers: 2, ContainersRunning: 1, ContainersReady: 1, ContainersWithoutRestart: 1},
	}))
}

func TestModel_FullQueueKeepsGestureBoundaries(t *testing.T) {
	inputs := newInputQueue(2)
	m := initialModel(Options{View: topology.ViewCluster}, inputs)

	for _, msg := range []tea.MouseMsg{
		{X: 2, Y: 1, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft},
		{X: 3, Y: 1, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft},
		{X: 4, Y: 1, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft},
		{X: 5, Y: 1, Action: tea.MouseActionMotion, Button: tea.MouseButtonNone},
		{X: 4, Y: 1, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft},
	} {
		updated, _ := m.Update(msg)
		m = updated.(model)
	}
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m = updated.(model)
	assert.False(t, m.dragging)

	var types []string
	for {
		in, ok := inputs.tryPop()
		if !ok {
			break
		}
		types = append(types, in.Type)
	}
	assert.Equal(t, []string{
		service.InputDragStart,
		service.InputDragMove,
		service.InputDragEnd,
		service.InputSaveLayout,
	}, types)
}

func TestInputQueue_PopWaitsForPush(t *testing.T) {
	q := newInputQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan service.Input, 1)
	go func() {
		in, ok := q.pop(ctx)
		if ok {
			got <- in
		}
	}()
	q.push(service.Input{Type: service.InputUnfocus})
	select {
	case in := <-got:
		assert.Equal(t, service.InputUnfocus, in.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not return")
	}

	cancel()
	_, ok := q.pop(ctx)
	assert.False(t, ok)
}

func TestModel_ZoomClampedAtBounds(t *testing.T) {
	inputs := newInputQueue(16)
	m := initialModel(Options{View: topology.ViewCluster, Engine: engine.Options{MaxZoom: 2}}, inputs)
	m.transform = engine.Transform{K: 2, X: 10, Y: 20}

	updated, _ := m.Update(tea.MouseMsg{X: 0, Y: 1, Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	m = updated.(model)
	in := next(t, inputs)
	assert.Equal(t, 2.0, in.K)
	assert.Equal(t, 10.0, in.X)
	assert.Equal(t, 20.0, in.Y)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'-'}})
	m = updated.(model)
	in = next(t, inputs)
	assert.InDelta(t, 2/zoomStep, in.K, 1e-9)
}
