package force

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulation_CoolsDownAndStops(t *testing.T) {
	sim := New(1)
	sim.SetNodes([]*Node{{X: 0, Y: 0}, {X: 10, Y: 0}})
	sim.SetForce("charge", NewManyBody(-30))
	sim.Restart()

	ticks := 0
	for sim.Step() {
		ticks++
		require.Less(t, ticks, 1000, "simulation never stopped")
	}
	assert.InDelta(t, 300, ticks, 5)
	assert.Less(t, sim.Alpha(), sim.AlphaMin())
	assert.False(t, sim.Running())
}

func TestSimulation_AlphaTargetKeepsRunning(t *testing.T) {
	sim := New(1)
	sim.SetNodes([]*Node{{X: 0, Y: 0}})
	sim.SetAlphaTarget(0.3)
	sim.Restart()
	for i := 0; i < 2000; i++ {
		require.True(t, sim.Step())
	}
	assert.InDelta(t, 0.3, sim.Alpha(), 1e-3)
}

func TestSimulation_FixedNodesDoNotMove(t *testing.T) {
	pinned := &Node{}
	pinned.Fix(50, 60)
	free := &Node{X: 51, Y: 60}

	sim := New(1)
	sim.SetNodes([]*Node{pinned, free})
	sim.SetForce("charge", NewManyBody(-100))
	sim.Tick(50)

	assert.Equal(t, 50.0, pinned.X)
	assert.Equal(t, 60.0, pinned.Y)
	assert.Zero(t, pinned.VX)
	assert.Greater(t, geometryDistance(pinned, free), 1.0, "free node should be pushed away")
}

func TestSimulation_PlacesNaNNodesOnSpiral(t *testing.T) {
	a := &Node{X: math.NaN(), Y: math.NaN()}
	b := &Node{X: math.NaN(), Y: math.NaN()}
	sim := New(1)
	sim.SetNodes([]*Node{a, b})

	assert.False(t, math.IsNaN(a.X))
	assert.False(t, math.IsNaN(b.Y))
	assert.NotEqual(t, a.X, b.X)
	assert.Equal(t, 1, b.Index)
}

func TestLinks_PullTowardDistance(t *testing.T) {
	a := &Node{X: 0, Y: 0}
	b := &Node{X: 200, Y: 0}
	sim := New(1)
	sim.SetNodes([]*Node{a, b})
	sim.SetForce("link", NewLinks([]Link{{Source: a, Target: b}}, 30))
	sim.Tick(300)

	assert.InDelta(t, 30, geometryDistance(a, b), 1)
}

func TestPosition_PullsTowardTarget(t *testing.T) {
	n := &Node{X: 100, Y: 100}
	sim := New(1)
	sim.SetNodes([]*Node{n})
	sim.SetForce("x", NewPosition(AxisX, 0.5, func(int) float64 { return -40 }))
	sim.SetAlphaTarget(1)
	sim.Tick(200)

	assert.InDelta(t, -40, n.X, 0.5)
	assert.Equal(t, 100.0, n.Y)
}

func TestSimulation_SetForceReplacesAndRemoves(t *testing.T) {
	sim := New(1)
	first := NewManyBody(-10)
	second := NewManyBody(-20)
	sim.SetForce("charge", first)
	sim.SetForce("charge", second)
	assert.Same(t, second, sim.Force("charge"))

	sim.SetForce("charge", nil)
	assert.Nil(t, sim.Force("charge"))
}

func geometryDistance(a, b *Node) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
