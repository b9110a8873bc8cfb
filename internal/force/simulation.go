// Package force is a velocity Verlet style force simulation for node/link
// diagrams. A Simulation is not safe for concurrent use; the graph engine owns
// it from a single goroutine.
package force

import (
	"math"
	"math/rand/v2"
)

const (
	initialRadius = 10.0
	initialAngle  = math.Pi * 0.7639320225 // pi * (3 - sqrt(5))
)

// Force contributes velocity to nodes on every tick.
type Force interface {
	// Initialize is called whenever the node set changes.
	Initialize(nodes []*Node, random func() float64)
	// Apply adds velocity scaled by alpha.
	Apply(alpha float64)
}

type namedForce struct {
	name  string
	force Force
}

// Simulation integrates forces over a set of nodes until alpha cools below AlphaMin.
type Simulation struct {
	nodes  []*Node
	forces []namedForce

	alpha         float64
	alphaMin      float64
	alphaDecay    float64
	alphaTarget   float64
	velocityDecay float64

	running bool
	random  *rand.Rand
}

// New returns a stopped simulation with the conventional defaults: alpha 1,
// alpha min 0.001 reached after 300 ticks, velocity decay 0.4.
func New(seed uint64) *Simulation {
	s := &Simulation{
		alpha:         1,
		alphaMin:      0.001,
		velocityDecay: 0.6,
		random:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	s.alphaDecay = 1 - math.Pow(s.alphaMin, 1.0/300)
	return s
}

// SetNodes replaces the node set and re-initializes every force.
// Nodes with NaN coordinates are placed on a phyllotaxis spiral.
func (s *Simulation) SetNodes(nodes []*Node) {
	s.nodes = nodes
	for i, n := range nodes {
		n.Index = i
		if n.Fixed() {
			n.X, n.Y = *n.FX, *n.FY
		}
		if math.IsNaN(n.X) || math.IsNaN(n.Y) {
			radius := initialRadius * math.Sqrt(0.5+float64(i))
			angle := float64(i) * initialAngle
			n.X = radius * math.Cos(angle)
			n.Y = radius * math.Sin(angle)
		}
		if math.IsNaN(n.VX) || math.IsNaN(n.VY) {
			n.VX, n.VY = 0, 0
		}
	}
	for _, f := range s.forces {
		f.force.Initialize(s.nodes, s.random.Float64)
	}
}

// Nodes returns the simulated nodes.
func (s *Simulation) Nodes() []*Node { return s.nodes }

// SetForce registers or replaces a named force. A nil force removes it.
func (s *Simulation) SetForce(name string, f Force) {
	for i, nf := range s.forces {
		if nf.name == name {
			if f == nil {
				s.forces = append(s.forces[:i], s.forces[i+1:]...)
				return
			}
			s.forces[i].force = f
			f.Initialize(s.nodes, s.random.Float64)
			return
		}
	}
	if f == nil {
		return
	}
	s.forces = append(s.forces, namedForce{name: name, force: f})
	f.Initialize(s.nodes, s.random.Float64)
}

// Force returns the named force or nil.
func (s *Simulation) Force(name string) Force {
	for _, nf := range s.forces {
		if nf.name == name {
			return nf.force
		}
	}
	return nil
}

// Alpha returns the current temperature.
func (s *Simulation) Alpha() float64 { return s.alpha }

// SetAlpha sets the temperature.
func (s *Simulation) SetAlpha(alpha float64) { s.alpha = alpha }

// AlphaMin returns the temperature under which the simulation stops.
func (s *Simulation) AlphaMin() float64 { return s.alphaMin }

// AlphaTarget returns the temperature alpha converges to.
func (s *Simulation) AlphaTarget() float64 { return s.alphaTarget }

// SetAlphaTarget sets the temperature alpha converges to. A target above
// AlphaMin keeps the simulation running indefinitely.
func (s *Simulation) SetAlphaTarget(target float64) { s.alphaTarget = target }

// SetAlphaDecay overrides the per-tick cooling rate.
func (s *Simulation) SetAlphaDecay(decay float64) { s.alphaDecay = decay }

// SetVelocityDecay sets the friction in [0,1]; velocity is multiplied by 1-decay each tick.
func (s *Simulation) SetVelocityDecay(decay float64) { s.velocityDecay = 1 - decay }

// Restart marks the simulation as running. It does not touch alpha.
func (s *Simulation) Restart() { s.running = true }

// Stop halts stepping until the next Restart.
func (s *Simulation) Stop() { s.running = false }

// Running reports whether Step will advance the simulation.
func (s *Simulation) Running() bool { return s.running }

// Step advances one tick when running and returns whether it did. The
// simulation stops by itself once alpha drops below AlphaMin.
func (s *Simulation) Step() bool {
	if !s.running {
		return false
	}
	s.Tick(1)
	if s.alpha < s.alphaMin {
		s.running = false
	}
	return true
}

// Tick runs n iterations regardless of the running state.
func (s *Simulation) Tick(n int) {
	for k := 0; k < n; k++ {
		s.alpha += (s.alphaTarget - s.alpha) * s.alphaDecay
		for _, f := range s.forces {
			f.force.Apply(s.alpha)
		}
		for _, node := range s.nodes {
			if node.FX != nil {
				node.X = *node.FX
				node.VX = 0
			} else {
				node.VX *= s.velocityDecay
				node.X += node.VX
			}
			if node.FY != nil {
				node.Y = *node.FY
				node.VY = 0
			} else {
				node.VY *= s.velocityDecay
				node.Y += node.VY
			}
		}
	}
}

func jiggle(random func() float64) float64 {
	return (random() - 0.5) * 1e-6
}
