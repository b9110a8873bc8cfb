package force

import "math"

// ManyBody applies a pairwise charge between all nodes. A negative strength
// repels. The pull decays with 1/distance.
type ManyBody struct {
	Strength    float64
	DistanceMin float64
	DistanceMax float64

	nodes  []*Node
	random func() float64
}

// NewManyBody returns a repulsive charge of the given strength.
func NewManyBody(strength float64) *ManyBody {
	return &ManyBody{Strength: strength, DistanceMin: 1, DistanceMax: math.Inf(1)}
}

func (f *ManyBody) Initialize(nodes []*Node, random func() float64) {
	f.nodes = nodes
	f.random = random
}

func (f *ManyBody) Apply(alpha float64) {
	min2 := f.DistanceMin * f.DistanceMin
	max2 := f.DistanceMax * f.DistanceMax
	for _, node := range f.nodes {
		for _, other := range f.nodes {
			if other == node {
				continue
			}
			x := other.X - node.X
			y := other.Y - node.Y
			if x == 0 {
				x = jiggle(f.random)
			}
			if y == 0 {
				y = jiggle(f.random)
			}
			l := x*x + y*y
			if l >= max2 {
				continue
			}
			if l < min2 {
				l = math.Sqrt(min2 * l)
			}
			w := f.Strength * alpha / l
			node.VX += x * w
			node.VY += y * w
		}
	}
}

// Links pulls linked nodes toward Distance. Strength defaults to
// 1/min(degree(source), degree(target)) so that hubs are not over-constrained.
type Links struct {
	Distance   float64
	Iterations int

	links     []Link
	strengths []float64
	bias      []float64
	random    func() float64
}

// NewLinks returns a link force over the given links.
func NewLinks(links []Link, distance float64) *Links {
	return &Links{links: links, Distance: distance, Iterations: 1}
}

// SetLinks replaces the links. Initialize must run afterwards, which the
// simulation does through SetForce or SetNodes.
func (f *Links) SetLinks(links []Link) { f.links = links }

// Links returns the current links.
func (f *Links) Links() []Link { return f.links }

func (f *Links) Initialize(_ []*Node, random func() float64) {
	f.random = random
	count := make(map[*Node]int, len(f.links))
	for i := range f.links {
		f.links[i].Index = i
		count[f.links[i].Source]++
		count[f.links[i].Target]++
	}
	f.strengths = make([]float64, len(f.links))
	f.bias = make([]float64, len(f.links))
	for i, l := range f.links {
		cs, ct := float64(count[l.Source]), float64(count[l.Target])
		f.bias[i] = cs / (cs + ct)
		f.strengths[i] = 1 / math.Min(cs, ct)
	}
}

func (f *Links) Apply(alpha float64) {
	for k := 0; k < f.Iterations; k++ {
		for i, link := range f.links {
			source, target := link.Source, link.Target
			x := target.X + target.VX - source.X - source.VX
			y := target.Y + target.VY - source.Y - source.VY
			if x == 0 {
				x = jiggle(f.random)
			}
			if y == 0 {
				y = jiggle(f.random)
			}
			l := math.Sqrt(x*x + y*y)
			l = (l - f.Distance) / l * alpha * f.strengths[i]
			x *= l
			y *= l
			b := f.bias[i]
			target.VX -= x * b
			target.VY -= y * b
			b = 1 - b
			source.VX += x * b
			source.VY += y * b
		}
	}
}

// Axis selects the coordinate a Position force acts on.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Position pulls every node toward a per-node target on one axis.
type Position struct {
	Axis     Axis
	Strength float64
	// Target returns the target coordinate of the node at index i.
	Target func(i int) float64

	nodes   []*Node
	targets []float64
}

// NewPosition returns a centering force toward target on the given axis.
func NewPosition(axis Axis, strength float64, target func(i int) float64) *Position {
	return &Position{Axis: axis, Strength: strength, Target: target}
}

func (f *Position) Initialize(nodes []*Node, _ func() float64) {
	f.nodes = nodes
	f.targets = make([]float64, len(nodes))
	for i := range nodes {
		if f.Target != nil {
			f.targets[i] = f.Target(i)
		}
	}
}

func (f *Position) Apply(alpha float64) {
	for i, node := range f.nodes {
		if f.Axis == AxisX {
			node.VX += (f.targets[i] - node.X) * f.Strength * alpha
		} else {
			node.VY += (f.targets[i] - node.Y) * f.Strength * alpha
		}
	}
}
