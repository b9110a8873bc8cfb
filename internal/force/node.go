package force

// Node is the physical state of one simulated point. FX/FY, when set, fix the
// node: every tick copies them into X/Y and zeroes the velocity.
type Node struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	FX *float64 `json:"fx,omitempty"`
	FY *float64 `json:"fy,omitempty"`

	// Index is the position of the node in the simulation, assigned by SetNodes.
	Index int `json:"-"`
}

// Fix pins the node at (x, y).
func (n *Node) Fix(x, y float64) {
	n.X, n.Y = x, y
	n.FX, n.FY = &x, &y
	n.VX, n.VY = 0, 0
}

// Release removes a pin.
func (n *Node) Release() {
	n.FX, n.FY = nil, nil
}

// Fixed reports whether the node is pinned.
func (n *Node) Fixed() bool {
	return n.FX != nil && n.FY != nil
}

// Link is a spring between two nodes.
type Link struct {
	Source *Node
	Target *Node
	Index  int
}
