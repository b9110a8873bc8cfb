package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/geometry"
	"github.com/kubilitics/kubilitics-topoview/internal/topology"
)

// Screen pixels per terminal cell. Frames are laid out in pixels; the canvas
// samples them on the cell grid.
const (
	cellWidth  = 8.0
	cellHeight = 16.0
)

type cellStyle int

const (
	styleBlank cellStyle = iota
	styleLink
	styleItem
	styleFaded
	styleFocused
	styleHighlighted
	styleLabel
)

var styles = map[cellStyle]lipgloss.Style{
	styleBlank:       lipgloss.NewStyle(),
	styleLink:        lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	styleItem:        lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	styleFaded:       lipgloss.NewStyle().Foreground(lipgloss.Color("237")),
	styleFocused:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
	styleHighlighted: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	styleLabel:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
}

var glyphs = map[string]rune{
	topology.LayerPods:         'o',
	topology.LayerServices:     'S',
	topology.LayerReplicaSets:  'r',
	topology.LayerStatefulSets: 's',
	topology.LayerDaemonSets:   'd',
	topology.LayerDeployments:  'D',
}

type cell struct {
	ch    rune
	style cellStyle
}

type canvas struct {
	width, height int
	cells         []cell
}

func newCanvas(width, height int) *canvas {
	c := &canvas{width: max(width, 0), height: max(height, 0)}
	c.cells = make([]cell, c.width*c.height)
	for i := range c.cells {
		c.cells[i] = cell{ch: ' '}
	}
	return c
}

func (c *canvas) set(col, row int, ch rune, style cellStyle) {
	if col < 0 || row < 0 || col >= c.width || row >= c.height {
		return
	}
	c.cells[row*c.width+col] = cell{ch: ch, style: style}
}

func (c *canvas) at(col, row int) cell {
	return c.cells[row*c.width+col]
}

func (c *canvas) text(col, row int, s string, style cellStyle) {
	for i, r := range []rune(s) {
		c.set(col+i, row, r, style)
	}
}

// line draws a Bresenham segment, leaving existing non-link cells alone.
func (c *canvas) line(c0, r0, c1, r1 int, style cellStyle) {
	dc, dr := abs(c1-c0), -abs(r1-r0)
	sc, sr := sign(c1-c0), sign(r1-r0)
	e := dc + dr
	for steps := 0; steps <= dc-dr; steps++ {
		if c0 >= 0 && r0 >= 0 && c0 < c.width && r0 < c.height {
			if cur := c.at(c0, r0); cur.ch == ' ' || cur.style == styleLink || cur.style == styleFaded {
				c.set(c0, r0, '.', style)
			}
		}
		if c0 == c1 && r0 == r1 {
			return
		}
		e2 := 2 * e
		if e2 >= dr {
			e += dr
			c0 += sc
		}
		if e2 <= dc {
			e += dc
			r0 += sr
		}
	}
}

func (c *canvas) String() string {
	var b strings.Builder
	for row := 0; row < c.height; row++ {
		start := 0
		for col := 1; col <= c.width; col++ {
			if col < c.width && c.at(col, row).style == c.at(start, row).style {
				continue
			}
			var run strings.Builder
			for i := start; i < col; i++ {
				run.WriteRune(c.at(i, row).ch)
			}
			b.WriteString(styles[c.at(start, row).style].Render(run.String()))
			start = col
		}
		if row < c.height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// toCell maps a simulation point to a cell through the frame transform.
func toCell(t engine.Transform, x, y float64) (int, int) {
	p := t.Apply(geometry.Point{X: x, Y: y})
	return int(math.Floor(p.X / cellWidth)), int(math.Floor(p.Y / cellHeight))
}

// cellCenter returns the screen point at the middle of a cell.
func cellCenter(col, row int) geometry.Point {
	return geometry.Point{X: (float64(col) + 0.5) * cellWidth, Y: (float64(row) + 0.5) * cellHeight}
}

func classStyle(class string) cellStyle {
	switch {
	case strings.Contains(class, "focused"):
		return styleFocused
	case strings.Contains(class, "faded"):
		return styleFaded
	case strings.Contains(class, "highlighted"):
		return styleHighlighted
	default:
		return styleItem
	}
}

// renderFrame draws links first, then items, then labels of focused items.
func renderFrame(fr *engine.Frame, width, height int) string {
	c := newCanvas(width, height)
	if fr == nil {
		return c.String()
	}
	for _, l := range fr.Links {
		c0, r0 := toCell(fr.Transform, l.SourceX, l.SourceY)
		c1, r1 := toCell(fr.Transform, l.TargetX, l.TargetY)
		style := styleLink
		switch classStyle(l.Class) {
		case styleFocused:
			style = styleFocused
		case styleFaded:
			style = styleFaded
		}
		c.line(c0, r0, c1, r1, style)
	}
	for _, it := range fr.Items {
		col, row := toCell(fr.Transform, it.X, it.Y)
		glyph, ok := glyphs[it.Layer]
		if !ok {
			glyph = '*'
		}
		if it.Pinned {
			glyph = '#'
		}
		c.set(col, row, glyph, classStyle(it.Class))
	}
	for _, it := range fr.Items {
		if classStyle(it.Class) != styleFocused {
			continue
		}
		col, row := toCell(fr.Transform, it.X, it.Y)
		c.text(col+2, row, it.Label, styleLabel)
	}
	return c.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
