// Package tui renders a graph view in the terminal with mouse focus, drag and
// zoom.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/graph"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/repository"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
)

const (
	inputBuffer = 256
	zoomStep    = 1.25
	panCells    = 4
	// title line above the canvas, status and help lines below
	chromeLines = 3
)

type Options struct {
	View      string
	Namespace string
	Datasets  service.DatasetService
	Layouts   repository.LayoutRepository
	Engine    engine.Options
}

type frameMsg struct{ frame engine.Frame }

type focusMsg struct{ event service.FocusEvent }

type errMsg struct{ err error }

type model struct {
	opts   Options
	inputs *inputQueue

	frame         *engine.Frame
	transform     engine.Transform
	width, height int
	dragging      bool
	focus         string
	err           string
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Run shows a view until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inputs := newInputQueue(inputBuffer)
	p := tea.NewProgram(initialModel(opts, inputs), tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))

	session, err := service.NewSession(opts.View, opts.Namespace, opts.Datasets, opts.Layouts, opts.Engine, func(m service.Message) {
		switch m.Type {
		case service.MessageFrame:
			p.Send(frameMsg{frame: *m.Frame})
		case service.MessageFocus:
			p.Send(focusMsg{event: *m.Focus})
		case service.MessageError:
			p.Send(errMsg{err: errors.New(m.Error)})
		}
	})
	if err != nil {
		return err
	}
	go func() {
		if err := session.Run(ctx); err != nil {
			p.Send(errMsg{err: err})
		}
	}()
	go func() {
		for {
			in, ok := inputs.pop(ctx)
			if !ok {
				return
			}
			if err := session.Handle(ctx, in); err != nil && ctx.Err() == nil {
				p.Send(errMsg{err: err})
			}
		}
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func initialModel(opts Options, inputs *inputQueue) model {
	return model{opts: opts, inputs: inputs, transform: engine.Identity}
}

func (m model) Init() tea.Cmd { return nil }

// push queues an input for the session; moves are dropped when the session
// falls behind.
func (m model) push(in service.Input) { m.inputs.push(in) }

func (m model) canvasHeight() int { return max(m.height-chromeLines, 0) }

func (m *model) zoom(t engine.Transform) {
	m.transform = t
	m.push(service.Input{Type: service.InputZoom, K: t.K, X: t.X, Y: t.Y})
}

// zoomAt scales by factor around a screen point. The factor is clamped to
// the engine's zoom range first so the point stays put at the bounds.
func (m *model) zoomAt(factor, px, py float64) {
	t := m.transform
	k := m.opts.Engine.ClampZoom(t.K * factor)
	f := k / t.K
	m.zoom(engine.Transform{K: k, X: px - (px-t.X)*f, Y: py - (py-t.Y)*f})
}

func (m model) center() (float64, float64) {
	return float64(m.width) * cellWidth / 2, float64(m.canvasHeight()) * cellHeight / 2
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		first := m.width == 0
		m.width, m.height = msg.Width, msg.Height
		if first {
			cx, cy := m.center()
			m.zoom(engine.Transform{K: m.transform.K, X: cx, Y: cy})
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "+", "=":
			cx, cy := m.center()
			m.zoomAt(zoomStep, cx, cy)
		case "-":
			cx, cy := m.center()
			m.zoomAt(1/zoomStep, cx, cy)
		case "left", "h":
			m.zoom(engine.Transform{K: m.transform.K, X: m.transform.X + panCells*cellWidth, Y: m.transform.Y})
		case "right", "l":
			m.zoom(engine.Transform{K: m.transform.K, X: m.transform.X - panCells*cellWidth, Y: m.transform.Y})
		case "up", "k":
			m.zoom(engine.Transform{K: m.transform.K, X: m.transform.X, Y: m.transform.Y + panCells*cellHeight})
		case "down", "j":
			m.zoom(engine.Transform{K: m.transform.K, X: m.transform.X, Y: m.transform.Y - panCells*cellHeight})
		case "0":
			cx, cy := m.center()
			m.zoom(engine.Transform{K: 1, X: cx, Y: cy})
		case "esc":
			m.push(service.Input{Type: service.InputUnfocus})
		case "u":
			if ref, ok := m.focusRef(); ok {
				m.push(service.Input{Type: service.InputUnpin, Layer: ref.Layer, ID: ref.ID})
			}
		case "s":
			m.push(service.Input{Type: service.InputSaveLayout})
		}
		return m, nil

	case tea.MouseMsg:
		p := cellCenter(msg.X, msg.Y-1)
		switch {
		case msg.Button == tea.MouseButtonWheelUp:
			m.zoomAt(zoomStep, p.X, p.Y)
		case msg.Button == tea.MouseButtonWheelDown:
			m.zoomAt(1/zoomStep, p.X, p.Y)
		case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
			m.dragging = true
			m.push(service.Input{Type: service.InputDragStart, X: p.X, Y: p.Y})
		case msg.Action == tea.MouseActionRelease && m.dragging:
			m.dragging = false
			m.push(service.Input{Type: service.InputDragEnd})
		case msg.Action == tea.MouseActionMotion && m.dragging:
			m.push(service.Input{Type: service.InputDragMove, X: p.X, Y: p.Y})
		case msg.Action == tea.MouseActionMotion:
			m.push(service.Input{Type: service.InputPointerMove, X: p.X, Y: p.Y})
		}
		return m, nil

	case frameMsg:
		fr := msg.frame
		m.frame = &fr
		m.transform = fr.Transform
		return m, nil

	case focusMsg:
		m.focus = describe(msg.event)
		m.err = ""
		return m, nil

	case errMsg:
		m.err = msg.err.Error()
		return m, nil
	}
	return m, nil
}

// describe summarizes the record of a focus event for the status line.
func describe(ev service.FocusEvent) string {
	switch rec := ev.Record.(type) {
	case nil:
		return ""
	case models.Pod:
		return fmt.Sprintf("pod %s", rec.Ref().Key())
	case models.PodHealth:
		return fmt.Sprintf("pod %s  health %.0f%%  ready %d/%d", rec.Ref().Key(), rec.Score()*100, rec.ContainersReady, rec.Containers)
	case models.Service:
		return fmt.Sprintf("service %s  %d pods", rec.Ref().Key(), len(rec.TargetPods))
	case models.Controller:
		return fmt.Sprintf("%s %s  %d pods", ev.Kind, rec.Ref().Key(), len(rec.TargetPods))
	case models.Deployment:
		return fmt.Sprintf("deployment %s  %d replica sets", rec.Ref().Key(), len(rec.TargetReplicaSets))
	case models.AllowedRoute:
		ports := "all ports"
		if len(rec.Ports) > 0 {
			ports = fmt.Sprint(rec.Ports)
		}
		return fmt.Sprintf("route %s -> %s  %s", rec.SourcePod.Key(), rec.TargetPod.Key(), ports)
	default:
		return ev.Kind
	}
}

func (m model) View() string {
	var b strings.Builder
	title := fmt.Sprintf("topoview  •  %s", m.opts.View)
	if m.opts.Namespace != "" {
		title += "  •  ns " + m.opts.Namespace
	}
	if m.frame != nil {
		title += fmt.Sprintf("  •  %d items  •  zoom %.2f  •  alpha %.3f", len(m.frame.Items), m.frame.Transform.K, m.frame.Alpha)
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(renderFrame(m.frame, m.width, m.canvasHeight()) + "\n")
	switch {
	case m.err != "":
		b.WriteString(errorStyle.Render("error: "+m.err) + "\n")
	case m.focus != "":
		b.WriteString(m.focus + "\n")
	case m.frame == nil:
		b.WriteString("waiting for dataset...\n")
	default:
		b.WriteString("\n")
	}
	b.WriteString(statusStyle.Render("hover focus  •  drag pin  •  wheel/+/- zoom  •  arrows pan  •  u unpin  •  s save  •  esc unfocus  •  q quit"))
	return b.String()
}

// focusRef is the ref of the focused datum of the last frame, if any.
func (m model) focusRef() (graph.Ref, bool) {
	if m.frame == nil || m.frame.Focus == nil {
		return graph.Ref{}, false
	}
	return *m.frame.Focus, true
}
