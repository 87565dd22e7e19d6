// ABOUTME: Terminal UI hosting one panel per device
// ABOUTME: Mouse presses drive panel pointers; frames and stats render with lipgloss
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Panel size in terminal cells, excluding the border
const (
	panelWidth  = 30
	panelHeight = 10
)

// Terminal runs a bubbletea program over a set of panels
type Terminal struct {
	panels  []*Panel
	program *tea.Program
	done    chan struct{}
	err     error
}

// NewTerminal creates a terminal UI for panels. Extra options are passed to
// the bubbletea program (tests use tea.WithInput / tea.WithOutput).
func NewTerminal(panels []*Panel, opts ...tea.ProgramOption) *Terminal {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}, opts...)
	return &Terminal{
		panels:  panels,
		program: tea.NewProgram(newModel(panels), opts...),
		done:    make(chan struct{}),
	}
}

// Start runs the program on its own goroutine. When it exits every panel is closed.
func (t *Terminal) Start() {
	go func() {
		defer close(t.done)
		_, t.err = t.program.Run()
		for _, p := range t.panels {
			p.Close()
		}
	}()
}

// Stop quits the program and waits for it to restore the terminal
func (t *Terminal) Stop() error {
	t.program.Quit()
	<-t.done
	return t.err
}

// Done is closed once the program has exited
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// model is the bubbletea model; all device state lives in the panels
type model struct {
	panels   []*Panel
	quitting bool
}

func newModel(panels []*Panel) model {
	return model{panels: panels}
}

func (m model) Init() tea.Cmd {
	return tickEvery()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			for _, p := range m.panels {
				p.Close()
			}
			return m, tea.Quit
		case "esc":
			for _, p := range m.panels {
				p.PressEscape()
			}
		}

	case tea.MouseMsg:
		m.handleMouse(msg)

	case tickMsg:
		return m, tickEvery()
	}

	return m, nil
}

func (m model) handleMouse(msg tea.MouseMsg) {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		if p := m.panelAt(msg.X, msg.Y); p != nil {
			p.Press()
		}
	case tea.MouseActionRelease:
		// terminals do not always say which button was released
		for _, p := range m.panels {
			p.Release()
		}
	}
}

// panelAt maps a cell to the panel drawn there
func (m model) panelAt(x, y int) *Panel {
	if x < 0 || y < 0 || y >= panelHeight+2 {
		return nil
	}
	i := x / (panelWidth + 2)
	if i >= len(m.panels) {
		return nil
	}
	return m.panels[i]
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	boxes := make([]string, len(m.panels))
	for i, p := range m.panels {
		boxes[i] = renderPanel(p)
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("click a panel to toggle recording  esc: stop  q: quit"))
	return b.String()
}

func renderPanel(p *Panel) string {
	color := p.Color()
	a := p.Annotation()

	fg := lipgloss.Color("255")
	if luminance(color) > 0x80 {
		fg = lipgloss.Color("0")
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(fg)
	textStyle := lipgloss.NewStyle().Foreground(fg)

	state := "idle"
	if a.Recording {
		state = "● recording"
	}

	lines := []string{
		titleStyle.Render(p.Name()),
		textStyle.Render(state),
		"",
		textStyle.Render(truncate(a.Show, panelWidth-2)),
		"",
		textStyle.Render(fmt.Sprintf("captured: %d", a.Captured)),
		textStyle.Render(fmt.Sprintf("played:   %d", a.Played)),
		textStyle.Render(fmt.Sprintf("underrun: %d", a.Underrun)),
	}

	return lipgloss.NewStyle().
		Width(panelWidth).
		Height(panelHeight).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		Background(lipgloss.Color(fmt.Sprintf("#%06x", color))).
		Render(strings.Join(lines, "\n"))
}

func luminance(rgb uint32) uint32 {
	r := (rgb >> 16) & 0xff
	g := (rgb >> 8) & 0xff
	b := rgb & 0xff
	return (r*299 + g*587 + b*114) / 1000
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
