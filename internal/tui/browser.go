package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/loopshape/internal/dk"
	"github.com/san-kum/loopshape/internal/report"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

type view int

const (
	viewMu view = iota
	viewScaling
)

type model struct {
	title   string
	history []dk.Iteration
	best    int
	cursor  int
	view    view

	width  int
	height int
}

// NewBrowser returns a model that pages through D-K iterations. best is
// the index of the iteration to highlight.
func NewBrowser(title string, history []dk.Iteration, best int) tea.Model {
	return model{
		title:   title,
		history: history,
		best:    best,
		cursor:  best,
		width:   80,
		height:  24,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.history)-1 {
			m.cursor++
		}
	case "g":
		m.cursor = 0
	case "G":
		m.cursor = max(len(m.history)-1, 0)
	case "b":
		m.cursor = m.best
	case "tab":
		m.view = (m.view + 1) % 2
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("  " + cyan.Render(m.title) + "  " + dim.Render(fmt.Sprintf("%d iterations", len(m.history))) + "\n")
	b.WriteString(dimmer.Render("  "+strings.Repeat("─", 44)) + "\n")
	b.WriteString(dim.Render(fmt.Sprintf("    %-6s %-12s %-12s %-10s", "iter", "gamma", "mu peak", "omega")) + "\n")

	for i, it := range m.history {
		line := fmt.Sprintf("%-6d %-12.5g %-12.5g %-10.4g", it.Index, it.Gamma, it.MuPeak, it.MuOmega)
		mark := "  "
		if i == m.best {
			mark = green.Render("★ ")
		}
		if i == m.cursor {
			b.WriteString("  " + cyan.Render("▸ ") + white.Render(line) + " " + mark + "\n")
		} else {
			b.WriteString("    " + dim.Render(line) + " " + mark + "\n")
		}
	}
	b.WriteString("\n")

	if len(m.history) > 0 {
		b.WriteString(m.plot())
		b.WriteString("\n\n")
	}
	b.WriteString(dim.Render("  ↑↓/jk select   tab mu/scaling   b best   q quit") + "\n")
	return b.String()
}

func (m model) plot() string {
	w := max(m.width-12, 30)
	h := max(m.height-len(m.history)-14, 6)
	it := m.history[m.cursor]

	if m.view == viewMu {
		return report.MuPlot(it.Bounds, w, h)
	}
	if len(it.Bounds.Scalings) == 0 || len(it.Bounds.Scalings[0]) < 2 {
		return magenta.Render("  single block: no scaling to show")
	}
	series := make([][]float64, len(it.Bounds.Scalings[0])-1)
	for k := range it.Bounds.Scalings {
		for i := range series {
			series[i] = append(series[i], it.Bounds.Scalings[k][i])
		}
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(h),
		asciigraph.Width(w),
		asciigraph.Precision(3),
		asciigraph.Caption(fmt.Sprintf("D scalings of iteration %d, grid order", it.Index)),
	)
}

// Run opens the browser on the terminal until the user quits.
func Run(title string, history []dk.Iteration, best int) error {
	p := tea.NewProgram(NewBrowser(title, history, best), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
