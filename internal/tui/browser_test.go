package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/loopshape/internal/dk"
	"github.com/san-kum/loopshape/internal/mu"
)

func history() []dk.Iteration {
	b := mu.Bounds{
		Omega:    []float64{0.1, 1, 10},
		Upper:    []float64{0.5, 1.2, 0.4},
		Lower:    []float64{0.4, 1.0, 0.3},
		Scalings: [][]float64{{2, 1}, {1.5, 1}, {1, 1}},
	}
	return []dk.Iteration{
		{Index: 0, Gamma: 3, MuPeak: 1.2, MuOmega: 1, Bounds: b},
		{Index: 1, Gamma: 2, MuPeak: 0.9, MuOmega: 1, Bounds: b},
		{Index: 2, Gamma: 2.1, MuPeak: 0.95, MuOmega: 1, Bounds: b},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m tea.Model, keys ...string) tea.Model {
	for _, k := range keys {
		m, _ = m.Update(key(k))
	}
	return m
}

func TestBrowserNavigation(t *testing.T) {
	tests := []struct {
		keys []string
		want int
	}{
		{nil, 1},
		{[]string{"j"}, 2},
		{[]string{"j", "j", "j"}, 2},
		{[]string{"k", "k", "up"}, 0},
		{[]string{"g", "b"}, 1},
		{[]string{"G"}, 2},
	}
	for _, tt := range tests {
		m := press(NewBrowser("rp", history(), 1), tt.keys...).(model)
		if m.cursor != tt.want {
			t.Errorf("keys %v: expected cursor %d, got %d", tt.keys, tt.want, m.cursor)
		}
	}
}

func TestBrowserViews(t *testing.T) {
	m := NewBrowser("rp", history(), 1)
	if out := m.View(); !strings.Contains(out, "mu upper") || !strings.Contains(out, "3 iterations") {
		t.Errorf("expected mu plot and header, got\n%s", out)
	}
	m = press(m, "tab")
	if out := m.View(); !strings.Contains(out, "D scalings of iteration 1") {
		t.Errorf("expected scaling plot, got\n%s", out)
	}
}

func TestBrowserQuit(t *testing.T) {
	_, cmd := NewBrowser("rp", history(), 0).Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestBrowserEmpty(t *testing.T) {
	m := press(NewBrowser("empty", nil, 0), "j", "G", "tab")
	if out := m.View(); !strings.Contains(out, "0 iterations") {
		t.Errorf("unexpected view\n%s", out)
	}
}
