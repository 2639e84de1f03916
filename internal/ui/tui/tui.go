// Package tui provides interactive terminal UI components using BubbleTea.
package tui

import (
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styles contains reusable lipgloss styles for the TUI.
var Styles = struct {
	Title       lipgloss.Style
	Help        lipgloss.Style
	Filter      lipgloss.Style
	FilterInput lipgloss.Style
	Status      lipgloss.Style
	Geometry    lipgloss.Style
}{
	Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Filter:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	FilterInput: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Geometry:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
}

// Run starts a BubbleTea program with the given model on the alternate screen.
func Run(model tea.Model) (tea.Model, error) {
	return tea.NewProgram(model, tea.WithAltScreen()).Run()
}

func newTable(columns []table.Column, rows []table.Row) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// tableHeight fits the table to the window, leaving room for title, status
// and help lines.
func tableHeight(windowHeight int) int {
	h := windowHeight - 8
	if h < 5 {
		h = 5
	}
	return h
}

// filterInput applies a key press to an in-progress filter. It reports
// whether filtering continues and whether the filter text changed.
func filterInput(filter string, key string) (next string, active bool, changed bool) {
	switch key {
	case "enter":
		return filter, false, false
	case "esc":
		return "", false, filter != ""
	case "backspace":
		if filter == "" {
			return filter, true, false
		}
		r := []rune(filter)
		return string(r[:len(r)-1]), true, true
	}
	if len([]rune(key)) == 1 {
		return filter + key, true, true
	}
	return filter, true, false
}
