package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/dxnodes/internal/model"
)

// ExchangePickerResult contains the exchange chosen in the picker.
type ExchangePickerResult struct {
	Exchange model.Exchange
	Selected bool
}

// ExchangePickerModel is the BubbleTea model for choosing an exchange.
type ExchangePickerModel struct {
	table     table.Model
	exchanges []model.Exchange
	filtered  []model.Exchange
	result    ExchangePickerResult
	filter    string
	filtering bool
	quitting  bool
	selectKey key.Binding
	filterKey key.Binding
	quitKey   key.Binding
}

// NewExchangePicker creates a picker over exchanges.
func NewExchangePicker(exchanges []model.Exchange) ExchangePickerModel {
	columns := []table.Column{
		{Title: "Title", Width: 28},
		{Title: "Project", Width: 20},
		{Title: "Exchange", Width: 24},
		{Title: "Collection", Width: 18},
		{Title: "Updated", Width: 20},
	}
	m := ExchangePickerModel{
		table:     newTable(columns, exchangesToRows(exchanges)),
		exchanges: exchanges,
		filtered:  exchanges,
		selectKey: key.NewBinding(key.WithKeys("enter")),
		filterKey: key.NewBinding(key.WithKeys("/")),
		quitKey:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
	}
	return m
}

func exchangesToRows(exchanges []model.Exchange) []table.Row {
	rows := make([]table.Row, len(exchanges))
	for i, e := range exchanges {
		rows[i] = table.Row{
			truncateText(e.DisplayTitle(), 28),
			truncateText(e.ProjectName, 20),
			truncateLeft(e.ExchangeID, 24),
			truncateLeft(e.CollectionID, 18),
			truncateText(e.UpdatedTime, 20),
		}
	}
	return rows
}

func (m *ExchangePickerModel) applyFilter() {
	if m.filter == "" {
		m.filtered = m.exchanges
	} else {
		needle := strings.ToLower(m.filter)
		var out []model.Exchange
		for _, e := range m.exchanges {
			if strings.Contains(strings.ToLower(e.DisplayTitle()), needle) ||
				strings.Contains(strings.ToLower(e.ProjectName), needle) ||
				strings.Contains(strings.ToLower(e.ExchangeID), needle) {
				out = append(out, e)
			}
		}
		m.filtered = out
	}
	m.table.SetRows(exchangesToRows(m.filtered))
}

// Init implements tea.Model.
func (m ExchangePickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ExchangePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(tableHeight(msg.Height))

	case tea.KeyMsg:
		if m.filtering {
			next, active, changed := filterInput(m.filter, msg.String())
			m.filter, m.filtering = next, active
			if changed {
				m.applyFilter()
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, m.quitKey):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.filterKey):
			m.filtering = true
			return m, nil
		case key.Matches(msg, m.selectKey):
			cursor := m.table.Cursor()
			if cursor >= 0 && cursor < len(m.filtered) {
				m.result = ExchangePickerResult{Exchange: m.filtered[cursor], Selected: true}
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ExchangePickerModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(Styles.Title.Render("Exchanges"))
	b.WriteString("\n\n")
	if m.filter != "" || m.filtering {
		val := Styles.FilterInput.Render(m.filter)
		if m.filtering {
			val += "█"
		}
		b.WriteString(Styles.Filter.Render("Filter: ") + val + "\n\n")
	}
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(Styles.Status.Render(fmt.Sprintf("%d of %d exchange(s)", len(m.filtered), len(m.exchanges))))
	b.WriteString("\n")
	b.WriteString(Styles.Help.Render("↑/↓ navigate • enter select • / filter • q quit"))
	return b.String()
}

// Result returns the result of the user interaction.
func (m ExchangePickerModel) Result() ExchangePickerResult {
	return m.result
}

// RunExchangePicker runs the interactive exchange picker.
func RunExchangePicker(exchanges []model.Exchange) (ExchangePickerResult, error) {
	if len(exchanges) == 0 {
		return ExchangePickerResult{}, nil
	}
	final, err := Run(NewExchangePicker(exchanges))
	if err != nil {
		return ExchangePickerResult{}, err
	}
	if m, ok := final.(ExchangePickerModel); ok {
		return m.Result(), nil
	}
	return ExchangePickerResult{}, nil
}
