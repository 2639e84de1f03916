package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/dxnodes/internal/structure"
)

const nameColumnWidth = 44

// StructureBrowserResult contains the node chosen in the structure browser.
// Node is nil when the user quit without choosing.
type StructureBrowserResult struct {
	Node *structure.Node
}

type structureKeyMap struct {
	Select   key.Binding
	Toggle   key.Binding
	Filter   key.Binding
	ClearFlt key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultStructureKeyMap() structureKeyMap {
	return structureKeyMap{
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Toggle:   key.NewBinding(key.WithKeys(" ", "tab"), key.WithHelp("space", "collapse/expand")),
		Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		ClearFlt: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear filter")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// StructureBrowserModel is the BubbleTea model for browsing an exchange tree.
type StructureBrowserModel struct {
	table     table.Model
	tree      *structure.Tree
	title     string
	visible   []*structure.Node
	collapsed map[string]bool
	keys      structureKeyMap
	result    StructureBrowserResult
	filter    string
	filtering bool
	showHelp  bool
	quitting  bool
}

// NewStructureBrowser creates a browser over tree.
func NewStructureBrowser(tree *structure.Tree, title string) StructureBrowserModel {
	if tree == nil {
		tree = structure.NewTree()
	}
	columns := []table.Column{
		{Title: "Name", Width: nameColumnWidth},
		{Title: "Type", Width: 18},
		{Title: "Geo", Width: 3},
		{Title: "ID", Width: 24},
	}
	m := StructureBrowserModel{
		table:     newTable(columns, nil),
		tree:      tree,
		title:     title,
		collapsed: make(map[string]bool),
		keys:      defaultStructureKeyMap(),
	}
	m.refresh()
	return m
}

// refresh recomputes the visible nodes. A filter flattens the tree to the
// matching nodes; otherwise collapsed subtrees are hidden.
func (m *StructureBrowserModel) refresh() {
	m.visible = nil
	needle := strings.ToLower(m.filter)
	m.tree.Walk(func(n *structure.Node) bool {
		if needle == "" {
			m.visible = append(m.visible, n)
			return !m.collapsed[n.ID]
		}
		if strings.Contains(strings.ToLower(n.Name), needle) ||
			strings.Contains(strings.ToLower(n.AssetType), needle) ||
			strings.Contains(strings.ToLower(n.ID), needle) {
			m.visible = append(m.visible, n)
		}
		return true
	})
	m.table.SetRows(m.rows())
}

func (m StructureBrowserModel) rows() []table.Row {
	rows := make([]table.Row, len(m.visible))
	for i, n := range m.visible {
		name := n.Name
		if m.collapsed[n.ID] && len(n.ChildIDs) > 0 {
			name += fmt.Sprintf(" (+%d)", len(n.ChildIDs))
		}
		geo := ""
		if n.HasGeometry {
			geo = "*"
		}
		rows[i] = table.Row{
			indentName(name, n.Depth, nameColumnWidth),
			truncateText(n.AssetType, 18),
			geo,
			truncateLeft(n.ID, 24),
		}
	}
	return rows
}

func (m StructureBrowserModel) selected() *structure.Node {
	cursor := m.table.Cursor()
	if cursor >= 0 && cursor < len(m.visible) {
		return m.visible[cursor]
	}
	return nil
}

// Init implements tea.Model.
func (m StructureBrowserModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StructureBrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(tableHeight(msg.Height))

	case tea.KeyMsg:
		if m.filtering {
			next, active, changed := filterInput(m.filter, msg.String())
			m.filter, m.filtering = next, active
			if changed {
				m.refresh()
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Filter):
			m.filtering = true
			return m, nil
		case key.Matches(msg, m.keys.ClearFlt):
			m.filter = ""
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			if n := m.selected(); n != nil && len(n.ChildIDs) > 0 && m.filter == "" {
				m.collapsed[n.ID] = !m.collapsed[n.ID]
				m.refresh()
			}
			return m, nil
		case key.Matches(msg, m.keys.Select):
			if n := m.selected(); n != nil {
				m.result = StructureBrowserResult{Node: n}
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
func (m StructureBrowserModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render(m.title))
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

	status := fmt.Sprintf("%d node(s), %d element(s), %s with geometry",
		m.tree.Len(), m.tree.ElementCount, Styles.Geometry.Render(fmt.Sprint(m.tree.GeometryCount)))
	if m.filter != "" {
		status = fmt.Sprintf("%d of %d node(s) (filtered)", len(m.visible), m.tree.Len())
	}
	b.WriteString(Styles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(Styles.Help.Render(`Navigation:
  ↑/k      Move up
  ↓/j      Move down
  space    Collapse or expand the selected asset

Actions:
  enter    Select node

Filter:
  /        Start filtering
  Esc      Clear filter
  Enter    Finish filtering

General:
  ?        Toggle full help
  q        Quit`))
	} else {
		keys := []string{"↑/↓ navigate", "space collapse", "enter select", "/ filter", "? help", "q quit"}
		b.WriteString(Styles.Help.Render(strings.Join(keys, " • ")))
	}
	return b.String()
}

// Result returns the result of the user interaction.
func (m StructureBrowserModel) Result() StructureBrowserResult {
	return m.result
}

// RunStructureBrowser runs the interactive structure browser.
func RunStructureBrowser(tree *structure.Tree, title string) (StructureBrowserResult, error) {
	if tree == nil || tree.IsEmpty() {
		return StructureBrowserResult{}, nil
	}
	final, err := Run(NewStructureBrowser(tree, title))
	if err != nil {
		return StructureBrowserResult{}, err
	}
	if m, ok := final.(StructureBrowserModel); ok {
		return m.Result(), nil
	}
	return StructureBrowserResult{}, nil
}
