package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Quit      key.Binding
	Up        key.Binding
	Down      key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	Unmatched key.Binding
	Type      key.Binding
	Budget    key.Binding
	Suggest   key.Binding
	Unmatch   key.Binding
	Import    key.Binding
	Budgets   key.Binding
	Reset     key.Binding
	Select    key.Binding
	Back      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j", "down")),
		NextPage:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("l", "next page")),
		PrevPage:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h", "prev page")),
		Unmatched: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "unmatched")),
		Type:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "type")),
		Budget:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "budget")),
		Suggest:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "suggest match")),
		Unmatch:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "unmatch")),
		Import:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import")),
		Budgets:   key.NewBinding(key.WithKeys("B"), key.WithHelp("B", "budgets")),
		Reset:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reset")),
		Select:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	}
}

func (k keyMap) ledgerHelp() []key.Binding {
	return []key.Binding{k.Unmatched, k.Type, k.Budget, k.PrevPage, k.NextPage, k.Suggest, k.Unmatch, k.Import, k.Budgets, k.Reset, k.Quit}
}

// helpLine renders bindings as "[key] desc" pairs.
func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		if h.Key == "" {
			continue
		}
		parts = append(parts, "["+h.Key+"] "+h.Desc)
	}
	return helpStyle.Render(strings.Join(parts, "  "))
}
