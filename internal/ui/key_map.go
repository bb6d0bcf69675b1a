package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up         key.Binding
	down       key.Binding
	tab        key.Binding
	favorite   key.Binding
	watchLater key.Binding
	rate       key.Binding
	unrate     key.Binding
	remove     key.Binding
	more       key.Binding
	sort       key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		tab:        key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch tab")),
		favorite:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
		watchLater: key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "watch later")),
		rate:       key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9", "0"), key.WithHelp("1-0", "rate")),
		unrate:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "reset rating")),
		remove:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove")),
		more:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "load more")),
		sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.tab, k.favorite, k.watchLater, k.rate, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.tab},
		{k.favorite, k.watchLater, k.remove},
		{k.rate, k.unrate, k.sort},
		{k.more, k.quit},
	}
}
