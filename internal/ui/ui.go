package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/reel/internal/auth"
	"github.com/desertthunder/reel/internal/catalog"
	"github.com/desertthunder/reel/internal/collections"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/ratings"
	"github.com/desertthunder/reel/internal/services"
)

// SignInHint is shown whenever a collection change is refused.
const SignInHint = "sign in first: reel login <email>"

// Tab identifies one of the TUI tabs.
type Tab int

const (
	PopularTab Tab = iota
	FavoritesTab
	WatchLaterTab
	tabCount
)

func (t Tab) String() string {
	switch t {
	case PopularTab:
		return "Popular"
	case FavoritesTab:
		return "Favorites"
	case WatchLaterTab:
		return "Watch Later"
	default:
		return ""
	}
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusErr
)

// Deps are the collaborators of the TUI. Sessions may be nil, in which case the header
// only reflects the guard.
type Deps struct {
	Provider   services.Provider
	Favorites  *collections.Store
	WatchLater *collections.Store
	Ratings    *ratings.Registry
	Guard      auth.Guard
	Sessions   *auth.Sessions
	Notifier   *Notifier
	Sorter     *catalog.Sorter
}

// Notifier forwards store callbacks into the running program. Its methods never block.
type Notifier struct {
	changes  chan struct{}
	warnings chan error
}

// NewNotifier creates a notifier; wire [Notifier.Changed] and [Notifier.Warn] as store
// change and warning handlers.
func NewNotifier() *Notifier {
	return &Notifier{
		changes:  make(chan struct{}, 1),
		warnings: make(chan error, 8),
	}
}

// Changed signals that a store snapshot was replaced.
func (n *Notifier) Changed() {
	select {
	case n.changes <- struct{}{}:
	default:
	}
}

// Warn forwards a persistence warning.
func (n *Notifier) Warn(err error) {
	select {
	case n.warnings <- err:
	default:
	}
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	deps     Deps
	tab      Tab
	lists    [tabCount]list.Model
	sorts    [tabCount]catalog.SortMode
	popular  []models.CatalogItem
	page     int
	hasMore  bool
	loading  bool
	status   string
	statusOf statusKind
	width    int
	height   int
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, deps Deps) *Model {
	if deps.Guard == nil {
		deps.Guard = auth.Deny
	}
	if deps.Sorter == nil {
		deps.Sorter = catalog.NewSorter("")
	}

	m := &Model{
		ctx:  ctx,
		deps: deps,
		tab:  PopularTab,
		help: help.New(),
		keys: newKeyMap(),
	}
	for i := range m.lists {
		l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
		l.SetShowTitle(false)
		l.SetShowHelp(false)
		l.KeyMap.Quit.SetEnabled(false)
		m.lists[i] = l
	}
	m.refresh()
	return m
}

// Init fetches the first popular page and starts listening for store changes.
func (m *Model) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.fetchPopular(1), m.waitForChange())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for i := range m.lists {
			m.lists[i].SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		switch msg.kind {
		case MsgPopularFetched:
			m.loading = false
			res := msg.data.(popularFetched)
			if res.err != nil {
				m.setStatus(statusErr, fmt.Sprintf("could not load popular titles: %v", res.err))
				return m, nil
			}
			if res.page == nil {
				return m, nil
			}
			m.popular = catalog.Dedupe(m.popular, res.page.Results)
			m.page = res.page.Number
			m.hasMore = res.page.HasMore()
			m.refresh()
			return m, nil

		case MsgStoreChanged:
			m.refresh()
			m.setStatus(statusInfo, "collections updated elsewhere")
			return m, m.waitForChange()

		case MsgWarning:
			if err, ok := msg.data.(error); ok {
				m.setStatus(statusWarn, err.Error())
			}
			return m, m.waitForChange()
		}
	}

	return m.updateList(msg)
}

// View renders the tabs, the current list, the status line and help.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(m.renderSession())
	b.WriteString("\n\n")

	if m.loading && m.tab == PopularTab && len(m.popular) == 0 {
		b.WriteString("Loading popular titles...")
	} else if len(m.lists[m.tab].Items()) == 0 {
		b.WriteString(styles.help.Render(m.emptyText()))
	} else {
		b.WriteString(m.lists[m.tab].View())
	}

	if m.status != "" {
		b.WriteString("\n\n")
		b.WriteString(m.renderStatus())
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(m.helpKeys()))
	return b.String()
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.lists[m.tab].FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.tab):
		if msg.String() == "shift+tab" {
			m.tab = (m.tab + tabCount - 1) % tabCount
		} else {
			m.tab = (m.tab + 1) % tabCount
		}
		m.status = ""
		return m, nil
	case key.Matches(msg, m.keys.favorite):
		m.toggle(m.deps.Favorites)
		return m, nil
	case key.Matches(msg, m.keys.watchLater):
		m.toggle(m.deps.WatchLater)
		return m, nil
	case key.Matches(msg, m.keys.remove):
		m.remove()
		return m, nil
	case key.Matches(msg, m.keys.rate):
		m.rate(ratingForKey(msg.String()))
		return m, nil
	case key.Matches(msg, m.keys.unrate):
		m.unrate()
		return m, nil
	case key.Matches(msg, m.keys.sort):
		m.cycleSort()
		return m, nil
	case key.Matches(msg, m.keys.more):
		if m.tab == PopularTab && m.hasMore && !m.loading {
			m.loading = true
			return m, m.fetchPopular(m.page + 1)
		}
		return m, nil
	}

	return m.updateList(msg)
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.lists[m.tab], cmd = m.lists[m.tab].Update(msg)
	return m, cmd
}

// ratingForKey maps "1".."9" to 1..9 and "0" to 10.
func ratingForKey(s string) int {
	if len(s) != 1 || s[0] < '0' || s[0] > '9' {
		return 0
	}
	if s[0] == '0' {
		return models.MaxRating
	}
	return int(s[0] - '0')
}

func (m *Model) selected() (titleItem, bool) {
	it, ok := m.lists[m.tab].SelectedItem().(titleItem)
	return it, ok
}

func (m *Model) toggle(store *collections.Store) {
	it, ok := m.selected()
	if !ok || store == nil {
		return
	}
	if !m.deps.Guard.RequireSession() {
		m.setStatus(statusWarn, SignInHint)
		return
	}

	added, err := store.Toggle(it.item)
	if err != nil {
		m.setStatus(statusErr, err.Error())
		return
	}
	if added {
		m.setStatus(statusOK, fmt.Sprintf("added %s to %s", it.item.DisplayTitle(), store.Name().Label()))
	} else {
		m.setStatus(statusOK, fmt.Sprintf("removed %s from %s", it.item.DisplayTitle(), store.Name().Label()))
	}
	m.refresh()
}

func (m *Model) remove() {
	store := m.currentStore()
	if store == nil {
		m.setStatus(statusInfo, "x removes titles from Favorites or Watch Later")
		return
	}
	it, ok := m.selected()
	if !ok {
		return
	}
	if !m.deps.Guard.RequireSession() {
		m.setStatus(statusWarn, SignInHint)
		return
	}

	if err := store.Remove(it.key); err != nil {
		m.setStatus(statusErr, err.Error())
		return
	}
	m.setStatus(statusOK, fmt.Sprintf("removed %s from %s", it.item.DisplayTitle(), store.Name().Label()))
	m.refresh()
}

func (m *Model) rate(value int) {
	it, ok := m.selected()
	if !ok || m.deps.Ratings == nil || value == 0 {
		return
	}
	if err := m.deps.Ratings.Rate(it.key, value); err != nil {
		m.setStatus(statusErr, err.Error())
		return
	}
	m.setStatus(statusOK, fmt.Sprintf("rated %s %d/10", it.item.DisplayTitle(), value))
	m.refresh()
}

func (m *Model) unrate() {
	it, ok := m.selected()
	if !ok || m.deps.Ratings == nil {
		return
	}
	if err := m.deps.Ratings.Reset(it.key); err != nil {
		m.setStatus(statusErr, err.Error())
		return
	}
	m.setStatus(statusOK, fmt.Sprintf("cleared rating of %s", it.item.DisplayTitle()))
	m.refresh()
}

func (m *Model) cycleSort() {
	modes := append([]catalog.SortMode{catalog.SortNone}, catalog.SortModes...)
	next := modes[0]
	for i, mode := range modes {
		if mode == m.sorts[m.tab] {
			next = modes[(i+1)%len(modes)]
			break
		}
	}
	m.sorts[m.tab] = next

	label := string(next)
	if label == "" {
		label = "default"
	}
	m.setStatus(statusInfo, "sort: "+label)
	m.refresh()
}

func (m *Model) currentStore() *collections.Store {
	switch m.tab {
	case FavoritesTab:
		return m.deps.Favorites
	case WatchLaterTab:
		return m.deps.WatchLater
	default:
		return nil
	}
}

// refresh rebuilds every list from the stores, keeping cursor positions in range.
func (m *Model) refresh() {
	m.setItems(PopularTab, m.deps.Sorter.Sort(m.popular, m.sorts[PopularTab]))
	m.setItems(FavoritesTab, m.entryItems(m.deps.Favorites, m.sorts[FavoritesTab]))
	m.setItems(WatchLaterTab, m.entryItems(m.deps.WatchLater, m.sorts[WatchLaterTab]))
}

func (m *Model) entryItems(store *collections.Store, mode catalog.SortMode) []models.CatalogItem {
	if store == nil {
		return nil
	}
	entries := m.deps.Sorter.SortEntries(store.List(), mode)
	items := make([]models.CatalogItem, len(entries))
	for i, e := range entries {
		items[i] = e.Item
	}
	return items
}

func (m *Model) setItems(tab Tab, items []models.CatalogItem) {
	listItems := make([]list.Item, 0, len(items))
	for _, item := range items {
		k, err := models.Resolve(item)
		if err != nil {
			continue
		}
		it := titleItem{item: item, key: k}
		if m.deps.Favorites != nil {
			it.favorite = m.deps.Favorites.Contains(k)
		}
		if m.deps.WatchLater != nil {
			it.later = m.deps.WatchLater.Contains(k)
		}
		if m.deps.Ratings != nil {
			it.rating, _ = m.deps.Ratings.Get(k)
		}
		listItems = append(listItems, it)
	}

	l := &m.lists[tab]
	idx := l.Index()
	l.SetItems(listItems)
	if idx >= len(listItems) {
		idx = len(listItems) - 1
	}
	if idx >= 0 {
		l.Select(idx)
	}
}

func (m *Model) setStatus(kind statusKind, text string) {
	m.statusOf = kind
	m.status = text
}

func (m *Model) fetchPopular(page int) tea.Cmd {
	return func() tea.Msg {
		if m.deps.Provider == nil {
			return popularFetchedMsg(&models.Page{Number: page}, nil)
		}
		res, err := m.deps.Provider.Popular(m.ctx, models.KindMovie, page)
		return popularFetchedMsg(res, err)
	}
}

func (m *Model) waitForChange() tea.Cmd {
	n := m.deps.Notifier
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case <-n.changes:
			return storeChangedMsg()
		case err := <-n.warnings:
			return warningMsg(err)
		}
	}
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := PopularTab; t < tabCount; t++ {
		label := t.String()
		if t != PopularTab {
			label = fmt.Sprintf("%s (%d)", label, len(m.lists[t].Items()))
		}
		if t == m.tab {
			tabs = append(tabs, styles.activeTab.Render(label))
		} else {
			tabs = append(tabs, styles.tab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderSession() string {
	if m.deps.Sessions != nil {
		if s, ok := m.deps.Sessions.Current(); ok {
			return styles.ok.Render("Signed in as " + s.DisplayName)
		}
	} else if m.deps.Guard.RequireSession() {
		return styles.ok.Render("Signed in")
	}
	return styles.warn.Render("Browsing as guest, " + SignInHint)
}

func (m *Model) renderStatus() string {
	switch m.statusOf {
	case statusOK:
		return styles.ok.Render(m.status)
	case statusWarn:
		return styles.warn.Render(m.status)
	case statusErr:
		return styles.err.Render(m.status)
	default:
		return styles.help.Render(m.status)
	}
}

func (m *Model) emptyText() string {
	switch m.tab {
	case FavoritesTab:
		return "No favorites yet. Press f on a title to add it."
	case WatchLaterTab:
		return "Nothing to watch later. Press w on a title to add it."
	default:
		return "No titles."
	}
}

func (m *Model) helpKeys() []key.Binding {
	keys := []key.Binding{m.keys.tab, m.keys.favorite, m.keys.watchLater, m.keys.rate, m.keys.unrate, m.keys.sort}
	if m.tab == PopularTab {
		if m.hasMore {
			keys = append(keys, m.keys.more)
		}
	} else {
		keys = append(keys, m.keys.remove)
	}
	return append(keys, m.keys.quit)
}
