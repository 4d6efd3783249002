//go:build !gui

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/atomic"

	"github.com/metcalfc/picbook/internal/audio"
	"github.com/metcalfc/picbook/internal/library"
	"github.com/metcalfc/picbook/internal/logger"
	"github.com/metcalfc/picbook/internal/narration"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFAA00"))

	pageStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5F87FF")).
			Padding(1, 2)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	controlsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	waitingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444444"))
)

const (
	emptyBookText = "No pages available for this book yet."
	// wheelSettle is how long the wheel must be still before the scroll is
	// treated as a finished swipe.
	wheelSettle = 250 * time.Millisecond
	wheelSteps  = 4
)

type screen int

const (
	catalogScreen screen = iota
	detailScreen
	readerScreen
)

// Messages from the controller goroutine and the library watcher.
type (
	sessionChangedMsg struct{}
	libraryMsg        struct{ lib *library.Library }
	wheelSettledMsg   struct{ seq int }
)

// teaView adapts a bubbletea program to narration.View. The controller calls
// it on its own goroutine, so it only records the offset and posts a message.
type teaView struct {
	send   func(tea.Msg)
	offset atomic.Float64
}

func (v *teaView) ScrollTo(offset float64, animated bool) {
	v.offset.Store(offset)
	v.notify()
}

func (v *teaView) Changed(narration.Snapshot) {
	v.notify()
}

func (v *teaView) notify() {
	if v.send != nil {
		go v.send(sessionChangedMsg{})
	}
}

type bookItem struct {
	book *library.Book
}

func (i bookItem) FilterValue() string { return i.book.Title + " " + i.book.Author }
func (i bookItem) Title() string       { return i.book.Title }
func (i bookItem) Description() string {
	desc := fmt.Sprintf("%d pages", i.book.PageCount())
	if i.book.Author != "" {
		desc = i.book.Author + " · " + desc
	}
	if n := i.book.NarratedPages(); n > 0 {
		desc += fmt.Sprintf(" · ♪ %d narrated", n)
	}
	return desc
}

type keyMap struct {
	Prev, Next, Play, Read, Autoplay, Back, Quit key.Binding
}

var keys = keyMap{
	Prev:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "previous page")),
	Next:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next page")),
	Play:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "read aloud")),
	Read:     key.NewBinding(key.WithKeys("enter", "r"), key.WithHelp("enter", "read")),
	Autoplay: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play")),
	Back:     key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type model struct {
	lib     *library.Library
	backend audio.Backend
	log     *logger.Logger
	delay   time.Duration

	screen  screen
	catalog list.Model
	spinner spinner.Model
	book    *library.Book

	view *teaView
	ctrl *narration.Controller

	// offset is the reader's scroll position while the wheel is moving.
	offset   float64
	wheeling bool
	wheelSeq int

	width    int
	height   int
	quitting bool
}

func newModel(lib *library.Library, backend audio.Backend, log *logger.Logger, delay time.Duration) *model {
	catalog := list.New(catalogItems(lib), list.NewDefaultDelegate(), 80, 20)
	catalog.Title = "Picture books"
	catalog.SetShowStatusBar(true)
	catalog.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Read, keys.Autoplay}
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return &model{
		lib:     lib,
		backend: backend,
		log:     log,
		delay:   delay,
		catalog: catalog,
		spinner: spin,
		view:    &teaView{},
		width:   80,
		height:  24,
	}
}

func catalogItems(lib *library.Library) []list.Item {
	books := lib.Books()
	items := make([]list.Item, len(books))
	for i, b := range books {
		items[i] = bookItem{b}
	}
	return items
}

func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *model) pageWidth() float64 {
	return float64(m.width)
}

func (m *model) open(b *library.Book, autoplay bool) {
	m.closeBook()
	m.book = b
	m.screen = readerScreen
	m.offset = 0
	m.wheeling = false
	m.view.offset.Store(0)
	m.ctrl = narration.New(b, m.backend,
		narration.WithLogger(m.log),
		narration.WithView(m.view),
		narration.WithDelay(m.delay),
		narration.WithPageWidth(m.pageWidth()),
		narration.WithAutoplay(autoplay))
}

func (m *model) closeBook() {
	if m.ctrl != nil {
		m.ctrl.Close()
		m.ctrl = nil
	}
}

func (m *model) selected() *library.Book {
	if it, ok := m.catalog.SelectedItem().(bookItem); ok {
		return it.book
	}
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.catalog.SetSize(msg.Width, msg.Height-1)
		if m.ctrl != nil {
			m.ctrl.Resize(m.pageWidth())
		}
		return m, nil

	case libraryMsg:
		m.lib = msg.lib
		cmd := m.catalog.SetItems(catalogItems(msg.lib))
		return m, cmd

	case sessionChangedMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case wheelSettledMsg:
		if m.ctrl != nil && m.wheeling && msg.seq == m.wheelSeq {
			m.wheeling = false
			m.ctrl.OnDragOrMomentumEnd(m.offset)
		}
		return m, nil

	case tea.MouseMsg:
		if m.screen == readerScreen {
			return m, m.wheel(msg)
		}

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) && !(m.screen == catalogScreen && m.catalog.SettingFilter()) {
			m.quitting = true
			m.closeBook()
			return m, tea.Quit
		}
		switch m.screen {
		case detailScreen:
			return m.updateDetail(msg)
		case readerScreen:
			return m.updateReader(msg)
		}
	}

	if m.screen == catalogScreen {
		return m.updateCatalog(msg)
	}
	return m, nil
}

func (m *model) updateCatalog(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && !m.catalog.SettingFilter() {
		switch {
		case key.Matches(k, keys.Read):
			if b := m.selected(); b != nil {
				m.book = b
				m.screen = detailScreen
			}
			return m, nil
		case key.Matches(k, keys.Autoplay):
			if b := m.selected(); b != nil {
				m.open(b, true)
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.catalog, cmd = m.catalog.Update(msg)
	return m, cmd
}

func (m *model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.screen = catalogScreen
	case key.Matches(msg, keys.Read):
		m.open(m.book, false)
	case key.Matches(msg, keys.Autoplay):
		m.open(m.book, true)
	}
	return m, nil
}

func (m *model) updateReader(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.closeBook()
		m.screen = detailScreen
	case key.Matches(msg, keys.Prev):
		m.ctrl.GoPrev()
	case key.Matches(msg, keys.Next):
		m.ctrl.GoNext()
	case key.Matches(msg, keys.Play):
		m.ctrl.RequestPlay()
	}
	return m, nil
}

// wheel turns wheel ticks into live scroll samples. When the wheel has been
// still for wheelSettle, the position is reported as the end of a swipe.
func (m *model) wheel(msg tea.MouseMsg) tea.Cmd {
	if msg.Action != tea.MouseActionPress {
		return nil
	}
	step := m.pageWidth() / wheelSteps
	if !m.wheeling {
		m.offset = m.view.offset.Load()
	}
	switch msg.Button {
	case tea.MouseButtonWheelDown, tea.MouseButtonWheelRight:
		m.offset += step
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelLeft:
		m.offset -= step
	default:
		return nil
	}
	m.offset = clampOffset(m.offset, m.pageWidth(), m.book.PageCount())
	m.wheeling = true
	m.wheelSeq++
	m.ctrl.OnLiveScroll(m.offset)

	seq := m.wheelSeq
	return tea.Tick(wheelSettle, func(time.Time) tea.Msg {
		return wheelSettledMsg{seq: seq}
	})
}

func clampOffset(offset, pageWidth float64, pages int) float64 {
	limit := pageWidth * float64(pages-1)
	if offset > limit {
		offset = limit
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	switch m.screen {
	case detailScreen:
		return m.detailView()
	case readerScreen:
		return m.readerView()
	}
	if len(m.catalog.Items()) == 0 {
		return statusStyle.Render(fmt.Sprintf("No books found in %s", m.lib.Dir()))
	}
	return m.catalog.View()
}

func (m *model) detailView() string {
	b := m.book
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(b.Title))
	sb.WriteString("\n")
	if b.Author != "" {
		sb.WriteString("by " + b.Author + "\n")
	}
	if b.AgeRange != "" {
		sb.WriteString(statusStyle.Render("Ages "+b.AgeRange) + "\n")
	}
	sb.WriteString("\n")
	if b.Description != "" {
		sb.WriteString(lipgloss.NewStyle().Width(max(20, m.width-4)).Render(b.Description))
		sb.WriteString("\n\n")
	}
	sb.WriteString(fmt.Sprintf("%d pages, %d narrated\n\n", b.PageCount(), b.NarratedPages()))
	sb.WriteString(controlsStyle.Render("ENTER: read  P: play  ESC: back  Q: quit"))
	return sb.String()
}

func (m *model) readerView() string {
	s := m.ctrl.Snapshot()
	title := titleStyle.Render(m.book.Title)

	if s.Empty {
		return title + "\n\n" + statusStyle.Render(emptyBookText) + "\n\n" +
			controlsStyle.Render("ESC: back  Q: quit")
	}

	index := s.CurrentIndex
	if m.wheeling {
		// Preview the page under the wheel before it settles.
		if i := int(m.offset/m.pageWidth() + 0.5); i >= 0 && i < s.Pages {
			index = i
		}
	}
	page := m.book.Pages[index]

	status := statusStyle.Render(fmt.Sprintf("Page %d/%d", index+1, s.Pages))
	switch {
	case s.Loading:
		status += " " + m.spinner.View()
	case s.IsPlaying:
		status += playingStyle.Render(" ♪ reading aloud")
	case s.PendingTarget >= 0:
		status += waitingStyle.Render(" turning the page…")
	case s.AutoplayEnabled:
		status += statusStyle.Render("[autoplay]")
	}

	body := page.Name()
	if !s.HasNarration {
		body += "\n" + dimStyle.Render("(no narration)")
	}
	frame := pageStyle.Width(max(20, m.width-6)).Render(body)

	controls := controlsStyle.Render(m.controlsHint(s))
	return lipgloss.JoinVertical(lipgloss.Left, title, status, frame, pageDots(index, s.Pages), controls)
}

func (m *model) controlsHint(s narration.Snapshot) string {
	var parts []string
	if s.CanGoPrev {
		parts = append(parts, "←: back")
	}
	if s.CanGoNext {
		parts = append(parts, "→: next")
	}
	if s.HasNarration {
		parts = append(parts, "SPACE: read aloud")
	}
	parts = append(parts, "ESC: close", "Q: quit")
	return strings.Join(parts, "  ")
}

// pageDots renders one dot per page with the current page highlighted.
func pageDots(current, total int) string {
	if total > 40 {
		return statusStyle.Render(fmt.Sprintf("%d%%", (current+1)*100/total))
	}
	var sb strings.Builder
	for i := 0; i < total; i++ {
		if i == current {
			sb.WriteString(playingStyle.Render("●"))
		} else {
			sb.WriteString(dimStyle.Render("○"))
		}
	}
	return sb.String()
}

func main() {
	e := setup("picbook")
	defer e.log.Sync()

	m := newModel(e.lib, e.backend, e.log, e.cfg.AutoplayDelay.Duration)
	if id := e.opts.bookID; id != "" {
		b, err := e.lib.Book(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		m.book = b
		m.screen = detailScreen
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.view.send = p.Send
	if m.book != nil && e.opts.autoplay {
		m.open(m.book, true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		err := library.Watch(ctx, e.lib.Dir(), 0, e.log, func(lib *library.Library) {
			p.Send(libraryMsg{lib})
		})
		if err != nil {
			e.log.Warn("library watcher stopped", "error", err)
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m.closeBook()
}
