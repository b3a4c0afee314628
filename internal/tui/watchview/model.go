// Package watchview is the interactive terminal view of a watched file.
package watchview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/filegate/internal/facade"
	"github.com/Iron-Ham/filegate/internal/tui/styles"
	"github.com/Iron-Ham/filegate/internal/util"
	"github.com/Iron-Ham/filegate/internal/watch"
)

// ChangeMsg carries a change observed by the watcher (or a manual refresh).
type ChangeMsg watch.Change

// savedMsg reports the outcome of a write started from the view.
type savedMsg struct {
	action string
	err    error
}

// Model is the Bubbletea model for the watch view
type Model struct {
	ctx  context.Context
	f    *facade.Facade
	path string

	viewport viewport.Model
	input    textinput.Model
	ready    bool
	editing  bool
	width    int
	height   int

	last    watch.Change
	changes int
	status  string
	isError bool
}

// New creates a watch view for f.
func New(ctx context.Context, f *facade.Facade, path string) Model {
	ti := textinput.New()
	ti.Placeholder = "text to append"
	ti.CharLimit = 256
	ti.Width = 40

	return Model{
		ctx:   ctx,
		f:     f,
		path:  path,
		input: ti,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.refresh()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		bodyHeight := max(msg.Height-6, 3)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = bodyHeight
		}
		m.viewport.SetContent(m.body())
		return m, nil

	case ChangeMsg:
		m.last = watch.Change(msg)
		m.changes++
		if m.last.Err != nil {
			m.setStatus(m.last.Err.Error(), true)
		}
		if m.ready {
			m.viewport.SetContent(m.body())
			m.viewport.GotoBottom()
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
			return m, nil
		}
		m.setStatus(msg.action+" ok", false)
		return m, m.refresh()

	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "a":
		m.editing = true
		m.input.Reset()
		m.input.Focus()
		return m, textinput.Blink
	case "c":
		return m, m.save("clear", func(ctx context.Context) error { return m.f.ClearContent(ctx) })
	case "g":
		m.f.SetGlobalLockMode(!m.f.GlobalLockMode())
		m.setStatus("global lock "+styles.OnOff(m.f.GlobalLockMode()), false)
		return m, nil
	case "r":
		return m, m.refresh()
	}

	var cmd tea.Cmd
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		text := m.input.Value()
		m.editing = false
		m.input.Blur()
		return m, m.save("append", func(ctx context.Context) error {
			return m.f.SaveContent(ctx, text, true, nil)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setStatus(s string, isError bool) {
	m.status = s
	m.isError = isError
}

func (m Model) refresh() tea.Cmd {
	ctx, f, path := m.ctx, m.f, m.path
	return func() tea.Msg {
		c := watch.Change{Path: path, At: time.Now()}
		c.Content, c.Stamp, c.Optimistic, c.Err = f.Content(ctx)
		return ChangeMsg(c)
	}
}

func (m Model) save(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return savedMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) body() string {
	if m.last.Err != nil {
		return styles.ErrorMsg.Render(m.last.Err.Error())
	}
	if m.last.Content == "" {
		return styles.Muted.Render("(empty)")
	}
	return m.last.Content
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	const title = "filegate watch  "
	header := styles.Header.Width(m.width).Render(title + util.TruncatePath(m.path, max(m.width-len(title), 8)))

	stamp := "pessimistic"
	if m.last.Optimistic {
		stamp = m.last.Stamp.String()
	}
	info := fmt.Sprintf("changes: %d  stamp: %s  global lock: %s  size: %dB",
		m.changes, stamp, styles.OnOff(m.f.GlobalLockMode()), len(m.last.Content))
	if !m.last.At.IsZero() {
		info += "  at: " + m.last.At.Format("15:04:05.000")
	}
	// StatusBar pads one column on each side.
	statusBar := styles.StatusBar.Width(m.width).Render(util.TruncateANSI(info, max(m.width-2, 4)))

	var footer string
	switch {
	case m.editing:
		footer = "append: " + m.input.View()
	case m.status != "":
		if m.isError {
			footer = styles.ErrorMsg.Render(m.status)
		} else {
			footer = styles.SuccessMsg.Render(m.status)
		}
	default:
		footer = help()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), statusBar, footer)
}

func help() string {
	keys := []struct{ key, desc string }{
		{"a", "append"},
		{"c", "clear"},
		{"g", "toggle global lock"},
		{"r", "refresh"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, styles.HelpKey.Render(k.key)+" "+k.desc)
	}
	return styles.HelpBar.Render(strings.Join(parts, "  "))
}
