package watchview

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/filegate/internal/facade"
	"github.com/Iron-Ham/filegate/internal/watch"
)

func newModel(t *testing.T) (Model, *facade.Facade) {
	t.Helper()
	f := facade.New(afero.NewMemMapFs(), facade.WithFile("/w.txt"))
	if err := f.SaveContent(context.Background(), "hello", false, nil); err != nil {
		t.Fatal(err)
	}
	m := New(context.Background(), f, "/w.txt")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model), f
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestInitLoadsContent(t *testing.T) {
	m, _ := newModel(t)
	m = run(t, m, m.Init())

	if m.last.Content != "hello" {
		t.Errorf("Content = %q, want hello", m.last.Content)
	}
	if m.changes != 1 {
		t.Errorf("changes = %d, want 1", m.changes)
	}
	if !strings.Contains(m.View(), "hello") {
		t.Error("View() should show the content")
	}
}

func TestAppendFromInput(t *testing.T) {
	m, f := newModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m = next.(Model)
	if !m.editing {
		t.Fatal("'a' should enter edit mode")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(" world")})
	m = next.(Model)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.editing {
		t.Error("enter should leave edit mode")
	}
	m = run(t, m, cmd)
	if m.isError {
		t.Fatalf("append failed: %s", m.status)
	}

	got, _, _, err := f.Content(context.Background())
	if err != nil || got != "hello world" {
		t.Errorf("Content() = %q, %v; want hello world", got, err)
	}
}

func TestClearKey(t *testing.T) {
	m, f := newModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m = run(t, m, cmd)

	got, _, _, _ := f.Content(context.Background())
	if got != "" {
		t.Errorf("Content() = %q, want empty", got)
	}
}

func TestToggleGlobalLock(t *testing.T) {
	m, f := newModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	m = next.(Model)
	if !f.GlobalLockMode() {
		t.Error("'g' should enable global lock mode")
	}
	if !strings.Contains(m.status, "on") {
		t.Errorf("status = %q", m.status)
	}
}

func TestChangeError(t *testing.T) {
	m, _ := newModel(t)

	next, _ := m.Update(ChangeMsg(watch.Change{Err: errors.New("gone")}))
	m = next.(Model)
	if !m.isError || !strings.Contains(m.View(), "gone") {
		t.Error("change error should be shown")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
