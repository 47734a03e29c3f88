package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"tasklog/app/tasksync"
	"tasklog/app/testutil"
)

func newModel(t *testing.T, store *testutil.FakeStore) (Model, *tasksync.Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctrl := tasksync.New(store, tasksync.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(ctrl.Close)
	if err := ctrl.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return NewModel(ctx, ctrl), ctrl
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ = send(t, m, msg)
	}
	return m
}

func TestView_EmptyState(t *testing.T) {
	m, _ := newModel(t, testutil.NewFakeStore())

	view := m.View()
	for _, want := range []string{"Records Log (0)", "No records found."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "Syncing...") {
		t.Error("Syncing badge shown while idle")
	}
}

func TestAddToggleDelete(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Seed("Existing", "", false)
	m, ctrl := newModel(t, store)

	m = press(t, m, "a", "Buy milk", "tab", "urgent")
	if s := ctrl.State(); s.DraftText != "Buy milk" || s.DraftRemarks != "urgent" {
		t.Fatalf("draft = %q %q", s.DraftText, s.DraftRemarks)
	}

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter did not start the save")
	}
	m, _ = send(t, m, cmd())

	tasks := ctrl.State().Tasks
	if len(tasks) != 2 || tasks[0].Text != "Buy milk" || tasks[0].Remarks != "urgent" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if !strings.Contains(m.View(), "Records Log (2)") {
		t.Errorf("view not updated:\n%s", m.View())
	}

	m = press(t, m, " ")
	ctrl.Wait()
	if !store.Snapshot()[0].Completed {
		t.Error("toggle not persisted")
	}

	m = press(t, m, "d")
	ctrl.Wait()
	if n := len(store.Snapshot()); n != 1 {
		t.Errorf("store has %d tasks after delete, want 1", n)
	}
	if !strings.Contains(m.View(), "Records Log (1)") {
		t.Errorf("view after delete:\n%s", m.View())
	}
}

func TestAddBlankStaysInForm(t *testing.T) {
	store := testutil.NewFakeStore()
	m, _ := newModel(t, store)

	m = press(t, m, "a", "   ")
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("blank entry should not be saved")
	}
	if m.mode != modeAdd {
		t.Error("left the form on a blank entry")
	}
	if store.CreateCalls() != 0 {
		t.Error("CreateTask called for a blank entry")
	}
}

func TestAddFailureShowsNotice(t *testing.T) {
	store := testutil.NewFakeStore()
	store.CreateErr = errors.New("db down")
	m, ctrl := newModel(t, store)

	m = press(t, m, "a", "Buy milk")
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = send(t, m, cmd())

	if !strings.Contains(m.View(), tasksync.AddFailedNotice) {
		t.Fatalf("notice not shown:\n%s", m.View())
	}
	if m.mode != modeAdd {
		t.Error("form closed after a failed save")
	}

	m = press(t, m, "x")
	if ctrl.State().Notice != "" || strings.Contains(m.View(), tasksync.AddFailedNotice) {
		t.Error("key press did not dismiss the notice")
	}
}

func TestEditText(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Seed("Buy milk", "", false)
	m, ctrl := newModel(t, store)

	m = press(t, m, "e", "!", "enter")
	ctrl.Wait()

	if got := store.Snapshot()[0].Text; got != "Buy milk!" {
		t.Errorf("store text = %q, want %q", got, "Buy milk!")
	}
	if m.mode != modeList {
		t.Error("still editing after enter")
	}
}

func TestStateChangeRefreshesView(t *testing.T) {
	store := testutil.NewFakeStore()
	m, ctrl := newModel(t, store)

	store.Seed("From elsewhere", "", false)
	ctrl.Invalidated("other-client")
	m, _ = send(t, m, stateChangedMsg{})
	if !strings.Contains(m.View(), "changed elsewhere") {
		t.Errorf("stale hint missing:\n%s", m.View())
	}

	if err := ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, _ = send(t, m, stateChangedMsg{})
	view := m.View()
	if !strings.Contains(view, "From elsewhere") || strings.Contains(view, "changed elsewhere") {
		t.Errorf("view after reload:\n%s", view)
	}
}
