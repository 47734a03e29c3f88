// Package tui is the terminal view of a tasksync.Controller.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tasklog/app/models"
	"tasklog/app/tasksync"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeEditText
	modeEditRemarks
)

const helpLine = "a add · space toggle · e edit · r remarks · d delete · R reload · q quit"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	badgeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle   = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)
)

type stateChangedMsg struct{}

type addedMsg struct{ err error }

// Model is the bubbletea model for the records log.
type Model struct {
	ctx     context.Context
	ctrl    *tasksync.Controller
	changes chan struct{}

	state   tasksync.State
	cursor  int
	mode    mode
	editID  string
	text    textinput.Model
	remarks textinput.Model
	status  string
}

// NewModel creates a model bound to ctrl. It subscribes to ctrl for the
// lifetime of ctx.
func NewModel(ctx context.Context, ctrl *tasksync.Controller) Model {
	text := textinput.New()
	text.Placeholder = "e.g., Review project proposal"
	text.CharLimit = 256
	text.Width = 50

	remarks := textinput.New()
	remarks.Placeholder = "e.g., Deadline is Friday..."
	remarks.CharLimit = 1024
	remarks.Width = 50

	changes := make(chan struct{}, 1)
	unsubscribe := ctrl.Subscribe(func(tasksync.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		changes: changes,
		state:   ctrl.State(),
		text:    text,
		remarks: remarks,
		status:  helpLine,
	}
}

// Run shows the records log until the user quits.
func Run(ctx context.Context, ctrl *tasksync.Controller) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, err := tea.NewProgram(NewModel(ctx, ctrl), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForChange())
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		_ = m.ctrl.Load(m.ctx)
		return nil
	}
}

func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return stateChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) add() tea.Cmd {
	return func() tea.Msg {
		_, err := m.ctrl.Add(m.ctx)
		return addedMsg{err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateChangedMsg:
		m.state = m.ctrl.State()
		m.cursor = clampCursor(m.cursor, len(m.state.Tasks))
		if m.editID != "" && m.selectedIndex(m.editID) < 0 {
			m = m.leaveEdit("Record no longer exists")
		}
		return m, m.waitForChange()
	case addedMsg:
		m.state = m.ctrl.State()
		if msg.err == nil {
			m.mode = modeList
			m.text.Blur()
			m.remarks.Blur()
			m.text.SetValue("")
			m.remarks.SetValue("")
			m.cursor = 0
			m.status = "Record saved"
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.text.Width = max(msg.Width-20, 10)
		m.remarks.Width = m.text.Width
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.state.Notice != "" {
			m.ctrl.DismissNotice()
			m.state = m.ctrl.State()
			return m, nil
		}
		switch m.mode {
		case modeAdd:
			return m.updateAddMode(msg)
		case modeEditText, modeEditRemarks:
			return m.updateEditMode(msg)
		}
		return m.updateListMode(msg.String())
	}
	return m, nil
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	tasks := m.state.Tasks
	switch key {
	case "q":
		return m, tea.Quit
	case "j", "down":
		m.cursor = clampCursor(m.cursor+1, len(tasks))
	case "k", "up":
		m.cursor = clampCursor(m.cursor-1, len(tasks))
	case "a":
		m.mode = modeAdd
		m.text.SetValue(m.state.DraftText)
		m.remarks.SetValue(m.state.DraftRemarks)
		m.remarks.Blur()
		m.status = "New entry: tab switches field, enter saves, esc cancels"
		return m, m.text.Focus()
	case "R":
		m.ctrl.Flush()
		m.status = "Reloading"
		return m, m.load()
	case " ", "e", "r", "d":
		if len(tasks) == 0 {
			return m, nil
		}
		t := tasks[m.cursor]
		switch key {
		case " ":
			m.report(m.ctrl.Toggle(m.ctx, t.ID))
		case "d":
			m.report(m.ctrl.Delete(m.ctx, t.ID))
		case "e":
			return m.enterEdit(modeEditText, t, t.Text)
		case "r":
			return m.enterEdit(modeEditRemarks, t, t.Remarks)
		}
		m.state = m.ctrl.State()
		m.cursor = clampCursor(m.cursor, len(m.state.Tasks))
	}
	return m, nil
}

func (m Model) updateAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.text.Blur()
		m.remarks.Blur()
		m.status = helpLine
		return m, nil
	case "tab", "shift+tab":
		if m.text.Focused() {
			m.text.Blur()
			return m, m.remarks.Focus()
		}
		m.remarks.Blur()
		return m, m.text.Focus()
	case "enter":
		if strings.TrimSpace(m.text.Value()) == "" {
			m.status = "Task description is required"
			return m, nil
		}
		m.status = "Saving..."
		return m, m.add()
	}

	var cmd tea.Cmd
	if m.text.Focused() {
		m.text, cmd = m.text.Update(msg)
	} else {
		m.remarks, cmd = m.remarks.Update(msg)
	}
	m.ctrl.SetDraft(m.text.Value(), m.remarks.Value())
	m.state = m.ctrl.State()
	return m, cmd
}

func (m Model) enterEdit(md mode, t models.Task, value string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.editID = t.ID
	m.text.SetValue(value)
	m.status = "Editing: enter or esc to finish"
	return m, m.text.Focus()
}

func (m Model) leaveEdit(status string) Model {
	m.ctrl.Flush()
	m.mode = modeList
	m.editID = ""
	m.text.Blur()
	m.text.SetValue("")
	m.status = status
	return m
}

func (m Model) updateEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		return m.leaveEdit(helpLine), nil
	}

	before := m.text.Value()
	var cmd tea.Cmd
	m.text, cmd = m.text.Update(msg)
	if value := m.text.Value(); value != before {
		var err error
		if m.mode == modeEditText {
			err = m.ctrl.EditText(m.ctx, m.editID, value)
		} else {
			err = m.ctrl.EditRemarks(m.ctx, m.editID, value)
		}
		if err != nil {
			m.report(err)
			return m.leaveEdit(m.status), cmd
		}
		m.state = m.ctrl.State()
	}
	return m, cmd
}

func (m *Model) report(err error) {
	if err != nil {
		m.status = fmt.Sprintf("Error: %v", err)
	}
}

func (m Model) selectedIndex(id string) int {
	for i, t := range m.state.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Task Data Entry"))
	b.WriteString("\n\n")

	if m.mode == modeAdd {
		b.WriteString("New Entry\n")
		b.WriteString("Task Description: " + m.text.View() + "\n")
		b.WriteString("Remarks / Notes:  " + m.remarks.View() + "\n\n")
	}

	header := titleStyle.Render(fmt.Sprintf("Records Log (%d)", len(m.state.Tasks)))
	if m.state.Loading {
		header += " " + badgeStyle.Render("Syncing...")
	}
	b.WriteString(header + "\n")
	if m.state.Stale {
		b.WriteString(staleStyle.Render("Records changed elsewhere, press R to reload") + "\n")
	}

	if len(m.state.Tasks) == 0 {
		b.WriteString("No records found.\n")
	}
	for i, t := range m.state.Tasks {
		b.WriteString(m.renderRow(i, t) + "\n")
	}

	if m.state.Notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.state.Notice+"\n(press any key)") + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(m.status) + "\n")
	return b.String()
}

func (m Model) renderRow(i int, t models.Task) string {
	prefix := "  "
	if i == m.cursor && m.mode != modeAdd {
		prefix = cursorStyle.Render("> ")
	}
	check := "[ ]"
	if t.Completed {
		check = "[x]"
	}

	text, remarks := t.Text, t.Remarks
	if m.editID == t.ID {
		if m.mode == modeEditText {
			text = m.text.View()
		} else {
			remarks = m.text.View()
		}
	}
	if t.Completed && m.editID != t.ID {
		text = doneStyle.Render(text)
	}

	row := fmt.Sprintf("%s%s %s", prefix, check, text)
	if remarks != "" {
		row += helpStyle.Render("  · ") + remarks
	}
	return row
}

func clampCursor(cur, n int) int {
	if n <= 0 || cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}
