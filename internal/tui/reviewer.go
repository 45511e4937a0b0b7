// Package tui is the verifier's terminal front end. It lists the review queue,
// shows one input per editable leaf of the selected activity and records the
// verifier's decision through the lifecycle service.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/formbind"
	"github.com/vpriesta/mds-form/internal/treeedit"
)

// Service is the part of the lifecycle service the reviewer needs.
type Service interface {
	ReviewQueue(ctx context.Context, caller domain.Caller, limit int) ([]domain.Record, error)
	Get(ctx context.Context, caller domain.Caller, activityID string) (*domain.Record, error)
	Accept(ctx context.Context, caller domain.Caller, activityID, comment string, edited *document.Value) error
	RequestRevision(ctx context.Context, caller domain.Caller, activityID, note string, edited *document.Value) error
	Reject(ctx context.Context, caller domain.Caller, activityID, reason string, edited *document.Value) error
}

type screen int

const (
	screenQueue screen = iota
	screenRecord
	screenPrompt
)

type decision int

const (
	decisionAccept decision = iota
	decisionRevision
	decisionReject
)

func (d decision) label() string {
	switch d {
	case decisionRevision:
		return "revision note"
	case decisionReject:
		return "rejection reason"
	default:
		return "comment"
	}
}

type queueLoadedMsg struct {
	records []domain.Record
	err     error
}

type recordLoadedMsg struct {
	record *domain.Record
	err    error
}

type decidedMsg struct {
	id     string
	status domain.Status
	err    error
}

type queueItem struct {
	rec domain.Record
}

func (i queueItem) Title() string { return formbind.Title(i.rec.Payload) }
func (i queueItem) Description() string {
	return fmt.Sprintf("%s · %s · %s", i.rec.Owner, i.rec.ID, i.rec.UpdatedAt.Format("2006-01-02 15:04"))
}
func (i queueItem) FilterValue() string { return i.rec.Owner + " " + formbind.Title(i.rec.Payload) }

// field is one editable leaf with its input state.
type field struct {
	treeedit.Field
	input  textinput.Model
	toggle bool
}

func (f *field) changed() bool {
	switch f.Control {
	case treeedit.ControlToggle:
		current, _ := f.Value.AsBool()
		return f.toggle != current
	default:
		return f.input.Value() != f.Value.Text()
	}
}

func (f *field) edit() document.Value {
	if f.Control == treeedit.ControlToggle {
		return document.Bool(f.toggle)
	}
	return document.String(f.input.Value())
}

// Reviewer is the bubbletea model of the review terminal.
type Reviewer struct {
	ctx     context.Context
	service Service
	caller  domain.Caller
	limit   int

	screen  screen
	queue   list.Model
	record  *domain.Record
	fields  []*field
	cursor  int
	editing bool

	pending decision
	prompt  textinput.Model

	statusMsg string
	err       error
	width     int
	height    int
}

// New builds a Reviewer acting as caller.
func New(ctx context.Context, service Service, caller domain.Caller, limit int) *Reviewer {
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	queue := list.New([]list.Item{}, delegate, 0, 0)
	queue.Title = "Review queue"
	queue.SetShowStatusBar(false)
	queue.SetFilteringEnabled(true)

	prompt := textinput.New()
	prompt.CharLimit = 500

	return &Reviewer{
		ctx:     ctx,
		service: service,
		caller:  caller,
		limit:   limit,
		queue:   queue,
		prompt:  prompt,
	}
}

// Init loads the review queue.
func (m *Reviewer) Init() tea.Cmd {
	return m.loadQueue()
}

func (m *Reviewer) loadQueue() tea.Cmd {
	return func() tea.Msg {
		records, err := m.service.ReviewQueue(m.ctx, m.caller, m.limit)
		return queueLoadedMsg{records: records, err: err}
	}
}

func (m *Reviewer) loadRecord(id string) tea.Cmd {
	return func() tea.Msg {
		rec, err := m.service.Get(m.ctx, m.caller, id)
		return recordLoadedMsg{record: rec, err: err}
	}
}

// Update handles messages for every screen.
func (m *Reviewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := msg.Height - 6
		if listHeight < 5 {
			listHeight = msg.Height
		}
		m.queue.SetSize(msg.Width-2, listHeight)
		return m, nil

	case queueLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(msg.records))
		for i, rec := range msg.records {
			items[i] = queueItem{rec: rec}
		}
		cmd := m.queue.SetItems(items)
		if m.statusMsg == "" {
			m.statusMsg = fmt.Sprintf("%d activities waiting for review", len(items))
		}
		return m, cmd

	case recordLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.open(msg.record)
		return m, nil

	case decidedMsg:
		if msg.err != nil {
			m.err = msg.err
			if m.screen == screenPrompt {
				m.prompt.Focus()
			}
			return m, nil
		}
		m.err = nil
		m.close()
		m.statusMsg = fmt.Sprintf("%s marked %s", msg.id, msg.status)
		return m, m.loadQueue()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case screenQueue:
			return m.updateQueue(msg)
		case screenRecord:
			return m.updateRecord(msg)
		case screenPrompt:
			return m.updatePrompt(msg)
		}
	}

	if m.screen == screenQueue {
		var cmd tea.Cmd
		m.queue, cmd = m.queue.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Reviewer) updateQueue(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.queue.FilterState() != list.Filtering {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "enter":
			if item, ok := m.queue.SelectedItem().(queueItem); ok {
				return m, m.loadRecord(item.rec.ID)
			}
			return m, nil
		case "ctrl+r":
			m.statusMsg = ""
			return m, m.loadQueue()
		}
	}
	var cmd tea.Cmd
	m.queue, cmd = m.queue.Update(msg)
	return m, cmd
}

func (m *Reviewer) updateRecord(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		f := m.fields[m.cursor]
		switch msg.String() {
		case "enter", "esc":
			f.input.Blur()
			m.editing = false
			return m, nil
		}
		var cmd tea.Cmd
		f.input, cmd = f.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "esc":
		m.close()
		return m, nil
	case "up", "k", "shift+tab":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(m.fields)-1 {
			m.cursor++
		}
	case " ", "space":
		if f := m.current(); f != nil && f.Control == treeedit.ControlToggle {
			f.toggle = !f.toggle
		}
	case "enter":
		if f := m.current(); f != nil {
			if f.Control == treeedit.ControlToggle {
				f.toggle = !f.toggle
				return m, nil
			}
			m.editing = true
			return m, f.input.Focus()
		}
	case "a":
		return m, m.decide(decisionAccept, "")
	case "v":
		return m, m.ask(decisionRevision)
	case "r":
		return m, m.ask(decisionReject)
	}
	return m, nil
}

func (m *Reviewer) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.prompt.Blur()
		m.screen = screenRecord
		m.err = nil
		return m, nil
	case "enter":
		text := m.prompt.Value()
		if strings.TrimSpace(text) == "" {
			m.err = fmt.Errorf("a %s is required", m.pending.label())
			return m, nil
		}
		m.prompt.Blur()
		return m, m.decide(m.pending, text)
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *Reviewer) ask(d decision) tea.Cmd {
	m.pending = d
	m.screen = screenPrompt
	m.err = nil
	m.prompt.Reset()
	m.prompt.Placeholder = m.pending.label()
	return m.prompt.Focus()
}

// decide applies the collected field edits and records the decision.
func (m *Reviewer) decide(d decision, text string) tea.Cmd {
	if m.record == nil {
		return nil
	}
	id := m.record.ID
	edited, err := m.edited()
	if err != nil {
		return func() tea.Msg { return decidedMsg{id: id, err: err} }
	}
	return func() tea.Msg {
		var (
			err    error
			status domain.Status
		)
		switch d {
		case decisionAccept:
			err = m.service.Accept(m.ctx, m.caller, id, text, edited)
			status = domain.StatusVerified
		case decisionRevision:
			err = m.service.RequestRevision(m.ctx, m.caller, id, text, edited)
			status = domain.StatusRevisionRequested
		case decisionReject:
			err = m.service.Reject(m.ctx, m.caller, id, text, edited)
			status = domain.StatusRejected
		}
		return decidedMsg{id: id, status: status, err: err}
	}
}

// edited returns the record's payload with the changed inputs applied, or nil
// when nothing changed. A numeric input that is not a finite number is an error.
func (m *Reviewer) edited() (*document.Value, error) {
	edits := treeedit.Edits{}
	for _, f := range m.fields {
		if f.changed() {
			edits[f.Path.String()] = f.edit()
		}
	}
	if len(edits) == 0 {
		return nil, nil
	}
	if bad := edits.Invalid(m.record.Payload); len(bad) > 0 {
		sort.Strings(bad)
		return nil, fmt.Errorf("not a finite number: %s", strings.Join(bad, ", "))
	}
	out := treeedit.Walk(m.record.Payload, treeedit.Root, edits)
	return &out, nil
}

func (m *Reviewer) open(rec *domain.Record) {
	m.record = rec
	m.fields = m.fields[:0]
	for _, leaf := range treeedit.Fields(rec.Payload) {
		f := &field{Field: leaf}
		switch leaf.Control {
		case treeedit.ControlToggle:
			f.toggle, _ = leaf.Value.AsBool()
		default:
			f.input = textinput.New()
			f.input.Prompt = ""
			f.input.SetValue(leaf.Value.Text())
		}
		m.fields = append(m.fields, f)
	}
	m.cursor = 0
	m.editing = false
	m.screen = screenRecord
	m.statusMsg = ""
}

func (m *Reviewer) close() {
	m.record = nil
	m.fields = nil
	m.cursor = 0
	m.editing = false
	m.prompt.Blur()
	m.screen = screenQueue
}

func (m *Reviewer) current() *field {
	if m.cursor < 0 || m.cursor >= len(m.fields) {
		return nil
	}
	return m.fields[m.cursor]
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77")).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	errorStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)
)

// View renders the current screen.
func (m *Reviewer) View() string {
	var body string
	switch m.screen {
	case screenQueue:
		body = m.queue.View()
	case screenRecord:
		body = m.viewRecord()
	case screenPrompt:
		body = m.viewRecord() + "\n\n" + labelStyle.Render(m.pending.label()+":") + "\n" + m.prompt.View()
	}
	if m.err != nil {
		body += "\n\n" + errorStyle.Render(m.err.Error())
	}
	return body + "\n" + statusStyle.Render(m.footer())
}

func (m *Reviewer) viewRecord() string {
	if m.record == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s, %s)", formbind.Title(m.record.Payload), m.record.Owner, m.record.Status)))
	b.WriteString("\n")
	if len(m.fields) == 0 {
		b.WriteString(labelStyle.Render("no editable fields"))
		return b.String()
	}
	for i, f := range m.fields {
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}
		var value string
		if f.Control == treeedit.ControlToggle {
			value = "[ ]"
			if f.toggle {
				value = "[x]"
			}
		} else {
			value = f.input.View()
		}
		b.WriteString(marker + labelStyle.Render(f.Path.Label()+": ") + value + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Reviewer) footer() string {
	switch m.screen {
	case screenRecord:
		if m.editing {
			return "enter/esc: done editing"
		}
		return "↑/↓: move  enter: edit  space: toggle  a: accept  v: request revision  r: reject  esc: back"
	case screenPrompt:
		return "enter: confirm  esc: cancel"
	default:
		if m.statusMsg != "" {
			return m.statusMsg + "  ·  enter: open  ctrl+r: refresh  q: quit"
		}
		return "enter: open  ctrl+r: refresh  q: quit"
	}
}
