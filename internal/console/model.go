// Package console is the operator's terminal screen for one consent session.
package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"kvkk-permits/internal/consent/domain"
)

// Session is the reconciler surface the console drives.
type Session interface {
	Mount(ctx context.Context) (domain.Snapshot, error)
	Search(ctx context.Context, raw string) (domain.Snapshot, error)
	Toggle(ctx context.Context) (domain.Snapshot, error)
	SetDraftPermitted(permitted bool) (domain.Snapshot, error)
	Create(ctx context.Context, name string) (domain.Snapshot, error)
	Snapshot() domain.Snapshot
	Subscribe(fn func(domain.Snapshot)) func()
	Cancel()
}

type field int

const (
	fieldPhone field = iota
	fieldName
)

// snapshotMsg carries a session snapshot into the update loop. err is set when it ends an operation.
type snapshotMsg struct {
	snap domain.Snapshot
	err  error
}

// progressMsg is an intermediate snapshot published by the session while a request runs.
type progressMsg domain.Snapshot

// Model is the bubbletea model of the console.
type Model struct {
	ctx      context.Context
	session  Session
	progress <-chan domain.Snapshot

	snap  domain.Snapshot
	err   error
	focus field
	// pending counts operations issued but not yet answered. Progress snapshots are applied only
	// while it is non-zero, so a late one cannot overwrite a final result.
	pending int

	phoneInput textinput.Model
	nameInput  textinput.Model

	styles Styles
}

// NewModel builds a model for session. progress may be nil; when set, the model listens on it for
// snapshots published while a request is in flight.
func NewModel(ctx context.Context, session Session, progress <-chan domain.Snapshot) Model {
	phoneInput := textinput.New()
	phoneInput.Placeholder = "05xx xxx xx xx"
	phoneInput.CharLimit = 24
	phoneInput.Width = 24
	phoneInput.Focus()

	nameInput := textinput.New()
	nameInput.Placeholder = "Ad Soyad"
	nameInput.CharLimit = 120
	nameInput.Width = 40

	return Model{
		ctx:        ctx,
		session:    session,
		progress:   progress,
		snap:       session.Snapshot(),
		pending:    1, // Mount, issued by Init
		phoneInput: phoneInput,
		nameInput:  nameInput,
		styles:     DefaultStyles(),
	}
}

// Init mounts the session, which searches the host-supplied phone if there is one.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.run(m.session.Mount), m.listen())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		if m.pending > 0 {
			m.pending--
		}
		m.apply(msg.snap)
		m.err = msg.err
		return m, nil

	case progressMsg:
		if m.pending > 0 {
			m.apply(domain.Snapshot(msg))
		}
		return m, m.listen()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.session.Cancel()
			return m, tea.Quit
		case "esc":
			if m.snap.Loading {
				m.session.Cancel()
				return m, nil
			}
			return m, tea.Quit
		case "tab", "shift+tab":
			if m.snap.ShowCreateForm {
				m.setFocus(1 - m.focus)
			}
			return m, nil
		case "ctrl+t":
			m.pending++
			return m, m.togglePermit()
		case "enter":
			m.pending++
			return m, m.submit()
		}
	}

	var cmd tea.Cmd
	if m.focus == fieldName {
		m.nameInput, cmd = m.nameInput.Update(msg)
	} else {
		m.phoneInput, cmd = m.phoneInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) apply(snap domain.Snapshot) {
	m.snap = snap
	if snap.Query != "" && m.phoneInput.Value() == "" {
		m.phoneInput.SetValue(snap.Query)
	}
	if !snap.ShowCreateForm && m.focus == fieldName {
		m.nameInput.SetValue("")
		m.setFocus(fieldPhone)
	}
}

func (m *Model) setFocus(f field) {
	m.focus = f
	if f == fieldName {
		m.phoneInput.Blur()
		m.nameInput.Focus()
		return
	}
	m.nameInput.Blur()
	m.phoneInput.Focus()
}

func (m Model) submit() tea.Cmd {
	if m.focus == fieldName {
		name := m.nameInput.Value()
		return m.run(func(ctx context.Context) (domain.Snapshot, error) {
			return m.session.Create(ctx, name)
		})
	}
	query := m.phoneInput.Value()
	return m.run(func(ctx context.Context) (domain.Snapshot, error) {
		return m.session.Search(ctx, query)
	})
}

func (m Model) togglePermit() tea.Cmd {
	if m.snap.ShowCreateForm {
		permitted := !m.snap.Permitted
		return m.run(func(context.Context) (domain.Snapshot, error) {
			return m.session.SetDraftPermitted(permitted)
		})
	}
	return m.run(m.session.Toggle)
}

// run executes a session operation off the update loop.
func (m Model) run(op func(context.Context) (domain.Snapshot, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		snap, err := op(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) listen() tea.Cmd {
	if m.progress == nil {
		return nil
	}
	ch := m.progress
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return progressMsg(snap)
	}
}

// View renders the console.
func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("KVKK İzinleri"))
	b.WriteString("\n")
	b.WriteString(m.label("Telefon", m.focus == fieldPhone) + m.phoneInput.View() + "\n")

	switch {
	case m.snap.Record != nil:
		rec := m.snap.Record
		card := fmt.Sprintf("%s\n%s  %s\nKVKK onayı: %s",
			rec.FullName, rec.Code, rec.Phone, checkbox(m.snap.Permitted))
		b.WriteString(s.Card.Render(card))
		b.WriteString("\n")
	case m.snap.ShowCreateForm:
		b.WriteString("\n")
		b.WriteString(m.label("Ad Soyad", m.focus == fieldName) + m.nameInput.View() + "\n")
		b.WriteString(m.label("KVKK onayı", false) + checkbox(m.snap.Permitted) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.status())
	b.WriteString("\n")
	b.WriteString(s.Help.Render(m.help()))
	return b.String()
}

func (m Model) label(text string, focused bool) string {
	if focused {
		return m.styles.Focused.Render(text)
	}
	return m.styles.Label.Render(text)
}

func (m Model) status() string {
	s := m.styles
	if m.snap.Loading {
		return s.Info.Render("Yükleniyor…")
	}
	if n := m.snap.Notice; n != nil {
		switch n.Kind {
		case domain.NoticeSuccess:
			return s.Success.Render(n.Message)
		case domain.NoticeError:
			return s.Error.Render(n.Message)
		default:
			return s.Info.Render(n.Message)
		}
	}
	if m.err != nil {
		return s.Error.Render(m.err.Error())
	}
	return ""
}

func (m Model) help() string {
	switch {
	case m.snap.Loading:
		return "esc: iptal"
	case m.snap.ShowCreateForm:
		return "enter: ara/kaydet • tab: alan • ctrl+t: onay • esc: çıkış"
	case m.snap.Record != nil:
		return "enter: ara • ctrl+t: onayı değiştir • esc: çıkış"
	default:
		return "enter: ara • esc: çıkış"
	}
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}
