package console

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kvkk-permits/internal/consent/client"
	"kvkk-permits/internal/consent/domain"
	"kvkk-permits/internal/consent/service"
	"kvkk-permits/internal/host"
)

type stubAPI struct {
	records map[string]domain.Record
	creates int
}

func (s *stubAPI) Lookup(_ context.Context, phone string) (client.LookupResult, error) {
	if rec, ok := s.records[phone]; ok {
		return client.LookupResult{Record: &rec}, nil
	}
	return client.LookupResult{NotFound: &client.NotFound{}}, nil
}

func (s *stubAPI) Create(_ context.Context, name, phone string, permitted bool) (domain.Record, error) {
	s.creates++
	rec := domain.Record{Code: "C-NEW", FullName: name, Phone: phone, Permitted: permitted}
	s.records[phone] = rec
	return rec, nil
}

func (s *stubAPI) Update(_ context.Context, rec domain.Record) (domain.Record, error) {
	s.records[rec.Phone] = rec
	return rec, nil
}

func newTestModel(t *testing.T, requesterPhone string) (Model, *stubAPI) {
	t.Helper()
	api := &stubAPI{records: map[string]domain.Record{
		"5321234567": {Code: "C-001", FullName: "Ayşe Yılmaz", Phone: "5321234567", Permitted: true},
	}}
	session := service.NewReconciler(api, service.Options{
		Host:   host.FromValues("tok", requesterPhone),
		Logger: zap.NewNop(),
	})
	return NewModel(context.Background(), session, nil), api
}

// step feeds msg to m and runs the resulting command, feeding its message back once.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	if out, ok := cmd().(snapshotMsg); ok {
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func TestSearchShowsRecord(t *testing.T) {
	m, _ := newTestModel(t, "")
	m.pending = 0
	m = typeText(t, m, "0532 123 45 67")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, m.snap.Record)
	view := m.View()
	assert.Contains(t, view, "Ayşe Yılmaz")
	assert.Contains(t, view, "C-001")
	assert.Contains(t, view, "[x]")
	assert.Zero(t, m.pending)
}

func TestTogglePermit(t *testing.T) {
	m, api := newTestModel(t, "")
	m = typeText(t, m, "5321234567")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})

	assert.False(t, m.snap.Permitted)
	assert.False(t, api.records["5321234567"].Permitted)
	assert.Contains(t, m.View(), "[ ]")
}

func TestInvalidPhoneNotice(t *testing.T) {
	m, _ := newTestModel(t, "")
	m = typeText(t, m, "12")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Contains(t, m.View(), "Geçersiz telefon numarası")
	assert.Equal(t, domain.StateIdle, m.snap.State)
}

func TestCreateFlow(t *testing.T) {
	m, api := newTestModel(t, "")
	m = typeText(t, m, "0542 000 11 22")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.snap.ShowCreateForm)
	assert.Contains(t, m.View(), "Bu numaraya ait bir kayıt yok.")

	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, fieldName, m.focus)

	// Empty name is refused locally.
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.ErrorIs(t, m.err, service.ErrNameRequired)
	assert.Zero(t, api.creates)

	m = typeText(t, m, "Mehmet Demir")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.True(t, m.snap.Permitted)
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, 1, api.creates)
	assert.Equal(t, domain.StateFound, m.snap.State)
	assert.Equal(t, fieldPhone, m.focus)
	assert.Empty(t, m.nameInput.Value())
	view := m.View()
	assert.Contains(t, view, "KVKK kaydı oluşturuldu")
	assert.Contains(t, view, "Mehmet Demir")
}

func TestTabIgnoredWithoutCreateForm(t *testing.T) {
	m, _ := newTestModel(t, "")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldPhone, m.focus)
}

func TestMountSearchesRequesterPhone(t *testing.T) {
	m, _ := newTestModel(t, "05321234567")
	batch, ok := m.Init()().(tea.BatchMsg)
	require.True(t, ok)

	var mounted bool
	for _, cmd := range batch {
		if cmd == nil {
			continue
		}
		if out, ok := cmd().(snapshotMsg); ok {
			next, _ := m.Update(out)
			m = next.(Model)
			mounted = true
		}
	}
	require.True(t, mounted)
	assert.Equal(t, "05321234567", m.phoneInput.Value())
	require.NotNil(t, m.snap.Record)
	assert.Zero(t, m.pending)
}

func TestLateProgressIgnored(t *testing.T) {
	m, _ := newTestModel(t, "")
	m.pending = 0
	next, _ := m.Update(progressMsg(domain.Snapshot{State: domain.StateSearching, Loading: true}))
	m = next.(Model)
	assert.False(t, m.snap.Loading)
	assert.NotContains(t, m.View(), "Yükleniyor")
}

func TestEscQuitsWhenIdle(t *testing.T) {
	m, _ := newTestModel(t, "")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestHelpFollowsState(t *testing.T) {
	m, _ := newTestModel(t, "")
	assert.True(t, strings.HasPrefix(m.help(), "enter: ara •"))
	m.snap.Loading = true
	assert.Equal(t, "esc: iptal", m.help())
}
