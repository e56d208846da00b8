package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"

	tea "github.com/charmbracelet/bubbletea"
)

type stubEngine struct {
	decision *domain.Decision
	err      error
	draws    []domain.Draw
}

func (s *stubEngine) LatestDecision(ctx context.Context) (*domain.Decision, error) {
	return s.decision, s.err
}

func (s *stubEngine) Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error) {
	return domain.EngineStats{WinCount: 2, ResolvedCount: 4}, nil, nil
}

func (s *stubEngine) RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error) {
	return s.draws, nil
}

func (s *stubEngine) EngineTelemetry() engine.Telemetry {
	return engine.Telemetry{}
}

type stubAdvisor struct {
	reply string
	err   error
}

func (s *stubAdvisor) Ask(ctx context.Context, chatID int64, message string) (string, error) {
	return s.reply, s.err
}

func TestNewAppModelDefaults(t *testing.T) {
	m := NewAppModel(Services{Username: "op"})
	if m.tab != tabOverview {
		t.Fatalf("expected overview tab, got %d", m.tab)
	}
	if m.input.Focused() {
		t.Fatal("input should start blurred")
	}
}

func TestRefreshMsgUpdatesState(t *testing.T) {
	confidence := 0.61
	m := NewAppModel(Services{Username: "op"})

	updated, _ := m.Update(refreshMsg{
		decision: &domain.Decision{Class: domain.ClassBig, Confidence: &confidence, Health: domain.HealthOK},
		stats:    domain.EngineStats{WinCount: 3, ResolvedCount: 5},
		draws:    []domain.Draw{{Sequence: 1, Number: 8, Class: domain.ClassBig, Status: domain.OutcomeWin}},
	})
	m = updated.(*AppModel)

	if m.decision == nil || m.decision.Class != domain.ClassBig {
		t.Fatalf("expected decision stored, got %+v", m.decision)
	}
	view := m.View()
	if !strings.Contains(view, "BIG") {
		t.Fatalf("expected class in view, got: %s", view)
	}
	if !strings.Contains(view, "61.0%") {
		t.Fatalf("expected confidence in view, got: %s", view)
	}
}

func TestRefreshMsgKeepsStateOnError(t *testing.T) {
	m := NewAppModel(Services{Username: "op"})
	confidence := 0.5
	updated, _ := m.Update(refreshMsg{
		decision: &domain.Decision{Class: domain.ClassSmall, Confidence: &confidence},
	})
	m = updated.(*AppModel)

	updated, _ = m.Update(refreshMsg{err: errors.New("db down")})
	m = updated.(*AppModel)

	if m.decision == nil {
		t.Fatal("refresh error should not clear the last good state")
	}
	if m.lastErr == nil {
		t.Fatal("expected refresh error recorded")
	}
}

func TestRefreshCmdQueriesEngine(t *testing.T) {
	m := NewAppModel(Services{
		Username: "op",
		Engine: &stubEngine{
			decision: &domain.Decision{Class: domain.ClassBig},
			draws:    []domain.Draw{{Sequence: 9, Number: 3, Class: domain.ClassSmall}},
		},
	})

	msg, ok := m.refreshCmd()().(refreshMsg)
	if !ok {
		t.Fatal("expected a refreshMsg")
	}
	if msg.err != nil {
		t.Fatalf("unexpected error: %v", msg.err)
	}
	if msg.decision == nil || msg.decision.Class != domain.ClassBig {
		t.Fatalf("expected stub decision, got %+v", msg.decision)
	}
	if len(msg.draws) != 1 || msg.draws[0].Sequence != 9 {
		t.Fatalf("expected stub draws, got %+v", msg.draws)
	}
}

func TestRefreshCmdReportsError(t *testing.T) {
	m := NewAppModel(Services{Username: "op", Engine: &stubEngine{err: errors.New("pool closed")}})

	msg := m.refreshCmd()().(refreshMsg)
	if msg.err == nil {
		t.Fatal("expected engine error surfaced")
	}
}

func TestTabSwitching(t *testing.T) {
	m := NewAppModel(Services{Username: "op"})

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	m = updated.(*AppModel)
	if m.tab != tabDraws {
		t.Fatalf("expected draws tab, got %d", m.tab)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(*AppModel)
	if m.tab != tabChat {
		t.Fatalf("expected chat tab after cycle, got %d", m.tab)
	}
}

func TestAdvisorReplyAppendsToChat(t *testing.T) {
	m := NewAppModel(Services{Username: "op", Advisor: &stubAdvisor{}})
	m.waiting = true

	updated, _ := m.Update(advisorMsg{reply: "the engine leans SMALL"})
	m = updated.(*AppModel)

	if m.waiting {
		t.Fatal("expected waiting cleared after reply")
	}
	if len(m.chat) != 1 || !strings.Contains(m.chat[0], "leans SMALL") {
		t.Fatalf("expected reply in chat, got %v", m.chat)
	}
}

func TestChatWithoutAdvisor(t *testing.T) {
	m := NewAppModel(Services{Username: "op"})
	m.tab = tabChat

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'i'}})
	m = updated.(*AppModel)
	if !m.input.Focused() {
		t.Fatal("expected input focused after i")
	}

	m.input.SetValue("what now?")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(*AppModel)

	if m.waiting {
		t.Fatal("no advisor configured, should not wait")
	}
	found := false
	for _, line := range m.chat {
		if strings.Contains(line, "not configured") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected not-configured notice in chat, got %v", m.chat)
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewAppModel(Services{Username: "op"})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command on ctrl+c")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command on q")
	}
}

func TestSetSize(t *testing.T) {
	m := NewAppModel(Services{Username: "op"})
	m.SetSize(120, 40)
	if m.width != 120 || m.height != 40 {
		t.Fatalf("expected size stored, got %dx%d", m.width, m.height)
	}
}
