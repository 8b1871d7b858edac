package app_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"flipiq-service/internal/domain"
)

func TestStartSessionGeneratesSixDigitCode(t *testing.T) {
	env := newTestEnv(t)
	session := env.startSession(t)

	if ok, _ := regexp.MatchString(`^\d{6}$`, session.Code); !ok {
		t.Fatalf("expected 6-digit code, got %q", session.Code)
	}
	if !session.IsActive || session.IsStarted {
		t.Fatalf("expected CREATED state (active, not started), got %+v", session)
	}
}

func TestStartSessionDeactivatesPredecessor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.startSession(t)
	second := env.startSession(t)

	if first.ID == second.ID {
		t.Fatalf("expected a fresh session entity")
	}
	got, err := env.store.GetSession(ctx, first.ID)
	if err != nil {
		t.Fatalf("load first session: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected predecessor to be deactivated")
	}
	active, err := env.store.ActiveSession(ctx, env.deck.ID)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected only the new session active, got %d", active.ID)
	}
}

func TestStartSessionRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sessions.StartSession(context.Background(), env.deck.ID, env.student.ID)
	if !errors.Is(err, domain.ErrNotDeckOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	_, err = env.sessions.StartSession(context.Background(), 9999, env.teacher.ID)
	if !errors.Is(err, domain.ErrDeckNotFound) {
		t.Fatalf("expected deck not found, got %v", err)
	}
}

func TestStartQuizWithoutActiveSessionFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.StartQuiz(ctx, env.deck.ID, env.teacher.ID)
	if !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected no-active-session error, got %v", err)
	}

	// The failure must not mutate anything: still no active session.
	if _, err := env.store.ActiveSession(ctx, env.deck.ID); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected state untouched, got %v", err)
	}
}

func TestStartQuizUnlocksAnswering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.startSession(t)

	session, err := env.sessions.StartQuiz(ctx, env.deck.ID, env.teacher.ID)
	if err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	if !session.IsStarted || !session.IsActive {
		t.Fatalf("expected RUNNING state, got %+v", session)
	}

	// Idempotent once running.
	again, err := env.sessions.StartQuiz(ctx, env.deck.ID, env.teacher.ID)
	if err != nil {
		t.Fatalf("second start quiz: %v", err)
	}
	if again.ID != session.ID {
		t.Fatalf("expected the same session")
	}
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Nothing to end: reports false without an error.
	ended, err := env.sessions.EndSession(ctx, env.deck.ID, env.teacher.ID)
	if err != nil || ended {
		t.Fatalf("expected ok=false, nil error; got %v, %v", ended, err)
	}

	session := env.startSession(t)
	ended, err = env.sessions.EndSession(ctx, env.deck.ID, env.teacher.ID)
	if err != nil || !ended {
		t.Fatalf("expected ok=true; got %v, %v", ended, err)
	}

	// Ended sessions stay readable but are not reactivatable.
	got, err := env.store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("load ended session: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected session deactivated")
	}
	if _, err := env.sessions.StartQuiz(ctx, env.deck.ID, env.teacher.ID); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ended session to be gone for start_quiz, got %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startSession(t)

	status, err := env.sessions.CheckStatus(ctx, session.Code)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if !status.IsActive || status.IsStarted {
		t.Fatalf("expected active, not started; got %+v", status)
	}

	if _, err := env.sessions.CheckStatus(ctx, "000000"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}
}

func TestJoinByCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startSession(t)

	joined, err := env.sessions.JoinByCode(ctx, session.Code)
	if err != nil {
		t.Fatalf("join by code: %v", err)
	}
	if joined.DeckID != env.deck.ID || joined.SessionID != session.ID || joined.DeckTitle != "Warm-up" {
		t.Fatalf("unexpected join payload: %+v", joined)
	}

	if _, err := env.sessions.EndSession(ctx, env.deck.ID, env.teacher.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := env.sessions.JoinByCode(ctx, session.Code); !errors.Is(err, domain.ErrSessionInactive) {
		t.Fatalf("expected inactive error after end, got %v", err)
	}
}

func TestJoinCodesAreUniqueAcrossSessions(t *testing.T) {
	env := newTestEnv(t)
	seen := make(map[string]bool)
	for i := 0; i < 25; i++ {
		session := env.startSession(t)
		if seen[session.Code] {
			t.Fatalf("duplicate code %q", session.Code)
		}
		seen[session.Code] = true
	}
}
