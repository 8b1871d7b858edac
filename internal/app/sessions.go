package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"flipiq-service/internal/domain"
)

// codeAttempts bounds the regenerate-on-collision loop for join codes.
const codeAttempts = 20

// SessionManager drives the session lifecycle:
//
//	CREATED(active,!started) -> RUNNING(active,started) -> ENDED(!active)
//
// StartSession creates CREATED (deactivating any predecessor first), StartQuiz
// moves CREATED to RUNNING, EndSession moves any active state to ENDED. An
// ended session is never reactivated; hosting again means a fresh session.
type SessionManager struct {
	store Store
	cache StatusInvalidator // optional

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSessionManager(store Store, cache StatusInvalidator) *SessionManager {
	return &SessionManager{
		store: store,
		cache: cache,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetStatusCache attaches the invalidator after construction; the cache
// itself loads through this manager, so the two are built in sequence.
func (m *SessionManager) SetStatusCache(cache StatusInvalidator) {
	m.cache = cache
}

// StartSession opens a new joinable session for an owned deck. Any session
// still active for the deck is deactivated inside the same transaction, so no
// poller can observe two active sessions at once.
func (m *SessionManager) StartSession(ctx context.Context, deckID, hostID int64) (domain.Session, error) {
	deck, err := requireOwnedDeck(ctx, m.store, deckID, hostID)
	if err != nil {
		return domain.Session{}, err
	}

	var session domain.Session
	var staleCodes []string
	err = m.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if prev, err := tx.ActiveSession(ctx, deck.ID); err == nil {
			staleCodes = append(staleCodes, prev.Code)
		} else if !errors.Is(err, domain.ErrNoActiveSession) {
			return err
		}
		if err := tx.DeactivateSessions(ctx, deck.ID); err != nil {
			return err
		}

		code, err := m.uniqueCode(ctx, tx)
		if err != nil {
			return err
		}
		session = domain.Session{
			DeckID:    deck.ID,
			HostID:    hostID,
			Code:      code,
			IsActive:  true,
			IsStarted: false,
			CreatedAt: time.Now(),
		}
		return tx.CreateSession(ctx, &session)
	})
	if err != nil {
		return domain.Session{}, err
	}
	m.invalidate(ctx, staleCodes...)
	return session, nil
}

// StartQuiz unlocks answering on the deck's active session. Idempotent once
// the session is RUNNING.
func (m *SessionManager) StartQuiz(ctx context.Context, deckID, hostID int64) (domain.Session, error) {
	deck, err := requireOwnedDeck(ctx, m.store, deckID, hostID)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := m.store.ActiveSession(ctx, deck.ID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.IsStarted {
		session.IsStarted = true
		if err := m.store.UpdateSession(ctx, &session); err != nil {
			return domain.Session{}, err
		}
		m.invalidate(ctx, session.Code)
	}
	return session, nil
}

// EndSession deactivates the deck's active session. Reports false (without
// error) when there is nothing to end; the ended session stays readable for
// historical reporting.
func (m *SessionManager) EndSession(ctx context.Context, deckID, hostID int64) (bool, error) {
	deck, err := requireOwnedDeck(ctx, m.store, deckID, hostID)
	if err != nil {
		return false, err
	}
	session, err := m.store.ActiveSession(ctx, deck.ID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	session.IsActive = false
	if err := m.store.UpdateSession(ctx, &session); err != nil {
		return false, err
	}
	m.invalidate(ctx, session.Code)
	return true, nil
}

// CheckStatus reports the lifecycle flags for the session behind a join code.
// Any authenticated caller may poll this.
func (m *SessionManager) CheckStatus(ctx context.Context, code string) (domain.SessionStatus, error) {
	session, err := m.store.GetSessionByCode(ctx, code)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return domain.SessionStatus{IsActive: session.IsActive, IsStarted: session.IsStarted}, nil
}

// JoinByCode resolves an active session from its join code.
func (m *SessionManager) JoinByCode(ctx context.Context, code string) (domain.JoinedSession, error) {
	session, err := m.store.GetSessionByCode(ctx, code)
	if err != nil {
		return domain.JoinedSession{}, err
	}
	if !session.IsActive {
		return domain.JoinedSession{}, domain.ErrSessionInactive
	}
	deck, err := m.store.GetDeck(ctx, session.DeckID)
	if err != nil {
		return domain.JoinedSession{}, err
	}
	return domain.JoinedSession{
		DeckID:    deck.ID,
		SessionID: session.ID,
		DeckTitle: deck.Title,
	}, nil
}

// GetSession loads a session by id.
func (m *SessionManager) GetSession(ctx context.Context, sessionID int64) (domain.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// uniqueCode draws 6-digit codes until one is free of collisions against all
// existing sessions, active or not. Gives up after codeAttempts draws rather
// than looping forever on a saturated code space.
func (m *SessionManager) uniqueCode(ctx context.Context, tx Store) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := m.drawCode()
		taken, err := tx.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeExhausted
}

func (m *SessionManager) drawCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%06d", m.rnd.Intn(1000000))
}

func (m *SessionManager) invalidate(ctx context.Context, codes ...string) {
	if m.cache == nil {
		return
	}
	for _, code := range codes {
		m.cache.Invalidate(ctx, code)
	}
}
