package app

import (
	"context"

	"flipiq-service/internal/domain"
)

// UserStore persists the minimal user identities the core needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

// DeckStore persists decks and their cards.
type DeckStore interface {
	CreateDeck(ctx context.Context, deck *domain.Deck) error
	GetDeck(ctx context.Context, id int64) (domain.Deck, error)
	UpdateDeck(ctx context.Context, deck *domain.Deck) error
	DeleteDeck(ctx context.Context, id int64) error
	ListDecksByOwner(ctx context.Context, ownerID int64) ([]domain.Deck, error)
	ListPublicDecks(ctx context.Context) ([]domain.Deck, error)

	AddCard(ctx context.Context, card *domain.Card) error
	GetCard(ctx context.Context, id int64) (domain.Card, error)
	UpdateCard(ctx context.Context, card *domain.Card) error
	DeleteCard(ctx context.Context, id int64) error
	CountCards(ctx context.Context, deckID int64) (int, error)
}

// SessionStore persists live sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id int64) (domain.Session, error)
	GetSessionByCode(ctx context.Context, code string) (domain.Session, error)
	// ActiveSession returns the single active session for a deck, or
	// domain.ErrNoActiveSession.
	ActiveSession(ctx context.Context, deckID int64) (domain.Session, error)
	// DeactivateSessions clears is_active on every session of the deck.
	DeactivateSessions(ctx context.Context, deckID int64) error
	UpdateSession(ctx context.Context, session *domain.Session) error
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// ParticipantStore persists per-session participant rows.
type ParticipantStore interface {
	CreateParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, sessionID, userID int64) (domain.Participant, error)
	GetParticipantByID(ctx context.Context, id int64) (domain.Participant, error)
	UpdateParticipant(ctx context.Context, p *domain.Participant) error
	DeleteParticipant(ctx context.Context, id int64) error
	// ListParticipants returns dashboard rows (display name resolved) in join order.
	ListParticipants(ctx context.Context, sessionID int64) ([]domain.ParticipantView, error)
}

// SubmissionStore persists durable score records.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, s *domain.Submission) error
	GetSubmission(ctx context.Context, deckID, sessionID, userID int64) (domain.Submission, error)
	// LatestSubmission returns the most recently updated submission for a
	// (deck, user) pair across all sessions, or domain.ErrSubmissionNotFound.
	LatestSubmission(ctx context.Context, deckID, userID int64) (domain.Submission, error)
	UpdateSubmission(ctx context.Context, s *domain.Submission) error
}

// Store is the full persistence surface. RunInTx executes fn atomically:
// either every write inside fn is applied or none is. The scoring engine
// relies on this to keep Participant.progress and Submission.score in step.
type Store interface {
	UserStore
	DeckStore
	SessionStore
	ParticipantStore
	SubmissionStore

	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// StatusReader is the read-only slice of the store the polling facade needs.
// Postgres deployments back it with a plain connection pool so the hot poll
// path skips the ORM.
type StatusReader interface {
	ActiveSession(ctx context.Context, deckID int64) (domain.Session, error)
	ListParticipants(ctx context.Context, sessionID int64) ([]domain.ParticipantView, error)
}

// StatusInvalidator drops cached status entries after a session transition.
// Implementations must tolerate unknown codes.
type StatusInvalidator interface {
	Invalidate(ctx context.Context, code string)
}

// requireOwnedDeck loads a deck and applies the ownership predicate shared by
// every owner-only operation.
func requireOwnedDeck(ctx context.Context, store DeckStore, deckID, callerID int64) (domain.Deck, error) {
	deck, err := store.GetDeck(ctx, deckID)
	if err != nil {
		return domain.Deck{}, err
	}
	if !deck.OwnedBy(callerID) {
		return domain.Deck{}, domain.ErrNotDeckOwner
	}
	return deck, nil
}
