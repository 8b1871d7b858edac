package app

import (
	"context"
	"errors"
	"time"

	"flipiq-service/internal/domain"
)

// ParticipantTracker maintains who is in a session and how far through the
// deck they are. The host dashboard polls Snapshot; players touch their own
// row through JoinOrGet and the scoring engine.
type ParticipantTracker struct {
	store Store
}

func NewParticipantTracker(store Store) *ParticipantTracker {
	return &ParticipantTracker{store: store}
}

// JoinOrGet returns the participant row for (session, user), creating it on
// first contact. Joining twice is harmless: the existing row is returned and
// progress is preserved. A stale total_cards snapshot (deck edited after
// join) is refreshed in place.
func (t *ParticipantTracker) JoinOrGet(ctx context.Context, session domain.Session, userID int64) (domain.Participant, error) {
	var out domain.Participant
	err := t.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		p, err := joinOrGetTx(ctx, tx, session, userID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// joinOrGetTx is the transactional body of JoinOrGet, shared with the scoring
// engine so answering also registers the participant.
func joinOrGetTx(ctx context.Context, tx Store, session domain.Session, userID int64) (domain.Participant, error) {
	total, err := tx.CountCards(ctx, session.DeckID)
	if err != nil {
		return domain.Participant{}, err
	}
	p, err := tx.GetParticipant(ctx, session.ID, userID)
	if err == nil {
		if p.TotalCards != total {
			p.TotalCards = total
			if p.Progress > total {
				p.Progress = total
			}
			if err := tx.UpdateParticipant(ctx, &p); err != nil {
				return domain.Participant{}, err
			}
		}
		return p, nil
	}
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.Participant{}, err
	}
	p = domain.Participant{
		SessionID:  session.ID,
		UserID:     userID,
		Progress:   0,
		TotalCards: total,
		JoinedAt:   time.Now(),
	}
	if err := tx.CreateParticipant(ctx, &p); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

// Advance bumps the user's progress by one card, clamped at the deck size so
// duplicate or late submissions cannot overrun the counter.
func (t *ParticipantTracker) Advance(ctx context.Context, sessionID, userID int64) (domain.Participant, error) {
	var out domain.Participant
	err := t.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		p, err := advanceTx(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func advanceTx(ctx context.Context, tx Store, sessionID, userID int64) (domain.Participant, error) {
	p, err := tx.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	if p.Progress < p.TotalCards {
		p.Progress++
		if err := tx.UpdateParticipant(ctx, &p); err != nil {
			return domain.Participant{}, err
		}
	}
	return p, nil
}

// ResetProgress rewinds the participant to the top of the deck.
func (t *ParticipantTracker) ResetProgress(ctx context.Context, sessionID, userID int64) error {
	p, err := t.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	p.Progress = 0
	return t.store.UpdateParticipant(ctx, &p)
}

// Kick removes a participant from their session. Their submission history is
// deliberately left intact.
func (t *ParticipantTracker) Kick(ctx context.Context, participantID int64) error {
	if _, err := t.store.GetParticipantByID(ctx, participantID); err != nil {
		return err
	}
	return t.store.DeleteParticipant(ctx, participantID)
}

// Snapshot returns the dashboard rows for every participant in the session.
func (t *ParticipantTracker) Snapshot(ctx context.Context, sessionID int64) ([]domain.ParticipantView, error) {
	return t.store.ListParticipants(ctx, sessionID)
}
