package app

import (
	"context"
	"errors"
	"time"

	"flipiq-service/internal/domain"
)

// ScoringEngine evaluates answers and keeps the two per-user counters,
// Participant.progress (live dashboard) and Submission.score (result screen),
// moving together. Every RecordAnswer runs as one store transaction so the
// counters can never be observed half-applied.
type ScoringEngine struct {
	store Store
}

func NewScoringEngine(store Store) *ScoringEngine {
	return &ScoringEngine{store: store}
}

// RecordAnswer scores one submitted choice against a card of the deck.
// The session must be active and the card must belong to the deck. Each call
// advances progress by one (clamped to the deck size), ensures a submission
// row exists, bumps the score when the trimmed choice matches the card's
// back exactly, and refreshes the stored total. Identical retries are safe:
// progress is clamped and the score only ever grows by the correctness of
// the submitted choice, never by partial writes.
func (e *ScoringEngine) RecordAnswer(ctx context.Context, deckID, sessionID, userID, cardID int64, choice string) (domain.AnswerOutcome, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if session.DeckID != deckID {
		return domain.AnswerOutcome{}, domain.ErrSessionNotFound
	}
	if !session.IsActive {
		return domain.AnswerOutcome{}, domain.ErrSessionInactive
	}
	card, err := e.store.GetCard(ctx, cardID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if card.DeckID != deckID {
		return domain.AnswerOutcome{}, domain.ErrCardNotFound
	}
	correct := card.Matches(choice)

	var outcome domain.AnswerOutcome
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := joinOrGetTx(ctx, tx, session, userID); err != nil {
			return err
		}
		p, err := advanceTx(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}

		total, err := tx.CountCards(ctx, deckID)
		if err != nil {
			return err
		}
		sub, err := tx.GetSubmission(ctx, deckID, sessionID, userID)
		if errors.Is(err, domain.ErrSubmissionNotFound) {
			sub = domain.Submission{
				DeckID:    deckID,
				SessionID: sessionID,
				UserID:    userID,
				Score:     0,
				Total:     total,
				UpdatedAt: time.Now(),
			}
			if err := tx.CreateSubmission(ctx, &sub); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if correct {
			sub.Score++
		}
		sub.Total = total
		sub.UpdatedAt = time.Now()
		if err := tx.UpdateSubmission(ctx, &sub); err != nil {
			return err
		}

		outcome = domain.AnswerOutcome{
			Correct:  correct,
			Progress: p.Progress,
			Total:    total,
			Score:    sub.Score,
		}
		return nil
	})
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	return outcome, nil
}

// Reset zeroes both counters for a replay. Fails with
// domain.ErrParticipantNotFound when the user never joined the session.
func (e *ScoringEngine) Reset(ctx context.Context, deckID, sessionID, userID int64) error {
	return e.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.GetParticipant(ctx, sessionID, userID)
		if err != nil {
			return err
		}
		p.Progress = 0
		if err := tx.UpdateParticipant(ctx, &p); err != nil {
			return err
		}

		sub, err := tx.GetSubmission(ctx, deckID, sessionID, userID)
		if errors.Is(err, domain.ErrSubmissionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		sub.Score = 0
		sub.UpdatedAt = time.Now()
		return tx.UpdateSubmission(ctx, &sub)
	})
}
