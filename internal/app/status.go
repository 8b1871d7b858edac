package app

import (
	"context"
	"errors"

	"flipiq-service/internal/domain"
)

// StatusService is the read-only polling facade. Clients hit these snapshots
// on a fixed interval; nothing here mutates state.
type StatusService struct {
	store  Store
	reader StatusReader
}

// NewStatusService builds the facade. reader may be nil, in which case reads
// go through the primary store; Postgres deployments pass the pgx-backed
// poll reader to keep the hot path off the ORM.
func NewStatusService(store Store, reader StatusReader) *StatusService {
	if reader == nil {
		reader = store
	}
	return &StatusService{store: store, reader: reader}
}

// DeckStatus tells a player whether the deck currently has a live session and
// whether answering is unlocked. No active session reads as (false, false)
// rather than an error, since "nothing running yet" is the normal lobby case.
func (s *StatusService) DeckStatus(ctx context.Context, deckID int64) (domain.SessionStatus, error) {
	session, err := s.reader.ActiveSession(ctx, deckID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return domain.SessionStatus{}, nil
	}
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return domain.SessionStatus{IsActive: session.IsActive, IsStarted: session.IsStarted}, nil
}

// Dashboard is the host's live view: the active session's code plus every
// participant's name and progress. Owner-only.
func (s *StatusService) Dashboard(ctx context.Context, deckID, hostID int64) (domain.Dashboard, error) {
	if _, err := requireOwnedDeck(ctx, s.store, deckID, hostID); err != nil {
		return domain.Dashboard{}, err
	}
	session, err := s.reader.ActiveSession(ctx, deckID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return domain.Dashboard{Active: false, Participants: []domain.ParticipantView{}}, nil
	}
	if err != nil {
		return domain.Dashboard{}, err
	}
	participants, err := s.reader.ListParticipants(ctx, session.ID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return domain.Dashboard{
		SessionID:    session.ID,
		Code:         session.Code,
		Active:       true,
		IsStarted:    session.IsStarted,
		Participants: participants,
	}, nil
}

// Participants lists who is in a session, for the waiting room poll.
func (s *StatusService) Participants(ctx context.Context, sessionID int64) ([]domain.ParticipantView, error) {
	return s.reader.ListParticipants(ctx, sessionID)
}

// Result returns the caller's correct/wrong split for a session. When the
// session has no submission yet, the user's most recent submission for the
// deck (from an earlier run) is shown instead; with no history at all the
// result is zero out of the deck's card count.
func (s *StatusService) Result(ctx context.Context, deckID, sessionID, userID int64) (domain.ResultView, error) {
	sub, err := s.store.GetSubmission(ctx, deckID, sessionID, userID)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		sub, err = s.store.LatestSubmission(ctx, deckID, userID)
	}
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		total, err := s.store.CountCards(ctx, deckID)
		if err != nil {
			return domain.ResultView{}, err
		}
		return domain.ResultView{Correct: 0, Wrong: 0, Total: total}, nil
	}
	if err != nil {
		return domain.ResultView{}, err
	}
	wrong := sub.Total - sub.Score
	if wrong < 0 {
		wrong = 0
	}
	return domain.ResultView{Correct: sub.Score, Wrong: wrong, Total: sub.Total}, nil
}
