package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"flipiq-service/internal/domain"
)

// PollReader serves the hot polling queries (deck status, host dashboard)
// straight off a pgx pool with hand-written SQL, bypassing the ORM. It
// implements app.StatusReader.
type PollReader struct {
	pool *pgxpool.Pool
}

func NewPollReader(pool *pgxpool.Pool) *PollReader {
	return &PollReader{pool: pool}
}

func (r *PollReader) ActiveSession(ctx context.Context, deckID int64) (domain.Session, error) {
	var s domain.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, deck_id, host_id, code, is_active, is_started, created_at
		FROM sessions
		WHERE deck_id = $1 AND is_active
		ORDER BY id DESC
		LIMIT 1`, deckID).
		Scan(&s.ID, &s.DeckID, &s.HostID, &s.Code, &s.IsActive, &s.IsStarted, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrNoActiveSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("poll active session: %w", err)
	}
	return s, nil
}

func (r *PollReader) ListParticipants(ctx context.Context, sessionID int64) ([]domain.ParticipantView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.user_id,
		       COALESCE(u.username, ''), COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
		       p.progress, p.total_cards
		FROM participants p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.session_id = $1
		ORDER BY p.joined_at ASC, p.id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("poll participants: %w", err)
	}
	defer rows.Close()

	views := make([]domain.ParticipantView, 0)
	for rows.Next() {
		var v domain.ParticipantView
		var user domain.User
		if err := rows.Scan(&v.ID, &v.UserID, &user.Username, &user.FirstName, &user.LastName, &v.Progress, &v.Total); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		v.Name = user.DisplayName()
		if v.Name == "" {
			v.Name = fmt.Sprintf("user %d", v.UserID)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("poll participants: %w", err)
	}
	return views, nil
}
