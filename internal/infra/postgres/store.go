package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"flipiq-service/internal/app"
	"flipiq-service/internal/domain"
)

// Store is the bun-backed implementation of app.Store. RunInTx hands the
// transaction body a Store bound to the bun.Tx, so every nested call shares
// the same database transaction.
type Store struct {
	db bun.IDB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	db, ok := s.db.(*bun.DB)
	if !ok {
		// Already inside a transaction; join it.
		return fn(ctx, s)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{db: tx})
	})
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if _, err := s.db.NewInsert().Model(user).Returning("id, created_at").Exec(ctx); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var user domain.User
	err := s.db.NewSelect().Model(&user).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// --- decks and cards ---

func (s *Store) CreateDeck(ctx context.Context, deck *domain.Deck) error {
	if _, err := s.db.NewInsert().Model(deck).Returning("id, created_at").Exec(ctx); err != nil {
		return fmt.Errorf("insert deck: %w", err)
	}
	return nil
}

func (s *Store) GetDeck(ctx context.Context, id int64) (domain.Deck, error) {
	var deck domain.Deck
	err := s.db.NewSelect().Model(&deck).
		Relation("Cards", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("card.position ASC", "card.id ASC")
		}).
		Where("deck.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deck{}, domain.ErrDeckNotFound
	}
	if err != nil {
		return domain.Deck{}, fmt.Errorf("select deck: %w", err)
	}
	return deck, nil
}

func (s *Store) UpdateDeck(ctx context.Context, deck *domain.Deck) error {
	res, err := s.db.NewUpdate().Model(deck).
		Column("title", "subject", "grade", "public", "interval_secs").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update deck: %w", err)
	}
	return requireRows(res, domain.ErrDeckNotFound)
}

// DeleteDeck relies on ON DELETE CASCADE for cards, sessions, participants
// and submissions.
func (s *Store) DeleteDeck(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Deck)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	return requireRows(res, domain.ErrDeckNotFound)
}

func (s *Store) ListDecksByOwner(ctx context.Context, ownerID int64) ([]domain.Deck, error) {
	return s.listDecks(ctx, "deck.owner_id = ?", ownerID)
}

func (s *Store) ListPublicDecks(ctx context.Context) ([]domain.Deck, error) {
	return s.listDecks(ctx, "deck.public")
}

func (s *Store) listDecks(ctx context.Context, where string, args ...interface{}) ([]domain.Deck, error) {
	decks := make([]domain.Deck, 0)
	err := s.db.NewSelect().Model(&decks).
		Relation("Cards", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("card.position ASC", "card.id ASC")
		}).
		Where(where, args...).
		Order("deck.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	return decks, nil
}

func (s *Store) AddCard(ctx context.Context, card *domain.Card) error {
	if _, err := s.db.NewInsert().Model(card).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, id int64) (domain.Card, error) {
	var card domain.Card
	err := s.db.NewSelect().Model(&card).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Card{}, domain.ErrCardNotFound
	}
	if err != nil {
		return domain.Card{}, fmt.Errorf("select card: %w", err)
	}
	return card, nil
}

func (s *Store) UpdateCard(ctx context.Context, card *domain.Card) error {
	res, err := s.db.NewUpdate().Model(card).
		Column("front", "back", "choices", "position").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return requireRows(res, domain.ErrCardNotFound)
}

func (s *Store) DeleteCard(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Card)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return requireRows(res, domain.ErrCardNotFound)
}

func (s *Store) CountCards(ctx context.Context, deckID int64) (int, error) {
	n, err := s.db.NewSelect().Model((*domain.Card)(nil)).Where("deck_id = ?", deckID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// --- sessions ---

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	if _, err := s.db.NewInsert().Model(session).Returning("id, created_at").Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (domain.Session, error) {
	var session domain.Session
	err := s.db.NewSelect().Model(&session).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return session, nil
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	var session domain.Session
	err := s.db.NewSelect().Model(&session).Where("code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session by code: %w", err)
	}
	return session, nil
}

func (s *Store) ActiveSession(ctx context.Context, deckID int64) (domain.Session, error) {
	var session domain.Session
	err := s.db.NewSelect().Model(&session).
		Where("deck_id = ? AND is_active", deckID).
		Order("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNoActiveSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select active session: %w", err)
	}
	return session, nil
}

func (s *Store) DeactivateSessions(ctx context.Context, deckID int64) error {
	_, err := s.db.NewUpdate().Model((*domain.Session)(nil)).
		Set("is_active = FALSE").
		Where("deck_id = ? AND is_active", deckID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deactivate sessions: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	res, err := s.db.NewUpdate().Model(session).
		Column("is_active", "is_started").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireRows(res, domain.ErrSessionNotFound)
}

func (s *Store) CodeInUse(ctx context.Context, code string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*domain.Session)(nil)).Where("code = ?", code).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

// --- participants ---

func (s *Store) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if _, err := s.db.NewInsert().Model(p).Returning("id, joined_at").Exec(ctx); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, sessionID, userID int64) (domain.Participant, error) {
	var p domain.Participant
	err := s.db.NewSelect().Model(&p).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return p, nil
}

func (s *Store) GetParticipantByID(ctx context.Context, id int64) (domain.Participant, error) {
	var p domain.Participant
	err := s.db.NewSelect().Model(&p).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return p, nil
}

func (s *Store) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	res, err := s.db.NewUpdate().Model(p).
		Column("progress", "total_cards").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return requireRows(res, domain.ErrParticipantNotFound)
}

func (s *Store) DeleteParticipant(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Participant)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return requireRows(res, domain.ErrParticipantNotFound)
}

// participantRow carries the joined user columns for dashboard views.
type participantRow struct {
	ID        int64  `bun:"id"`
	UserID    int64  `bun:"user_id"`
	Username  string `bun:"username"`
	FirstName string `bun:"first_name"`
	LastName  string `bun:"last_name"`
	Progress  int    `bun:"progress"`
	Total     int    `bun:"total_cards"`
}

func (s *Store) ListParticipants(ctx context.Context, sessionID int64) ([]domain.ParticipantView, error) {
	var rows []participantRow
	err := s.db.NewSelect().
		TableExpr("participants AS p").
		ColumnExpr("p.id, p.user_id, p.progress, p.total_cards").
		ColumnExpr("COALESCE(u.username, '') AS username").
		ColumnExpr("COALESCE(u.first_name, '') AS first_name").
		ColumnExpr("COALESCE(u.last_name, '') AS last_name").
		Join("LEFT JOIN users AS u ON u.id = p.user_id").
		Where("p.session_id = ?", sessionID).
		OrderExpr("p.joined_at ASC, p.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	views := make([]domain.ParticipantView, 0, len(rows))
	for _, row := range rows {
		user := domain.User{Username: row.Username, FirstName: row.FirstName, LastName: row.LastName}
		name := user.DisplayName()
		if name == "" {
			name = fmt.Sprintf("user %d", row.UserID)
		}
		views = append(views, domain.ParticipantView{
			ID:       row.ID,
			UserID:   row.UserID,
			Name:     name,
			Progress: row.Progress,
			Total:    row.Total,
		})
	}
	return views, nil
}

// --- submissions ---

func (s *Store) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	if _, err := s.db.NewInsert().Model(sub).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, deckID, sessionID, userID int64) (domain.Submission, error) {
	var sub domain.Submission
	err := s.db.NewSelect().Model(&sub).
		Where("deck_id = ? AND session_id = ? AND user_id = ?", deckID, sessionID, userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("select submission: %w", err)
	}
	return sub, nil
}

func (s *Store) LatestSubmission(ctx context.Context, deckID, userID int64) (domain.Submission, error) {
	var sub domain.Submission
	err := s.db.NewSelect().Model(&sub).
		Where("deck_id = ? AND user_id = ?", deckID, userID).
		Order("updated_at DESC", "id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("select latest submission: %w", err)
	}
	return sub, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, sub *domain.Submission) error {
	res, err := s.db.NewUpdate().Model(sub).
		Column("score", "total", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return requireRows(res, domain.ErrSubmissionNotFound)
}

func requireRows(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
