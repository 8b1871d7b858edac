package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"flipiq-service/internal/app"
	"flipiq-service/internal/domain"
)

// Store is an in-memory implementation of app.Store, used in tests and in
// the no-database demo mode. A single mutex serializes transactions, which
// trivially satisfies the all-or-nothing requirement: fn runs alone, and a
// failed fn rolls the maps back from a snapshot.
type Store struct {
	mu sync.RWMutex

	nextID       int64
	users        map[int64]domain.User
	decks        map[int64]domain.Deck
	cards        map[int64]domain.Card
	sessions     map[int64]domain.Session
	participants map[int64]domain.Participant
	submissions  map[int64]domain.Submission
}

func NewStore() *Store {
	return &Store{
		users:        make(map[int64]domain.User),
		decks:        make(map[int64]domain.Deck),
		cards:        make(map[int64]domain.Card),
		sessions:     make(map[int64]domain.Session),
		participants: make(map[int64]domain.Participant),
		submissions:  make(map[int64]domain.Submission),
	}
}

// txStore exposes the unlocked internals to a transaction body while the
// outer Store holds the write lock.
type txStore struct {
	s *Store
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(ctx, txStore{s: s}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

// Nested transactions just join the ambient one.
func (t txStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	return fn(ctx, t)
}

type storeSnapshot struct {
	nextID       int64
	users        map[int64]domain.User
	decks        map[int64]domain.Deck
	cards        map[int64]domain.Card
	sessions     map[int64]domain.Session
	participants map[int64]domain.Participant
	submissions  map[int64]domain.Submission
}

func (s *Store) snapshotLocked() storeSnapshot {
	return storeSnapshot{
		nextID:       s.nextID,
		users:        copyMap(s.users),
		decks:        copyMap(s.decks),
		cards:        copyMap(s.cards),
		sessions:     copyMap(s.sessions),
		participants: copyMap(s.participants),
		submissions:  copyMap(s.submissions),
	}
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.nextID = snap.nextID
	s.users = snap.users
	s.decks = snap.decks
	s.cards = snap.cards
	s.sessions = snap.sessions
	s.participants = snap.participants
	s.submissions = snap.submissions
}

func copyMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(user)
}

func (t txStore) CreateUser(_ context.Context, user *domain.User) error {
	return t.s.createUserLocked(user)
}

func (s *Store) createUserLocked(user *domain.User) error {
	if user.ID == 0 {
		user.ID = s.allocID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserLocked(id)
}

func (t txStore) GetUser(_ context.Context, id int64) (domain.User, error) {
	return t.s.getUserLocked(id)
}

func (s *Store) getUserLocked(id int64) (domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// --- decks and cards ---

func (s *Store) CreateDeck(_ context.Context, deck *domain.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDeckLocked(deck)
}

func (t txStore) CreateDeck(_ context.Context, deck *domain.Deck) error {
	return t.s.createDeckLocked(deck)
}

func (s *Store) createDeckLocked(deck *domain.Deck) error {
	if deck.ID == 0 {
		deck.ID = s.allocID()
	}
	if deck.CreatedAt.IsZero() {
		deck.CreatedAt = time.Now()
	}
	stored := *deck
	stored.Cards = nil
	s.decks[deck.ID] = stored
	return nil
}

func (s *Store) GetDeck(_ context.Context, id int64) (domain.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDeckLocked(id)
}

func (t txStore) GetDeck(_ context.Context, id int64) (domain.Deck, error) {
	return t.s.getDeckLocked(id)
}

func (s *Store) getDeckLocked(id int64) (domain.Deck, error) {
	deck, ok := s.decks[id]
	if !ok {
		return domain.Deck{}, domain.ErrDeckNotFound
	}
	deck.Cards = s.cardsForDeckLocked(id)
	return deck, nil
}

func (s *Store) cardsForDeckLocked(deckID int64) []domain.Card {
	var cards []domain.Card
	for _, card := range s.cards {
		if card.DeckID == deckID {
			cards = append(cards, card)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Position != cards[j].Position {
			return cards[i].Position < cards[j].Position
		}
		return cards[i].ID < cards[j].ID
	})
	return cards
}

func (s *Store) UpdateDeck(_ context.Context, deck *domain.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDeckLocked(deck)
}

func (t txStore) UpdateDeck(_ context.Context, deck *domain.Deck) error {
	return t.s.updateDeckLocked(deck)
}

func (s *Store) updateDeckLocked(deck *domain.Deck) error {
	if _, ok := s.decks[deck.ID]; !ok {
		return domain.ErrDeckNotFound
	}
	stored := *deck
	stored.Cards = nil
	s.decks[deck.ID] = stored
	return nil
}

func (s *Store) DeleteDeck(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteDeckLocked(id)
}

func (t txStore) DeleteDeck(_ context.Context, id int64) error {
	return t.s.deleteDeckLocked(id)
}

// deleteDeckLocked cascades to cards, sessions, participants and submissions.
func (s *Store) deleteDeckLocked(id int64) error {
	if _, ok := s.decks[id]; !ok {
		return domain.ErrDeckNotFound
	}
	delete(s.decks, id)
	for cardID, card := range s.cards {
		if card.DeckID == id {
			delete(s.cards, cardID)
		}
	}
	for sessionID, session := range s.sessions {
		if session.DeckID != id {
			continue
		}
		delete(s.sessions, sessionID)
		for pid, p := range s.participants {
			if p.SessionID == sessionID {
				delete(s.participants, pid)
			}
		}
	}
	for subID, sub := range s.submissions {
		if sub.DeckID == id {
			delete(s.submissions, subID)
		}
	}
	return nil
}

func (s *Store) ListDecksByOwner(_ context.Context, ownerID int64) ([]domain.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listDecksLocked(func(d domain.Deck) bool { return d.OwnerID == ownerID }), nil
}

func (t txStore) ListDecksByOwner(ctx context.Context, ownerID int64) ([]domain.Deck, error) {
	return t.s.listDecksLocked(func(d domain.Deck) bool { return d.OwnerID == ownerID }), nil
}

func (s *Store) ListPublicDecks(_ context.Context) ([]domain.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listDecksLocked(func(d domain.Deck) bool { return d.Public }), nil
}

func (t txStore) ListPublicDecks(_ context.Context) ([]domain.Deck, error) {
	return t.s.listDecksLocked(func(d domain.Deck) bool { return d.Public }), nil
}

func (s *Store) listDecksLocked(keep func(domain.Deck) bool) []domain.Deck {
	var decks []domain.Deck
	for _, deck := range s.decks {
		if keep(deck) {
			deck.Cards = s.cardsForDeckLocked(deck.ID)
			decks = append(decks, deck)
		}
	}
	sort.Slice(decks, func(i, j int) bool { return decks[i].ID < decks[j].ID })
	return decks
}

func (s *Store) AddCard(_ context.Context, card *domain.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCardLocked(card)
}

func (t txStore) AddCard(_ context.Context, card *domain.Card) error {
	return t.s.addCardLocked(card)
}

func (s *Store) addCardLocked(card *domain.Card) error {
	if _, ok := s.decks[card.DeckID]; !ok {
		return domain.ErrDeckNotFound
	}
	if card.ID == 0 {
		card.ID = s.allocID()
	}
	s.cards[card.ID] = *card
	return nil
}

func (s *Store) GetCard(_ context.Context, id int64) (domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCardLocked(id)
}

func (t txStore) GetCard(_ context.Context, id int64) (domain.Card, error) {
	return t.s.getCardLocked(id)
}

func (s *Store) getCardLocked(id int64) (domain.Card, error) {
	card, ok := s.cards[id]
	if !ok {
		return domain.Card{}, domain.ErrCardNotFound
	}
	return card, nil
}

func (s *Store) UpdateCard(_ context.Context, card *domain.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCardLocked(card)
}

func (t txStore) UpdateCard(_ context.Context, card *domain.Card) error {
	return t.s.updateCardLocked(card)
}

func (s *Store) updateCardLocked(card *domain.Card) error {
	if _, ok := s.cards[card.ID]; !ok {
		return domain.ErrCardNotFound
	}
	s.cards[card.ID] = *card
	return nil
}

func (s *Store) DeleteCard(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCardLocked(id)
}

func (t txStore) DeleteCard(_ context.Context, id int64) error {
	return t.s.deleteCardLocked(id)
}

func (s *Store) deleteCardLocked(id int64) error {
	if _, ok := s.cards[id]; !ok {
		return domain.ErrCardNotFound
	}
	delete(s.cards, id)
	return nil
}

func (s *Store) CountCards(_ context.Context, deckID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countCardsLocked(deckID), nil
}

func (t txStore) CountCards(_ context.Context, deckID int64) (int, error) {
	return t.s.countCardsLocked(deckID), nil
}

func (s *Store) countCardsLocked(deckID int64) int {
	n := 0
	for _, card := range s.cards {
		if card.DeckID == deckID {
			n++
		}
	}
	return n
}

// --- sessions ---

func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSessionLocked(session)
}

func (t txStore) CreateSession(_ context.Context, session *domain.Session) error {
	return t.s.createSessionLocked(session)
}

func (s *Store) createSessionLocked(session *domain.Session) error {
	if session.ID == 0 {
		session.ID = s.allocID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) GetSession(_ context.Context, id int64) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSessionLocked(id)
}

func (t txStore) GetSession(_ context.Context, id int64) (domain.Session, error) {
	return t.s.getSessionLocked(id)
}

func (s *Store) getSessionLocked(id int64) (domain.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetSessionByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSessionByCodeLocked(code)
}

func (t txStore) GetSessionByCode(_ context.Context, code string) (domain.Session, error) {
	return t.s.getSessionByCodeLocked(code)
}

func (s *Store) getSessionByCodeLocked(code string) (domain.Session, error) {
	for _, session := range s.sessions {
		if session.Code == code {
			return session, nil
		}
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (s *Store) ActiveSession(_ context.Context, deckID int64) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSessionLocked(deckID)
}

func (t txStore) ActiveSession(_ context.Context, deckID int64) (domain.Session, error) {
	return t.s.activeSessionLocked(deckID)
}

func (s *Store) activeSessionLocked(deckID int64) (domain.Session, error) {
	for _, session := range s.sessions {
		if session.DeckID == deckID && session.IsActive {
			return session, nil
		}
	}
	return domain.Session{}, domain.ErrNoActiveSession
}

func (s *Store) DeactivateSessions(_ context.Context, deckID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deactivateSessionsLocked(deckID)
}

func (t txStore) DeactivateSessions(_ context.Context, deckID int64) error {
	return t.s.deactivateSessionsLocked(deckID)
}

func (s *Store) deactivateSessionsLocked(deckID int64) error {
	for id, session := range s.sessions {
		if session.DeckID == deckID && session.IsActive {
			session.IsActive = false
			s.sessions[id] = session
		}
	}
	return nil
}

func (s *Store) UpdateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSessionLocked(session)
}

func (t txStore) UpdateSession(_ context.Context, session *domain.Session) error {
	return t.s.updateSessionLocked(session)
}

func (s *Store) updateSessionLocked(session *domain.Session) error {
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) CodeInUse(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codeInUseLocked(code), nil
}

func (t txStore) CodeInUse(_ context.Context, code string) (bool, error) {
	return t.s.codeInUseLocked(code), nil
}

func (s *Store) codeInUseLocked(code string) bool {
	for _, session := range s.sessions {
		if session.Code == code {
			return true
		}
	}
	return false
}

// --- participants ---

func (s *Store) CreateParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createParticipantLocked(p)
}

func (t txStore) CreateParticipant(_ context.Context, p *domain.Participant) error {
	return t.s.createParticipantLocked(p)
}

func (s *Store) createParticipantLocked(p *domain.Participant) error {
	if p.ID == 0 {
		p.ID = s.allocID()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	s.participants[p.ID] = *p
	return nil
}

func (s *Store) GetParticipant(_ context.Context, sessionID, userID int64) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getParticipantLocked(sessionID, userID)
}

func (t txStore) GetParticipant(_ context.Context, sessionID, userID int64) (domain.Participant, error) {
	return t.s.getParticipantLocked(sessionID, userID)
}

func (s *Store) getParticipantLocked(sessionID, userID int64) (domain.Participant, error) {
	for _, p := range s.participants {
		if p.SessionID == sessionID && p.UserID == userID {
			return p, nil
		}
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (s *Store) GetParticipantByID(_ context.Context, id int64) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getParticipantByIDLocked(id)
}

func (t txStore) GetParticipantByID(_ context.Context, id int64) (domain.Participant, error) {
	return t.s.getParticipantByIDLocked(id)
}

func (s *Store) getParticipantByIDLocked(id int64) (domain.Participant, error) {
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) UpdateParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateParticipantLocked(p)
}

func (t txStore) UpdateParticipant(_ context.Context, p *domain.Participant) error {
	return t.s.updateParticipantLocked(p)
}

func (s *Store) updateParticipantLocked(p *domain.Participant) error {
	if _, ok := s.participants[p.ID]; !ok {
		return domain.ErrParticipantNotFound
	}
	s.participants[p.ID] = *p
	return nil
}

func (s *Store) DeleteParticipant(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteParticipantLocked(id)
}

func (t txStore) DeleteParticipant(_ context.Context, id int64) error {
	return t.s.deleteParticipantLocked(id)
}

func (s *Store) deleteParticipantLocked(id int64) error {
	if _, ok := s.participants[id]; !ok {
		return domain.ErrParticipantNotFound
	}
	delete(s.participants, id)
	return nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID int64) ([]domain.ParticipantView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listParticipantsLocked(sessionID), nil
}

func (t txStore) ListParticipants(_ context.Context, sessionID int64) ([]domain.ParticipantView, error) {
	return t.s.listParticipantsLocked(sessionID), nil
}

func (s *Store) listParticipantsLocked(sessionID int64) []domain.ParticipantView {
	var rows []domain.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].JoinedAt.Equal(rows[j].JoinedAt) {
			return rows[i].JoinedAt.Before(rows[j].JoinedAt)
		}
		return rows[i].ID < rows[j].ID
	})

	views := make([]domain.ParticipantView, 0, len(rows))
	for _, p := range rows {
		name := fmt.Sprintf("user %d", p.UserID)
		if user, ok := s.users[p.UserID]; ok {
			name = user.DisplayName()
		}
		views = append(views, domain.ParticipantView{
			ID:       p.ID,
			UserID:   p.UserID,
			Name:     name,
			Progress: p.Progress,
			Total:    p.TotalCards,
		})
	}
	return views
}

// --- submissions ---

func (s *Store) CreateSubmission(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSubmissionLocked(sub)
}

func (t txStore) CreateSubmission(_ context.Context, sub *domain.Submission) error {
	return t.s.createSubmissionLocked(sub)
}

func (s *Store) createSubmissionLocked(sub *domain.Submission) error {
	if sub.ID == 0 {
		sub.ID = s.allocID()
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	s.submissions[sub.ID] = *sub
	return nil
}

func (s *Store) GetSubmission(_ context.Context, deckID, sessionID, userID int64) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSubmissionLocked(deckID, sessionID, userID)
}

func (t txStore) GetSubmission(_ context.Context, deckID, sessionID, userID int64) (domain.Submission, error) {
	return t.s.getSubmissionLocked(deckID, sessionID, userID)
}

func (s *Store) getSubmissionLocked(deckID, sessionID, userID int64) (domain.Submission, error) {
	for _, sub := range s.submissions {
		if sub.DeckID == deckID && sub.SessionID == sessionID && sub.UserID == userID {
			return sub, nil
		}
	}
	return domain.Submission{}, domain.ErrSubmissionNotFound
}

func (s *Store) LatestSubmission(_ context.Context, deckID, userID int64) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSubmissionLocked(deckID, userID)
}

func (t txStore) LatestSubmission(_ context.Context, deckID, userID int64) (domain.Submission, error) {
	return t.s.latestSubmissionLocked(deckID, userID)
}

func (s *Store) latestSubmissionLocked(deckID, userID int64) (domain.Submission, error) {
	var best domain.Submission
	found := false
	for _, sub := range s.submissions {
		if sub.DeckID != deckID || sub.UserID != userID {
			continue
		}
		if !found || sub.UpdatedAt.After(best.UpdatedAt) ||
			(sub.UpdatedAt.Equal(best.UpdatedAt) && sub.ID > best.ID) {
			best = sub
			found = true
		}
	}
	if !found {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return best, nil
}

func (s *Store) UpdateSubmission(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSubmissionLocked(sub)
}

func (t txStore) UpdateSubmission(_ context.Context, sub *domain.Submission) error {
	return t.s.updateSubmissionLocked(sub)
}

func (s *Store) updateSubmissionLocked(sub *domain.Submission) error {
	if _, ok := s.submissions[sub.ID]; !ok {
		return domain.ErrSubmissionNotFound
	}
	s.submissions[sub.ID] = *sub
	return nil
}
