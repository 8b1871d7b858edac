package domain

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// User is the minimal identity the core needs; authentication itself lives
// outside this service and callers arrive pre-authenticated.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Username  string    `bun:"username,notnull,unique" json:"username"`
	FirstName string    `bun:"first_name" json:"firstName"`
	LastName  string    `bun:"last_name" json:"lastName"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// DisplayName is "first last" with a username fallback, as shown on the
// host dashboard.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return u.Username
	}
	return full
}

// Deck is a flashcard/quiz deck owned by one teacher.
type Deck struct {
	bun.BaseModel `bun:"table:decks"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	OwnerID   int64     `bun:"owner_id,notnull" json:"ownerId"`
	Title     string    `bun:"title,notnull" json:"title"`
	Subject   string    `bun:"subject" json:"subject"`
	Grade     string    `bun:"grade" json:"grade"`
	Public    bool      `bun:"public,notnull,default:false" json:"public"`
	Interval  int       `bun:"interval_secs,notnull,default:10" json:"interval"` // per-card display seconds
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`

	Cards []Card `bun:"rel:has-many,join:id=deck_id" json:"cards,omitempty"`
}

// OwnedBy is the single ownership predicate applied by every owner-only
// operation.
func (d Deck) OwnedBy(userID int64) bool {
	return d.OwnerID == userID
}

// Card is one prompt/answer pair within a deck. Choices, when present, are
// the options shown to players; correctness is judged against Back.
type Card struct {
	bun.BaseModel `bun:"table:cards"`

	ID       int64    `bun:"id,pk,autoincrement" json:"id"`
	DeckID   int64    `bun:"deck_id,notnull" json:"deckId"`
	Position int      `bun:"position,notnull" json:"position"`
	Front    string   `bun:"front,notnull" json:"front"`
	Back     string   `bun:"back,notnull" json:"back"`
	Choices  []string `bun:"choices,type:jsonb" json:"choices,omitempty"`
}

// Matches reports whether a submitted choice answers this card. Both sides
// are trimmed; the comparison itself is case-sensitive.
func (c Card) Matches(choice string) bool {
	return strings.TrimSpace(choice) == strings.TrimSpace(c.Back)
}

// Session is one live run of a deck. Two flags drive the lifecycle:
// IsActive means the session exists and is joinable, IsStarted means the
// host has released the quiz for answering. At most one active session
// exists per deck.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	DeckID    int64     `bun:"deck_id,notnull" json:"deckId"`
	HostID    int64     `bun:"host_id,notnull" json:"hostId"`
	Code      string    `bun:"code,notnull,unique" json:"code"`
	IsActive  bool      `bun:"is_active,notnull,default:true" json:"isActive"`
	IsStarted bool      `bun:"is_started,notnull,default:false" json:"isStarted"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// Participant ties one user to one session and tracks how far through the
// deck they are. Progress never decreases outside an explicit reset and
// never exceeds TotalCards.
type Participant struct {
	bun.BaseModel `bun:"table:participants"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	SessionID  int64     `bun:"session_id,notnull" json:"sessionId"`
	UserID     int64     `bun:"user_id,notnull" json:"userId"`
	Progress   int       `bun:"progress,notnull,default:0" json:"progress"`
	TotalCards int       `bun:"total_cards,notnull" json:"totalCards"`
	JoinedAt   time.Time `bun:"joined_at,notnull,default:current_timestamp" json:"joinedAt"`
}

// Submission is the durable score record for one (deck, session, user)
// triple. Score counts correct answers; Total mirrors the deck's card count.
type Submission struct {
	bun.BaseModel `bun:"table:submissions"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	DeckID    int64     `bun:"deck_id,notnull" json:"deckId"`
	SessionID int64     `bun:"session_id,notnull" json:"sessionId"`
	UserID    int64     `bun:"user_id,notnull" json:"userId"`
	Score     int       `bun:"score,notnull,default:0" json:"score"`
	Total     int       `bun:"total,notnull" json:"total"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

// SessionStatus is the poll payload for players waiting on a code.
type SessionStatus struct {
	IsActive  bool `json:"isActive"`
	IsStarted bool `json:"isStarted"`
}

// ParticipantView is one row of the host's live dashboard.
type ParticipantView struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
}

// Dashboard is the host's polled view of the active session.
type Dashboard struct {
	SessionID    int64             `json:"sessionId"`
	Code         string            `json:"code"`
	Active       bool              `json:"active"`
	IsStarted    bool              `json:"isStarted"`
	Participants []ParticipantView `json:"participants"`
}

// AnswerOutcome summarizes one scored submission for the answering player.
type AnswerOutcome struct {
	Correct  bool `json:"isCorrect"`
	Progress int  `json:"progress"`
	Total    int  `json:"total"`
	Score    int  `json:"score"`
}

// ResultView is the end-of-quiz split for one user.
type ResultView struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Total   int `json:"total"`
}

// JoinedSession is what a player gets back from joining by code.
type JoinedSession struct {
	DeckID    int64  `json:"deckId"`
	SessionID int64  `json:"sessionId"`
	DeckTitle string `json:"deckTitle"`
}
