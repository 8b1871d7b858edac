package memory

import (
	"context"
	"errors"
	"testing"

	"flipiq-service/internal/app"
	"flipiq-service/internal/domain"
)

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := domain.User{Username: "t"}
	if err := store.CreateUser(ctx, &user); err != nil {
		t.Fatalf("user: %v", err)
	}
	deck := domain.Deck{OwnerID: user.ID, Title: "D"}
	if err := store.CreateDeck(ctx, &deck); err != nil {
		t.Fatalf("deck: %v", err)
	}

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		card := domain.Card{DeckID: deck.ID, Front: "f", Back: "b"}
		if err := tx.AddCard(ctx, &card); err != nil {
			return err
		}
		session := domain.Session{DeckID: deck.ID, HostID: user.ID, Code: "123456", IsActive: true}
		if err := tx.CreateSession(ctx, &session); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected tx error, got %v", err)
	}

	if n, _ := store.CountCards(ctx, deck.ID); n != 0 {
		t.Fatalf("card write leaked out of failed tx, count=%d", n)
	}
	if _, err := store.GetSessionByCode(ctx, "123456"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("session write leaked out of failed tx: %v", err)
	}
}

func TestRunInTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := domain.User{Username: "t"}
	if err := store.CreateUser(ctx, &user); err != nil {
		t.Fatalf("user: %v", err)
	}
	deck := domain.Deck{OwnerID: user.ID, Title: "D"}
	if err := store.CreateDeck(ctx, &deck); err != nil {
		t.Fatalf("deck: %v", err)
	}

	err := store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		card := domain.Card{DeckID: deck.ID, Front: "f", Back: "b"}
		return tx.AddCard(ctx, &card)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if n, _ := store.CountCards(ctx, deck.ID); n != 1 {
		t.Fatalf("expected committed card, count=%d", n)
	}
}

func TestActiveSessionIsSingular(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := domain.User{Username: "t"}
	_ = store.CreateUser(ctx, &user)
	deck := domain.Deck{OwnerID: user.ID, Title: "D"}
	_ = store.CreateDeck(ctx, &deck)

	s1 := domain.Session{DeckID: deck.ID, HostID: user.ID, Code: "111111", IsActive: true}
	if err := store.CreateSession(ctx, &s1); err != nil {
		t.Fatalf("s1: %v", err)
	}
	if err := store.DeactivateSessions(ctx, deck.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	s2 := domain.Session{DeckID: deck.ID, HostID: user.ID, Code: "222222", IsActive: true}
	if err := store.CreateSession(ctx, &s2); err != nil {
		t.Fatalf("s2: %v", err)
	}

	active, err := store.ActiveSession(ctx, deck.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID != s2.ID {
		t.Fatalf("expected s2 active, got %d", active.ID)
	}
}

func TestLatestSubmissionPicksNewest(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := domain.User{Username: "t"}
	_ = store.CreateUser(ctx, &user)
	deck := domain.Deck{OwnerID: user.ID, Title: "D"}
	_ = store.CreateDeck(ctx, &deck)
	s1 := domain.Session{DeckID: deck.ID, HostID: user.ID, Code: "111111"}
	s2 := domain.Session{DeckID: deck.ID, HostID: user.ID, Code: "222222"}
	_ = store.CreateSession(ctx, &s1)
	_ = store.CreateSession(ctx, &s2)

	old := domain.Submission{DeckID: deck.ID, SessionID: s1.ID, UserID: user.ID, Score: 1, Total: 2}
	if err := store.CreateSubmission(ctx, &old); err != nil {
		t.Fatalf("old: %v", err)
	}
	newer := domain.Submission{DeckID: deck.ID, SessionID: s2.ID, UserID: user.ID, Score: 2, Total: 2,
		UpdatedAt: old.UpdatedAt.Add(1)}
	if err := store.CreateSubmission(ctx, &newer); err != nil {
		t.Fatalf("newer: %v", err)
	}

	got, err := store.LatestSubmission(ctx, deck.ID, user.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("expected newest submission, got %+v", got)
	}
}
