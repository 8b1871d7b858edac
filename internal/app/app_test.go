package app_test

import (
	"context"
	"testing"

	"flipiq-service/internal/app"
	"flipiq-service/internal/domain"
	"flipiq-service/internal/infra/memory"
)

// testEnv bundles the services over a seeded in-memory store: one teacher
// who owns a two-card deck, and two students.
type testEnv struct {
	store    *memory.Store
	catalog  *app.DeckCatalog
	sessions *app.SessionManager
	tracker  *app.ParticipantTracker
	scoring  *app.ScoringEngine
	status   *app.StatusService

	teacher  domain.User
	student  domain.User
	student2 domain.User
	deck     domain.Deck
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	env := &testEnv{
		store:    store,
		catalog:  app.NewDeckCatalog(store),
		sessions: app.NewSessionManager(store, nil),
		tracker:  app.NewParticipantTracker(store),
		scoring:  app.NewScoringEngine(store),
		status:   app.NewStatusService(store, nil),
	}

	env.teacher = domain.User{Username: "tess", FirstName: "Tess", LastName: "Cher"}
	env.student = domain.User{Username: "sam", FirstName: "Sam", LastName: "Miller"}
	env.student2 = domain.User{Username: "kim"}
	for _, u := range []*domain.User{&env.teacher, &env.student, &env.student2} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	deck, err := env.catalog.CreateDeck(ctx, env.teacher.ID, app.DeckInput{
		Title: "Warm-up",
		Cards: []app.CardInput{
			{Front: "What is 2 + 2?", Back: "4", Choices: []string{"3", "4", "5"}},
			{Front: "Capital of France?", Back: "Paris", Choices: []string{"Paris", "London"}},
		},
	})
	if err != nil {
		t.Fatalf("seed deck: %v", err)
	}
	env.deck = deck
	return env
}

func oneCardDeckInput() app.DeckInput {
	return app.DeckInput{
		Title: "Side deck",
		Cards: []app.CardInput{{Front: "1 + 1?", Back: "2"}},
	}
}

// startSession is a shorthand for hosting the seeded deck.
func (e *testEnv) startSession(t *testing.T) domain.Session {
	t.Helper()
	session, err := e.sessions.StartSession(context.Background(), e.deck.ID, e.teacher.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}
