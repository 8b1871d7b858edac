package app

import (
	"context"
	"strings"

	"flipiq-service/internal/domain"
)

// DeckCatalog holds the authoring use cases: decks and cards are created,
// edited and deleted only by their owner.
type DeckCatalog struct {
	store Store
}

func NewDeckCatalog(store Store) *DeckCatalog {
	return &DeckCatalog{store: store}
}

// CardInput is one card of a new or edited deck.
type CardInput struct {
	Front   string   `json:"front"`
	Back    string   `json:"back"`
	Choices []string `json:"choices,omitempty"`
}

// DeckInput carries the authoring fields of a deck.
type DeckInput struct {
	Title    string      `json:"title"`
	Subject  string      `json:"subject"`
	Grade    string      `json:"grade"`
	Public   bool        `json:"public"`
	Interval int         `json:"interval"`
	Cards    []CardInput `json:"cards"`
}

// CreateDeck stores a new deck with its cards in author order.
func (c *DeckCatalog) CreateDeck(ctx context.Context, ownerID int64, in DeckInput) (domain.Deck, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Deck{}, domain.ErrInvalidInput
	}
	interval := in.Interval
	if interval <= 0 {
		interval = 10
	}
	deck := domain.Deck{
		OwnerID:  ownerID,
		Title:    strings.TrimSpace(in.Title),
		Subject:  in.Subject,
		Grade:    in.Grade,
		Public:   in.Public,
		Interval: interval,
	}
	err := c.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateDeck(ctx, &deck); err != nil {
			return err
		}
		for i, card := range in.Cards {
			if strings.TrimSpace(card.Front) == "" || strings.TrimSpace(card.Back) == "" {
				return domain.ErrInvalidInput
			}
			c := domain.Card{
				DeckID:   deck.ID,
				Position: i,
				Front:    card.Front,
				Back:     card.Back,
				Choices:  card.Choices,
			}
			if err := tx.AddCard(ctx, &c); err != nil {
				return err
			}
			deck.Cards = append(deck.Cards, c)
		}
		return nil
	})
	if err != nil {
		return domain.Deck{}, err
	}
	return deck, nil
}

// GetDeck returns a deck with its cards. Private decks are visible only to
// their owner.
func (c *DeckCatalog) GetDeck(ctx context.Context, deckID, callerID int64) (domain.Deck, error) {
	deck, err := c.store.GetDeck(ctx, deckID)
	if err != nil {
		return domain.Deck{}, err
	}
	if !deck.Public && !deck.OwnedBy(callerID) {
		return domain.Deck{}, domain.ErrDeckNotFound
	}
	return deck, nil
}

// GetOwnedDeck is the authoring fetch: the caller must own the deck.
func (c *DeckCatalog) GetOwnedDeck(ctx context.Context, deckID, callerID int64) (domain.Deck, error) {
	return requireOwnedDeck(ctx, c.store, deckID, callerID)
}

// UpdateDeck replaces the deck's authoring fields, leaving cards untouched.
func (c *DeckCatalog) UpdateDeck(ctx context.Context, deckID, callerID int64, in DeckInput) (domain.Deck, error) {
	deck, err := requireOwnedDeck(ctx, c.store, deckID, callerID)
	if err != nil {
		return domain.Deck{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Deck{}, domain.ErrInvalidInput
	}
	deck.Title = strings.TrimSpace(in.Title)
	deck.Subject = in.Subject
	deck.Grade = in.Grade
	deck.Public = in.Public
	if in.Interval > 0 {
		deck.Interval = in.Interval
	}
	if err := c.store.UpdateDeck(ctx, &deck); err != nil {
		return domain.Deck{}, err
	}
	return deck, nil
}

// SetPublished toggles the deck's public visibility.
func (c *DeckCatalog) SetPublished(ctx context.Context, deckID, callerID int64, public bool) error {
	deck, err := requireOwnedDeck(ctx, c.store, deckID, callerID)
	if err != nil {
		return err
	}
	deck.Public = public
	return c.store.UpdateDeck(ctx, &deck)
}

// DeleteDeck removes the deck and everything hanging off it: cards, sessions,
// participants and submissions.
func (c *DeckCatalog) DeleteDeck(ctx context.Context, deckID, callerID int64) error {
	if _, err := requireOwnedDeck(ctx, c.store, deckID, callerID); err != nil {
		return err
	}
	return c.store.DeleteDeck(ctx, deckID)
}

// AddCard appends a card to the end of the deck.
func (c *DeckCatalog) AddCard(ctx context.Context, deckID, callerID int64, in CardInput) (domain.Card, error) {
	deck, err := requireOwnedDeck(ctx, c.store, deckID, callerID)
	if err != nil {
		return domain.Card{}, err
	}
	if strings.TrimSpace(in.Front) == "" || strings.TrimSpace(in.Back) == "" {
		return domain.Card{}, domain.ErrInvalidInput
	}
	card := domain.Card{
		DeckID:   deck.ID,
		Position: len(deck.Cards),
		Front:    in.Front,
		Back:     in.Back,
		Choices:  in.Choices,
	}
	if err := c.store.AddCard(ctx, &card); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// UpdateCard edits one card of an owned deck.
func (c *DeckCatalog) UpdateCard(ctx context.Context, cardID, callerID int64, in CardInput) (domain.Card, error) {
	card, err := c.store.GetCard(ctx, cardID)
	if err != nil {
		return domain.Card{}, err
	}
	if _, err := requireOwnedDeck(ctx, c.store, card.DeckID, callerID); err != nil {
		return domain.Card{}, err
	}
	if strings.TrimSpace(in.Front) == "" || strings.TrimSpace(in.Back) == "" {
		return domain.Card{}, domain.ErrInvalidInput
	}
	card.Front = in.Front
	card.Back = in.Back
	card.Choices = in.Choices
	if err := c.store.UpdateCard(ctx, &card); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// DeleteCard removes one card from an owned deck.
func (c *DeckCatalog) DeleteCard(ctx context.Context, cardID, callerID int64) error {
	card, err := c.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if _, err := requireOwnedDeck(ctx, c.store, card.DeckID, callerID); err != nil {
		return err
	}
	return c.store.DeleteCard(ctx, cardID)
}

// ListDecks returns the caller's own decks.
func (c *DeckCatalog) ListDecks(ctx context.Context, ownerID int64) ([]domain.Deck, error) {
	return c.store.ListDecksByOwner(ctx, ownerID)
}

// ListPublicDecks returns every published deck for browsing.
func (c *DeckCatalog) ListPublicDecks(ctx context.Context) ([]domain.Deck, error) {
	return c.store.ListPublicDecks(ctx)
}
