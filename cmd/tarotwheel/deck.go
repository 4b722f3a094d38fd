package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Card is one face on the wheel.
type Card struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Deck maps wheel slots to cards. Slot i shows Cards[i].
type Deck struct {
	Cards []Card
}

// defaultDeck labels every slot "card-<i>".
func defaultDeck(n int) Deck {
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = Card{ID: "card-" + strconv.Itoa(i)}
	}
	return Deck{Cards: cards}
}

// deckFromKeys builds a deck from a plain list of card keys.
func deckFromKeys(keys []string) Deck {
	cards := make([]Card, len(keys))
	for i, k := range keys {
		cards[i] = Card{ID: k}
	}
	return Deck{Cards: cards}
}

// loadDeckFile reads a JSON array of cards, e.g.
//
//	[{"id": "the_fool", "name": "The Fool"}, ...]
func loadDeckFile(path string) (Deck, error) {
	raw, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Deck{}, fmt.Errorf("read deck file: %w", err)
	}
	var cards []Card
	if err := json.Unmarshal(raw, &cards); err != nil {
		return Deck{}, fmt.Errorf("parse deck file %s: %w", path, err)
	}
	for i, c := range cards {
		if c.ID == "" {
			return Deck{}, fmt.Errorf("deck file %s: card %d has no id", path, i)
		}
	}
	return Deck{Cards: cards}, nil
}

// Key returns the card id at slot i, or "" when the slot is out of range.
func (d Deck) Key(i int) string {
	if i < 0 || i >= len(d.Cards) {
		return ""
	}
	return d.Cards[i].ID
}

// Len returns the number of cards.
func (d Deck) Len() int { return len(d.Cards) }
