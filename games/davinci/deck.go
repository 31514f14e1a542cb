/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package davinci

import "math/rand/v2"

// Deck is the face-down stock the players draw from.
type Deck struct {
	cards []Card
}

// NewDeck returns all 24 cards shuffled with rng.
func NewDeck(rng *rand.Rand) *Deck {
	cards := make([]Card, 0, DeckSize)
	for _, color := range Colors {
		for n := MinNumber; n <= MaxNumber; n++ {
			cards = append(cards, Card{Number: n, Color: color})
		}
	}

	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	return &Deck{cards: cards}
}

// Draw removes the top card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}

	last := len(d.cards) - 1
	card := d.cards[last]
	d.cards = d.cards[:last]

	return card, nil
}

// DrawByColor removes the first remaining card of the given color.
func (d *Deck) DrawByColor(color Color) (Card, error) {
	for i, card := range d.cards {
		if card.Color != color {
			continue
		}
		d.cards = append(d.cards[:i], d.cards[i+1:]...)
		return card, nil
	}

	if len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}
	return Card{}, ErrColorExhausted
}

// Remaining returns how many cards are left.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// RemainingByColor returns how many cards of color are left.
func (d *Deck) RemainingByColor(color Color) int {
	count := 0
	for _, card := range d.cards {
		if card.Color == color {
			count++
		}
	}
	return count
}
