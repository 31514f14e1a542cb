/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package davinci

// Hand is one participant's cards, always sorted by number with black
// before white on ties. Positions shift whenever a card is inserted, so
// an index is only meaningful for the Version it was read at.
type Hand struct {
	cards   []Card
	version int

	// lastDrawn is the card drawn this turn, kept by identity rather
	// than position.
	lastDrawn *Card
}

// AddCard inserts card in sorted position and returns that position.
// Unless initial is set, the card becomes the hand's last drawn card.
func (h *Hand) AddCard(card Card, initial bool) int {
	pos := len(h.cards)
	for i, c := range h.cards {
		if card.less(c) {
			pos = i
			break
		}
	}

	h.cards = append(h.cards, Card{})
	copy(h.cards[pos+1:], h.cards[pos:])
	h.cards[pos] = card
	h.version++

	if !initial {
		drawn := card
		h.lastDrawn = &drawn
	}

	return pos
}

// RevealAt reveals the card at index. Revealing a card twice is a no-op.
func (h *Hand) RevealAt(index int) (Card, error) {
	if index < 0 || index >= len(h.cards) {
		return Card{}, ErrInvalidIndex
	}

	h.cards[index].Revealed = true
	if h.lastDrawn != nil && h.lastDrawn.same(h.cards[index]) {
		h.lastDrawn = nil
	}

	return h.cards[index], nil
}

// RevealLastDrawn reveals the tracked last drawn card and stops tracking
// it. ok is false when no card is tracked.
func (h *Hand) RevealLastDrawn() (card Card, ok bool) {
	index, ok := h.LastDrawnIndex()
	if !ok {
		return Card{}, false
	}

	card, err := h.RevealAt(index)
	if err != nil {
		return Card{}, false
	}
	return card, true
}

// ClearLastDrawn forgets the last drawn card without revealing it.
func (h *Hand) ClearLastDrawn() {
	h.lastDrawn = nil
}

// LastDrawnIndex returns the current position of the last drawn card.
func (h *Hand) LastDrawnIndex() (int, bool) {
	if h.lastDrawn == nil {
		return 0, false
	}

	for i, c := range h.cards {
		if c.same(*h.lastDrawn) {
			return i, true
		}
	}
	return 0, false
}

// AllRevealed reports whether every card in the hand is face up.
func (h *Hand) AllRevealed() bool {
	for _, c := range h.cards {
		if !c.Revealed {
			return false
		}
	}
	return true
}

// Len returns the number of cards held.
func (h *Hand) Len() int {
	return len(h.cards)
}

// Card returns the card at index.
func (h *Hand) Card(index int) (Card, error) {
	if index < 0 || index >= len(h.cards) {
		return Card{}, ErrInvalidIndex
	}
	return h.cards[index], nil
}

// Cards returns a copy of the hand in sorted order.
func (h *Hand) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

// Version increments on every insertion.
func (h *Hand) Version() int {
	return h.version
}

// Unrevealed returns the positions of every face down card.
func (h *Hand) Unrevealed() []int {
	var out []int
	for i, c := range h.cards {
		if !c.Revealed {
			out = append(out, i)
		}
	}
	return out
}

// OwnerView shows every card in full.
func (h *Hand) OwnerView() []CardView {
	out := make([]CardView, 0, len(h.cards))
	for _, c := range h.cards {
		out = append(out, ownerView(c))
	}
	return out
}

// OpponentView shows colors always and numbers only once revealed.
func (h *Hand) OpponentView() []CardView {
	out := make([]CardView, 0, len(h.cards))
	for _, c := range h.cards {
		out = append(out, opponentView(c))
	}
	return out
}
