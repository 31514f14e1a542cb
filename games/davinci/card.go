/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package davinci

import (
	"fmt"
	"strings"
)

const (
	// MinNumber and MaxNumber bound the numbers printed on cards.
	MinNumber = 0
	MaxNumber = 11

	cardsPerColor = MaxNumber - MinNumber + 1

	// DeckSize is the number of cards in a fresh deck.
	DeckSize = cardsPerColor * 2
)

// Color is the visible face of a card.
type Color int

const (
	Black Color = iota
	White
)

// Colors lists every color in tie-break order.
var Colors = [...]Color{Black, White}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	}
	return fmt.Sprintf("Color(%d)", int(c))
}

// Other returns the opposite color.
func (c Color) Other() Color {
	if c == Black {
		return White
	}
	return Black
}

func (c Color) MarshalText() ([]byte, error) {
	switch c {
	case Black, White:
		return []byte(c.String()), nil
	}
	return nil, fmt.Errorf("invalid color %d", int(c))
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor accepts "black" or "white", case insensitive.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "black":
		return Black, nil
	case "white":
		return White, nil
	}
	return 0, fmt.Errorf("unknown color %q", s)
}

// Card is a single numbered tile. Number and Color never change once
// dealt; Revealed flips from false to true at most once.
type Card struct {
	Number   int   `json:"number"`
	Color    Color `json:"color"`
	Revealed bool  `json:"isRevealed"`
}

// less reports whether c sorts before o: ascending number, black first.
func (c Card) less(o Card) bool {
	if c.Number != o.Number {
		return c.Number < o.Number
	}
	return c.Color == Black && o.Color == White
}

func (c Card) same(o Card) bool {
	return c.Number == o.Number && c.Color == o.Color
}

func (c Card) String() string {
	return fmt.Sprintf("%s %d", c.Color, c.Number)
}

// CardView is a card as seen by one viewer. Number is nil when the
// viewer is not allowed to know it.
type CardView struct {
	Number   *int  `json:"number"`
	Color    Color `json:"color"`
	Revealed bool  `json:"isRevealed"`
}

func ownerView(c Card) CardView {
	n := c.Number
	return CardView{Number: &n, Color: c.Color, Revealed: c.Revealed}
}

func opponentView(c Card) CardView {
	if c.Revealed {
		return ownerView(c)
	}
	return CardView{Color: c.Color}
}
