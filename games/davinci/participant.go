/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package davinci

import "fmt"

// Kind tells humans and scripted players apart.
type Kind int

const (
	Human Kind = iota
	Bot
)

func (k Kind) String() string {
	switch k {
	case Human:
		return "human"
	case Bot:
		return "bot"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "human":
		*k = Human
	case "bot":
		*k = Bot
	default:
		return fmt.Errorf("unknown participant kind %q", text)
	}
	return nil
}

// Participant is a seated player.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// IsBot reports whether p is driven by an AutoPlayer.
func (p Participant) IsBot() bool {
	return p.Kind == Bot
}
