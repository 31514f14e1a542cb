/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package archive keeps an audit trail of finished games. It is write
// mostly and never used to restore a session.
package archive

import (
	"context"
	"time"

	"github.com/Seednode/davinci/games/davinci"
)

// Record summarizes one finished game.
type Record struct {
	RoomID     string                `json:"roomId"`
	Players    []davinci.Participant `json:"players"`
	Winner     *davinci.Participant  `json:"winner"`
	Guesses    []davinci.GuessRecord `json:"guesses"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt"`
}

// Recorder stores finished games. Recent returns the newest n records,
// newest first; n <= 0 means every retained record.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Recent(ctx context.Context, n int) ([]Record, error)
}

// FromSession captures s. The session must not be mutated concurrently.
func FromSession(s *davinci.Session) Record {
	players := s.Participants()

	rec := Record{
		RoomID:     s.RoomID(),
		Players:    players[:],
		Guesses:    s.History(),
		StartedAt:  s.StartedAt(),
		FinishedAt: s.FinishedAt(),
	}

	if winner, ok := s.Winner(); ok {
		rec.Winner = &winner
	}

	return rec
}
