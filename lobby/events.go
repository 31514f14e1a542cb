/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"time"

	"github.com/Seednode/davinci/games/davinci"
)

// EventType names a server push.
type EventType string

const (
	EventInit         EventType = "init"
	EventRoomsUpdated EventType = "rooms-updated"
	EventPlayerJoined EventType = "player-joined"
	EventGameStarted  EventType = "game-started"
	EventGameUpdated  EventType = "game-updated"
	EventGameEnded    EventType = "game-ended"
	EventPlayerLeft   EventType = "player-left"
	EventNewMessage   EventType = "new-message"
	EventRoomClosed   EventType = "room-closed"
)

// Event is one push notification.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// Notifier delivers events to connected participants. Implementations
// must not block and must not call back into the lobby, since events for
// a room are emitted while that room is locked.
type Notifier interface {
	Notify(participantID string, ev Event)
	NotifyAll(ev Event)
}

// Welcome is sent once when a participant connects.
type Welcome struct {
	ParticipantID string `json:"participantId"`
}

type RoomList struct {
	Rooms []RoomInfo `json:"rooms"`
}

type PlayerJoined struct {
	Player davinci.Participant `json:"player"`
	Room   RoomInfo            `json:"room"`
}

type GameStarted struct {
	GameState davinci.Snapshot `json:"gameState"`
}

// LastAction describes the move that produced a game-updated event.
type LastAction struct {
	PlayerID     string             `json:"playerId"`
	Action       string             `json:"action"`
	Result       string             `json:"result,omitempty"`
	GuessInfo    *davinci.GuessView `json:"guessInfo,omitempty"`
	RevealedCard *davinci.Card      `json:"revealedCard,omitempty"`
}

type GameUpdated struct {
	GameState  davinci.Snapshot `json:"gameState"`
	LastAction *LastAction      `json:"lastAction,omitempty"`
}

type GameEnded struct {
	Winner *davinci.Participant `json:"winner"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type RoomClosed struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// action is a completed move, rendered per viewer into a LastAction.
type action struct {
	actor string
	kind  string
	guess *davinci.GuessResult
}

const (
	actionDraw  = "draw"
	actionGuess = "guess"
	actionPass  = "pass"
)

func (a *action) forViewer(viewerID string) *LastAction {
	if a == nil {
		return nil
	}

	last := &LastAction{PlayerID: a.actor, Action: a.kind}
	if a.guess != nil {
		last.Result = "incorrect"
		if a.guess.Correct {
			last.Result = "correct"
		}

		view := a.guess.Guess.ForViewer(viewerID)
		last.GuessInfo = &view
		// Whatever a guess reveals is public from then on.
		last.RevealedCard = a.guess.RevealedCard
	}
	return last
}
