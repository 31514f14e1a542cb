/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package davinci

import "errors"

// Code is the machine readable failure reason returned to clients.
type Code string

const (
	CodeRoomNotFound     Code = "RoomNotFound"
	CodeRoomFull         Code = "RoomFull"
	CodeAlreadyStarted   Code = "AlreadyStarted"
	CodeNotYourTurn      Code = "NotYourTurn"
	CodeInvalidIndex     Code = "InvalidIndex"
	CodeAlreadyRevealed  Code = "AlreadyRevealed"
	CodeEmptyDeck        Code = "EmptyDeck"
	CodeColorExhausted   Code = "ColorExhausted"
	CodeInvalidSelection Code = "InvalidSelection"
	CodeGameNotFound     Code = "GameNotFound"

	CodeInvalidState   Code = "InvalidState"
	CodeStaleIndex     Code = "StaleIndex"
	CodeAlreadyInRoom  Code = "AlreadyInRoom"
	CodeInvalidRequest Code = "InvalidRequest"
	CodeInternal       Code = "Internal"
)

// Error is a rejected action. It never indicates a broken session.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error carrying the same code, so wrapped or
// re-created errors compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrRoomNotFound     = &Error{CodeRoomNotFound, "room not found"}
	ErrRoomFull         = &Error{CodeRoomFull, "room is full"}
	ErrAlreadyStarted   = &Error{CodeAlreadyStarted, "game already started"}
	ErrNotYourTurn      = &Error{CodeNotYourTurn, "not your turn"}
	ErrInvalidIndex     = &Error{CodeInvalidIndex, "invalid card index"}
	ErrAlreadyRevealed  = &Error{CodeAlreadyRevealed, "card already revealed"}
	ErrEmptyDeck        = &Error{CodeEmptyDeck, "no cards left in deck"}
	ErrColorExhausted   = &Error{CodeColorExhausted, "no cards of that color left"}
	ErrInvalidSelection = &Error{CodeInvalidSelection, "initial selection must be 4 cards"}
	ErrGameNotFound     = &Error{CodeGameNotFound, "game not found"}
	ErrInvalidState     = &Error{CodeInvalidState, "action not allowed in the current game state"}
	ErrStaleIndex       = &Error{CodeStaleIndex, "opponent hand changed since the index was issued"}
	ErrAlreadyInRoom    = &Error{CodeAlreadyInRoom, "participant is already in a room"}
	ErrInvalidRequest   = &Error{CodeInvalidRequest, "invalid request"}
	ErrInternal         = &Error{CodeInternal, "internal error"}
)

// CodeOf maps err to its client facing code. Errors outside the
// taxonomy are reported as CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
