/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/davinci/games/davinci"
	"github.com/stretchr/testify/require"
)

func TestServiceRoomFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.ok(t, "alice", ActionCreateRoom, map[string]any{"name": "  Alice  "})
	room := resp.Data.(RoomAck).Room
	require.Equal(t, "Alice", room.Host.Name)
	require.Equal(t, RoomWaiting, room.Status)
	require.Less(t, f.notifier.position("alice ack "+ActionCreateRoom), f.notifier.position("* rooms-updated"))

	rooms := f.ok(t, "carol", ActionGetRooms, nil).Data.(RoomList).Rooms
	require.Equal(t, []string{room.ID}, ids(rooms))

	f.fails(t, davinci.CodeAlreadyInRoom, "alice", ActionJoinRoom, map[string]any{"roomId": room.ID})
	f.fails(t, davinci.CodeRoomNotFound, "bob", ActionJoinRoom, map[string]any{"roomId": "missing"})
	f.fails(t, davinci.CodeInvalidRequest, "bob", ActionJoinRoom, nil)

	// The older playerName key is accepted too.
	resp = f.ok(t, "bob", ActionJoinRoom, map[string]any{"roomId": room.ID, "playerName": "Bob"})
	joined := resp.Data.(RoomAck).Room
	require.Equal(t, RoomPlaying, joined.Status)
	require.Equal(t, "Bob", joined.Players[1].Name)

	ack := f.notifier.position("bob ack " + ActionJoinRoom)
	require.Less(t, ack, f.notifier.position("alice player-joined"))
	require.Less(t, ack, f.notifier.position("bob player-joined"))
	require.Less(t, f.notifier.position("alice player-joined"), f.notifier.position("alice game-started"))

	for _, p := range []string{"alice", "bob"} {
		started := f.notifier.events(p, EventGameStarted)
		require.Len(t, started, 1)

		snap := started[0].Data.(GameStarted).GameState
		require.Equal(t, davinci.StatusSelecting, snap.Status)
		require.Equal(t, "alice", snap.CurrentTurn)
		require.False(t, snap.IsYourTurn)
	}

	f.fails(t, davinci.CodeAlreadyStarted, "carol", ActionJoinRoom, map[string]any{"roomId": room.ID})
	f.fails(t, davinci.CodeInvalidSelection, "alice", ActionSelectInitial, map[string]any{"blackCount": 3, "whiteCount": 3})

	f.ok(t, "alice", ActionSelectInitial, map[string]any{"blackCount": 2, "whiteCount": 2})
	require.Empty(t, f.notifier.events("bob", EventGameUpdated))

	f.ok(t, "bob", ActionSelectInitial, map[string]any{"blackCount": "0", "whiteCount": "4"})
	for _, p := range []string{"alice", "bob"} {
		updates := f.notifier.events(p, EventGameUpdated)
		require.Len(t, updates, 1)

		update := updates[0].Data.(GameUpdated)
		require.Equal(t, davinci.StatusPlaying, update.GameState.Status)
		require.Len(t, update.GameState.YourCards, 4)
		require.Nil(t, update.LastAction)
	}

	bobCards := hand(t, f.room(t, "bob"), "bob")
	for _, c := range bobCards {
		require.Equal(t, davinci.White, c.Color)
	}
}

func TestServiceTurns(t *testing.T) {
	f := newFixture(t)
	r := f.startGame(t)

	t.Run("rejections are private", func(t *testing.T) {
		before := f.notifier.count()

		f.fails(t, davinci.CodeNotYourTurn, "bob", ActionDrawCard, nil)
		f.fails(t, davinci.CodeInvalidRequest, "alice", ActionDrawCard, map[string]any{"color": "purple"})
		f.fails(t, davinci.CodeInvalidRequest, "alice", ActionGuessCard, map[string]any{"cardIndex": 0})
		f.fails(t, davinci.CodeInvalidIndex, "alice", ActionGuessCard, map[string]any{"cardIndex": 9, "number": 1})
		f.fails(t, davinci.CodeInvalidRequest, "alice", "shuffle-deck", nil)
		f.fails(t, davinci.CodeGameNotFound, "carol", ActionGetGameState, nil)

		require.Equal(t, before, f.notifier.count())
	})

	t.Run("draw", func(t *testing.T) {
		resp := f.ok(t, "alice", ActionDrawCard, map[string]any{"color": "Black"})
		card := resp.Data.(CardAck).Card
		require.Equal(t, davinci.Black, card.Color)
		require.Contains(t, hand(t, r, "alice"), card)

		updates := f.notifier.events("bob", EventGameUpdated)
		last := updates[len(updates)-1].Data.(GameUpdated)
		require.Equal(t, &LastAction{PlayerID: "alice", Action: actionDraw}, last.LastAction)
		require.Len(t, last.GameState.OpponentCards, 5)
		require.NotNil(t, last.GameState.OpponentNewCardIndex)
		require.Nil(t, last.GameState.OpponentCards[*last.GameState.OpponentNewCardIndex].Number)
	})

	t.Run("stale index", func(t *testing.T) {
		state := f.ok(t, "alice", ActionGetGameState, nil).Data.(StateAck).GameState

		f.fails(t, davinci.CodeStaleIndex, "alice", ActionGuessCard, map[string]any{
			"cardIndex":   0,
			"number":      1,
			"handVersion": state.OpponentHandVersion - 1,
		})
	})

	t.Run("miss", func(t *testing.T) {
		target := hand(t, r, "bob")[0]

		resp := f.ok(t, "alice", ActionGuessCard, map[string]any{
			"cardIndex": "0",
			"number":    wrongNumber(target.Number),
		})

		outcome := resp.Data.(davinci.GuessOutcome)
		require.False(t, outcome.Correct)
		require.NotNil(t, outcome.RevealedCard)
		require.Equal(t, davinci.Black, outcome.RevealedCard.Color)
		require.Nil(t, outcome.Guess.ActualCard.Number, "guesser must not learn a missed number")

		aliceView := lastUpdate(t, f, "alice")
		require.Equal(t, "incorrect", aliceView.LastAction.Result)
		require.Nil(t, aliceView.LastAction.GuessInfo.ActualCard.Number)
		require.False(t, aliceView.GameState.IsYourTurn)

		bobView := lastUpdate(t, f, "bob")
		require.NotNil(t, bobView.LastAction.GuessInfo.ActualCard.Number)
		require.Equal(t, target.Number, *bobView.LastAction.GuessInfo.ActualCard.Number)
		require.Equal(t, outcome.RevealedCard, bobView.LastAction.RevealedCard)
		require.True(t, bobView.GameState.IsYourTurn)
	})

	t.Run("pass", func(t *testing.T) {
		f.ok(t, "bob", ActionPassTurn, nil)

		view := lastUpdate(t, f, "alice")
		require.Equal(t, actionPass, view.LastAction.Action)
		require.True(t, view.GameState.IsYourTurn)
	})
}

func lastUpdate(t *testing.T, f *fixture, participantID string) GameUpdated {
	t.Helper()

	updates := f.notifier.events(participantID, EventGameUpdated)
	require.NotEmpty(t, updates)
	return updates[len(updates)-1].Data.(GameUpdated)
}

func TestServiceGameEnds(t *testing.T) {
	f := newFixture(t)
	r := f.startGame(t)

	for i, c := range hand(t, r, "bob") {
		resp := f.ok(t, "alice", ActionGuessCard, map[string]any{"cardIndex": i, "number": c.Number})
		require.True(t, resp.Data.(davinci.GuessOutcome).Correct)
	}

	for _, p := range []string{"alice", "bob"} {
		ended := f.notifier.events(p, EventGameEnded)
		require.Len(t, ended, 1)
		require.Equal(t, "alice", ended[0].Data.(GameEnded).Winner.ID)
	}

	info, ok := f.registry.RoomOf("alice")
	require.True(t, ok)
	require.Equal(t, RoomFinished, info.Status)

	f.fails(t, davinci.CodeInvalidState, "alice", ActionPassTurn, nil)

	f.service.Close()
	recs, err := f.archive.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, r.ID(), recs[0].RoomID)
	require.Equal(t, "alice", recs[0].Winner.ID)
	require.Len(t, recs[0].Guesses, 4)
}

func TestServiceChat(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)

	f.fails(t, davinci.CodeInvalidRequest, "alice", ActionSendMessage, map[string]any{"message": "   "})
	f.fails(t, davinci.CodeInvalidRequest, "alice", ActionSendMessage, map[string]any{"message": strings.Repeat("x", maxMessageLength+1)})
	f.fails(t, davinci.CodeRoomNotFound, "carol", ActionSendMessage, map[string]any{"message": "hi"})

	f.ok(t, "alice", ActionSendMessage, map[string]any{"message": " good luck "})

	for _, p := range []string{"alice", "bob"} {
		msgs := f.notifier.events(p, EventNewMessage)
		require.Len(t, msgs, 1)

		msg := msgs[0].Data.(ChatMessage)
		require.Equal(t, "good luck", msg.Message)
		require.Equal(t, "Alice", msg.PlayerName)
		require.NotEmpty(t, msg.ID)
	}
}

func TestServiceLeave(t *testing.T) {
	f := newFixture(t)
	r := f.startGame(t)

	f.fails(t, davinci.CodeRoomNotFound, "carol", ActionLeaveRoom, nil)

	resp := f.ok(t, "bob", ActionLeaveRoom, nil)
	require.Equal(t, LeftAck{RoomID: r.ID()}, resp.Data)

	left := f.notifier.events("alice", EventPlayerLeft)
	require.Len(t, left, 1)
	require.Equal(t, PlayerLeft{PlayerID: "bob"}, left[0].Data)

	f.fails(t, davinci.CodeGameNotFound, "bob", ActionGetGameState, nil)

	f.service.Disconnect("alice")
	require.Zero(t, f.registry.Len())

	f.service.Disconnect("nobody")
}

func TestServiceCreateLeavesPreviousRoom(t *testing.T) {
	f := newFixture(t)

	first := f.ok(t, "alice", ActionCreateRoom, nil).Data.(RoomAck).Room
	require.Equal(t, defaultPlayerName, first.Host.Name)

	second := f.ok(t, "alice", ActionCreateRoom, map[string]any{"name": "Alice"}).Data.(RoomAck).Room
	require.NotEqual(t, first.ID, second.ID)

	_, ok := f.registry.Room(first.ID)
	require.False(t, ok)
	require.Equal(t, 1, f.registry.Len())
}

func TestServiceConnect(t *testing.T) {
	f := newFixture(t)
	f.service.Connect("alice")

	welcome := f.notifier.events("alice", EventInit)
	require.Len(t, welcome, 1)
	require.Equal(t, Welcome{ParticipantID: "alice"}, welcome[0].Data)
	require.Len(t, f.notifier.events("alice", EventRoomsUpdated), 1)
}

func TestServiceRecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.registry.newRoomID = func() string {
		panic("boom")
	}

	f.fails(t, davinci.CodeInternal, "alice", ActionCreateRoom, nil)

	// The registry lock was released by the panic.
	require.Empty(t, f.registry.WaitingRooms())
}

func TestServiceRoomReaped(t *testing.T) {
	f := newFixture(t)

	room := f.ok(t, "alice", ActionCreateRoom, nil).Data.(RoomAck).Room
	f.registry.idleTimeout = -1
	f.registry.reap()

	closed := f.notifier.events("alice", EventRoomClosed)
	require.Len(t, closed, 1)
	require.Equal(t, RoomClosed{RoomID: room.ID, Reason: "idle"}, closed[0].Data)

	lists := f.notifier.broadcasts(EventRoomsUpdated)
	require.Empty(t, lists[len(lists)-1].Data.(RoomList).Rooms)
}

func TestDecodeWholeNumbers(t *testing.T) {
	var in struct {
		Index  *int `mapstructure:"cardIndex"`
		Number int  `mapstructure:"number"`
	}

	require.NoError(t, decode(map[string]any{"cardIndex": 2.0, "number": "7"}, &in))
	require.Equal(t, 2, *in.Index)
	require.Equal(t, 7, in.Number)

	for _, data := range []map[string]any{
		{"cardIndex": 0.9},
		{"number": 3.7},
		{"number": "3.5"},
	} {
		err := decode(data, &in)
		require.Error(t, err)
		require.Equal(t, davinci.CodeInvalidRequest, davinci.CodeOf(err))
	}
}

func TestServiceRejectsFractions(t *testing.T) {
	f := newFixture(t)
	r := f.startGame(t)

	before := hand(t, r, "bob")

	f.fails(t, davinci.CodeInvalidRequest, "alice", ActionGuessCard, map[string]any{"cardIndex": 0.9, "number": 3.7})
	require.Equal(t, before, hand(t, r, "bob"))

	state := f.ok(t, "alice", ActionGetGameState, nil).Data.(StateAck).GameState
	require.True(t, state.IsYourTurn)
	require.Nil(t, state.LastGuess)
}

func TestServiceChatKeepsRoomAlive(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))

	room := f.ok(t, "alice", ActionCreateRoom, nil).Data.(RoomAck).Room

	now = now.Add(50 * time.Minute)
	f.ok(t, "alice", ActionSendMessage, map[string]any{"message": "anyone?"})

	now = now.Add(20 * time.Minute)
	f.registry.idleTimeout = time.Hour
	f.registry.reap()

	_, ok := f.registry.Room(room.ID)
	require.True(t, ok)
	require.Empty(t, f.notifier.events("alice", EventRoomClosed))
}
