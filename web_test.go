/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/davinci/archive"
	"github.com/Seednode/davinci/lobby"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*server, *httptest.Server) {
	t.Helper()

	cfg := defaultConfig(t)
	cfg.botDrawDelay, cfg.botGuessDelay, cfg.botResultDelay, cfg.botContinueDelay = 0, 0, 0, 0

	s := newServer(cfg, zap.NewNop(), archive.NewMemory(cfg.archiveSize))
	ts := httptest.NewServer(s.routes())

	t.Cleanup(ts.Close)
	t.Cleanup(s.close)

	return s, ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

func TestHTTPEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	t.Run("banner", func(t *testing.T) {
		resp, body := get(t, ts.URL+"/")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"name":"davinci","status":"running","version":"`+releaseVersion+`"}`, string(body))
	})

	t.Run("health", func(t *testing.T) {
		for _, path := range []string{"/healthz", "/health"} {
			resp, body := get(t, ts.URL+path)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, "Ok\n", string(body))
		}
	})

	t.Run("version", func(t *testing.T) {
		_, body := get(t, ts.URL+"/version")
		require.Equal(t, "davinci v"+releaseVersion+"\n", string(body))
	})

	t.Run("rooms", func(t *testing.T) {
		_, body := get(t, ts.URL+"/rooms")
		require.JSONEq(t, `{"rooms":[]}`, string(body))
	})

	t.Run("recent games", func(t *testing.T) {
		_, body := get(t, ts.URL+"/games/recent")
		require.JSONEq(t, `{"games":[]}`, string(body))

		resp, _ := get(t, ts.URL+"/games/recent?limit=zero")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing room qr", func(t *testing.T) {
		resp, _ := get(t, ts.URL+"/rooms/nope/qr")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cors", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/rooms", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://example.com")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

// frame is the union of an ack and an event as seen on the wire.
type frame struct {
	Type    string          `json:"type"`
	ID      any             `json:"id"`
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// expect reads frames until one of type typ arrives.
func expect(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == typ {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, action string, data map[string]any) frame {
	t.Helper()

	require.NoError(t, conn.WriteJSON(lobby.Request{ID: action, Action: action, Data: data}))

	ack := expect(t, conn, "ack")
	require.Equal(t, action, ack.Action)
	require.Equal(t, action, ack.ID)

	return ack
}

func TestWebsocketGame(t *testing.T) {
	s, ts := newTestServer(t)

	alice := dial(t, ts)
	var welcome lobby.Welcome
	require.NoError(t, json.Unmarshal(expect(t, alice, "init").Data, &welcome))
	require.NotEmpty(t, welcome.ParticipantID)
	expect(t, alice, string(lobby.EventRoomsUpdated))

	ack := send(t, alice, lobby.ActionCreateRoom, map[string]any{"name": "Alice"})
	require.True(t, ack.Success)

	var created lobby.RoomAck
	require.NoError(t, json.Unmarshal(ack.Data, &created))
	require.Equal(t, welcome.ParticipantID, created.Room.Host.ID)

	resp, body := get(t, ts.URL+"/rooms/"+created.Room.ID+"/qr")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	require.True(t, strings.HasPrefix(string(body), "\x89PNG"))

	bob := dial(t, ts)
	expect(t, bob, "init")

	ack = send(t, bob, lobby.ActionJoinRoom, map[string]any{"roomId": created.Room.ID, "name": "Bob"})
	require.True(t, ack.Success)

	var started lobby.GameStarted
	require.NoError(t, json.Unmarshal(expect(t, alice, string(lobby.EventGameStarted)).Data, &started))
	require.Equal(t, welcome.ParticipantID, started.GameState.CurrentTurn)
	require.False(t, started.GameState.IsYourTurn)
	require.Equal(t, "Bob", started.GameState.OpponentInfo.Name)

	ack = send(t, alice, lobby.ActionDrawCard, nil)
	require.False(t, ack.Success)
	require.Equal(t, "InvalidState", ack.Error)

	require.NoError(t, bob.Close())

	var left lobby.PlayerLeft
	require.NoError(t, json.Unmarshal(expect(t, alice, string(lobby.EventPlayerLeft)).Data, &left))
	require.NotEqual(t, welcome.ParticipantID, left.PlayerID)

	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWebsocketMalformedRequest(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dial(t, ts)
	expect(t, conn, "init")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	ack := expect(t, conn, "ack")
	require.False(t, ack.Success)
	require.Equal(t, "InvalidRequest", ack.Error)

	// The connection survives a bad frame.
	ack = send(t, conn, lobby.ActionGetRooms, nil)
	require.True(t, ack.Success)
}

func TestWebsocketBotGame(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dial(t, ts)
	expect(t, conn, "init")

	ack := send(t, conn, lobby.ActionCreateRoomWithBot, nil)
	require.True(t, ack.Success)

	var created lobby.RoomAck
	require.NoError(t, json.Unmarshal(ack.Data, &created))
	require.True(t, created.Room.HasBot)
	require.NotNil(t, created.GameState)

	expect(t, conn, string(lobby.EventGameStarted))

	require.True(t, send(t, conn, lobby.ActionSelectInitial, map[string]any{"blackCount": 2, "whiteCount": 2}).Success)
	expect(t, conn, string(lobby.EventGameUpdated))

	require.True(t, send(t, conn, lobby.ActionPassTurn, nil).Success)

	// The bot answers with a draw of its own.
	bot := created.Room.Players[1].ID
	for {
		var update lobby.GameUpdated
		require.NoError(t, json.Unmarshal(expect(t, conn, string(lobby.EventGameUpdated)).Data, &update))
		if update.LastAction != nil && update.LastAction.PlayerID == bot {
			require.Equal(t, "draw", update.LastAction.Action)
			break
		}
	}
}
