/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/Seednode/davinci/archive"
	"github.com/Seednode/davinci/games/davinci"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	to    string
	event Event
}

// fakeNotifier records pushes and acks in a single ordered log.
type fakeNotifier struct {
	mu   sync.Mutex
	log  []string
	sent []delivery
	all  []Event

	// failWhen, if set before any traffic, makes Notify panic on matching
	// deliveries.
	failWhen func(participantID string, ev Event) bool
}

func (n *fakeNotifier) Notify(participantID string, ev Event) {
	if n.failWhen != nil && n.failWhen(participantID, ev) {
		panic("notifier failed")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.log = append(n.log, participantID+" "+string(ev.Type))
	n.sent = append(n.sent, delivery{to: participantID, event: ev})
}

func (n *fakeNotifier) NotifyAll(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.log = append(n.log, "* "+string(ev.Type))
	n.all = append(n.all, ev)
}

func (n *fakeNotifier) ack(participantID string, resp Response) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.log = append(n.log, participantID+" ack "+resp.Action)
}

func (n *fakeNotifier) events(participantID string, typ EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Event
	for _, d := range n.sent {
		if d.to == participantID && d.event.Type == typ {
			out = append(out, d.event)
		}
	}
	return out
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.sent) + len(n.all)
}

func (n *fakeNotifier) broadcasts(typ EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Event
	for _, ev := range n.all {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// position returns the index of entry in the log, or -1.
func (n *fakeNotifier) position(entry string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, l := range n.log {
		if l == entry {
			return i
		}
	}
	return -1
}

func seededRand() func() *rand.Rand {
	var (
		mu   sync.Mutex
		seed uint64
	)
	return func() *rand.Rand {
		mu.Lock()
		defer mu.Unlock()

		seed++
		return davinci.NewSeededRand(seed)
	}
}

func human(id string) davinci.Participant {
	return davinci.Participant{ID: id, Name: id}
}

type fixture struct {
	registry *Registry
	notifier *fakeNotifier
	archive  *archive.Memory
	service  *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	opts = append([]Option{
		WithBotDelays(Delays{}),
		WithRandSource(seededRand()),
	}, opts...)

	f := &fixture{
		registry: NewRegistry(opts...),
		notifier: &fakeNotifier{},
		archive:  archive.NewMemory(10),
	}
	f.service = NewService(f.registry, f.notifier, f.archive, nil)

	t.Cleanup(func() {
		f.registry.Close()
		f.service.Close()
	})

	return f
}

func (f *fixture) do(t *testing.T, participantID, action string, data map[string]any) Response {
	t.Helper()

	var got []Response
	f.service.Handle(participantID, Request{ID: 1, Action: action, Data: data}, func(resp Response) {
		f.notifier.ack(participantID, resp)
		got = append(got, resp)
	})

	require.Len(t, got, 1, "exactly one reply to %s", action)
	require.Equal(t, "ack", got[0].Type)
	require.Equal(t, action, got[0].Action)

	return got[0]
}

func (f *fixture) ok(t *testing.T, participantID, action string, data map[string]any) Response {
	t.Helper()

	resp := f.do(t, participantID, action, data)
	require.True(t, resp.Success, "%s failed: %s %s", action, resp.Error, resp.Message)

	return resp
}

func (f *fixture) fails(t *testing.T, code davinci.Code, participantID, action string, data map[string]any) {
	t.Helper()

	resp := f.do(t, participantID, action, data)
	require.False(t, resp.Success, "%s unexpectedly succeeded", action)
	require.Equal(t, code, resp.Error, resp.Message)
}

// room returns the live room participantID is seated in.
func (f *fixture) room(t *testing.T, participantID string) *Room {
	t.Helper()

	r := f.registry.roomOf(participantID)
	require.NotNil(t, r, "%s has no room", participantID)
	return r
}

// startGame seats alice and bob in a room and completes selection.
func (f *fixture) startGame(t *testing.T) *Room {
	t.Helper()

	resp := f.ok(t, "alice", ActionCreateRoom, map[string]any{"name": "Alice"})
	roomID := resp.Data.(RoomAck).Room.ID

	f.ok(t, "bob", ActionJoinRoom, map[string]any{"roomId": roomID, "name": "Bob"})
	f.ok(t, "alice", ActionSelectInitial, map[string]any{"blackCount": 2, "whiteCount": 2})
	f.ok(t, "bob", ActionSelectInitial, map[string]any{"blackCount": "1", "whiteCount": "3"})

	return f.room(t, "alice")
}

// hand peeks at a participant's real cards.
func hand(t *testing.T, r *Room, participantID string) []davinci.Card {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	cards, ok := r.session.Hand(participantID)
	require.True(t, ok)
	return cards
}

// wrongNumber returns a number that is not n.
func wrongNumber(n int) int {
	return (n + 1) % (davinci.MaxNumber + 1)
}

func ids(rooms []RoomInfo) []string {
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.ID)
	}
	return out
}

func sequentialIDs(values ...string) func() string {
	i := 0
	return func() string {
		if i >= len(values) {
			panic(fmt.Sprintf("ran out of ids after %d", i))
		}
		v := values[i]
		i++
		return v
	}
}
