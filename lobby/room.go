/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/Seednode/davinci/games/davinci"
)

const roomIDLength = 8

// RoomStatus is the lobby level state of a room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// RoomInfo describes a room to clients.
type RoomInfo struct {
	ID        string                `json:"id"`
	Host      davinci.Participant   `json:"host"`
	Players   []davinci.Participant `json:"players"`
	Status    RoomStatus            `json:"status"`
	HasBot    bool                  `json:"hasBot"`
	CreatedAt time.Time             `json:"createdAt"`
}

// Room pairs up to two participants. Everything below mu, including the
// session, is guarded by it.
type Room struct {
	id        string
	createdAt time.Time

	mu           sync.Mutex
	host         davinci.Participant
	participants []davinci.Participant
	status       RoomStatus
	session      *davinci.Session
	bot          *AutoPlayer
	closed       bool
	lastActive   time.Time
}

func newRoom(id string, host davinci.Participant, now time.Time) *Room {
	return &Room{
		id:           id,
		createdAt:    now,
		host:         host,
		participants: []davinci.Participant{host},
		status:       RoomWaiting,
		lastActive:   now,
	}
}

// ID never changes.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) infoLocked() RoomInfo {
	players := make([]davinci.Participant, len(r.participants))
	copy(players, r.participants)

	return RoomInfo{
		ID:        r.id,
		Host:      r.host,
		Players:   players,
		Status:    r.status,
		HasBot:    r.bot != nil,
		CreatedAt: r.createdAt,
	}
}

// Info returns a descriptor of the room.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.infoLocked()
}

func (r *Room) humansLocked() []davinci.Participant {
	var out []davinci.Participant
	for _, p := range r.participants {
		if !p.IsBot() {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) participantLocked(participantID string) (davinci.Participant, bool) {
	for _, p := range r.participants {
		if p.ID == participantID {
			return p, true
		}
	}
	return davinci.Participant{}, false
}

func (r *Room) removeLocked(participantID string) (davinci.Participant, bool) {
	for i, p := range r.participants {
		if p.ID != participantID {
			continue
		}

		r.participants = append(r.participants[:i], r.participants[i+1:]...)
		if r.host.ID == participantID && len(r.participants) > 0 {
			r.host = r.participants[0]
		}
		return p, true
	}
	return davinci.Participant{}, false
}

// closeLocked marks the room as discarded and stops its bot. Callers
// still holding a pointer to the room must check closed after locking.
func (r *Room) closeLocked() {
	r.closed = true
	if r.bot != nil {
		r.bot.stop()
	}
}

// syncStatusLocked mirrors a finished session into the room status.
func (r *Room) syncStatusLocked() {
	if r.session != nil && r.session.Status() == davinci.StatusFinished {
		r.status = RoomFinished
	}
}

// randomRoomID returns n characters drawn uniformly from letters.
// Bytes above the largest multiple of len(letters) are rejected to avoid
// modulo bias.
func randomRoomID(n int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const limit = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b > limit {
				continue
			}
			out = append(out, letters[int(b)%len(letters)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out)
}
