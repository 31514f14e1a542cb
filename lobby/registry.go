/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/davinci/games/davinci"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const botName = "AI Bot"

// Registry owns every room and the participant to room mapping. Lock
// order is registry first, then room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	seats map[string]*Room

	logger      *zap.Logger
	delays      Delays
	idleTimeout time.Duration
	newRand     func() *rand.Rand
	newRoomID   func() string
	now         func() time.Time

	// Hooks installed by the Service. botActed runs with the room locked,
	// reaped with no locks held.
	botActed func(*Room, *action)
	reaped   func(roomID string, humans []davinci.Participant)

	done     chan struct{}
	closed   bool
	bots     sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithBotDelays sets the pauses an AutoPlayer takes between steps.
func WithBotDelays(d Delays) Option {
	return func(r *Registry) {
		r.delays = d
	}
}

// WithIdleTimeout discards rooms that saw no activity for d. Zero
// disables the reaper.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.idleTimeout = d
	}
}

// WithRandSource supplies the generator for each new session and bot.
func WithRandSource(fn func() *rand.Rand) Option {
	return func(r *Registry) {
		r.newRand = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry starts an empty registry. Close releases it.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:     make(map[string]*Room),
		seats:     make(map[string]*Room),
		logger:    zap.NewNop(),
		delays:    DefaultDelays(),
		newRand:   davinci.NewRand,
		newRoomID: func() string { return randomRoomID(roomIDLength) },
		now:       time.Now,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.idleTimeout > 0 {
		go r.reaperLoop()
	}

	return r
}

// uniqueRoomIDLocked draws ids until one is free.
func (r *Registry) uniqueRoomIDLocked() string {
	for {
		id := r.newRoomID()
		if _, exists := r.rooms[id]; !exists {
			return id
		}
	}
}

func (r *Registry) seatedLocked(participantID string) error {
	if r.closed {
		return davinci.ErrInternal
	}
	if _, ok := r.seats[participantID]; ok {
		return davinci.ErrAlreadyInRoom
	}
	return nil
}

// CreateRoom opens a waiting room hosted by p.
func (r *Registry) CreateRoom(p davinci.Participant) (RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.seatedLocked(p.ID); err != nil {
		return RoomInfo{}, err
	}

	room := newRoom(r.uniqueRoomIDLocked(), p, r.now())
	r.rooms[room.id] = room
	r.seats[p.ID] = room

	r.logger.Info("room created",
		zap.String("room", room.id),
		zap.String("host", p.ID),
	)

	return room.infoLocked(), nil
}

// JoinRoom seats p in a waiting room. The second arrival starts the
// session.
func (r *Registry) JoinRoom(roomID string, p davinci.Participant) (RoomInfo, error) {
	var info RoomInfo
	err := r.joinRoom(roomID, p, func(room *Room) {
		info = room.infoLocked()
	})
	return info, err
}

func (r *Registry) joinRoom(roomID string, p davinci.Participant, then func(*Room)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.seatedLocked(p.ID); err != nil {
		return err
	}

	room, ok := r.rooms[roomID]
	if !ok {
		return davinci.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch {
	case room.closed:
		return davinci.ErrRoomNotFound
	case room.status != RoomWaiting:
		return davinci.ErrAlreadyStarted
	case len(room.participants) >= 2:
		return davinci.ErrRoomFull
	}

	room.participants = append(room.participants, p)
	room.lastActive = r.now()
	r.seats[p.ID] = room

	if len(room.participants) == 2 {
		room.session = davinci.NewSession(room.id, room.participants[0], room.participants[1],
			davinci.WithRand(r.newRand()),
			davinci.WithClock(r.now),
		)
		room.status = RoomPlaying

		r.logger.Info("session started",
			zap.String("room", room.id),
			zap.String("host", room.participants[0].ID),
			zap.String("guest", p.ID),
		)
	}

	if then != nil {
		then(room)
	}

	return nil
}

// CreateRoomWithBot opens a room against an AutoPlayer. The session starts
// at once and the bot has already chosen its initial cards.
func (r *Registry) CreateRoomWithBot(p davinci.Participant) (RoomInfo, error) {
	var info RoomInfo
	err := r.createRoomWithBot(p, func(room *Room) {
		info = room.infoLocked()
	})
	return info, err
}

func (r *Registry) createRoomWithBot(p davinci.Participant, then func(*Room)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.seatedLocked(p.ID); err != nil {
		return err
	}

	bot := davinci.Participant{
		ID:   uuid.NewString(),
		Name: botName,
		Kind: davinci.Bot,
	}

	room := newRoom(r.uniqueRoomIDLocked(), p, r.now())
	room.participants = append(room.participants, bot)
	room.status = RoomPlaying
	room.session = davinci.NewSession(room.id, p, bot,
		davinci.WithRand(r.newRand()),
		davinci.WithClock(r.now),
	)
	room.bot = newAutoPlayer(room, bot, r)

	room.mu.Lock()
	defer room.mu.Unlock()

	if err := room.bot.selectInitialCardsLocked(); err != nil {
		room.closeLocked()
		return err
	}

	r.rooms[room.id] = room
	r.seats[p.ID] = room
	r.seats[bot.ID] = room

	r.logger.Info("bot room created",
		zap.String("room", room.id),
		zap.String("host", p.ID),
		zap.String("bot", bot.ID),
	)

	if then != nil {
		then(room)
	}

	return nil
}

// LeaveRoom removes participantID from its room and returns the room id.
// A room left with no humans is discarded along with its session and bot.
func (r *Registry) LeaveRoom(participantID string) (string, error) {
	return r.leaveRoom(participantID, nil)
}

func (r *Registry) leaveRoom(participantID string, then func(*Room, davinci.Participant)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.seats[participantID]
	if !ok {
		return "", davinci.ErrRoomNotFound
	}
	delete(r.seats, participantID)

	room.mu.Lock()
	defer room.mu.Unlock()

	left, _ := room.removeLocked(participantID)
	room.lastActive = r.now()

	if len(room.humansLocked()) == 0 {
		r.discardLocked(room)
	}

	r.logger.Info("participant left",
		zap.String("room", room.id),
		zap.String("participant", participantID),
		zap.Bool("discarded", room.closed),
	)

	if then != nil {
		then(room, left)
	}

	return room.id, nil
}

// discardLocked drops room and every seat still pointing at it. Both the
// registry and the room must be locked.
func (r *Registry) discardLocked(room *Room) {
	room.closeLocked()
	delete(r.rooms, room.id)

	for _, p := range room.participants {
		if r.seats[p.ID] == room {
			delete(r.seats, p.ID)
		}
	}
}

// RoomOf returns the room participantID is seated in.
func (r *Registry) RoomOf(participantID string) (RoomInfo, bool) {
	room := r.roomOf(participantID)
	if room == nil {
		return RoomInfo{}, false
	}
	return room.Info(), true
}

func (r *Registry) roomOf(participantID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.seats[participantID]
}

// SessionOf returns the snapshot of participantID's session as that
// participant sees it.
func (r *Registry) SessionOf(participantID string) (davinci.Snapshot, error) {
	room := r.roomOf(participantID)
	if room == nil {
		return davinci.Snapshot{}, davinci.ErrGameNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.session == nil {
		return davinci.Snapshot{}, davinci.ErrGameNotFound
	}
	return room.session.Snapshot(participantID), nil
}

// WaitingRooms lists rooms that can still be joined, oldest first.
func (r *Registry) WaitingRooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for _, room := range r.rooms {
		room.mu.Lock()
		if room.status == RoomWaiting && !room.closed {
			out = append(out, room.infoLocked())
		}
		room.mu.Unlock()
	}

	slices.SortFunc(out, func(a, b RoomInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return out
}

// Room looks up a live room by id.
func (r *Registry) Room(roomID string) (RoomInfo, bool) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()

	if !ok {
		return RoomInfo{}, false
	}
	return room.Info(), true
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// reaperLoop periodically discards rooms idle longer than idleTimeout.
func (r *Registry) reaperLoop() {
	ticker := time.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Registry) reap() {
	type reapedRoom struct {
		id     string
		humans []davinci.Participant
	}

	cutoff := r.now().Add(-r.idleTimeout)
	var reaped []reapedRoom

	r.mu.Lock()
	for _, room := range r.rooms {
		room.mu.Lock()
		if room.lastActive.Before(cutoff) {
			reaped = append(reaped, reapedRoom{id: room.id, humans: room.humansLocked()})
			r.discardLocked(room)

			r.logger.Info("room reaped",
				zap.String("room", room.id),
				zap.Duration("idle", r.now().Sub(room.lastActive)),
			)
		}
		room.mu.Unlock()
	}
	r.mu.Unlock()

	if r.reaped == nil {
		return
	}
	for _, rr := range reaped {
		r.reaped(rr.id, rr.humans)
	}
}

// Close stops the reaper and every bot, discards all rooms, and waits for
// bot goroutines to exit.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		r.closed = true
		for _, room := range r.rooms {
			room.mu.Lock()
			r.discardLocked(room)
			room.mu.Unlock()
		}
		r.mu.Unlock()
	})

	r.bots.Wait()
}
