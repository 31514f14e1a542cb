/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Seednode/davinci/archive"
	"github.com/Seednode/davinci/games/davinci"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPlayerName = "Player"
	maxNameLength     = 32
	maxMessageLength  = 500
	recordTimeout     = 5 * time.Second
)

// Actions understood by Handle.
const (
	ActionCreateRoom        = "create-room"
	ActionCreateRoomWithBot = "create-room-with-bot"
	ActionJoinRoom          = "join-room"
	ActionSelectInitial     = "select-initial-cards"
	ActionDrawCard          = "draw-card"
	ActionGuessCard         = "guess-card"
	ActionPassTurn          = "pass-turn"
	ActionGetGameState      = "get-game-state"
	ActionGetRooms          = "get-rooms"
	ActionLeaveRoom         = "leave-room"
	ActionSendMessage       = "send-message"
)

// Request is one client action. ID is echoed back untouched.
type Request struct {
	ID     any            `json:"id,omitempty"`
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

// Response acknowledges exactly one Request.
type Response struct {
	Type    string       `json:"type"`
	ID      any          `json:"id,omitempty"`
	Action  string       `json:"action"`
	Success bool         `json:"success"`
	Error   davinci.Code `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
	Data    any          `json:"data,omitempty"`
}

type RoomAck struct {
	Room      RoomInfo          `json:"room"`
	GameState *davinci.Snapshot `json:"gameState,omitempty"`
}

type CardAck struct {
	Card davinci.Card `json:"card"`
}

type StateAck struct {
	GameState davinci.Snapshot `json:"gameState"`
}

type LeftAck struct {
	RoomID string `json:"roomId"`
}

// Service applies client actions to the registry and pushes the results.
// Each action is acknowledged before any event it causes is emitted.
type Service struct {
	registry *Registry
	notifier Notifier
	recorder archive.Recorder
	logger   *zap.Logger

	handlers map[string]func(*call) error
	records  sync.WaitGroup
}

// NewService wires registry to notifier. recorder may be nil.
func NewService(registry *Registry, notifier Notifier, recorder archive.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		registry: registry,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
	}

	s.handlers = map[string]func(*call) error{
		ActionCreateRoom:        s.createRoom,
		ActionCreateRoomWithBot: s.createRoomWithBot,
		ActionJoinRoom:          s.joinRoom,
		ActionSelectInitial:     s.selectInitialCards,
		ActionDrawCard:          s.drawCard,
		ActionGuessCard:         s.guessCard,
		ActionPassTurn:          s.passTurn,
		ActionGetGameState:      s.getGameState,
		ActionGetRooms:          s.getRooms,
		ActionLeaveRoom:         s.leaveRoom,
		ActionSendMessage:       s.sendMessage,
	}

	registry.botActed = s.publishLocked
	registry.reaped = s.roomReaped

	return s
}

type call struct {
	participant string
	req         Request
	reply       func(Response)
	replied     bool
}

func (c *call) ok(data any) {
	c.replied = true
	c.reply(Response{
		Type:    "ack",
		ID:      c.req.ID,
		Action:  c.req.Action,
		Success: true,
		Data:    data,
	})
}

func (c *call) fail(err error) {
	c.replied = true
	c.reply(Response{
		Type:    "ack",
		ID:      c.req.ID,
		Action:  c.req.Action,
		Success: false,
		Error:   davinci.CodeOf(err),
		Message: err.Error(),
	})
}

func invalidRequest(msg string) error {
	return &davinci.Error{Code: davinci.CodeInvalidRequest, Message: msg}
}

// wholeNumbers refuses to truncate a fractional number into an integer
// field.
func wholeNumbers(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}

	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return data, nil
	}

	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not a whole number", f)
	}
	return data, nil
}

// decode copies data into out, accepting loosely typed values such as
// numbers sent as strings.
func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(wholeNumbers),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(data); err != nil {
		return invalidRequest(err.Error())
	}
	return nil
}

// Handle runs one action for participantID. reply is called exactly once,
// and before any resulting event is pushed.
func (s *Service) Handle(participantID string, req Request, reply func(Response)) {
	c := &call{participant: participantID, req: req, reply: reply}

	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("action panicked",
				zap.String("action", req.Action),
				zap.String("participant", participantID),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
			if !c.replied {
				c.fail(davinci.ErrInternal)
			}
		}
	}()

	handler, ok := s.handlers[req.Action]
	if !ok {
		c.fail(invalidRequest("unknown action " + req.Action))
		return
	}

	if err := handler(c); err != nil {
		s.logger.Debug("action rejected",
			zap.String("action", req.Action),
			zap.String("participant", participantID),
			zap.Error(err),
		)
		if !c.replied {
			c.fail(err)
		}
	}
}

// Connect greets a freshly connected participant.
func (s *Service) Connect(participantID string) {
	s.notifier.Notify(participantID, Event{Type: EventInit, Data: Welcome{ParticipantID: participantID}})
	s.notifier.Notify(participantID, Event{Type: EventRoomsUpdated, Data: RoomList{Rooms: s.registry.WaitingRooms()}})
}

// Disconnect treats a dropped connection as leaving the room.
func (s *Service) Disconnect(participantID string) {
	if err := s.leave(participantID, nil); err != nil && davinci.CodeOf(err) != davinci.CodeRoomNotFound {
		s.logger.Warn("leave on disconnect failed",
			zap.String("participant", participantID),
			zap.Error(err),
		)
	}
}

// Close waits for pending archive writes.
func (s *Service) Close() {
	s.records.Wait()
}

func participant(id, name, fallback string) davinci.Participant {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(fallback)
	}
	if name == "" {
		name = defaultPlayerName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}

	return davinci.Participant{ID: id, Name: name, Kind: davinci.Human}
}

type nameInput struct {
	Name       string `mapstructure:"name"`
	PlayerName string `mapstructure:"playerName"`
}

func (s *Service) createRoom(c *call) error {
	var in nameInput
	if err := decode(c.req.Data, &in); err != nil {
		return err
	}

	s.leaveCurrent(c.participant)

	info, err := s.registry.CreateRoom(participant(c.participant, in.Name, in.PlayerName))
	if err != nil {
		return err
	}

	c.ok(RoomAck{Room: info})
	s.broadcastRooms()

	return nil
}

func (s *Service) createRoomWithBot(c *call) error {
	var in nameInput
	if err := decode(c.req.Data, &in); err != nil {
		return err
	}

	s.leaveCurrent(c.participant)

	p := participant(c.participant, in.Name, in.PlayerName)

	return s.registry.createRoomWithBot(p, func(r *Room) {
		snap := r.session.Snapshot(p.ID)

		c.ok(RoomAck{Room: r.infoLocked(), GameState: &snap})
		s.notifier.Notify(p.ID, Event{Type: EventGameStarted, Data: GameStarted{GameState: snap}})
	})
}

func (s *Service) joinRoom(c *call) error {
	var in struct {
		RoomID     string `mapstructure:"roomId"`
		Name       string `mapstructure:"name"`
		PlayerName string `mapstructure:"playerName"`
	}
	if err := decode(c.req.Data, &in); err != nil {
		return err
	}
	if in.RoomID == "" {
		return invalidRequest("roomId is required")
	}

	if current := s.registry.roomOf(c.participant); current != nil && current.id == in.RoomID {
		return davinci.ErrAlreadyInRoom
	}
	s.leaveCurrent(c.participant)

	p := participant(c.participant, in.Name, in.PlayerName)

	err := s.registry.joinRoom(in.RoomID, p, func(r *Room) {
		info := r.infoLocked()

		c.ok(RoomAck{Room: info})
		s.notifyRoomLocked(r, Event{Type: EventPlayerJoined, Data: PlayerJoined{Player: p, Room: info}})

		if r.session == nil {
			return
		}
		for _, h := range r.humansLocked() {
			s.notifier.Notify(h.ID, Event{
				Type: EventGameStarted,
				Data: GameStarted{GameState: r.session.Snapshot(h.ID)},
			})
		}
	})
	if err != nil {
		return err
	}

	s.broadcastRooms()

	return nil
}

func (s *Service) selectInitialCards(c *call) error {
	var in struct {
		Black int `mapstructure:"blackCount"`
		White int `mapstructure:"whiteCount"`
	}
	if err := decode(c.req.Data, &in); err != nil {
		return err
	}

	return s.withSession(c, func(r *Room, sess *davinci.Session) error {
		if err := sess.SelectInitialCards(c.participant, in.Black, in.White); err != nil {
			return err
		}

		c.ok(nil)

		if sess.Status() == davinci.StatusPlaying {
			s.publishLocked(r, nil)
		}
		return nil
	})
}

func (s *Service) drawCard(c *call) error {
	var in struct {
		Color string `mapstructure:"color"`
	}
	if err := decode(c.req.Data, &in); err != nil {
		return err
	}

	var color *davinci.Color
	if in.Color != "" {
		parsed, err := davinci.ParseColor(in.Color)
		if err != nil {
			return invalidRequest(err.Error())
		}
		color = &parsed
	}

	return s.withSession(c, func(r *Room, sess *davinci.Session) error {
		card, err := sess.DrawCard(c.participant, color)
		if err != nil {
			return err
		}

		c.ok(CardAck{Card: card})
		s.publishLocked(r, &action{actor: c.participant, kind: actionDraw})

		return nil
	})
}

func (s *Service) guessCard(c *call) error {
	var in struct {
		CardIndex   *int `mapstructure:"cardIndex"`
		Number      *int `mapstructure:"number"`
		HandVersion *int `mapstructure:"handVersion"`
	}
	if err := decode(c.req.Data, &in); err != nil {
		return err
	}
	if in.CardIndex == nil || in.Number == nil {
		return invalidRequest("cardIndex and number are required")
	}

	return s.withSession(c, func(r *Room, sess *davinci.Session) error {
		var (
			result davinci.GuessResult
			err    error
		)
		if in.HandVersion != nil {
			result, err = sess.GuessCardAt(c.participant, *in.CardIndex, *in.HandVersion, *in.Number)
		} else {
			result, err = sess.GuessCard(c.participant, *in.CardIndex, *in.Number)
		}
		if err != nil {
			return err
		}

		c.ok(result.ForViewer(c.participant))
		s.publishLocked(r, &action{actor: c.participant, kind: actionGuess, guess: &result})

		return nil
	})
}

func (s *Service) passTurn(c *call) error {
	return s.withSession(c, func(r *Room, sess *davinci.Session) error {
		if err := sess.PassTurn(c.participant); err != nil {
			return err
		}

		c.ok(nil)
		s.publishLocked(r, &action{actor: c.participant, kind: actionPass})

		return nil
	})
}

func (s *Service) getGameState(c *call) error {
	return s.withSession(c, func(_ *Room, sess *davinci.Session) error {
		c.ok(StateAck{GameState: sess.Snapshot(c.participant)})
		return nil
	})
}

func (s *Service) getRooms(c *call) error {
	c.ok(RoomList{Rooms: s.registry.WaitingRooms()})
	return nil
}

func (s *Service) leaveRoom(c *call) error {
	return s.leave(c.participant, c)
}

func (s *Service) sendMessage(c *call) error {
	var in struct {
		Message string `mapstructure:"message"`
	}
	if err := decode(c.req.Data, &in); err != nil {
		return err
	}

	msg := strings.TrimSpace(in.Message)
	switch {
	case msg == "":
		return invalidRequest("message is empty")
	case utf8.RuneCountInString(msg) > maxMessageLength:
		return invalidRequest("message is too long")
	}

	r := s.registry.roomOf(c.participant)
	if r == nil {
		return davinci.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.participantLocked(c.participant)
	if r.closed || !ok {
		return davinci.ErrRoomNotFound
	}

	r.lastActive = s.registry.now()

	c.ok(nil)
	s.notifyRoomLocked(r, Event{Type: EventNewMessage, Data: ChatMessage{
		ID:         uuid.NewString(),
		PlayerID:   sender.ID,
		PlayerName: sender.Name,
		Message:    msg,
		Timestamp:  s.registry.now(),
	}})

	return nil
}

// withSession runs fn with the caller's room locked.
func (s *Service) withSession(c *call, fn func(*Room, *davinci.Session) error) error {
	r := s.registry.roomOf(c.participant)
	if r == nil {
		return davinci.ErrGameNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.session == nil {
		return davinci.ErrGameNotFound
	}

	if err := fn(r, r.session); err != nil {
		return err
	}

	r.lastActive = s.registry.now()
	return nil
}

// leave removes participantID from its room. c is nil when nobody is
// waiting for an acknowledgement.
func (s *Service) leave(participantID string, c *call) error {
	_, err := s.registry.leaveRoom(participantID, func(r *Room, _ davinci.Participant) {
		if c != nil {
			c.ok(LeftAck{RoomID: r.id})
		}
		s.notifyRoomLocked(r, Event{Type: EventPlayerLeft, Data: PlayerLeft{PlayerID: participantID}})
	})
	if err != nil {
		return err
	}

	s.broadcastRooms()

	return nil
}

func (s *Service) leaveCurrent(participantID string) {
	if s.registry.roomOf(participantID) == nil {
		return
	}
	_ = s.leave(participantID, nil)
}

// publishLocked pushes the new state of r to its humans and handles
// whatever the last move set in motion.
func (s *Service) publishLocked(r *Room, a *action) {
	r.syncStatusLocked()

	for _, h := range r.humansLocked() {
		s.notifier.Notify(h.ID, Event{Type: EventGameUpdated, Data: GameUpdated{
			GameState:  r.session.Snapshot(h.ID),
			LastAction: a.forViewer(h.ID),
		}})
	}

	if r.session.Status() == davinci.StatusFinished {
		s.finishLocked(r)
		return
	}

	if r.bot != nil {
		r.bot.scheduleLocked()
	}
}

func (s *Service) finishLocked(r *Room) {
	winner, _ := r.session.Winner()

	s.notifyRoomLocked(r, Event{Type: EventGameEnded, Data: GameEnded{Winner: &winner}})

	s.logger.Info("game finished",
		zap.String("room", r.id),
		zap.String("winner", winner.ID),
		zap.Int("guesses", len(r.session.History())),
	)

	if s.recorder == nil {
		return
	}

	rec := archive.FromSession(r.session)

	s.records.Add(1)
	go func() {
		defer s.records.Done()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := s.recorder.Record(ctx, rec); err != nil {
			s.logger.Warn("failed to archive game",
				zap.String("room", rec.RoomID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) roomReaped(roomID string, humans []davinci.Participant) {
	for _, h := range humans {
		s.notifier.Notify(h.ID, Event{Type: EventRoomClosed, Data: RoomClosed{RoomID: roomID, Reason: "idle"}})
	}

	s.broadcastRooms()
}

func (s *Service) notifyRoomLocked(r *Room, ev Event) {
	for _, h := range r.humansLocked() {
		s.notifier.Notify(h.ID, ev)
	}
}

func (s *Service) broadcastRooms() {
	s.notifier.NotifyAll(Event{Type: EventRoomsUpdated, Data: RoomList{Rooms: s.registry.WaitingRooms()}})
}
