/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package davinci

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// InitialHandSize is how many cards each player chooses during selection.
const InitialHandSize = 4

// Status is the phase of a Session. It only ever moves forward.
type Status string

const (
	StatusSelecting Status = "selecting"
	StatusPlaying   Status = "playing"
	StatusFinished  Status = "finished"
)

// Selection is a player's requested color split for the initial deal.
type Selection struct {
	Black int `json:"blackCount"`
	White int `json:"whiteCount"`
}

// GuessRecord is one entry of the guess log.
type GuessRecord struct {
	GuesserID     string    `json:"guesserId"`
	GuesserName   string    `json:"guesserName"`
	TargetID      string    `json:"targetId"`
	TargetName    string    `json:"targetName"`
	CardIndex     int       `json:"cardIndex"`
	GuessedNumber int       `json:"guessedNumber"`
	ActualCard    Card      `json:"actualCard"`
	Correct       bool      `json:"isCorrect"`
	Timestamp     time.Time `json:"timestamp"`
}

// GuessResult describes the outcome of GuessCard.
type GuessResult struct {
	Correct        bool         `json:"correct"`
	AdditionalTurn bool         `json:"additionalTurn"`
	RevealedCard   *Card        `json:"revealedCard,omitempty"`
	GameEnded      bool         `json:"gameEnded"`
	Winner         *Participant `json:"winner,omitempty"`
	Guess          GuessRecord  `json:"guess"`
}

type seat struct {
	Participant
	hand Hand
}

// Session is one game between exactly two participants. It is not safe
// for concurrent use; the owning room serializes every call.
type Session struct {
	roomID     string
	deck       *Deck
	seats      [2]*seat
	current    int
	status     Status
	selections map[string]Selection
	history    []GuessRecord
	winner     *Participant

	startedAt  time.Time
	finishedAt time.Time

	rng *rand.Rand
	now func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithRand makes shuffling deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) {
		s.rng = rng
	}
}

// WithClock overrides the time source used for guess timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// NewRand returns a generator seeded from crypto/rand.
func NewRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic("crypto/rand failure: " + err.Error())
	}
	return rand.New(rand.NewChaCha8(seed))
}

// NewSeededRand returns a deterministic generator.
func NewSeededRand(seed uint64) *rand.Rand {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	return rand.New(rand.NewChaCha8(buf))
}

// NewSession shuffles a fresh deck and seats first and second. The first
// participant moves first once play begins.
func NewSession(roomID string, first, second Participant, opts ...Option) *Session {
	s := &Session{
		roomID:     roomID,
		seats:      [2]*seat{{Participant: first}, {Participant: second}},
		status:     StatusSelecting,
		selections: make(map[string]Selection, 2),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		s.rng = NewRand()
	}
	s.deck = NewDeck(s.rng)

	return s
}

// RoomID returns the id of the owning room.
func (s *Session) RoomID() string {
	return s.roomID
}

func (s *Session) Status() Status {
	return s.status
}

// Participants returns both seated players in seat order.
func (s *Session) Participants() [2]Participant {
	return [2]Participant{s.seats[0].Participant, s.seats[1].Participant}
}

// CurrentPlayer returns whoever holds the turn.
func (s *Session) CurrentPlayer() Participant {
	return s.seats[s.current].Participant
}

// IsCurrentTurn reports whether participantID holds the turn.
func (s *Session) IsCurrentTurn(participantID string) bool {
	return s.seats[s.current].ID == participantID
}

// Winner is only set once the session is finished.
func (s *Session) Winner() (Participant, bool) {
	if s.winner == nil {
		return Participant{}, false
	}
	return *s.winner, true
}

// History returns a copy of the guess log, oldest first.
func (s *Session) History() []GuessRecord {
	out := make([]GuessRecord, len(s.history))
	copy(out, s.history)
	return out
}

// LastGuess returns the most recent guess, if any.
func (s *Session) LastGuess() (GuessRecord, bool) {
	if len(s.history) == 0 {
		return GuessRecord{}, false
	}
	return s.history[len(s.history)-1], true
}

// StartedAt is zero until both selections are in.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// FinishedAt is zero until there is a winner.
func (s *Session) FinishedAt() time.Time {
	return s.finishedAt
}

// DeckRemaining returns the number of undrawn cards.
func (s *Session) DeckRemaining() int {
	return s.deck.Remaining()
}

// Hand returns a copy of participantID's cards.
func (s *Session) Hand(participantID string) ([]Card, bool) {
	i, ok := s.seatOf(participantID)
	if !ok {
		return nil, false
	}
	return s.seats[i].hand.Cards(), true
}

// OpponentUnrevealed lists the face down positions in the hand facing
// participantID.
func (s *Session) OpponentUnrevealed(participantID string) []int {
	i, ok := s.seatOf(participantID)
	if !ok {
		return nil
	}
	return s.seats[1-i].hand.Unrevealed()
}

func (s *Session) seatOf(participantID string) (int, bool) {
	for i, st := range s.seats {
		if st.ID == participantID {
			return i, true
		}
	}
	return 0, false
}

// SelectInitialCards records participantID's color split. Once both
// participants have chosen, the cards are dealt and play begins.
func (s *Session) SelectInitialCards(participantID string, black, white int) error {
	if _, ok := s.seatOf(participantID); !ok {
		return ErrGameNotFound
	}
	if s.status != StatusSelecting {
		return ErrInvalidState
	}
	if black < 0 || white < 0 || black+white != InitialHandSize {
		return ErrInvalidSelection
	}

	s.selections[participantID] = Selection{Black: black, White: white}

	if len(s.selections) == len(s.seats) {
		s.deal()
	}

	return nil
}

// deal hands out the selected colors. A color the deck cannot satisfy is
// skipped rather than failing the game.
func (s *Session) deal() {
	for _, st := range s.seats {
		sel := s.selections[st.ID]

		for range sel.Black {
			if card, err := s.deck.DrawByColor(Black); err == nil {
				st.hand.AddCard(card, true)
			}
		}
		for range sel.White {
			if card, err := s.deck.DrawByColor(White); err == nil {
				st.hand.AddCard(card, true)
			}
		}
	}

	s.status = StatusPlaying
	s.startedAt = s.now()
}

// turn validates that participantID may act right now.
func (s *Session) turn(participantID string) (*seat, *seat, error) {
	i, ok := s.seatOf(participantID)
	if !ok {
		return nil, nil, ErrGameNotFound
	}
	if s.status != StatusPlaying {
		return nil, nil, ErrInvalidState
	}
	if s.current != i {
		return nil, nil, ErrNotYourTurn
	}
	return s.seats[i], s.seats[1-i], nil
}

// DrawCard moves a card from the deck into the current player's hand.
// A nil color draws the top card. Drawing never ends the turn.
func (s *Session) DrawCard(participantID string, color *Color) (Card, error) {
	me, _, err := s.turn(participantID)
	if err != nil {
		return Card{}, err
	}

	if s.deck.Remaining() == 0 {
		return Card{}, ErrEmptyDeck
	}

	var card Card
	if color != nil {
		card, err = s.deck.DrawByColor(*color)
	} else {
		card, err = s.deck.Draw()
	}
	if err != nil {
		return Card{}, err
	}

	me.hand.AddCard(card, false)

	return card, nil
}

// GuessCard guesses the number of the opponent's card at cardIndex.
func (s *Session) GuessCard(participantID string, cardIndex, number int) (GuessResult, error) {
	return s.guess(participantID, cardIndex, number, nil)
}

// GuessCardAt is GuessCard with the index pinned to a hand version
// previously published in a snapshot.
func (s *Session) GuessCardAt(participantID string, cardIndex, handVersion, number int) (GuessResult, error) {
	return s.guess(participantID, cardIndex, number, &handVersion)
}

func (s *Session) guess(participantID string, cardIndex, number int, version *int) (GuessResult, error) {
	me, opponent, err := s.turn(participantID)
	if err != nil {
		return GuessResult{}, err
	}

	if version != nil && *version != opponent.hand.Version() {
		return GuessResult{}, ErrStaleIndex
	}

	target, err := opponent.hand.Card(cardIndex)
	if err != nil {
		return GuessResult{}, err
	}
	if target.Revealed {
		return GuessResult{}, ErrAlreadyRevealed
	}

	// Color is public, so only the number can be wrong.
	correct := target.Number == number
	target.Revealed = correct

	record := GuessRecord{
		GuesserID:     me.ID,
		GuesserName:   me.Name,
		TargetID:      opponent.ID,
		TargetName:    opponent.Name,
		CardIndex:     cardIndex,
		GuessedNumber: number,
		ActualCard:    target,
		Correct:       correct,
		Timestamp:     s.now(),
	}
	s.history = append(s.history, record)

	result := GuessResult{Correct: record.Correct, Guess: record}

	if record.Correct {
		revealed, _ := opponent.hand.RevealAt(cardIndex)
		result.RevealedCard = &revealed

		if opponent.hand.AllRevealed() {
			s.finish(me.Participant)
			result.GameEnded = true
			result.Winner = s.winner
			return result, nil
		}

		result.AdditionalTurn = true
		return result, nil
	}

	if revealed, ok := me.hand.RevealLastDrawn(); ok {
		result.RevealedCard = &revealed
	}

	if me.hand.AllRevealed() {
		s.finish(opponent.Participant)
		result.GameEnded = true
		result.Winner = s.winner
		return result, nil
	}

	s.switchTurn()
	return result, nil
}

// PassTurn ends the current player's turn without revealing anything.
func (s *Session) PassTurn(participantID string) error {
	me, _, err := s.turn(participantID)
	if err != nil {
		return err
	}

	me.hand.ClearLastDrawn()
	s.switchTurn()

	return nil
}

func (s *Session) switchTurn() {
	s.current = 1 - s.current
}

func (s *Session) finish(winner Participant) {
	s.status = StatusFinished
	s.winner = &winner
	s.finishedAt = s.now()
}
