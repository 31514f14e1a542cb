/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package davinci

// PlayerInfo is the public summary of a seated player.
type PlayerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bot       bool   `json:"bot"`
	CardCount int    `json:"cardCount"`
}

// GuessView is a GuessRecord with the target number hidden from viewers
// who are not entitled to it.
type GuessView struct {
	GuesserID     string   `json:"guesserId"`
	GuesserName   string   `json:"guesserName"`
	TargetID      string   `json:"targetId"`
	TargetName    string   `json:"targetName"`
	CardIndex     int      `json:"cardIndex"`
	GuessedNumber int      `json:"guessedNumber"`
	ActualCard    CardView `json:"actualCard"`
	Correct       bool     `json:"isCorrect"`
	Timestamp     int64    `json:"timestamp"`
}

// ForViewer projects g for viewerID. Only the owner of the target card
// sees its number before it is revealed.
func (g GuessRecord) ForViewer(viewerID string) GuessView {
	actual := opponentView(g.ActualCard)
	if viewerID == g.TargetID {
		actual = ownerView(g.ActualCard)
	}

	return GuessView{
		GuesserID:     g.GuesserID,
		GuesserName:   g.GuesserName,
		TargetID:      g.TargetID,
		TargetName:    g.TargetName,
		CardIndex:     g.CardIndex,
		GuessedNumber: g.GuessedNumber,
		ActualCard:    actual,
		Correct:       g.Correct,
		Timestamp:     g.Timestamp.UnixMilli(),
	}
}

// GuessOutcome is a GuessResult as one viewer may see it. The revealed
// card is public by definition.
type GuessOutcome struct {
	Correct        bool         `json:"correct"`
	AdditionalTurn bool         `json:"additionalTurn"`
	RevealedCard   *Card        `json:"revealedCard,omitempty"`
	GameEnded      bool         `json:"gameEnded"`
	Winner         *Participant `json:"winner,omitempty"`
	Guess          GuessView    `json:"guess"`
}

func (r GuessResult) ForViewer(viewerID string) GuessOutcome {
	return GuessOutcome{
		Correct:        r.Correct,
		AdditionalTurn: r.AdditionalTurn,
		RevealedCard:   r.RevealedCard,
		GameEnded:      r.GameEnded,
		Winner:         r.Winner,
		Guess:          r.Guess.ForViewer(viewerID),
	}
}

// Snapshot is the complete game state as one viewer may see it.
type Snapshot struct {
	RoomID               string       `json:"roomId"`
	Status               Status       `json:"status"`
	CurrentTurn          string       `json:"currentTurn"`
	IsYourTurn           bool         `json:"isYourTurn"`
	YourCards            []CardView   `json:"yourCards"`
	OpponentCards        []CardView   `json:"opponentCards"`
	YourInfo             *PlayerInfo  `json:"yourInfo"`
	OpponentInfo         *PlayerInfo  `json:"opponentInfo"`
	DeckRemaining        int          `json:"deckRemaining"`
	DeckBlackRemaining   int          `json:"deckBlackRemaining"`
	DeckWhiteRemaining   int          `json:"deckWhiteRemaining"`
	Winner               *Participant `json:"winner"`
	LastGuess            *GuessView   `json:"lastGuess"`
	OpponentNewCardIndex *int         `json:"opponentNewCardIndex"`
	OpponentHandVersion  int          `json:"opponentHandVersion"`
}

func info(st *seat) *PlayerInfo {
	return &PlayerInfo{
		ID:        st.ID,
		Name:      st.Name,
		Bot:       st.IsBot(),
		CardCount: st.hand.Len(),
	}
}

// Snapshot projects the session for viewerID. A viewer who is not seated
// gets the public parts only.
func (s *Session) Snapshot(viewerID string) Snapshot {
	snap := Snapshot{
		RoomID:             s.roomID,
		Status:             s.status,
		CurrentTurn:        s.CurrentPlayer().ID,
		IsYourTurn:         s.status == StatusPlaying && s.IsCurrentTurn(viewerID),
		YourCards:          []CardView{},
		OpponentCards:      []CardView{},
		DeckRemaining:      s.deck.Remaining(),
		DeckBlackRemaining: s.deck.RemainingByColor(Black),
		DeckWhiteRemaining: s.deck.RemainingByColor(White),
		Winner:             s.winner,
	}

	if i, ok := s.seatOf(viewerID); ok {
		me, opponent := s.seats[i], s.seats[1-i]

		snap.YourCards = me.hand.OwnerView()
		snap.OpponentCards = opponent.hand.OpponentView()
		snap.YourInfo = info(me)
		snap.OpponentInfo = info(opponent)
		snap.OpponentHandVersion = opponent.hand.Version()

		if idx, ok := opponent.hand.LastDrawnIndex(); ok {
			snap.OpponentNewCardIndex = &idx
		}
	}

	if last, ok := s.LastGuess(); ok {
		view := last.ForViewer(viewerID)
		snap.LastGuess = &view
	}

	return snap
}
