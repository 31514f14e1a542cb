/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Seednode/davinci/games/davinci"
	"go.uber.org/zap"
)

// Delays are the pauses an AutoPlayer takes so its moves can be followed.
type Delays struct {
	Draw     time.Duration
	Guess    time.Duration
	Result   time.Duration
	Continue time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Draw:     1500 * time.Millisecond,
		Guess:    2 * time.Second,
		Result:   2 * time.Second,
		Continue: 1500 * time.Millisecond,
	}
}

// AutoPlayer plays one seat of a room with uniformly random moves. All of
// its state except ctx is guarded by the room lock.
type AutoPlayer struct {
	room     *Room
	self     davinci.Participant
	registry *Registry
	rng      *rand.Rand
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	running bool
}

func newAutoPlayer(room *Room, self davinci.Participant, registry *Registry) *AutoPlayer {
	ctx, cancel := context.WithCancel(context.Background())

	return &AutoPlayer{
		room:     room,
		self:     self,
		registry: registry,
		rng:      registry.newRand(),
		logger: registry.logger.Named("bot").With(
			zap.String("room", room.id),
			zap.String("bot", self.ID),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *AutoPlayer) selectInitialCardsLocked() error {
	black := p.rng.IntN(davinci.InitialHandSize + 1)

	return p.room.session.SelectInitialCards(p.self.ID, black, davinci.InitialHandSize-black)
}

// scheduleLocked starts a turn if it is the bot's move and none is
// already in flight.
func (p *AutoPlayer) scheduleLocked() {
	if p.running || !p.activeLocked() {
		return
	}

	p.running = true
	p.registry.bots.Add(1)
	go p.run()
}

func (p *AutoPlayer) stop() {
	p.cancel()
}

// activeLocked reports whether the bot may still act on its room.
func (p *AutoPlayer) activeLocked() bool {
	r := p.room

	return p.ctx.Err() == nil &&
		!r.closed &&
		r.session != nil &&
		r.session.Status() == davinci.StatusPlaying &&
		r.session.IsCurrentTurn(p.self.ID)
}

func (p *AutoPlayer) run() {
	defer p.registry.bots.Done()
	defer func() {
		if v := recover(); v != nil {
			p.recoverTurn(v)
		}
	}()

	for {
		if !p.wait(p.registry.delays.Draw) || !p.step(p.drawLocked) {
			return
		}
		if !p.wait(p.registry.delays.Guess) || !p.step(p.guessLocked) {
			return
		}
		if !p.wait(p.registry.delays.Result + p.registry.delays.Continue) {
			return
		}
	}
}

// recoverTurn ends a turn that panicked. The turn is handed back so the
// game can go on without the bot's move.
func (p *AutoPlayer) recoverTurn(v any) {
	p.logger.Error("bot turn panicked",
		zap.Any("panic", v),
		zap.Stack("stack"),
	)

	p.room.mu.Lock()
	defer p.room.mu.Unlock()

	p.running = false

	if !p.activeLocked() {
		return
	}
	if err := p.room.session.PassTurn(p.self.ID); err != nil {
		p.logger.Warn("pass after panic rejected", zap.Error(err))
	}
}

// wait sleeps for d unless the bot is stopped first.
func (p *AutoPlayer) wait(d time.Duration) bool {
	if d <= 0 {
		if p.ctx.Err() != nil {
			p.step(nil)
			return false
		}
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.ctx.Done():
		p.step(nil)
		return false
	case <-timer.C:
		return true
	}
}

// step runs fn under the room lock after re-checking that the bot still
// holds the turn. The turn ends, and running is cleared in the same
// critical section, whenever fn returns false.
func (p *AutoPlayer) step(fn func() bool) bool {
	p.room.mu.Lock()
	defer p.room.mu.Unlock()

	if fn == nil || !p.activeLocked() {
		p.running = false
		return false
	}

	p.room.lastActive = p.registry.now()

	if !fn() {
		p.running = false
		return false
	}
	return true
}

func (p *AutoPlayer) drawLocked() bool {
	s := p.room.session

	first := davinci.Colors[p.rng.IntN(len(davinci.Colors))]
	for _, color := range []davinci.Color{first, first.Other()} {
		if _, err := s.DrawCard(p.self.ID, &color); err == nil {
			p.report(&action{actor: p.self.ID, kind: actionDraw})
			return true
		}
	}

	p.logger.Info("no cards left to draw, passing")
	return p.passLocked()
}

func (p *AutoPlayer) guessLocked() bool {
	s := p.room.session

	hidden := s.OpponentUnrevealed(p.self.ID)
	if len(hidden) == 0 {
		return p.passLocked()
	}

	index := hidden[p.rng.IntN(len(hidden))]
	number := davinci.MinNumber + p.rng.IntN(davinci.MaxNumber-davinci.MinNumber+1)

	result, err := s.GuessCard(p.self.ID, index, number)
	if err != nil {
		p.logger.Warn("guess rejected", zap.Error(err))
		return false
	}

	p.logger.Info("guessed",
		zap.Int("index", index),
		zap.Int("number", number),
		zap.Bool("correct", result.Correct),
	)

	p.report(&action{actor: p.self.ID, kind: actionGuess, guess: &result})

	return result.AdditionalTurn
}

func (p *AutoPlayer) passLocked() bool {
	if err := p.room.session.PassTurn(p.self.ID); err != nil {
		p.logger.Warn("pass rejected", zap.Error(err))
		return false
	}

	p.report(&action{actor: p.self.ID, kind: actionPass})
	return false
}

func (p *AutoPlayer) report(a *action) {
	p.room.syncStatusLocked()

	if p.registry.botActed != nil {
		p.registry.botActed(p.room, a)
	}
}
