// Package services holds the game engine, the only component that mutates
// session and player state.
package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/store"
	"github.com/bellapacxx/bingo-live/utils/logger"
	"go.uber.org/zap"
)

const (
	MaxDrawAttempts  = 5
	activityInterval = 10 * time.Second
)

// Presence answers whether a player currently has a live connection.
// Forget drops the connections of a player that was removed.
type Presence interface {
	IsConnected(playerID string) bool
	DeviceCount(playerID string) int
	Forget(playerID string)
	ForgetAll()
}

// Emitter receives every event the engine produces, in mutation order.
type Emitter func(events.Event)

type noPresence struct{}

func (noPresence) IsConnected(string) bool { return false }
func (noPresence) DeviceCount(string) int  { return 0 }
func (noPresence) Forget(string)           {}
func (noPresence) ForgetAll()              {}

type Engine struct {
	mu       sync.Mutex
	store    store.Store
	emit     Emitter
	presence Presence
	rng      *rand.Rand
	log      *zap.SugaredLogger

	activityMu sync.Mutex
	activity   map[string]time.Time
}

type Option func(*Engine)

func WithEmitter(fn Emitter) Option          { return func(e *Engine) { e.emit = fn } }
func WithPresence(p Presence) Option         { return func(e *Engine) { e.presence = p } }
func WithLogger(l *zap.SugaredLogger) Option { return func(e *Engine) { e.log = l } }

// WithRand fixes the random source for cards and draws.
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }

func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		emit:     func(events.Event) {},
		presence: noPresence{},
		log:      logger.Log.Named("engine"),
		activity: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) publish(p events.Payload) {
	e.emit(events.New(p))
}

// currentSession returns nil without error when no session exists.
func (e *Engine) currentSession(ctx context.Context) (*models.Session, error) {
	s, err := e.store.GetSession(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return s, err
}

func stateEvent(s *models.Session) events.GameStateChanged {
	ev := events.GameStateChanged{
		SessionID: s.ID,
		Status:    s.Status,
		Modes:     s.ModeSet(),
	}
	if s.WinnerID != nil {
		ev.WinnerID = *s.WinnerID
	}
	return ev
}

// -------------------- Session lifecycle --------------------

// InitializeGame supersedes any live session with a new waiting one.
func (e *Engine) InitializeGame(ctx context.Context, modes game.ModeSet) (SessionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(ctx, modes)
}

func (e *Engine) initializeLocked(ctx context.Context, modes game.ModeSet) (SessionResult, error) {
	modes = modes.Normalize()
	if err := modes.Validate(); err != nil {
		return SessionResult{Status: ModeInvalid, Reason: err}, nil
	}

	s, err := e.store.CreateSession(ctx, modes)
	if err != nil {
		return SessionResult{}, err
	}
	e.log.Infof("[Engine] session %s created (modes=%s)", s.ID, modes)
	e.publish(stateEvent(s))
	return SessionResult{Status: ModeOK, Session: s}, nil
}

// NewGame starts a fresh session and deals every known player a new card.
func (e *Engine) NewGame(ctx context.Context, modes game.ModeSet) (SessionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.initializeLocked(ctx, modes)
	if err != nil || res.Status != ModeOK {
		return res, err
	}
	if _, err := e.resetPlayersLocked(ctx, res.Session); err != nil {
		return SessionResult{}, err
	}
	return res, nil
}

func (e *Engine) StartGame(ctx context.Context) (TransitionResult, error) {
	return e.transition(ctx, models.StatusActive, "")
}

// FinishGame ends the session, optionally recording a winner.
func (e *Engine) FinishGame(ctx context.Context, winnerID string) (TransitionResult, error) {
	return e.transition(ctx, models.StatusFinished, winnerID)
}

func (e *Engine) transition(ctx context.Context, to models.SessionStatus, winnerID string) (TransitionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.store.UpdateSessionStatus(ctx, to, winnerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return TransitionResult{Status: TransitionNoSession}, nil
	case errors.Is(err, store.ErrInvalidTransition):
		cur, cerr := e.currentSession(ctx)
		if cerr != nil {
			return TransitionResult{}, cerr
		}
		return TransitionResult{Status: TransitionInvalid, Session: cur}, nil
	case err != nil:
		return TransitionResult{}, err
	}

	e.log.Infof("[Engine] session %s is now %s", s.ID, s.Status)
	e.publish(stateEvent(s))
	return TransitionResult{Status: TransitionOK, Session: s}, nil
}

// ChangeMode replaces the win conditions of the live session.
func (e *Engine) ChangeMode(ctx context.Context, modes game.ModeSet) (SessionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	modes = modes.Normalize()
	if err := modes.Validate(); err != nil {
		return SessionResult{Status: ModeInvalid, Reason: err}, nil
	}
	cur, err := e.currentSession(ctx)
	if err != nil {
		return SessionResult{}, err
	}
	if cur == nil || !cur.Status.Live() {
		return SessionResult{Status: ModeNoSession}, nil
	}

	s, err := e.store.UpdateSessionMode(ctx, modes)
	if err != nil {
		return SessionResult{}, err
	}
	e.log.Infof("[Engine] session %s modes -> %s", s.ID, modes)
	e.publish(stateEvent(s))
	return SessionResult{Status: ModeOK, Session: s}, nil
}

// Reset drops every session, draw and player.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.ClearAll(ctx); err != nil {
		return err
	}
	e.activityMu.Lock()
	e.activity = make(map[string]time.Time)
	e.activityMu.Unlock()

	e.log.Warn("[Engine] all state cleared")
	e.publish(events.GameStateChanged{Reset: true, Cleared: true, DrawnNumbers: []int{}})
	e.publish(events.PlayerDisconnected{Wiped: true})
	e.presence.ForgetAll()
	return nil
}

// Snapshot is the read model served to late joiners and pollers.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{DrawnNumbers: []int{}, Players: []PlayerInfo{}, Remaining: game.MaxNumber}

	s, err := e.currentSession(ctx)
	if err != nil || s == nil {
		return snap, err
	}
	snap.Session = s

	drawn, err := e.store.GetDrawnNumbers(ctx)
	if err != nil {
		return snap, err
	}
	snap.DrawnNumbers = drawn
	snap.Remaining = game.Remaining(drawn)
	if len(drawn) > 0 {
		snap.CurrentNumber = drawn[len(drawn)-1]
	}

	players, err := e.attachedPlayers(ctx, s.ID)
	if err != nil {
		return snap, err
	}
	for _, p := range players {
		marked := 0
		for _, m := range p.Marks() {
			if m {
				marked++
			}
		}
		snap.Players = append(snap.Players, PlayerInfo{
			ID:          p.ID,
			Name:        p.Name,
			Online:      e.presence.IsConnected(p.ID),
			DeviceCount: e.presence.DeviceCount(p.ID),
			MarkedCount: marked,
			LastSeen:    p.LastSeen,
		})
	}
	return snap, nil
}

func (e *Engine) attachedPlayers(ctx context.Context, sessionID string) ([]*models.Player, error) {
	all, err := e.store.GetAllPlayers(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}
