package services

import (
	"context"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
)

// DrawNextNumber reveals one undrawn number for the active session.
func (e *Engine) DrawNextNumber(ctx context.Context) (DrawResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.currentSession(ctx)
	if err != nil {
		return DrawResult{}, err
	}
	if s == nil {
		return DrawResult{Status: DrawNoSession}, nil
	}
	if s.Status != models.StatusActive {
		return DrawResult{Status: DrawNotActive}, nil
	}

	for attempt := 1; attempt <= MaxDrawAttempts; attempt++ {
		drawn, err := e.store.GetDrawnNumbers(ctx)
		if err != nil {
			return DrawResult{}, err
		}
		n, ok := game.DrawNext(e.rng, drawn)
		if !ok {
			return DrawResult{Status: DrawExhausted, Drawn: drawn}, nil
		}

		inserted, err := e.store.AddDrawnNumber(ctx, n)
		if err != nil {
			return DrawResult{}, err
		}
		if !inserted {
			e.log.Debugf("[Engine] draw collision on %d (attempt %d/%d)", n, attempt, MaxDrawAttempts)
			continue
		}

		drawn = append(drawn, n)
		e.log.Infof("[Engine] drew %d (%d/%d)", n, len(drawn), game.MaxNumber)
		e.publish(events.NumberDrawn{Number: n, Seq: len(drawn)})
		return DrawResult{Status: DrawOK, Number: n, Drawn: drawn}, nil
	}

	e.log.Warnf("[Engine] draw gave up after %d collisions", MaxDrawAttempts)
	return DrawResult{Status: DrawContended}, nil
}

// ValidateBingo checks a player's card against the drawn numbers, never
// against the player's own markings. A win is announced but does not end
// the session.
func (e *Engine) ValidateBingo(ctx context.Context, playerID string) (BingoResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, found, err := e.lookup(ctx, e.store.GetPlayer, playerID)
	if err != nil {
		return BingoResult{}, err
	}
	if !found {
		return BingoResult{Status: BingoNotFound, PlayerID: playerID}, nil
	}

	s, err := e.currentSession(ctx)
	if err != nil {
		return BingoResult{}, err
	}
	if s == nil {
		return BingoResult{Status: BingoNoSession, PlayerID: p.ID}, nil
	}
	if p.SessionID != s.ID {
		return BingoResult{Status: BingoNotInSession, PlayerID: p.ID}, nil
	}

	drawn, err := e.store.GetDrawnNumbers(ctx)
	if err != nil {
		return BingoResult{}, err
	}
	marks := game.DeriveMarks(p.GameCard(), drawn)
	pattern, ok := game.PatternLabel(marks, s.ModeSet())

	res := BingoResult{Status: BingoChecked, IsValid: ok, PlayerID: p.ID, WinnerName: p.Name, Pattern: pattern}
	if !ok {
		e.log.Infof("[Engine] bingo claim by %s rejected", p.Name)
		return res, nil
	}

	e.log.Infof("[Engine] BINGO! %s wins with %s", p.Name, pattern)
	e.publish(events.Bingo{PlayerID: p.ID, PlayerName: p.Name, Pattern: pattern})
	return res, nil
}
