package controllers

import (
	"net/http"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/services"
	"github.com/gin-gonic/gin"
)

type sessionRequest struct {
	Modes string `json:"modes" binding:"required"` // e.g. "horizontal,vertical"
}

type patchSessionRequest struct {
	Modes    string               `json:"modes"`
	Status   models.SessionStatus `json:"status"`
	WinnerID string               `json:"winnerId"`
}

type validateRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

// GetSession returns the public snapshot.
func (a *API) GetSession(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()

	snap, err := a.engine.Snapshot(ctx)
	if err != nil {
		a.storageFailed(c, "snapshot", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) sessionReply(c *gin.Context, res services.SessionResult) {
	switch res.Status {
	case services.ModeOK:
		c.JSON(http.StatusOK, res.Session)
	case services.ModeInvalid:
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Reason.Error()})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session"})
	}
}

// CreateSession supersedes the current session with a new waiting one.
func (a *API) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	res, err := a.engine.InitializeGame(ctx, game.ParseModes(req.Modes))
	if err != nil {
		a.storageFailed(c, "create session", err)
		return
	}
	a.sessionReply(c, res)
}

// NewGame starts a fresh session and deals every player a new card.
func (a *API) NewGame(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	res, err := a.engine.NewGame(ctx, game.ParseModes(req.Modes))
	if err != nil {
		a.storageFailed(c, "new game", err)
		return
	}
	a.sessionReply(c, res)
}

// PatchSession changes modes and/or moves the session to a new status.
func (a *API) PatchSession(c *gin.Context) {
	var req patchSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Modes == "" && req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to change"})
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	var session *models.Session
	if req.Modes != "" {
		res, err := a.engine.ChangeMode(ctx, game.ParseModes(req.Modes))
		if err != nil {
			a.storageFailed(c, "change mode", err)
			return
		}
		if res.Status != services.ModeOK {
			a.sessionReply(c, res)
			return
		}
		session = res.Session
	}

	if req.Status != "" {
		var (
			res services.TransitionResult
			err error
		)
		switch req.Status {
		case models.StatusActive:
			res, err = a.engine.StartGame(ctx)
		case models.StatusFinished:
			res, err = a.engine.FinishGame(ctx, req.WinnerID)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or finished"})
			return
		}
		if err != nil {
			a.storageFailed(c, "transition", err)
			return
		}
		switch res.Status {
		case services.TransitionNoSession:
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		case services.TransitionInvalid:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "session cannot move to " + string(req.Status), "session": res.Session})
			return
		}
		session = res.Session
	}
	c.JSON(http.StatusOK, session)
}

// Draw picks the next number for the active session.
func (a *API) Draw(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()

	res, err := a.engine.DrawNextNumber(ctx)
	if err != nil {
		a.storageFailed(c, "draw", err)
		return
	}
	switch res.Status {
	case services.DrawOK:
		c.JSON(http.StatusOK, gin.H{"number": res.Number, "drawnNumbers": res.Drawn})
	case services.DrawNoSession:
		c.JSON(http.StatusNotFound, gin.H{"error": res.Status.String()})
	case services.DrawNotActive:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": res.Status.String()})
	case services.DrawExhausted:
		c.JSON(http.StatusGone, gin.H{"error": res.Status.String(), "drawnNumbers": res.Drawn})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": res.Status.String()})
	}
}

// Validate checks a player's card against the numbers drawn so far.
func (a *API) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	res, err := a.engine.ValidateBingo(ctx, req.PlayerID)
	if err != nil {
		a.storageFailed(c, "validate", err)
		return
	}
	switch res.Status {
	case services.BingoChecked:
		c.JSON(http.StatusOK, gin.H{
			"isValid":    res.IsValid,
			"playerId":   res.PlayerID,
			"winnerName": res.WinnerName,
			"pattern":    res.Pattern,
		})
	case services.BingoNoSession:
		c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
	case services.BingoNotInSession:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "player is not in the current session"})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
	}
}

// Reset drops every session, draw and player.
func (a *API) Reset(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()

	if err := a.engine.Reset(ctx); err != nil {
		a.storageFailed(c, "reset", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
