package controllers

import (
	"net/http"

	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/services"
	"github.com/gin-gonic/gin"
)

type joinRequest struct {
	Name         string `json:"name" binding:"required"`
	DeviceID     string `json:"deviceId"`
	ConnectionID string `json:"connectionId"` // open SSE stream to bind, if any
}

type reconnectRequest struct {
	DeviceToken  string `json:"deviceToken" binding:"required"`
	ConnectionID string `json:"connectionId"`
}

type markRequest struct {
	DeviceToken string `json:"deviceToken" binding:"required"`
	Position    *int   `json:"position" binding:"required"`
	Marked      bool   `json:"marked"`
}

type deviceRequest struct {
	DeviceToken string `json:"deviceToken" binding:"required"`
}

type playerIDRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

// joinReply is the only place a player's own device token and card leave
// the server.
type joinReply struct {
	PlayerID     string               `json:"playerId"`
	DeviceToken  string               `json:"deviceToken"`
	Name         string               `json:"name"`
	Card         []int                `json:"card"`
	Markings     []bool               `json:"markings"`
	Status       string               `json:"status"`
	GameStatus   models.SessionStatus `json:"gameStatus"`
	SessionID    string               `json:"sessionId"`
	Modes        string               `json:"modes"`
	DrawnNumbers []int                `json:"drawnNumbers"`
}

func (a *API) joinReply(c *gin.Context, res services.JoinResult, connectionID string) {
	switch {
	case res.OK():
		p := res.Player
		if connectionID != "" {
			a.hub.Bind(connectionID, p.ID)
		}
		drawn := res.Drawn
		if drawn == nil {
			drawn = []int{}
		}
		c.JSON(http.StatusOK, joinReply{
			PlayerID:     p.ID,
			DeviceToken:  p.DeviceToken,
			Name:         p.Name,
			Card:         p.GameCard(),
			Markings:     p.Marks(),
			Status:       res.Status.String(),
			GameStatus:   res.Session.Status,
			SessionID:    res.Session.ID,
			Modes:        res.Session.ModeSet().String(),
			DrawnNumbers: drawn,
		})
	case res.Status == services.JoinConflict:
		c.JSON(http.StatusConflict, gin.H{
			"error":            "name already in use",
			"existingDevice":   res.Conflict.ExistingDevice,
			"alreadyConnected": res.Conflict.AlreadyConnected,
		})
	case res.Status == services.JoinInvalidName:
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Status.String()})
	case res.Status == services.JoinSessionGone:
		c.JSON(http.StatusNotFound, gin.H{"error": res.Status.String(), "sessionGone": true})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": res.Status.String()})
	}
}

func (a *API) join(c *gin.Context, claim bool) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	jr := services.JoinRequest{
		Name:          req.Name,
		DeviceID:      req.DeviceID,
		ConnectionRef: req.ConnectionID,
		UserAgent:     c.Request.UserAgent(),
	}
	var (
		res services.JoinResult
		err error
	)
	if claim {
		res, err = a.engine.ClaimPlayer(ctx, jr)
	} else {
		res, err = a.engine.RegisterPlayer(ctx, jr)
	}
	if err != nil {
		a.storageFailed(c, "join", err)
		return
	}
	a.joinReply(c, res, req.ConnectionID)
}

// Join registers a player by name, or re-attaches the same device.
func (a *API) Join(c *gin.Context) { a.join(c, false) }

// Claim takes over a name held by another device.
func (a *API) Claim(c *gin.Context) { a.join(c, true) }

func (a *API) Reconnect(c *gin.Context) {
	var req reconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	res, err := a.engine.Reconnect(ctx, services.ReconnectRequest{
		DeviceToken:   req.DeviceToken,
		ConnectionRef: req.ConnectionID,
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		a.storageFailed(c, "reconnect", err)
		return
	}
	a.joinReply(c, res, req.ConnectionID)
}

// playerByDevice resolves the caller or writes a 404.
func (a *API) playerByDevice(c *gin.Context, token string) (*models.Player, bool) {
	ctx, cancel := a.ctx(c)
	defer cancel()

	p, found, err := a.engine.PlayerByDevice(ctx, token)
	if err != nil {
		a.storageFailed(c, "lookup device", err)
		return nil, false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return nil, false
	}
	return p, true
}

// Mark records a cell toggle. Markings are private to the player.
func (a *API) Mark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := a.playerByDevice(c, req.DeviceToken)
	if !ok {
		return
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	res, err := a.engine.UpdatePlayerMarking(ctx, p.ID, *req.Position, req.Marked)
	if err != nil {
		a.storageFailed(c, "mark", err)
		return
	}
	switch res.Status {
	case services.MarkOK:
		c.JSON(http.StatusOK, gin.H{"markings": res.Markings})
	case services.MarkFreeCell:
		c.JSON(http.StatusBadRequest, gin.H{"error": "free cell is always marked"})
	case services.MarkBadPosition:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position"})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
	}
}

// Leave removes the calling player.
func (a *API) Leave(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := a.playerByDevice(c, req.DeviceToken)
	if !ok {
		return
	}
	a.removePlayer(c, p.ID)
}

// RemovePlayer lets the coordinator drop anyone.
func (a *API) RemovePlayer(c *gin.Context) {
	var req playerIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.removePlayer(c, req.PlayerID)
}

func (a *API) removePlayer(c *gin.Context, playerID string) {
	ctx, cancel := a.ctx(c)
	defer cancel()

	removed, err := a.engine.RemovePlayer(ctx, playerID)
	if err != nil {
		a.storageFailed(c, "remove player", err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) WipePlayers(c *gin.Context) {
	ctx, cancel := a.ctx(c)
	defer cancel()

	if err := a.engine.WipePlayers(ctx); err != nil {
		a.storageFailed(c, "wipe players", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
