package controllers

import (
	"github.com/gin-gonic/gin"
)

// ResolveStream maps ?clientId=<device token> to the owning player. Unknown
// or missing tokens open an anonymous stream. Player ids are public, so only
// the device token identifies a stream.
func (a *API) ResolveStream(c *gin.Context) string {
	token := c.Query("clientId")
	if token == "" {
		return ""
	}
	ctx, cancel := a.ctx(c)
	defer cancel()

	p, found, err := a.engine.PlayerByDevice(ctx, token)
	if err != nil {
		a.log.Warnf("[API] resolve stream: %v", err)
		return ""
	}
	if !found {
		return ""
	}
	if err := a.engine.NoteActivity(ctx, p.ID); err != nil {
		a.log.Debugf("[API] note activity for %s: %v", p.ID, err)
	}
	return p.ID
}

// StreamPinged records activity for the player behind a pinged stream.
func (a *API) StreamPinged(c *gin.Context, playerID string) {
	ctx, cancel := a.ctx(c)
	defer cancel()
	if err := a.engine.NoteActivity(ctx, playerID); err != nil {
		a.log.Debugf("[API] note activity for %s: %v", playerID, err)
	}
}
