package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/bellapacxx/bingo-live/broadcast"
	"github.com/bellapacxx/bingo-live/services"
	"github.com/bellapacxx/bingo-live/utils/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// API holds the HTTP handlers. Coordinator handlers expect RequireCoordinator
// in front of them.
type API struct {
	engine *services.Engine
	hub    *broadcast.Hub
	log    *zap.SugaredLogger
}

func NewAPI(engine *services.Engine, hub *broadcast.Hub) *API {
	return &API{engine: engine, hub: hub, log: logger.Log.Named("api")}
}

func (a *API) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// storageFailed reports a store error without leaking it to the client.
func (a *API) storageFailed(c *gin.Context, op string, err error) {
	a.log.Errorf("[API] %s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now(), "connections": a.hub.Count()})
}
