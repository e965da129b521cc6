package broadcast

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// stream is one SSE response.
type stream struct {
	*queue
}

// Resolver maps a request to the player it speaks for, or "" for an
// anonymous observer.
type Resolver func(c *gin.Context) string

// errWriter remembers the first write failure.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

// ServeSSE streams events as text/event-stream until the client leaves or
// the hub drops the stream.
func (h *Hub) ServeSSE(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		playerID := ""
		if resolve != nil {
			playerID = resolve(c)
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		s := &stream{queue: newQueue()}
		out := &errWriter{w: c.Writer}

		hello, err := json.Marshal(events.New(events.Heartbeat{ConnectionID: s.id}))
		if err != nil {
			return
		}
		if sse.Encode(out, sse.Event{Data: string(hello)}); out.err != nil {
			return
		}
		flusher.Flush()

		h.Add(s, playerID)
		defer h.Remove(s.id)

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-s.done:
				return
			case frame := <-s.send:
				if sse.Encode(out, sse.Event{Data: string(frame)}); out.err != nil {
					h.log.Debugf("[SSE] write to %s failed: %v", s.id, out.err)
					return
				}
				flusher.Flush()
			}
		}
	}
}

type pingRequest struct {
	ConnectionID string `json:"connectionId" binding:"required"`
}

// ServePing refreshes an SSE stream's heartbeat. onPing, when set, runs
// for streams bound to a player.
func (h *Hub) ServePing(onPing func(c *gin.Context, playerID string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "connectionId required"})
			return
		}
		if !h.Touch(req.ConnectionID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown connection"})
			return
		}
		if pid := h.PlayerOf(req.ConnectionID); pid != "" && onPing != nil {
			onPing(c, pid)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
