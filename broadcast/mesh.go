package broadcast

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/services"
	"github.com/bellapacxx/bingo-live/utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	helloWait   = 10 * time.Second
	opTimeout   = 5 * time.Second
	wrongSecret = "incorrect room secret"
)

// inbound is every message a mesh peer may send.
type inbound struct {
	Type        string `json:"type"`
	Secret      string `json:"secret,omitempty"`
	Name        string `json:"name,omitempty"`
	DeviceID    string `json:"deviceId,omitempty"`
	DeviceToken string `json:"deviceToken,omitempty"`
	Position    int    `json:"position"`
	Marked      bool   `json:"marked"`
}

type welcome struct {
	Type         string               `json:"type"`
	PlayerID     string               `json:"playerId"`
	ClientID     string               `json:"clientId"`
	DeviceToken  string               `json:"deviceToken"`
	Name         string               `json:"name"`
	Card         []int                `json:"card"`
	Markings     []bool               `json:"markings"`
	GameStatus   models.SessionStatus `json:"gameStatus"`
	Modes        game.ModeSet         `json:"modes"`
	DrawnNumbers []int                `json:"drawnNumbers"`
	Status       string               `json:"status"`
}

type conflictReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	services.Conflict
}

type errorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type markedReply struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Markings []bool `json:"markings"`
}

// Mesh accepts peer websockets that share the room secret.
type Mesh struct {
	hub      *Hub
	engine   *services.Engine
	secret   string
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

// NewMesh builds the websocket transport. checkOrigin may be nil to accept
// any origin.
func NewMesh(hub *Hub, engine *services.Engine, secret string, checkOrigin func(r *http.Request) bool) *Mesh {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Mesh{
		hub:      hub,
		engine:   engine,
		secret:   secret,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		log:      logger.Log.Named("mesh"),
	}
}

func (m *Mesh) Handle(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Infof("[WS] upgrade error: %v", err)
		return
	}
	if !m.handshake(conn) {
		conn.Close()
		return
	}

	l := newLink(conn, m.log)
	m.hub.AddLink(l)
	m.log.Infof("[WS] peer %s joined the mesh from %s", l.id, c.ClientIP())

	go l.writePump()
	l.readPump(func(msg []byte) { m.dispatch(l, c.Request.UserAgent(), msg) })
	m.hub.Remove(l.id)
}

// handshake expects hello with the shared secret as the first frame.
func (m *Mesh) handshake(conn *websocket.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(helloWait))
	var hello inbound
	err := conn.ReadJSON(&hello)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		m.log.Debugf("[WS] no hello: %v", err)
		return false
	}
	if hello.Type == "hello" && subtle.ConstantTimeCompare([]byte(hello.Secret), []byte(m.secret)) == 1 {
		return true
	}

	m.log.Warnf("[WS] rejected peer with wrong secret")
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(errorReply{Type: "error", Message: wrongSecret})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, wrongSecret))
	return false
}

func (m *Mesh) reply(l *link, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		m.log.Errorf("[WS] encode reply: %v", err)
		return
	}
	if !l.Enqueue(frame) {
		m.hub.Remove(l.id)
	}
}

func (m *Mesh) fail(l *link, msg string) {
	m.reply(l, errorReply{Type: "error", Message: msg})
}

func (m *Mesh) dispatch(l *link, userAgent string, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.fail(l, "malformed message")
		return
	}
	m.hub.Touch(l.id)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	playerID := m.hub.PlayerOf(l.id)
	if playerID != "" {
		if err := m.engine.NoteActivity(ctx, playerID); err != nil {
			m.log.Debugf("[WS] note activity for %s: %v", playerID, err)
		}
	}

	switch msg.Type {
	case "ping":
		m.reply(l, gin.H{"type": "pong"})
	case "join", "claim":
		req := services.JoinRequest{Name: msg.Name, DeviceID: msg.DeviceID, ConnectionRef: l.id, UserAgent: userAgent}
		var (
			res services.JoinResult
			err error
		)
		if msg.Type == "join" {
			res, err = m.engine.RegisterPlayer(ctx, req)
		} else {
			res, err = m.engine.ClaimPlayer(ctx, req)
		}
		m.joined(l, res, err)
	case "reconnect":
		res, err := m.engine.Reconnect(ctx, services.ReconnectRequest{DeviceToken: msg.DeviceToken, ConnectionRef: l.id, UserAgent: userAgent})
		m.joined(l, res, err)
	case "mark":
		if playerID == "" {
			m.fail(l, "join first")
			return
		}
		res, err := m.engine.UpdatePlayerMarking(ctx, playerID, msg.Position, msg.Marked)
		if err != nil {
			m.log.Errorf("[WS] mark for %s: %v", playerID, err)
			m.fail(l, "storage unavailable")
			return
		}
		switch res.Status {
		case services.MarkOK:
			m.reply(l, markedReply{Type: "marked", Position: msg.Position, Markings: res.Markings})
		case services.MarkFreeCell:
			m.fail(l, "free cell is always marked")
		case services.MarkBadPosition:
			m.fail(l, "invalid position")
		default:
			m.fail(l, "player not found")
		}
	default:
		m.fail(l, "unknown message type")
	}
}

func (m *Mesh) joined(l *link, res services.JoinResult, err error) {
	if err != nil {
		m.log.Errorf("[WS] join on %s: %v", l.id, err)
		m.fail(l, "storage unavailable")
		return
	}
	switch {
	case res.OK():
		p := res.Player
		// queue the welcome before presence events reach this link
		m.reply(l, welcome{
			Type:         "welcome",
			PlayerID:     p.ID,
			ClientID:     l.id,
			DeviceToken:  p.DeviceToken,
			Name:         p.Name,
			Card:         p.GameCard(),
			Markings:     p.Marks(),
			GameStatus:   res.Session.Status,
			Modes:        res.Session.ModeSet(),
			DrawnNumbers: res.Drawn,
			Status:       res.Status.String(),
		})
		m.hub.Bind(l.id, p.ID)
	case res.Status == services.JoinConflict:
		m.reply(l, conflictReply{Type: "conflict", Message: "name already in use", Conflict: *res.Conflict})
	default:
		m.fail(l, res.Status.String())
	}
}
