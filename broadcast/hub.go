// Package broadcast delivers engine events to connected participants and
// tracks which players are present.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/bellapacxx/bingo-live/utils/logger"
	"go.uber.org/zap"
)

const (
	DefaultSilenceTimeout    = 25 * time.Second
	DefaultSweepInterval     = 5 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	sendBuffer               = 64
)

// Conn is one downstream link. Enqueue must not block; it returns false when
// the link is closed or cannot keep up. Frames enqueued on a link are
// written in order.
type Conn interface {
	ID() string
	Enqueue(frame []byte) bool
	Close()
}

// Sink mirrors broadcast events somewhere outside the process.
type Sink interface {
	Publish(ev events.Event)
}

type entry struct {
	conn     Conn
	playerID string
	lastBeat time.Time
	exempt   bool // anonymous streams are only reaped on write failure
}

// Hub is the connection registry. One Hub serves every transport.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*entry
	players map[string]map[string]struct{}

	sinks   []Sink
	silence time.Duration
	now     func() time.Time
	log     *zap.SugaredLogger
}

type HubOption func(*Hub)

func WithSilenceTimeout(d time.Duration) HubOption { return func(h *Hub) { h.silence = d } }
func WithSink(s Sink) HubOption                    { return func(h *Hub) { h.sinks = append(h.sinks, s) } }
func WithHubLogger(l *zap.SugaredLogger) HubOption { return func(h *Hub) { h.log = l } }
func withClock(now func() time.Time) HubOption     { return func(h *Hub) { h.now = now } }

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		conns:   make(map[string]*entry),
		players: make(map[string]map[string]struct{}),
		silence: DefaultSilenceTimeout,
		now:     time.Now,
		log:     logger.Log.Named("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers a stream. An empty playerID marks it anonymous.
func (h *Hub) Add(c Conn, playerID string) {
	h.add(c, playerID, playerID == "")
}

// AddLink registers a mesh link that has not joined yet. Unlike anonymous
// streams it is swept when silent.
func (h *Hub) AddLink(c Conn) {
	h.add(c, "", false)
}

func (h *Hub) add(c Conn, playerID string, exempt bool) {
	h.mu.Lock()
	h.conns[c.ID()] = &entry{conn: c, playerID: playerID, lastBeat: h.now(), exempt: exempt}
	count := h.attachLocked(c.ID(), playerID)
	total := len(h.conns)
	h.mu.Unlock()

	h.log.Debugf("[Hub] conn %s added (player=%q, total=%d)", c.ID(), playerID, total)
	if playerID != "" {
		h.Publish(events.New(events.PlayerPresence{PlayerID: playerID, Online: true, DeviceCount: count}))
	}
}

func (h *Hub) attachLocked(connID, playerID string) int {
	if playerID == "" {
		return 0
	}
	set, ok := h.players[playerID]
	if !ok {
		set = make(map[string]struct{})
		h.players[playerID] = set
	}
	set[connID] = struct{}{}
	return len(set)
}

// detachLocked returns how many connections the player still has.
func (h *Hub) detachLocked(connID, playerID string) int {
	set, ok := h.players[playerID]
	if !ok {
		return 0
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.players, playerID)
	}
	return len(set)
}

// Bind attaches an existing connection to a player, for links that join
// after connecting.
func (h *Hub) Bind(connID, playerID string) {
	h.mu.Lock()
	e, ok := h.conns[connID]
	if !ok || e.playerID == playerID {
		h.mu.Unlock()
		return
	}
	prev := e.playerID
	prevLeft := 0
	if prev != "" {
		prevLeft = h.detachLocked(connID, prev)
	}
	e.playerID = playerID
	e.exempt = false
	e.lastBeat = h.now()
	count := h.attachLocked(connID, playerID)
	h.mu.Unlock()

	if prev != "" {
		h.Publish(events.New(events.PlayerPresence{PlayerID: prev, Online: prevLeft > 0, DeviceCount: prevLeft}))
	}
	h.Publish(events.New(events.PlayerPresence{PlayerID: playerID, Online: true, DeviceCount: count}))
}

// Touch refreshes a connection's heartbeat. It reports false for unknown ids.
func (h *Hub) Touch(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.conns[connID]
	if ok {
		e.lastBeat = h.now()
	}
	return ok
}

// PlayerOf returns the player bound to a connection.
func (h *Hub) PlayerOf(connID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e, ok := h.conns[connID]; ok {
		return e.playerID
	}
	return ""
}

// Remove closes and forgets a connection. Observers get online=false only
// when it was the player's last one.
func (h *Hub) Remove(connID string) {
	h.remove(connID, false)
}

// remove drops connID. With onlyStale set it keeps connections that were
// touched after the sweep picked them.
func (h *Hub) remove(connID string, onlyStale bool) bool {
	h.mu.Lock()
	e, ok := h.conns[connID]
	if !ok || (onlyStale && h.fresh(e, h.now())) {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, connID)
	left := 0
	if e.playerID != "" {
		left = h.detachLocked(connID, e.playerID)
	}
	h.mu.Unlock()

	e.conn.Close()
	h.log.Debugf("[Hub] conn %s removed (player=%q, left=%d)", connID, e.playerID, left)
	if e.playerID != "" {
		h.Publish(events.New(events.PlayerPresence{PlayerID: e.playerID, Online: left > 0, DeviceCount: left}))
	}
	return true
}

// Forget closes every connection bound to a player that no longer exists.
// No presence event follows since the roster already dropped the player.
func (h *Hub) Forget(playerID string) {
	h.mu.Lock()
	var drop []Conn
	for id := range h.players[playerID] {
		if e, ok := h.conns[id]; ok {
			drop = append(drop, e.conn)
			delete(h.conns, id)
		}
	}
	delete(h.players, playerID)
	h.mu.Unlock()

	for _, c := range drop {
		c.Close()
	}
	if len(drop) > 0 {
		h.log.Debugf("[Hub] closed %d conns of removed player %s", len(drop), playerID)
	}
}

// ForgetAll closes every connection bound to any player. Anonymous streams
// and links that have not joined stay open.
func (h *Hub) ForgetAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.players))
	for pid := range h.players {
		ids = append(ids, pid)
	}
	h.mu.RUnlock()

	for _, pid := range ids {
		h.Forget(pid)
	}
}

func (h *Hub) fresh(e *entry, now time.Time) bool {
	return e.exempt || now.Sub(e.lastBeat) <= h.silence
}

// IsConnected reports whether the player has at least one fresh connection.
func (h *Hub) IsConnected(playerID string) bool {
	return h.DeviceCount(playerID) > 0
}

// DeviceCount counts the player's fresh connections.
func (h *Hub) DeviceCount(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := h.now()
	n := 0
	for id := range h.players[playerID] {
		if e := h.conns[id]; e != nil && h.fresh(e, now) {
			n++
		}
	}
	return n
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Publish serializes ev once and queues it on every matching connection.
// Connections that refuse the frame are removed.
func (h *Hub) Publish(ev events.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorf("[Hub] encode %s: %v", ev.Type, err)
		return
	}
	if len(ev.Recipients) == 0 {
		for _, s := range h.sinks {
			s.Publish(ev)
		}
	}

	h.mu.RLock()
	var targets []Conn
	if len(ev.Recipients) == 0 {
		targets = make([]Conn, 0, len(h.conns))
		for _, e := range h.conns {
			targets = append(targets, e.conn)
		}
	} else {
		for _, pid := range ev.Recipients {
			for id := range h.players[pid] {
				targets = append(targets, h.conns[id].conn)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.Enqueue(frame) {
			h.log.Infof("[Hub] dropping conn %s after failed %s send", c.ID(), ev.Type)
			h.Remove(c.ID())
		}
	}
}

// SendTo queues a frame on a single connection.
func (h *Hub) SendTo(connID string, frame []byte) bool {
	h.mu.RLock()
	e, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !e.conn.Enqueue(frame) {
		h.Remove(connID)
		return false
	}
	return true
}

// Sweep removes connections silent for longer than the timeout.
func (h *Hub) Sweep() int {
	now := h.now()
	h.mu.RLock()
	var stale []string
	for id, e := range h.conns {
		if !h.fresh(e, now) {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if h.remove(id, true) {
			h.log.Infof("[Hub] conn %s silent for over %s, closed", id, h.silence)
			removed++
		}
	}
	return removed
}

// Run sweeps and sends heartbeats until ctx is done, then closes every
// connection.
func (h *Hub) Run(ctx context.Context, sweepEvery, heartbeatEvery time.Duration) {
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	beat := time.NewTicker(heartbeatEvery)
	defer beat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-sweep.C:
			h.Sweep()
		case <-beat.C:
			h.Publish(events.New(events.Heartbeat{}))
		}
	}
}

// Close drops every connection without presence events.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*entry)
	h.players = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, e := range conns {
		e.conn.Close()
	}
}
