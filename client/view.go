// Package client holds the participant side of the live game: a reducer that
// folds the event stream into local state and a follower that keeps an SSE
// stream open.
package client

import (
	"sort"
	"sync"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/services"
)

// Peer is what a participant knows about another player.
type Peer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Online      bool   `json:"online"`
	DeviceCount int    `json:"deviceCount"`
}

// State is an immutable copy of a View.
type State struct {
	PlayerID     string
	ConnectionID string
	SessionID    string
	Status       models.SessionStatus
	Modes        game.ModeSet
	Drawn        []int
	Current      int
	Card         []int
	Markings     []bool
	Pending      map[int]bool
	Peers        []Peer
	PlayerCount  int
	LastBingo    *events.Bingo
}

// View folds events into what one participant sees. Marks applied locally
// stay pending until an authoritative marking vector replaces them.
type View struct {
	mu sync.Mutex

	playerID     string
	connectionID string
	sessionID    string
	status       models.SessionStatus
	modes        game.ModeSet
	drawn        []int
	seen         map[int]bool
	card         []int
	markings     []bool
	pending      map[int]bool
	peers        map[string]*Peer
	playerCount  int
	lastBingo    *events.Bingo
}

func NewView(playerID string) *View {
	return &View{
		playerID: playerID,
		seen:     make(map[int]bool),
		pending:  make(map[int]bool),
		peers:    make(map[string]*Peer),
	}
}

// Load replaces everything with a server snapshot.
func (v *View) Load(snap services.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.sessionID, v.status, v.modes = "", "", nil
	if snap.Session != nil {
		v.sessionID = snap.Session.ID
		v.status = snap.Session.Status
		v.modes = snap.Session.ModeSet()
	}
	v.setDrawnLocked(snap.DrawnNumbers)

	v.peers = make(map[string]*Peer, len(snap.Players))
	for _, p := range snap.Players {
		v.peers[p.ID] = &Peer{ID: p.ID, Name: p.Name, Online: p.Online, DeviceCount: p.DeviceCount}
	}
	v.playerCount = len(snap.Players)
}

// Seat installs this participant's own card, as returned by a join.
func (v *View) Seat(playerID string, card []int, markings []bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playerID = playerID
	v.card = append([]int(nil), card...)
	v.reconcileLocked(markings)
}

func (v *View) setDrawnLocked(drawn []int) {
	v.drawn = v.drawn[:0]
	v.seen = make(map[int]bool, len(drawn))
	for _, n := range drawn {
		if !v.seen[n] {
			v.seen[n] = true
			v.drawn = append(v.drawn, n)
		}
	}
}

// Apply folds one event into the view and reports whether anything changed.
// Unknown event types are ignored.
func (v *View) Apply(ev events.Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch p := ev.Payload.(type) {
	case events.NumberDrawn:
		if v.seen[p.Number] {
			return false
		}
		v.seen[p.Number] = true
		v.drawn = append(v.drawn, p.Number)
		return true

	case events.GameStateChanged:
		if p.Cleared {
			v.sessionID, v.status, v.modes = "", "", nil
			v.setDrawnLocked(nil)
			v.card, v.markings, v.lastBingo = nil, nil, nil
			v.pending = make(map[int]bool)
			return true
		}
		if p.SessionID != "" && p.SessionID != v.sessionID {
			v.sessionID = p.SessionID
			v.setDrawnLocked(nil)
		}
		v.status = p.Status
		v.modes = p.Modes
		if p.DrawnNumbers != nil {
			v.setDrawnLocked(p.DrawnNumbers)
		}
		if p.Reset {
			v.setDrawnLocked(p.DrawnNumbers)
			v.lastBingo = nil
		}
		if p.Card != nil {
			v.card = append([]int(nil), p.Card...)
			v.reconcileLocked(p.Markings)
		}
		return true

	case events.PlayerJoined:
		v.peers[p.PlayerID] = &Peer{ID: p.PlayerID, Name: p.Name, Online: true, DeviceCount: 1}
		v.playerCount = p.PlayerCount
		return true

	case events.PlayerDisconnected:
		if p.Wiped {
			v.peers = make(map[string]*Peer)
		} else {
			delete(v.peers, p.PlayerID)
		}
		v.playerCount = p.PlayerCount
		return true

	case events.PlayerPresence:
		peer, ok := v.peers[p.PlayerID]
		if !ok {
			return false
		}
		peer.Online = p.Online
		peer.DeviceCount = p.DeviceCount
		return true

	case events.Bingo:
		b := p
		v.lastBingo = &b
		return true

	case events.Heartbeat:
		if p.ConnectionID != "" && p.ConnectionID != v.connectionID {
			v.connectionID = p.ConnectionID
			return true
		}
	}
	return false
}

// Mark echoes a cell change locally before the server confirms it. It
// returns false for positions that cannot be marked.
func (v *View) Mark(position int, marked bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.markings) != game.CardSize || position < 0 || position >= game.CardSize || position == game.FreeIndex {
		return false
	}
	v.markings[position] = marked
	v.pending[position] = marked
	return true
}

// Reconcile adopts the server's marking vector. The last authoritative write
// wins over any pending local echo.
func (v *View) Reconcile(markings []bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reconcileLocked(markings)
}

func (v *View) reconcileLocked(markings []bool) {
	if len(markings) == game.CardSize {
		v.markings = append([]bool(nil), markings...)
	} else {
		v.markings = game.NewMarks()
	}
	v.markings[game.FreeIndex] = true
	v.pending = make(map[int]bool)
}

// Winning reports whether the drawn numbers complete a pattern on this
// participant's card, using the same derivation the server applies.
func (v *View) Winning() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.card) != game.CardSize {
		return "", false
	}
	return game.PatternLabel(game.DeriveMarks(v.card, v.drawn), v.modes)
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := State{
		PlayerID:     v.playerID,
		ConnectionID: v.connectionID,
		SessionID:    v.sessionID,
		Status:       v.status,
		Modes:        append(game.ModeSet(nil), v.modes...),
		Drawn:        append([]int(nil), v.drawn...),
		Card:         append([]int(nil), v.card...),
		Markings:     append([]bool(nil), v.markings...),
		Pending:      make(map[int]bool, len(v.pending)),
		PlayerCount:  v.playerCount,
	}
	if len(v.drawn) > 0 {
		s.Current = v.drawn[len(v.drawn)-1]
	}
	for k, m := range v.pending {
		s.Pending[k] = m
	}
	for _, p := range v.peers {
		s.Peers = append(s.Peers, *p)
	}
	sort.Slice(s.Peers, func(i, j int) bool { return s.Peers[i].Name < s.Peers[j].Name })
	if v.lastBingo != nil {
		b := *v.lastBingo
		s.LastBingo = &b
	}
	return s
}
