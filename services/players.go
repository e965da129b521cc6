package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bellapacxx/bingo-live/events"
	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/store"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MaxNameLength = 32
	unknownDevice = "unknown device"
)

// JoinRequest identifies a player arriving on some connection. DeviceID is
// the token the device kept from an earlier join; empty for a first visit.
type JoinRequest struct {
	Name          string
	DeviceID      string
	ConnectionRef string
	UserAgent     string
}

type ReconnectRequest struct {
	DeviceToken   string
	ConnectionRef string
	UserAgent     string
}

func (e *Engine) lookup(ctx context.Context, get func(context.Context, string) (*models.Player, error), key string) (*models.Player, bool, error) {
	p, err := get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (e *Engine) Player(ctx context.Context, id string) (*models.Player, bool, error) {
	return e.lookup(ctx, e.store.GetPlayer, id)
}

func (e *Engine) PlayerByName(ctx context.Context, name string) (*models.Player, bool, error) {
	return e.lookup(ctx, e.store.GetPlayerByName, name)
}

func (e *Engine) PlayerByDevice(ctx context.Context, token string) (*models.Player, bool, error) {
	return e.lookup(ctx, e.store.GetPlayerByDevice, token)
}

func cleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	return name, n > 0 && n <= MaxNameLength
}

// liveSession returns the current session only if it still accepts joins.
func (e *Engine) liveSession(ctx context.Context) (*models.Session, error) {
	s, err := e.currentSession(ctx)
	if err != nil || s == nil || !s.Status.Live() {
		return nil, err
	}
	return s, nil
}

// RegisterPlayer joins by display name. A known name on the same device is a
// reconnect. A known name on another device while the owner is still
// connected is refused with a Conflict so the caller can claim or rename.
func (e *Engine) RegisterPlayer(ctx context.Context, req JoinRequest) (JoinResult, error) {
	name, ok := cleanName(req.Name)
	if !ok {
		return JoinResult{Status: JoinInvalidName}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.liveSession(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	if s == nil {
		return JoinResult{Status: JoinNoSession}, nil
	}

	existing, found, err := e.lookup(ctx, e.store.GetPlayerByName, name)
	if err != nil {
		return JoinResult{}, err
	}
	if !found {
		return e.createPlayerLocked(ctx, s, name, req)
	}

	sameDevice := req.DeviceID != "" && req.DeviceID == existing.DeviceToken
	if !sameDevice && e.presence.IsConnected(existing.ID) {
		device := existing.UserAgent
		if device == "" {
			device = unknownDevice
		}
		e.log.Infof("[Engine] name %q is held by a connected device, refusing join", existing.Name)
		return JoinResult{
			Status:   JoinConflict,
			Session:  s,
			Conflict: &Conflict{ExistingDevice: device, AlreadyConnected: true},
		}, nil
	}
	return e.attachLocked(ctx, s, existing, req, JoinReconnected)
}

// ClaimPlayer takes over an existing name from a new device.
func (e *Engine) ClaimPlayer(ctx context.Context, req JoinRequest) (JoinResult, error) {
	name, ok := cleanName(req.Name)
	if !ok {
		return JoinResult{Status: JoinInvalidName}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.liveSession(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	if s == nil {
		return JoinResult{Status: JoinNoSession}, nil
	}

	p, found, err := e.lookup(ctx, e.store.GetPlayerByName, name)
	if err != nil {
		return JoinResult{}, err
	}
	if !found {
		return JoinResult{Status: JoinNotFound, Session: s}, nil
	}

	e.log.Infof("[Engine] %s claimed by a new device", p.Name)
	return e.attachLocked(ctx, s, p, req, JoinClaimed)
}

// Reconnect re-attaches a device by the token it was issued on join.
func (e *Engine) Reconnect(ctx context.Context, req ReconnectRequest) (JoinResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, found, err := e.lookup(ctx, e.store.GetPlayerByDevice, req.DeviceToken)
	if err != nil {
		return JoinResult{}, err
	}
	if !found {
		return JoinResult{Status: JoinNotFound}, nil
	}

	s, err := e.currentSession(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	if s == nil || p.SessionID != s.ID {
		return JoinResult{Status: JoinSessionGone, Player: p}, nil
	}

	if req.ConnectionRef != "" {
		p.ConnectionRef = req.ConnectionRef
	}
	if req.UserAgent != "" {
		p.UserAgent = req.UserAgent
	}
	p.LastSeen = time.Now()
	if err := e.store.AddOrUpdatePlayer(ctx, p); err != nil {
		return JoinResult{}, err
	}

	drawn, err := e.store.GetDrawnNumbers(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Status: JoinReconnected, Player: p, Session: s, Drawn: drawn}, nil
}

// deviceToken keeps want unless another player already holds it.
func (e *Engine) deviceToken(ctx context.Context, want, playerID string) (string, error) {
	if want == "" {
		return uuid.NewString(), nil
	}
	holder, found, err := e.lookup(ctx, e.store.GetPlayerByDevice, want)
	if err != nil {
		return "", err
	}
	if found && holder.ID != playerID {
		return uuid.NewString(), nil
	}
	return want, nil
}

func (e *Engine) dealCard(p *models.Player) {
	p.Card = datatypes.JSONSlice[int](game.NewCard(e.rng))
	p.Markings = datatypes.JSONSlice[bool](game.NewMarks())
}

func (e *Engine) createPlayerLocked(ctx context.Context, s *models.Session, name string, req JoinRequest) (JoinResult, error) {
	token, err := e.deviceToken(ctx, req.DeviceID, "")
	if err != nil {
		return JoinResult{}, err
	}

	now := time.Now()
	p := &models.Player{
		ID:            uuid.NewString(),
		SessionID:     s.ID,
		Name:          name,
		DeviceToken:   token,
		ConnectionRef: req.ConnectionRef,
		UserAgent:     req.UserAgent,
		LastSeen:      now,
		JoinedAt:      now,
	}
	e.dealCard(p)

	// persisted before the caller sees the card
	if err := e.store.AddOrUpdatePlayer(ctx, p); err != nil {
		return JoinResult{}, err
	}
	if err := e.announceJoinLocked(ctx, s, p); err != nil {
		return JoinResult{}, err
	}

	drawn, err := e.store.GetDrawnNumbers(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Status: JoinCreated, Player: p, Session: s, Drawn: drawn}, nil
}

// attachLocked updates connection metadata on an existing player. A player
// left over from a superseded session gets a fresh card and is announced.
func (e *Engine) attachLocked(ctx context.Context, s *models.Session, p *models.Player, req JoinRequest, status JoinStatus) (JoinResult, error) {
	rejoined := p.SessionID != s.ID
	if rejoined {
		p.SessionID = s.ID
		e.dealCard(p)
	}

	if req.DeviceID != "" && req.DeviceID != p.DeviceToken {
		token, err := e.deviceToken(ctx, req.DeviceID, p.ID)
		if err != nil {
			return JoinResult{}, err
		}
		p.DeviceToken = token
	}
	if req.ConnectionRef != "" {
		p.ConnectionRef = req.ConnectionRef
	}
	if req.UserAgent != "" {
		p.UserAgent = req.UserAgent
	}
	p.LastSeen = time.Now()

	if err := e.store.AddOrUpdatePlayer(ctx, p); err != nil {
		return JoinResult{}, err
	}
	if rejoined {
		if err := e.announceJoinLocked(ctx, s, p); err != nil {
			return JoinResult{}, err
		}
	}

	drawn, err := e.store.GetDrawnNumbers(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	e.log.Debugf("[Engine] %s attached (%s)", p.Name, status)
	return JoinResult{Status: status, Player: p, Session: s, Drawn: drawn}, nil
}

func (e *Engine) announceJoinLocked(ctx context.Context, s *models.Session, p *models.Player) error {
	players, err := e.attachedPlayers(ctx, s.ID)
	if err != nil {
		return err
	}
	e.log.Infof("[Engine] %s joined (%d players)", p.Name, len(players))
	e.publish(events.PlayerJoined{PlayerID: p.ID, Name: p.Name, PlayerCount: len(players)})
	return nil
}

// UpdatePlayerMarking toggles one cell. It is not broadcast.
func (e *Engine) UpdatePlayerMarking(ctx context.Context, playerID string, position int, marked bool) (MarkResult, error) {
	if position < 0 || position >= game.CardSize {
		return MarkResult{Status: MarkBadPosition}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, found, err := e.lookup(ctx, e.store.GetPlayer, playerID)
	if err != nil {
		return MarkResult{}, err
	}
	if !found {
		return MarkResult{Status: MarkNotFound}, nil
	}

	marks := p.Marks()
	if position == game.FreeIndex {
		return MarkResult{Status: MarkFreeCell, Markings: marks}, nil
	}
	marks[position] = marked
	p.Markings = marks
	p.LastSeen = time.Now()
	if err := e.store.AddOrUpdatePlayer(ctx, p); err != nil {
		return MarkResult{}, err
	}
	return MarkResult{Status: MarkOK, Markings: marks}, nil
}

// ResetAllPlayers deals every known player a new card. Each card is sent
// only to its owner.
func (e *Engine) ResetAllPlayers(ctx context.Context) ([]*models.Player, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	return e.resetPlayersLocked(ctx, s)
}

func (e *Engine) resetPlayersLocked(ctx context.Context, s *models.Session) ([]*models.Player, error) {
	players, err := e.store.GetAllPlayers(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range players {
		e.dealCard(p)
		if s != nil {
			p.SessionID = s.ID
		}
		if err := e.store.AddOrUpdatePlayer(ctx, p); err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		ev := stateEvent(s)
		ev.Reset = true
		ev.Card = p.Card
		ev.Markings = p.Markings
		e.emit(events.New(ev).To(p.ID))
	}

	e.log.Infof("[Engine] dealt new cards to %d players", len(players))
	return players, nil
}

// RemovePlayer deletes one player. It reports false if the id is unknown.
func (e *Engine) RemovePlayer(ctx context.Context, playerID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, found, err := e.lookup(ctx, e.store.GetPlayer, playerID)
	if err != nil || !found {
		return false, err
	}
	if err := e.store.RemovePlayer(ctx, playerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	e.activityMu.Lock()
	delete(e.activity, playerID)
	e.activityMu.Unlock()

	count := 0
	if s, err := e.currentSession(ctx); err != nil {
		return true, err
	} else if s != nil {
		players, err := e.attachedPlayers(ctx, s.ID)
		if err != nil {
			return true, err
		}
		count = len(players)
	}

	e.log.Infof("[Engine] removed %s (%d players left)", p.Name, count)
	e.publish(events.PlayerDisconnected{PlayerID: p.ID, Name: p.Name, PlayerCount: count})
	e.presence.Forget(p.ID)
	return true, nil
}

// WipePlayers removes the whole roster but keeps the session.
func (e *Engine) WipePlayers(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.RemoveAllPlayers(ctx); err != nil {
		return err
	}

	e.activityMu.Lock()
	e.activity = make(map[string]time.Time)
	e.activityMu.Unlock()

	e.log.Info("[Engine] roster wiped")
	e.publish(events.PlayerDisconnected{Wiped: true})
	e.presence.ForgetAll()
	return nil
}

// NoteActivity records that a player is still around. Writes are limited
// to one per player every few seconds.
func (e *Engine) NoteActivity(ctx context.Context, playerID string) error {
	now := time.Now()

	e.activityMu.Lock()
	if last, ok := e.activity[playerID]; ok && now.Sub(last) < activityInterval {
		e.activityMu.Unlock()
		return nil
	}
	e.activity[playerID] = now
	e.activityMu.Unlock()

	err := e.store.TouchPlayer(ctx, playerID, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
