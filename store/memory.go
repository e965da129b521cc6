package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// document is the whole state of a Memory store. Local persists it as JSON.
type document struct {
	Session *models.Session           `json:"session,omitempty"`
	Drawn   []models.DrawnNumber      `json:"drawn"`
	Players map[string]*models.Player `json:"players"`
}

// Memory keeps everything in process. State is lost on exit.
type Memory struct {
	mu      sync.RWMutex
	doc     document
	persist func(*document) error
}

func NewMemory() *Memory {
	return &Memory{doc: document{Players: make(map[string]*models.Player)}}
}

// clone copies everything a mutation may touch.
func (d *document) clone() document {
	c := document{Players: make(map[string]*models.Player, len(d.Players))}
	if d.Session != nil {
		c.Session = d.Session.Clone()
	}
	c.Drawn = append([]models.DrawnNumber(nil), d.Drawn...)
	for id, p := range d.Players {
		c.Players[id] = p.Clone()
	}
	return c
}

// update applies fn to a copy of the document and installs the copy only
// once it has been persisted. Callers hold the write lock.
func (m *Memory) update(fn func(d *document) error) error {
	next := m.doc.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if m.persist != nil {
		if err := m.persist(&next); err != nil {
			return err
		}
	}
	m.doc = next
	return nil
}

func (m *Memory) GetSession(ctx context.Context) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc.Session == nil {
		return nil, ErrNotFound
	}
	return m.doc.Session.Clone(), nil
}

func (m *Memory) CreateSession(ctx context.Context, modes game.ModeSet) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	err := m.update(func(d *document) error {
		if prev := d.Session; prev != nil && prev.Status.Live() {
			prev.Status = models.StatusFinished
			prev.Superseded = true
			prev.FinishedAt = &now
		}
		d.Session = &models.Session{
			ID:        uuid.NewString(),
			Status:    models.StatusWaiting,
			Modes:     datatypes.JSONSlice[game.Mode](modes),
			CreatedAt: now,
		}
		d.Drawn = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.doc.Session.Clone(), nil
}

func (m *Memory) UpdateSessionStatus(ctx context.Context, status models.SessionStatus, winnerID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.update(func(d *document) error {
		s := d.Session
		if s == nil {
			return ErrNotFound
		}
		if !s.Status.CanMoveTo(status) {
			return ErrInvalidTransition
		}
		applyStatus(s, status, winnerID, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.doc.Session.Clone(), nil
}

func applyStatus(s *models.Session, status models.SessionStatus, winnerID string, now time.Time) {
	s.Status = status
	switch status {
	case models.StatusActive:
		s.StartedAt = &now
	case models.StatusFinished:
		s.FinishedAt = &now
		if winnerID != "" {
			s.WinnerID = &winnerID
		}
	}
}

func (m *Memory) UpdateSessionMode(ctx context.Context, modes game.ModeSet) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.update(func(d *document) error {
		if d.Session == nil {
			return ErrNotFound
		}
		d.Session.Modes = datatypes.JSONSlice[game.Mode](modes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.doc.Session.Clone(), nil
}

func (m *Memory) AddDrawnNumber(ctx context.Context, n int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.doc.Session
	if s == nil {
		return false, ErrNotFound
	}
	for _, d := range m.doc.Drawn {
		if d.Number == n {
			return false, nil
		}
	}
	err := m.update(func(d *document) error {
		d.Drawn = append(d.Drawn, models.DrawnNumber{
			SessionID: s.ID,
			Number:    n,
			Seq:       len(d.Drawn) + 1,
			DrawnAt:   time.Now(),
		})
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) GetDrawnNumbers(ctx context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int, len(m.doc.Drawn))
	for i, d := range m.doc.Drawn {
		out[i] = d.Number
	}
	return out, nil
}

func (m *Memory) AddOrUpdatePlayer(ctx context.Context, p *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := p.Clone()
	c.NameKey = NameKey(c.Name)
	return m.update(func(d *document) error {
		d.Players[c.ID] = c
		return nil
	})
}

func (m *Memory) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.doc.Players[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) GetPlayerByName(ctx context.Context, name string) (*models.Player, error) {
	key := NameKey(name)
	return m.find(func(p *models.Player) bool { return p.NameKey == key })
}

func (m *Memory) GetPlayerByDevice(ctx context.Context, token string) (*models.Player, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return m.find(func(p *models.Player) bool { return p.DeviceToken == token })
}

func (m *Memory) find(match func(*models.Player) bool) (*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.doc.Players {
		if match(p) {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetAllPlayers(ctx context.Context) ([]*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Player, 0, len(m.doc.Players))
	for _, p := range m.doc.Players {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (m *Memory) TouchPlayer(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(func(d *document) error {
		p, ok := d.Players[id]
		if !ok {
			return ErrNotFound
		}
		p.LastSeen = at
		return nil
	})
}

func (m *Memory) RemovePlayer(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(func(d *document) error {
		if _, ok := d.Players[id]; !ok {
			return ErrNotFound
		}
		delete(d.Players, id)
		if s := d.Session; s != nil && s.WinnerID != nil && *s.WinnerID == id {
			s.WinnerID = nil
		}
		return nil
	})
}

func (m *Memory) RemoveAllPlayers(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(func(d *document) error {
		d.Players = make(map[string]*models.Player)
		if s := d.Session; s != nil {
			s.WinnerID = nil
		}
		return nil
	})
}

func (m *Memory) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(func(d *document) error {
		*d = document{Players: make(map[string]*models.Player)}
		return nil
	})
}

func (m *Memory) Close() error { return nil }
