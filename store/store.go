// Package store persists sessions, players and drawn numbers behind one
// contract with interchangeable backends.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// Store is safe for concurrent use. Each method is atomic with respect to
// other callers. Session-scoped methods act on the current session, which is
// the most recently created one.
type Store interface {
	GetSession(ctx context.Context) (*models.Session, error)
	// CreateSession supersedes any live session and starts an empty draw log.
	CreateSession(ctx context.Context, modes game.ModeSet) (*models.Session, error)
	// UpdateSessionStatus moves the current session forward. A non-empty
	// winnerID is recorded when finishing.
	UpdateSessionStatus(ctx context.Context, status models.SessionStatus, winnerID string) (*models.Session, error)
	UpdateSessionMode(ctx context.Context, modes game.ModeSet) (*models.Session, error)

	// AddDrawnNumber is idempotent: a number already drawn in the current
	// session reports inserted=false with a nil error.
	AddDrawnNumber(ctx context.Context, n int) (inserted bool, err error)
	// GetDrawnNumbers returns the current session's numbers in draw order.
	GetDrawnNumbers(ctx context.Context) ([]int, error)

	AddOrUpdatePlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	GetPlayerByName(ctx context.Context, name string) (*models.Player, error)
	GetPlayerByDevice(ctx context.Context, token string) (*models.Player, error)
	GetAllPlayers(ctx context.Context) ([]*models.Player, error)
	TouchPlayer(ctx context.Context, id string, at time.Time) error
	// RemovePlayer also clears any session winner reference to the player.
	RemovePlayer(ctx context.Context, id string) error
	RemoveAllPlayers(ctx context.Context) error

	// ClearAll drops sessions, draws and players.
	ClearAll(ctx context.Context) error
	Close() error
}

// NameKey is the case-insensitive lookup key for a display name.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
