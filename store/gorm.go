package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var liveStatuses = []models.SessionStatus{models.StatusWaiting, models.StatusActive}

// Gorm is the relational backend. It survives restarts.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Migrate creates or updates the schema.
func (g *Gorm) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(
		&models.Session{},
		&models.Player{},
		&models.DrawnNumber{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func currentSession(tx *gorm.DB) (*models.Session, error) {
	var s models.Session
	if err := tx.Order("created_at DESC").First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (g *Gorm) GetSession(ctx context.Context) (*models.Session, error) {
	return currentSession(g.db.WithContext(ctx))
}

func (g *Gorm) CreateSession(ctx context.Context, modes game.ModeSet) (*models.Session, error) {
	s := &models.Session{
		ID:     uuid.NewString(),
		Status: models.StatusWaiting,
		Modes:  datatypes.JSONSlice[game.Mode](modes),
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&models.Session{}).
			Where("status IN ?", liveStatuses).
			Updates(map[string]any{
				"status":      models.StatusFinished,
				"superseded":  true,
				"finished_at": now,
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.DrawnNumber{}).Error; err != nil {
			return err
		}
		s.CreatedAt = now
		return tx.Create(s).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (g *Gorm) UpdateSessionStatus(ctx context.Context, status models.SessionStatus, winnerID string) (*models.Session, error) {
	var out *models.Session
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := currentSession(tx)
		if err != nil {
			return err
		}
		if !s.Status.CanMoveTo(status) {
			return ErrInvalidTransition
		}
		applyStatus(s, status, winnerID, time.Now())
		if err := tx.Save(s).Error; err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gorm) UpdateSessionMode(ctx context.Context, modes game.ModeSet) (*models.Session, error) {
	var out *models.Session
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := currentSession(tx)
		if err != nil {
			return err
		}
		s.Modes = datatypes.JSONSlice[game.Mode](modes)
		if err := tx.Model(s).Update("modes", s.Modes).Error; err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddDrawnNumber relies on the (session, number) and (session, seq) unique
// indexes: a concurrent writer that wins either race turns this insert into
// a no-op.
func (g *Gorm) AddDrawnNumber(ctx context.Context, n int) (bool, error) {
	var inserted bool
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := currentSession(tx)
		if err != nil {
			return err
		}

		var maxSeq int
		if err := tx.Model(&models.DrawnNumber{}).
			Where("session_id = ?", s.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.DrawnNumber{
			SessionID: s.ID,
			Number:    n,
			Seq:       maxSeq + 1,
			DrawnAt:   time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (g *Gorm) GetDrawnNumbers(ctx context.Context) ([]int, error) {
	db := g.db.WithContext(ctx)
	s, err := currentSession(db)
	if errors.Is(err, ErrNotFound) {
		return []int{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := []int{}
	if err := db.Model(&models.DrawnNumber{}).
		Where("session_id = ?", s.ID).
		Order("seq ASC").
		Pluck("number", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gorm) AddOrUpdatePlayer(ctx context.Context, p *models.Player) error {
	p.NameKey = NameKey(p.Name)
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(p).Error
}

func (g *Gorm) getPlayerWhere(ctx context.Context, query string, arg any) (*models.Player, error) {
	var p models.Player
	if err := g.db.WithContext(ctx).Where(query, arg).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (g *Gorm) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	return g.getPlayerWhere(ctx, "id = ?", id)
}

func (g *Gorm) GetPlayerByName(ctx context.Context, name string) (*models.Player, error) {
	return g.getPlayerWhere(ctx, "name_key = ?", NameKey(name))
}

func (g *Gorm) GetPlayerByDevice(ctx context.Context, token string) (*models.Player, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return g.getPlayerWhere(ctx, "device_token = ?", token)
}

func (g *Gorm) GetAllPlayers(ctx context.Context) ([]*models.Player, error) {
	var players []*models.Player
	if err := g.db.WithContext(ctx).Order("joined_at ASC, id ASC").Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

func (g *Gorm) TouchPlayer(ctx context.Context, id string, at time.Time) error {
	res := g.db.WithContext(ctx).Model(&models.Player{}).Where("id = ?", id).Update("last_seen", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) RemovePlayer(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Player{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.Session{}).Where("winner_id = ?", id).Update("winner_id", nil).Error
	})
}

func (g *Gorm) RemoveAllPlayers(ctx context.Context) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Player{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).Where("winner_id IS NOT NULL").Update("winner_id", nil).Error
	})
}

func (g *Gorm) ClearAll(ctx context.Context) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.DrawnNumber{}, &models.Player{}, &models.Session{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
