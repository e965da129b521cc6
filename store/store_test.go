package store

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGormStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// each connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	g := NewGorm(db)
	if err := g.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func newLocalStore(t *testing.T) Store {
	t.Helper()
	l, err := OpenLocal(afero.NewMemMapFs(), "/data", "test")
	if err != nil {
		t.Fatalf("OpenLocal() = %v", err)
	}
	return l
}

var backends = []struct {
	name string
	open func(t *testing.T) Store
}{
	{name: "memory", open: func(t *testing.T) Store { return NewMemory() }},
	{name: "local", open: newLocalStore},
	{name: "gorm", open: newGormStore},
}

func newPlayer(name string, r *rand.Rand) *models.Player {
	now := time.Now()
	return &models.Player{
		ID:          uuid.NewString(),
		Name:        name,
		DeviceToken: uuid.NewString(),
		Card:        datatypes.JSONSlice[int](game.NewCard(r)),
		Markings:    datatypes.JSONSlice[bool](game.NewMarks()),
		LastSeen:    now,
		JoinedAt:    now,
	}
}

func TestSessionLifecycle(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			if _, err := s.GetSession(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetSession() on empty store = %v, want ErrNotFound", err)
			}

			first, err := s.CreateSession(ctx, game.ModeSet{game.Horizontal})
			if err != nil {
				t.Fatalf("CreateSession() = %v", err)
			}
			if first.Status != models.StatusWaiting {
				t.Fatalf("status = %s, want waiting", first.Status)
			}

			if _, err := s.UpdateSessionStatus(ctx, models.StatusActive, ""); err != nil {
				t.Fatalf("start: %v", err)
			}
			if _, err := s.UpdateSessionStatus(ctx, models.StatusWaiting, ""); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("active->waiting = %v, want ErrInvalidTransition", err)
			}

			updated, err := s.UpdateSessionMode(ctx, game.ModeSet{game.Vertical, game.Diagonal})
			if err != nil {
				t.Fatalf("UpdateSessionMode() = %v", err)
			}
			if got := updated.ModeSet().String(); got != "vertical,diagonal" {
				t.Fatalf("modes = %q", got)
			}

			if _, err := s.AddDrawnNumber(ctx, 10); err != nil {
				t.Fatalf("AddDrawnNumber() = %v", err)
			}

			time.Sleep(2 * time.Millisecond)
			second, err := s.CreateSession(ctx, game.ModeSet{game.Blackout})
			if err != nil {
				t.Fatalf("CreateSession() = %v", err)
			}
			if second.ID == first.ID {
				t.Fatalf("new session reused id %s", first.ID)
			}

			current, err := s.GetSession(ctx)
			if err != nil {
				t.Fatalf("GetSession() = %v", err)
			}
			if current.ID != second.ID || current.Status != models.StatusWaiting {
				t.Fatalf("current = %+v, want fresh waiting session %s", current, second.ID)
			}

			drawn, err := s.GetDrawnNumbers(ctx)
			if err != nil {
				t.Fatalf("GetDrawnNumbers() = %v", err)
			}
			if len(drawn) != 0 {
				t.Fatalf("drawn after new session = %v, want empty", drawn)
			}

			finished, err := s.UpdateSessionStatus(ctx, models.StatusFinished, "winner-1")
			if err != nil {
				t.Fatalf("finish: %v", err)
			}
			if finished.WinnerID == nil || *finished.WinnerID != "winner-1" || finished.FinishedAt == nil {
				t.Fatalf("finished session = %+v", finished)
			}
		})
	}
}

func TestAddDrawnNumberIdempotent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			if _, err := s.AddDrawnNumber(ctx, 5); !errors.Is(err, ErrNotFound) {
				t.Fatalf("AddDrawnNumber() without session = %v, want ErrNotFound", err)
			}
			if _, err := s.CreateSession(ctx, game.ModeSet{game.Horizontal}); err != nil {
				t.Fatalf("CreateSession() = %v", err)
			}

			for _, n := range []int{42, 7, 42, 19, 7} {
				if _, err := s.AddDrawnNumber(ctx, n); err != nil {
					t.Fatalf("AddDrawnNumber(%d) = %v", n, err)
				}
			}
			inserted, err := s.AddDrawnNumber(ctx, 19)
			if err != nil || inserted {
				t.Fatalf("duplicate AddDrawnNumber() = %v, %v, want false, nil", inserted, err)
			}

			drawn, err := s.GetDrawnNumbers(ctx)
			if err != nil {
				t.Fatalf("GetDrawnNumbers() = %v", err)
			}
			want := []int{42, 7, 19}
			if len(drawn) != len(want) {
				t.Fatalf("drawn = %v, want %v", drawn, want)
			}
			for i := range want {
				if drawn[i] != want[i] {
					t.Fatalf("drawn = %v, want %v", drawn, want)
				}
			}
		})
	}
}

func TestPlayers(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			r := rand.New(rand.NewSource(42))

			if _, err := s.CreateSession(ctx, game.ModeSet{game.Horizontal}); err != nil {
				t.Fatalf("CreateSession() = %v", err)
			}

			ana := newPlayer("Ana", r)
			bia := newPlayer("Bia", r)
			bia.JoinedAt = ana.JoinedAt.Add(time.Second)
			for _, p := range []*models.Player{ana, bia} {
				if err := s.AddOrUpdatePlayer(ctx, p); err != nil {
					t.Fatalf("AddOrUpdatePlayer(%s) = %v", p.Name, err)
				}
			}

			got, err := s.GetPlayerByName(ctx, "  aNA ")
			if err != nil || got.ID != ana.ID {
				t.Fatalf("GetPlayerByName() = %v, %v", got, err)
			}
			got, err = s.GetPlayerByDevice(ctx, bia.DeviceToken)
			if err != nil || got.ID != bia.ID {
				t.Fatalf("GetPlayerByDevice() = %v, %v", got, err)
			}
			if _, err := s.GetPlayerByDevice(ctx, ""); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetPlayerByDevice(\"\") = %v, want ErrNotFound", err)
			}

			ana.Markings[3] = true
			ana.UserAgent = "phone"
			if err := s.AddOrUpdatePlayer(ctx, ana); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, err = s.GetPlayer(ctx, ana.ID)
			if err != nil {
				t.Fatalf("GetPlayer() = %v", err)
			}
			if !got.Markings[3] || got.UserAgent != "phone" {
				t.Fatalf("update not persisted: %+v", got)
			}
			if err := game.Card(got.Card).Validate(); err != nil {
				t.Fatalf("stored card invalid: %v", err)
			}

			all, err := s.GetAllPlayers(ctx)
			if err != nil || len(all) != 2 || all[0].ID != ana.ID {
				t.Fatalf("GetAllPlayers() = %v, %v", all, err)
			}

			if _, err := s.UpdateSessionStatus(ctx, models.StatusFinished, ana.ID); err != nil {
				t.Fatalf("finish: %v", err)
			}
			if err := s.RemovePlayer(ctx, ana.ID); err != nil {
				t.Fatalf("RemovePlayer() = %v", err)
			}
			if err := s.RemovePlayer(ctx, ana.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second RemovePlayer() = %v, want ErrNotFound", err)
			}
			session, err := s.GetSession(ctx)
			if err != nil {
				t.Fatalf("GetSession() = %v", err)
			}
			if session.WinnerID != nil {
				t.Fatalf("winner reference kept after removal: %v", *session.WinnerID)
			}

			if err := s.TouchPlayer(ctx, bia.ID, time.Now()); err != nil {
				t.Fatalf("TouchPlayer() = %v", err)
			}
			if err := s.RemoveAllPlayers(ctx); err != nil {
				t.Fatalf("RemoveAllPlayers() = %v", err)
			}
			all, err = s.GetAllPlayers(ctx)
			if err != nil || len(all) != 0 {
				t.Fatalf("GetAllPlayers() after wipe = %v, %v", all, err)
			}
		})
	}
}

func TestClearAll(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)

			if _, err := s.CreateSession(ctx, game.ModeSet{game.Horizontal}); err != nil {
				t.Fatalf("CreateSession() = %v", err)
			}
			if _, err := s.AddDrawnNumber(ctx, 1); err != nil {
				t.Fatalf("AddDrawnNumber() = %v", err)
			}
			if err := s.AddOrUpdatePlayer(ctx, newPlayer("Ana", rand.New(rand.NewSource(1)))); err != nil {
				t.Fatalf("AddOrUpdatePlayer() = %v", err)
			}

			if err := s.ClearAll(ctx); err != nil {
				t.Fatalf("ClearAll() = %v", err)
			}
			if _, err := s.GetSession(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetSession() after ClearAll = %v", err)
			}
			players, _ := s.GetAllPlayers(ctx)
			drawn, _ := s.GetDrawnNumbers(ctx)
			if len(players) != 0 || len(drawn) != 0 {
				t.Fatalf("ClearAll left players=%d drawn=%d", len(players), len(drawn))
			}
		})
	}
}
