package store

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/spf13/afero"
)

func TestLocalSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	l, err := OpenLocal(fs, "/state", "host-1")
	if err != nil {
		t.Fatalf("OpenLocal() = %v", err)
	}
	session, err := l.CreateSession(ctx, game.ModeSet{game.Diagonal})
	if err != nil {
		t.Fatalf("CreateSession() = %v", err)
	}
	if _, err := l.AddDrawnNumber(ctx, 12); err != nil {
		t.Fatalf("AddDrawnNumber() = %v", err)
	}
	ana := newPlayer("Ana", rand.New(rand.NewSource(42)))
	if err := l.AddOrUpdatePlayer(ctx, ana); err != nil {
		t.Fatalf("AddOrUpdatePlayer() = %v", err)
	}

	if ok, _ := afero.Exists(fs, "/state/bingo_host_host-1.json"); !ok {
		t.Fatalf("document not written at %s", l.Path())
	}

	reopened, err := OpenLocal(fs, "/state", "host-1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.GetSession(ctx)
	if err != nil || got.ID != session.ID {
		t.Fatalf("GetSession() = %v, %v", got, err)
	}
	drawn, _ := reopened.GetDrawnNumbers(ctx)
	if len(drawn) != 1 || drawn[0] != 12 {
		t.Fatalf("drawn = %v", drawn)
	}
	p, err := reopened.GetPlayerByName(ctx, "ana")
	if err != nil || p.DeviceToken != ana.DeviceToken {
		t.Fatalf("GetPlayerByName() = %+v, %v", p, err)
	}
}

func TestLocalRejectsCorruptDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/state/bingo_host_x.json", []byte(`{"players":{"p1":{"id":"p1","name":"x","card":[1,2,3]}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenLocal(fs, "/state", "x"); err == nil {
		t.Fatalf("OpenLocal() accepted a short card")
	}

	if err := afero.WriteFile(fs, "/state/bingo_host_y.json", []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenLocal(fs, "/state", "y"); err == nil {
		t.Fatalf("OpenLocal() accepted malformed json")
	}
}

// flakyFs fails renames while broken is set.
type flakyFs struct {
	afero.Fs
	broken bool
}

func (f *flakyFs) Rename(oldname, newname string) error {
	if f.broken {
		return errors.New("disk full")
	}
	return f.Fs.Rename(oldname, newname)
}

func TestLocalFailedSaveLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	fs := &flakyFs{Fs: afero.NewMemMapFs()}

	l, err := OpenLocal(fs, "/state", "host-1")
	if err != nil {
		t.Fatalf("OpenLocal() = %v", err)
	}
	session, err := l.CreateSession(ctx, game.ModeSet{game.Horizontal})
	if err != nil {
		t.Fatalf("CreateSession() = %v", err)
	}
	ana := newPlayer("Ana", rand.New(rand.NewSource(42)))
	if err := l.AddOrUpdatePlayer(ctx, ana); err != nil {
		t.Fatalf("AddOrUpdatePlayer() = %v", err)
	}

	fs.broken = true
	if ok, err := l.AddDrawnNumber(ctx, 7); err == nil || ok {
		t.Fatalf("AddDrawnNumber(7) = %v, %v; want failure", ok, err)
	}
	if drawn, _ := l.GetDrawnNumbers(ctx); len(drawn) != 0 {
		t.Fatalf("drawn after failed save = %v, want []", drawn)
	}
	if _, err := l.UpdateSessionStatus(ctx, "active", ""); err == nil {
		t.Fatal("UpdateSessionStatus() succeeded with a broken disk")
	}
	if s, _ := l.GetSession(ctx); s.Status != session.Status {
		t.Fatalf("status after failed save = %s, want %s", s.Status, session.Status)
	}
	if err := l.RemovePlayer(ctx, ana.ID); err == nil {
		t.Fatal("RemovePlayer() succeeded with a broken disk")
	}
	if _, err := l.GetPlayer(ctx, ana.ID); err != nil {
		t.Fatalf("player lost after failed save: %v", err)
	}
	if _, err := l.CreateSession(ctx, game.ModeSet{game.Blackout}); err == nil {
		t.Fatal("CreateSession() succeeded with a broken disk")
	}
	if s, _ := l.GetSession(ctx); s.ID != session.ID || s.Superseded {
		t.Fatalf("session after failed save = %+v", s)
	}

	fs.broken = false
	if ok, err := l.AddDrawnNumber(ctx, 7); err != nil || !ok {
		t.Fatalf("retry AddDrawnNumber(7) = %v, %v; want true", ok, err)
	}
	reopened, err := OpenLocal(fs, "/state", "host-1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if drawn, _ := reopened.GetDrawnNumbers(ctx); len(drawn) != 1 || drawn[0] != 7 {
		t.Fatalf("persisted drawn = %v, want [7]", drawn)
	}
}
