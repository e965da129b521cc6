package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
	"github.com/spf13/afero"
)

const localPrefix = "bingo_host_"

// Local is a Memory store mirrored to a single JSON document on a
// filesystem, one document per host key. It tolerates losing state.
type Local struct {
	*Memory
	fs   afero.Fs
	path string
}

// OpenLocal loads dir/bingo_host_<key>.json if present. A document that fails
// to decode or holds an invalid card is reported as an error.
func OpenLocal(fs afero.Fs, dir, key string) (*Local, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	l := &Local{
		Memory: NewMemory(),
		fs:     fs,
		path:   filepath.Join(dir, localPrefix+key+".json"),
	}

	data, err := afero.ReadFile(fs, l.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	default:
		if err := l.load(data); err != nil {
			return nil, fmt.Errorf("load %s: %w", l.path, err)
		}
	}

	l.Memory.persist = l.save
	return l, nil
}

// Path is the document location.
func (l *Local) Path() string { return l.path }

func (l *Local) load(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Players == nil {
		doc.Players = make(map[string]*models.Player)
	}
	for id, p := range doc.Players {
		if err := game.Card(p.Card).Validate(); err != nil {
			return fmt.Errorf("player %s: %w", id, err)
		}
		p.NameKey = NameKey(p.Name)
	}
	l.Memory.doc = doc
	return nil
}

// save writes to a temp file and renames it over the document.
func (l *Local) save(doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := afero.WriteFile(l.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return l.fs.Rename(tmp, l.path)
}

// Close removes nothing; the document stays for the next run.
func (l *Local) Close() error { return nil }
