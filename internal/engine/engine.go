// Package engine aggregates the user index, session store, blob store,
// and the set of per-user item indexes behind one injected object
// (constructor-injected, no package-level globals).
package engine

import (
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mhowlett/infumap/internal/blobstore"
	"github.com/mhowlett/infumap/internal/config"
	"github.com/mhowlett/infumap/internal/itemindex"
	"github.com/mhowlett/infumap/internal/session"
	"github.com/mhowlett/infumap/internal/user"
)

// Engine owns every durable store the dispatcher needs. Mu is the
// single coarse-grained mutex held for the duration of a command — the
// dispatcher, not Engine itself, controls its scope.
type Engine struct {
	Config config.Config
	Log    *zap.Logger

	Users    *user.Index
	Sessions *session.Store
	Blobs    *blobstore.Store

	Mu sync.Mutex

	itemsMu sync.Mutex
	items   map[string]*itemindex.Index
	loadSG  singleflight.Group
}

// New opens the user index and session store and prepares an engine
// ready to lazily load per-user item indexes.
func New(cfg config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	users, err := user.Load(cfg.DBDir, "users.jsonl", log)
	if err != nil {
		return nil, err
	}
	sessions, err := session.Load(cfg.DBDir, "sessions.jsonl", log)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Config:   cfg,
		Log:      log,
		Users:    users,
		Sessions: sessions,
		Blobs:    blobstore.New(cfg.FilesDir),
		items:    make(map[string]*itemindex.Index),
	}, nil
}

// ItemIndex returns userID's item index, loading it from disk on first
// use. Concurrent callers requesting the same unloaded user's index are
// coalesced into a single load via singleflight.Group — a "many
// callers, one load" shape.
func (e *Engine) ItemIndex(userID string, creating bool) (*itemindex.Index, error) {
	if idx, ok := e.loadedIndex(userID); ok {
		return idx, nil
	}

	v, err, _ := e.loadSG.Do(userID, func() (any, error) {
		if idx, ok := e.loadedIndex(userID); ok {
			return idx, nil
		}
		dir := filepath.Join(e.Config.DBDir, "items")
		idx, err := itemindex.Load(dir, userID+".jsonl", creating, e.Log)
		if err != nil {
			return nil, err
		}
		e.itemsMu.Lock()
		e.items[userID] = idx
		e.itemsMu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*itemindex.Index), nil
}

func (e *Engine) loadedIndex(userID string) (*itemindex.Index, bool) {
	e.itemsMu.Lock()
	defer e.itemsMu.Unlock()
	idx, ok := e.items[userID]
	return idx, ok
}

// Close releases every open store's file handle.
func (e *Engine) Close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	record(e.Users.Close())
	record(e.Sessions.Close())

	e.itemsMu.Lock()
	defer e.itemsMu.Unlock()
	for _, idx := range e.items {
		record(idx.Close())
	}
	return first
}
