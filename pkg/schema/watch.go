package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder keeps the latest Store loaded from a directory and reloads it when
// a definition file changes.
type Holder struct {
	mu       sync.RWMutex
	store    *Store
	dir      string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Store)
	stopCh   chan struct{}
	stopOnce sync.Once
	debounce time.Duration
}

// NewHolder loads dir and returns a holder for it.
func NewHolder(dir string, logger zerolog.Logger) (*Holder, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("schema: absolute path: %w", err)
	}
	store, err := LoadFS(os.DirFS(absDir))
	if err != nil {
		return nil, err
	}
	return &Holder{
		store:    store,
		dir:      absDir,
		logger:   logger,
		stopCh:   make(chan struct{}),
		debounce: 100 * time.Millisecond,
	}, nil
}

// Store returns the current definitions.
func (h *Holder) Store() *Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store
}

// OnChange registers a callback run after every successful reload.
func (h *Holder) OnChange(fn func(*Store)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// Reload re-reads the directory. On error the previous store is kept.
func (h *Holder) Reload() error {
	store, err := LoadFS(os.DirFS(h.dir))
	if err != nil {
		h.logger.Error().Err(err).Str("dir", h.dir).Msg("schema reload failed, keeping old definitions")
		return fmt.Errorf("schema: reload: %w", err)
	}

	h.mu.Lock()
	h.store = store
	listeners := append(([]func(*Store))(nil), h.onChange...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(store)
	}
	h.logger.Info().Str("dir", h.dir).Strs("forms", store.IDs()).Msg("schema reloaded")
	return nil
}

// Watch starts watching the directory. Bursts of events (editors doing
// atomic saves) are coalesced into one reload.
func (h *Holder) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("schema: create watcher: %w", err)
	}
	if err := watcher.Add(h.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("schema: watch %s: %w", h.dir, err)
	}
	h.watcher = watcher
	go h.watchLoop()
	h.logger.Info().Str("dir", h.dir).Msg("watching schema directory")
	return nil
}

// Stop ends the watch loop.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !isSchemaFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			h.logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("schema file changed")
			if timer == nil {
				timer = time.NewTimer(h.debounce)
			} else {
				timer.Reset(h.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			_ = h.Reload()

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("schema watcher error")

		case <-h.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
