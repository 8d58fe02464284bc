// Package model owns the mutable transcription model state: which model is
// selected, whether it is loaded, and which models are available on disk.
// Every read and write funnels through one owning goroutine; connection
// handlers never touch the state directly, and loads run outside the owner
// so it is never held across I/O.
package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var (
	// ErrNoModel means no model is currently selected.
	ErrNoModel = errors.New("no model selected")

	// ErrUnknownModel means the requested model is not in the models
	// directory.
	ErrUnknownModel = errors.New("unknown model")
)

// Info describes one transcription model.
type Info struct {
	ID   string // file stem, e.g. "ggml-small.en-tdrz"
	Path string
}

// SupportsSpeakerTurns reports whether the model emits native speaker-turn
// flags (tinydiarize-trained checkpoints carry "tdrz" in the name).
func (i Info) SupportsSpeakerTurns() bool {
	return strings.Contains(strings.ToLower(i.ID), "tdrz")
}

// Loader loads a model into memory. Implementations may be slow; the store
// guarantees the call happens outside the owning goroutine.
type Loader interface {
	Load(ctx context.Context, m Info) error
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, m Info) error

func (f LoaderFunc) Load(ctx context.Context, m Info) error { return f(ctx, m) }

// loadOp is an in-flight load shared by every caller that arrives while it
// runs; only the first caller performs the load.
type loadOp struct {
	done chan struct{}
	err  error
}

// state is owned exclusively by the run goroutine.
type state struct {
	current   *Info
	loaded    bool
	loading   *loadOp
	available []Info
}

// Store serializes all model-state access through a command channel.
type Store struct {
	cmds   chan func(*state)
	loader Loader
	dir    string
	log    zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New scans the models directory, selects initialModel when given, and
// starts the owning goroutine plus a directory watcher that keeps the
// available-model list fresh as the host application downloads models.
func New(dir, initialModel string, loader Loader, log zerolog.Logger) (*Store, error) {
	s := &Store{
		cmds:   make(chan func(*state)),
		loader: loader,
		dir:    dir,
		log:    log.With().Str("component", "modelstore").Logger(),
		done:   make(chan struct{}),
	}

	available, err := scanModels(dir)
	if err != nil {
		return nil, fmt.Errorf("scan models dir: %w", err)
	}

	st := &state{available: available}
	if initialModel != "" {
		m, ok := findModel(available, initialModel)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, initialModel)
		}
		st.current = &m
	}

	go s.run(st)

	if w, err := fsnotify.NewWatcher(); err == nil {
		if err := w.Add(dir); err == nil {
			s.watcher = w
			go s.watchLoop()
		} else {
			w.Close()
			s.log.Warn().Err(err).Str("dir", dir).Msg("models dir not watchable")
		}
	}

	s.log.Info().Int("models", len(available)).Str("dir", dir).Msg("model store ready")
	return s, nil
}

// run is the owning goroutine; it is the only code that touches state.
func (s *Store) run(st *state) {
	for {
		select {
		case fn := <-s.cmds:
			fn(st)
		case <-s.done:
			return
		}
	}
}

func (s *Store) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			available, err := scanModels(s.dir)
			if err != nil {
				s.log.Warn().Err(err).Msg("rescan after fs event failed")
				continue
			}
			s.do(func(st *state) {
				st.available = available
				if st.current != nil {
					if _, ok := findModel(available, st.current.ID); !ok {
						s.log.Warn().Str("model", st.current.ID).Msg("selected model removed from disk")
						st.current = nil
						st.loaded = false
					}
				}
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("models dir watcher error")
		case <-s.done:
			return
		}
	}
}

// do runs fn in the owning goroutine and waits for it to finish.
func (s *Store) do(fn func(*state)) {
	ack := make(chan struct{})
	select {
	case s.cmds <- func(st *state) { fn(st); close(ack) }:
		<-ack
	case <-s.done:
	}
}

// Current returns the selected model, if any.
func (s *Store) Current() (Info, bool) {
	var m Info
	var ok bool
	s.do(func(st *state) {
		if st.current != nil {
			m, ok = *st.current, true
		}
	})
	return m, ok
}

// IsLoaded reports whether the selected model is resident in memory.
func (s *Store) IsLoaded() bool {
	var loaded bool
	s.do(func(st *state) { loaded = st.loaded })
	return loaded
}

// Available returns the IDs of every model on disk, sorted.
func (s *Store) Available() []string {
	var ids []string
	s.do(func(st *state) {
		for _, m := range st.available {
			ids = append(ids, m.ID)
		}
	})
	sort.Strings(ids)
	return ids
}

// Select switches the current model and drops the loaded flag; the next
// transcription triggers a load.
func (s *Store) Select(id string) error {
	var err error
	s.do(func(st *state) {
		m, ok := findModel(st.available, id)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownModel, id)
			return
		}
		st.current = &m
		st.loaded = false
	})
	return err
}

// EnsureLoaded returns once the selected model is loaded, performing the
// load if needed. Concurrent callers share a single load; the load itself
// runs on the first caller's goroutine, never the owner's.
func (s *Store) EnsureLoaded(ctx context.Context) (Info, error) {
	var (
		m     Info
		op    *loadOp
		start bool
		err   error
	)
	s.do(func(st *state) {
		if st.current == nil {
			err = ErrNoModel
			return
		}
		m = *st.current
		if st.loaded {
			return
		}
		if st.loading == nil {
			st.loading = &loadOp{done: make(chan struct{})}
			start = true
		}
		op = st.loading
	})
	if err != nil || op == nil {
		return m, err
	}

	if start {
		loadErr := s.loader.Load(ctx, m)
		s.do(func(st *state) {
			st.loading = nil
			st.loaded = loadErr == nil && st.current != nil && st.current.ID == m.ID
			op.err = loadErr
			close(op.done)
		})
		if loadErr != nil {
			return m, fmt.Errorf("load model %s: %w", m.ID, loadErr)
		}
		return m, nil
	}

	select {
	case <-op.done:
		if op.err != nil {
			return m, fmt.Errorf("load model %s: %w", m.ID, op.err)
		}
		return m, nil
	case <-ctx.Done():
		return m, ctx.Err()
	}
}

// Close stops the owning goroutine and the directory watcher.
func (s *Store) Close() {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// scanModels lists whisper checkpoints (.bin, .gguf) in dir.
func scanModels(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var models []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".bin" && ext != ".gguf" {
			continue
		}
		models = append(models, Info{
			ID:   strings.TrimSuffix(e.Name(), ext),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	return models, nil
}

func findModel(models []Info, id string) (Info, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return Info{}, false
}
