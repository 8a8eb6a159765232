package catalog

import (
	"context"
	"log"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Live is a catalogue that can be swapped at runtime. Readers always see a
// complete snapshot; a reload never exposes a half-built registry.
type Live struct {
	current atomic.Pointer[Registry]
	path    string
	strict  bool
}

var _ Describer = (*Live)(nil)

// NewLive wraps an initial registry. path may be empty when there is no file to watch.
func NewLive(initial *Registry, path string, strict bool) *Live {
	l := &Live{path: path, strict: strict}
	l.current.Store(initial)
	return l
}

// Current returns the active snapshot.
func (l *Live) Current() *Registry {
	return l.current.Load()
}

// DescribeTool implements Describer.
func (l *Live) DescribeTool(name string) (ToolSpec, error) {
	return l.Current().DescribeTool(name)
}

// DescribeIntent implements Describer.
func (l *Live) DescribeIntent(name string) (IntentSpec, error) {
	return l.Current().DescribeIntent(name)
}

// Intents implements Describer.
func (l *Live) Intents() []IntentSpec {
	return l.Current().Intents()
}

// Reload re-reads the catalogue file. A file that fails to load or validate
// leaves the current snapshot in place.
func (l *Live) Reload() error {
	r, err := Load(l.path)
	if err != nil {
		return err
	}
	if err := r.Validate(l.strict); err != nil {
		return err
	}
	l.current.Store(r)
	return nil
}

// Watch reloads the catalogue whenever its file is written or replaced.
// It blocks until ctx is cancelled. The parent directory is watched so that
// editors which save by rename are picked up.
func (l *Live) Watch(ctx context.Context) error {
	if l.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return err
	}
	base := filepath.Base(l.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := l.Reload(); err != nil {
				log.Printf("[catalog] reload of %s rejected: %v", l.path, err)
				continue
			}
			log.Printf("[catalog] reloaded %s (%d intents)", l.path, len(l.Current().Intents()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[catalog] watcher error: %v", err)
		}
	}
}
