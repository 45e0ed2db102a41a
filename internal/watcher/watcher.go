// Package watcher reports batches of changed compiled scripts.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/andrei-cloud/go_reactor/pkg/modname"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher watches a directory tree and calls onChange once per quiet period.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(changed []string)
}

// New returns a watcher over root.
func New(root string, debounce time.Duration, onChange func(changed []string)) *Watcher {
	return &Watcher{root: root, debounce: debounce, onChange: onChange}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return err
			}
			log.Debug().Str("event", "watch_added").Str("dir", path).Msg("watching directory")
		}
		return nil
	})
	if err != nil {
		return err
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					_ = fw.Add(event.Name)
					continue
				}
			}
			if modname.IsSourceMap(event.Name) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})

			log.Info().
				Str("event", "scripts_changed").
				Int("files", len(changed)).
				Msg("script changes detected")
			w.onChange(changed)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watch error")
		}
	}
}
