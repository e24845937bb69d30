package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads Settings from disk whenever the settings file changes,
// so an edit made while the app is running takes effect without a
// restart.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
}

// WatchSettings starts watching the directory containing path (fsnotify
// watches directories, not single files, to survive editors that replace
// the file via rename) and returns a Watcher whose Changes channel fires on
// every write or create event touching path; rename and remove events are
// ignored.
func WatchSettings(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{watcher: fw, path: path}, nil
}

// Changes returns a channel that receives the current Settings every time
// the watched file changes and reloads successfully. Load failures are
// silently skipped, treated as transient. The previous in-memory
// settings remain in effect.
func (w *Watcher) Changes() <-chan Settings {
	out := make(chan Settings)
	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				settings, err := LoadSettings(w.path)
				if err != nil {
					continue
				}
				out <- settings
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
