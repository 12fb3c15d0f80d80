// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher hot-reloads the config file, invoking onReload with the freshly
// parsed Config after each change.
type Watcher struct {
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// Watch starts a background fsnotify watcher on configFile. A change that
// fails to parse keeps the previous configuration; onReload is only called
// with configs that loaded cleanly.
func Watch(configFile string, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files via
	// rename, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(configFile)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{watcher: watcher, stop: make(chan struct{})}

	go func() {
		target := filepath.Clean(configFile)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Infof("Config file changed (%s), reloading...", event.Name)
					time.Sleep(100 * time.Millisecond)
					cfg, err := Load(configFile, false)
					if err != nil {
						log.Errorf("Failed to reload config, keeping previous: %v", err)
						continue
					}
					onReload(cfg)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Config watcher error: %v", err)
			case <-w.stop:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	w.watcher.Close()
}
