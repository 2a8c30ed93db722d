// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher hot-reloads the configuration file and notifies a callback with the
// freshly parsed config. Only routing and budget sections are expected to
// change at runtime; components that cannot be reconfigured live simply
// ignore the callback.
type Watcher struct {
	path     string
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	stop     chan struct{}
}

// NewWatcher creates a watcher for configFile. onReload is invoked from the
// watch goroutine after every successful reload.
func NewWatcher(configFile string, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     configFile,
		onReload: onReload,
		stop:     make(chan struct{}),
	}
}

// Start begins watching the config file for writes.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					// Editors often truncate then write; let the write settle.
					time.Sleep(100 * time.Millisecond)
					cfg, err := LoadConfig(w.path)
					if err != nil {
						log.Errorf("Config reload failed, keeping previous config: %v", err)
						continue
					}
					log.Infof("Config file changed (%s), reloaded", event.Name)
					w.onReload(cfg)
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

	return nil
}

// Stop terminates the watch goroutine and releases the inotify handle.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}
