// Package credentials watches the profile's credentials directory for
// rotation so the (out-of-scope) adapter layer can reload without a
// restart. It never opens or reads the files it watches — per spec.md §9,
// the credential store is read only by the adapter layer, never by the
// Turn Runtime.
package credentials

import (
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vinayprograms/agentcore/internal/telemetry/log"
)

// Watcher notifies onRotate whenever a file under dir is written or
// created, debounced so a burst of writes to the same file yields one
// notification.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// WatchCredentials starts watching dir (typically profileRoot/credentials)
// and calls onRotate after any write/create event settles. The returned
// Watcher must be closed to stop watching. Grounded on
// vinayprograms-agent's internal/replay pager, which watches a single file
// with the same debounce-then-notify shape for live reloads.
func WatchCredentials(dir string, onRotate func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	logger := log.Component("credentials")
	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				time.Sleep(100 * time.Millisecond)
				// Coalesce events that arrived during the settle delay into
				// this one notification.
				for pending := true; pending; {
					select {
					case _, ok := <-fsw.Events:
						pending = ok
					default:
						pending = false
					}
				}
				logger.Info().Str("path", event.Name).Msg("credentials rotated")
				onRotate()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("credentials watcher error")
			}
		}
	}()

	return &Watcher{fsw: fsw}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
