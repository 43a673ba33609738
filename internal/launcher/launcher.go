// Package launcher runs Amebo's two long-lived processes — the HTTP
// surface and the Dispatcher's background cycle — as named goroutines that
// share one shutdown signal, grounded on the teacher's common.Launcher.
package launcher

import (
	"context"
	"sync"

	"github.com/rayattack/amebo/internal/mlog"
)

// App is one long-lived process Launcher supervises. Run must return when
// ctx is cancelled.
type App func(ctx context.Context) error

// Launcher starts every registered App in its own goroutine and waits for
// all of them to return.
type Launcher struct {
	logger mlog.Logger
	apps   map[string]App
}

// New returns an empty Launcher.
func New(logger mlog.Logger) *Launcher {
	return &Launcher{logger: logger, apps: make(map[string]App)}
}

// Add registers an App under name.
func (l *Launcher) Add(name string, a App) *Launcher {
	l.apps[name] = a
	return l
}

// Run starts every registered App and blocks until ctx is cancelled and
// every App has returned.
func (l *Launcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(len(l.apps))

	for name, app := range l.apps {
		name, app := name, app

		go func() {
			defer wg.Done()

			l.logger.Infof("launcher: %s starting", name)

			if err := app(ctx); err != nil {
				l.logger.Errorf("launcher: %s exited with error: %v", name, err)
				return
			}

			l.logger.Infof("launcher: %s finished", name)
		}()
	}

	wg.Wait()
}
