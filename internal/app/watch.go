package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
)

// settleDelay is how long a new file must stay unchanged before it is
// queued, so partially written files are not picked up.
const settleDelay = 500 * time.Millisecond

// Watch queues every supported file created in dir until ctx ends or a
// signal arrives. Files already present are queued first when
// includeExisting is set.
func (app *App) Watch(ctx context.Context, dir string, includeExisting bool, filters map[string]string) error {
	if err := app.ensureReady(ctx); err != nil {
		return err
	}

	dir = app.expandPath(dir)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return errors.New(errors.ErrorTypeValidation, "watch_dir", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go app.handleSignals(ctx, cancel)

	allowed := app.config.Import.AllowedExtensions
	if includeExisting {
		if names := listSupported(dir, allowed); len(names) > 0 {
			app.enqueue(ctx, dir, names, filters)
		}
	}

	app.logger.Info("Watching directory", "dir", dir)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			app.logger.Info("Stopped watching", "dir", dir)
			return app.queue.Close()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !supported(name, allowed) {
				continue
			}
			pending[name] = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			app.logger.Warn("Watch error", "dir", dir, "error", err)

		case <-ticker.C:
			var ready []string
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) >= settleDelay {
					ready = append(ready, name)
					delete(pending, name)
				}
			}
			if len(ready) > 0 {
				sort.Strings(ready)
				app.enqueue(ctx, dir, ready, filters)
			}
		}
	}
}

func (app *App) enqueue(ctx context.Context, dir string, names []string, filters map[string]string) {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}

	res, err := app.Import(ctx, paths, filters)
	if err != nil {
		app.logger.Error(err, "Failed to queue watched files", "files", names)
		return
	}
	for _, it := range res.Items {
		app.logger.Info("Queued watched file", "file", it.FileName, "status", string(it.Status))
	}
	for _, r := range res.Rejected {
		app.logger.Warn("Watched file rejected", "file", r.FileName, "reason", r.Reason)
	}
}

func supported(name string, allowed []string) bool {
	return parser.ExtensionAllowed(parser.NewMetadata(name, 0).Extension, allowed)
}

func listSupported(dir string, allowed []string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name(), allowed) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}
