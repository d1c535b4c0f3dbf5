package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch re-reads the configuration file whenever it changes and hands
// the result to apply. A file that fails to load is logged and skipped;
// the previous configuration stays in effect. Watch blocks until ctx
// is cancelled.
func Watch(ctx context.Context, path string, apply func(*File)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			f, err := Load(path)
			if err != nil {
				log.Errorf("failed to reload config: %v", err)
				continue
			}
			log.Infof("config file changed: %s %s", event.Name, event.Op)
			apply(f)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("config watcher: %v", err)
		}
	}
}
