// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer // import "newshub.app/internal/syncer"

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"newshub.app/internal/logging"
)

// DirTrigger publishes a sync update whenever a file in a watched directory
// is created or rewritten. The file name without extension becomes the
// resource id and the file contents become the payload. Operators drop a
// file into the directory to push state to the other host by hand.
type DirTrigger struct {
	dir       string
	publisher *Publisher
}

func NewDirTrigger(dir string, publisher *Publisher) *DirTrigger {
	return &DirTrigger{dir: dir, publisher: publisher}
}

// Run watches the directory until ctx is canceled.
func (self *DirTrigger) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("syncer: create fs watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(self.dir); err != nil {
		return fmt.Errorf("syncer: watch %q: %w", self.dir, err)
	}

	log := logging.FromContext(ctx)
	log.Info("syncer: watching trigger directory", slog.String("dir", self.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if err := self.publishFile(ctx, event.Name); err != nil {
				log.Warn("syncer: failed publishing trigger file",
					slog.String("file", event.Name), slog.Any("error", err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("syncer: fs watcher error", slog.Any("error", err))
		}
	}
}

func (self *DirTrigger) publishFile(ctx context.Context, name string) error {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return nil
	}

	payload, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("syncer: read trigger file: %w", err)
	}

	resourceID := strings.TrimSuffix(base, filepath.Ext(base))
	return self.publisher.Publish(ctx, resourceID, payload)
}
