// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cli // import "newshub.app/internal/cli"

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"newshub.app/internal/config"
	"newshub.app/internal/model"
	"newshub.app/internal/storage"
	"newshub.app/internal/worker"
)

var refreshCmd = cobra.Command{
	Use:   "refresh [source-id]...",
	Short: "Fetch the given sources once, or all sources",

	Example: `
$ newshub refresh
$ newshub refresh hn lobsters
`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(
			func(ctx context.Context, store *storage.Storage) error {
				return refreshSources(ctx, store, args)
			})
	},
}

// refreshSources runs the full fetch pipeline synchronously for each
// selected source. The lease still guards every fetch, so a refresh on one
// host while the other is mid-cycle skips the locked sources.
func refreshSources(ctx context.Context, store *storage.Storage,
	ids []string,
) error {
	rt, err := newRuntime(ctx, store)
	if err != nil {
		return err
	}

	sources := rt.sources
	if len(ids) > 0 {
		sources = slices.DeleteFunc(slices.Clone(rt.sources),
			func(s model.FeedSource) bool {
				return !slices.Contains(ids, s.ID)
			})
		if len(sources) != len(ids) {
			return fmt.Errorf("cli: unknown source in %v", ids)
		}
	}

	runner := worker.NewRunner(rt.cache, rt.locker, rt.deduper, rt.selector,
		rt.publisher, rt.clock,
		config.Opts.LeaseTTL(),
		config.Opts.FetchTimeout(),
		config.Opts.FetchMaxAttempts())

	for i := range sources {
		task := &model.FetchTask{
			Source:      sources[i],
			TriggeredAt: rt.clock.Now(),
			State:       model.TaskQueued,
		}
		runner.Process(ctx, task)
		fmt.Printf("%s\t%s\n", task.Source.ID, task.State)
	}
	return nil
}
