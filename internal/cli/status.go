// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cli // import "newshub.app/internal/cli"

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"newshub.app/internal/model"
	"newshub.app/internal/storage"
	"newshub.app/internal/worker"
)

var statusCmd = cobra.Command{
	Use:   "status [source-id]...",
	Short: "Show last fetch outcome and lock state per source",

	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(
			func(ctx context.Context, store *storage.Storage) error {
				return showStatus(ctx, store, args)
			})
	},
}

func showStatus(ctx context.Context, store *storage.Storage, ids []string,
) error {
	rt, err := newRuntime(ctx, store)
	if err != nil {
		return err
	}

	for i := range rt.sources {
		source := &rt.sources[i]
		if len(ids) > 0 && !slices.Contains(ids, source.ID) {
			continue
		}

		line := source.ID + "\t"
		data, _, ok, err := store.CacheGet(ctx, worker.NamespaceStatus,
			source.ID, rt.clock.Now())
		switch {
		case err != nil:
			return err
		case !ok:
			line += "never fetched"
		default:
			var status model.SourceStatus
			if err := json.Unmarshal(data, &status); err != nil {
				return fmt.Errorf("cli: decode status of %q: %w",
					source.ID, err)
			}
			line += fmt.Sprintf("%s\t%d articles\t%s", status.LastStatus,
				status.ArticleCount,
				status.LastFetchAt.Format("2006-01-02 15:04:05"))
			if status.LastError != "" {
				line += "\t" + status.LastError
			}
		}

		holder, err := rt.locker.HolderOf(ctx,
			worker.LeaseResource(source.ID))
		if err != nil {
			return err
		}
		if holder != "" {
			line += "\tlocked by " + holder
		}
		fmt.Println(line)
	}
	return nil
}
