// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cli // import "newshub.app/internal/cli"

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newshub.app/internal/config"
	"newshub.app/internal/storage"
	"newshub.app/internal/syncer"
)

var cleanupCmd = cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired cache entries, old fingerprints and sync updates",
	Args:  cobra.ExactArgs(0),

	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(
			func(ctx context.Context, store *storage.Storage) error {
				return runCleanupOnce(ctx, store)
			})
	},
}

func runCleanupOnce(ctx context.Context, store *storage.Storage) error {
	rt, err := newRuntime(ctx, store)
	if err != nil {
		return err
	}

	evicted, err := store.CacheEvictExpired(ctx, rt.clock.Now())
	if err != nil {
		return err
	}
	fmt.Println("evicted cache entries:", evicted)

	pruned, err := rt.deduper.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Println("pruned fingerprints:", pruned)

	if rt.bucket != nil {
		removed, err := syncer.Cleanup(ctx, rt.bucket,
			config.Opts.SyncPrefix(), config.Opts.SyncMaxAge(), rt.clock)
		if err != nil {
			return err
		}
		fmt.Println("removed sync updates:", removed)
	}
	return nil
}
