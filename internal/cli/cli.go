// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cli // import "newshub.app/internal/cli"

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"newshub.app/internal/config"
	"newshub.app/internal/storage"
	"newshub.app/internal/version"
)

var (
	flagConfigFile string
	flagDebugMode  bool
)

var Cmd = cobra.Command{
	Use:     "newshub",
	Short:   "Newshub coordinates feed ingestion across a pair of hosts.",
	Version: version.Version,

	PersistentPreRunE: persistentPreRunE,

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewDaemon().Run(); err != nil {
			slog.Error("daemon exited with error", slog.Any("error", err))
			return err
		}
		return nil
	},
}

var configDumpCmd = cobra.Command{
	Use:   "config-dump",
	Short: "Print parsed configuration values",
	Args:  cobra.ExactArgs(0),
	Run:   func(cmd *cobra.Command, args []string) { fmt.Print(config.Opts) },
}

var migrateCmd = cobra.Command{
	Use:   "migrate",
	Short: "Run SQL migrations",
	Args:  cobra.ExactArgs(0),

	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(
			func(ctx context.Context, store *storage.Storage) error {
				return store.Migrate(ctx)
			})
	},
}

var infoCmd = cobra.Command{
	Use:   "info",
	Short: "Show build information",
	Args:  cobra.ExactArgs(0),
	Run:   func(cmd *cobra.Command, args []string) { info() },
}

func info() {
	fmt.Println("Version:", version.Version)
	fmt.Println("Commit:", version.Commit)
	fmt.Println("Build Date:", version.BuildDate)
	fmt.Println("Go Version:", goruntime.Version())
	fmt.Println("Arch:", goruntime.GOARCH)
	fmt.Println("OS:", goruntime.GOOS)
}

var healthCmd = cobra.Command{
	Use:   "healthcheck",
	Short: "Check the database connection",
	Args:  cobra.ExactArgs(0),

	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(
			func(ctx context.Context, store *storage.Storage) error {
				if err := store.Ping(ctx); err != nil {
					return fmt.Errorf("health check failure: %w", err)
				}
				slog.Debug("health check is passing",
					slog.String("database", store.DatabaseVersion(ctx)))
				return nil
			})
	},
}

var sourcesCmd = cobra.Command{
	Use:   "sources",
	Short: "Validate and list the configured feed sources",
	Args:  cobra.ExactArgs(0),

	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := config.LoadSources(config.Opts.SourcesFile())
		if err != nil {
			return err
		}
		for i := range sources {
			s := &sources[i]
			fmt.Printf("%s\t%s\tevery %s\t%s\n", s.ID, s.FetchStrategy(),
				s.ScheduleEvery(), s.URL)
		}
		return nil
	},
}

func init() {
	Cmd.PersistentFlags().StringVarP(&flagConfigFile, "config-file", "c", "",
		"Path to .env configuration file")
	Cmd.PersistentFlags().BoolVarP(&flagDebugMode, "debug", "d", false,
		"Show debug logs")

	Cmd.AddCommand(&cleanupCmd)
	Cmd.AddCommand(&configDumpCmd)
	Cmd.AddCommand(&healthCmd)
	Cmd.AddCommand(&infoCmd)
	Cmd.AddCommand(&migrateCmd)
	Cmd.AddCommand(&refreshCmd)
	Cmd.AddCommand(&sourcesCmd)
	Cmd.AddCommand(&statusCmd)
}

func persistentPreRunE(cmd *cobra.Command, args []string) error {
	// Don't show usage on app errors.
	// https://github.com/spf13/cobra/issues/340#issuecomment-378726225
	cmd.SilenceUsage = true

	if err := config.Load(flagConfigFile); err != nil {
		return err
	} else if flagDebugMode {
		config.Opts.SetLogLevel("debug")
	}

	initializeDefaultLogger()
	return nil
}

func withStorage(fn func(ctx context.Context, store *storage.Storage) error,
) error {
	ctx := context.Background()
	store, err := makeStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)
	return fn(ctx, store)
}

func makeStorage(ctx context.Context) (*storage.Storage, error) {
	store, err := storage.New(ctx,
		config.Opts.DatabaseURL(),
		config.Opts.DatabaseMaxConns(),
		config.Opts.DatabaseMinConns(),
		config.Opts.DatabaseConnectionLifetime())
	if err != nil {
		return nil, err
	}

	if err := store.Ping(ctx); err != nil {
		store.Close(ctx)
		return nil, err
	}
	return store, nil
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
