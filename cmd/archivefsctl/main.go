// Command archivefsctl mounts a single archive and runs one filesystem
// operation against it — a thin, scriptable front end over archivefs,
// the same way gvfs's own backends are driven through a mount daemon
// rather than linked directly into callers.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krishna8167/archivefscache/archivefs"
	"github.com/Krishna8167/archivefscache/metacache"
)

var (
	archivePath string
	formatFlag  string
	filtersFlag string
	createFlag  bool
	configPath  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "archivefsctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "archivefsctl",
		Short:         "Inspect and edit a single archive through archivefs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&archivePath, "archive", "", "path to the archive file (required)")
	root.PersistentFlags().StringVar(&formatFlag, "format", "", "container format code (1=tar, 2=zip); auto-detected if omitted")
	root.PersistentFlags().StringVar(&filtersFlag, "filters", "", "comma-separated filter codes, outermost first")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	root.MarkPersistentFlagRequired("archive")

	root.AddCommand(
		newLsCmd(),
		newCatCmd(),
		newMkdirCmd(),
		newMvCmd(),
		newRmCmd(),
		newPushCmd(),
		newCreateCmd(),
	)
	return root
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return cfg.Build()
}

// openBackend loads the config file (if any), builds a logger and a
// fresh MetaCache sized from it, and mounts archivePath — the common
// setup every subcommand except "create" needs.
func openBackend(ctx context.Context) (*archivefs.Backend, *metacache.MetaCache, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}

	meta := metacache.New(cfg.InfoCacheEntries, cfg.InfoCacheTTL, cfg.EnumCacheEntries, cfg.EnumCacheTTL,
		metacache.WithLogger(logger))

	spec := archivefs.MountSpec{"file": archivePath}
	if formatFlag != "" {
		spec["format"] = formatFlag
	}
	if filtersFlag != "" {
		spec["filters"] = filtersFlag
	}

	b, err := archivefs.Mount(ctx, spec, meta, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, err
	}

	cleanup := func() {
		meta.Close()
		logger.Sync()
	}
	return b, meta, cleanup, nil
}

func attrAll() *metacache.AttributeMatcher { return metacache.NewAttributeMatcher("*") }

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, cleanup, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			infos, err := b.Enumerate(ctx, args[0], attrAll(), metacache.QueryFlagsNone)
			if err != nil {
				return err
			}
			for _, info := range infos {
				kind := "-"
				if info.Type() == metacache.TypeDirectory {
					kind = "d"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %10d %s\n", kind, info.Size(), info.Name())
			}
			return nil
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print an entry's contents to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, cleanup, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			h, err := b.OpenForRead(ctx, args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			buf := make([]byte, 32*1024)
			for {
				n, rerr := h.Read(buf)
				if n > 0 {
					cmd.OutOrStdout().Write(buf[:n])
				}
				if rerr != nil {
					break
				}
			}
			return nil
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, cleanup, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return b.MakeDirectory(ctx, args[0])
		},
	}
}

func newMvCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Move or rename an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, cleanup, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			flags := archivefs.OverwriteNone
			if overwrite {
				flags = archivefs.OverwriteAllowed
			}
			return b.Move(ctx, args[0], args[1], flags)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing non-directory destination")
	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete an entry (directories must be empty)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, cleanup, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return b.Delete(ctx, args[0])
		},
	}
}

func newPushCmd() *cobra.Command {
	var overwrite, removeSource bool
	cmd := &cobra.Command{
		Use:   "push <local-file> <path>",
		Short: "Write a local file into the archive at path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, cleanup, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			flags := archivefs.OverwriteNone
			if overwrite {
				flags = archivefs.OverwriteAllowed
			}
			return b.Push(ctx, args[1], args[0], flags, removeSource)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing non-directory destination")
	cmd.Flags().BoolVar(&removeSource, "remove-source", false, "delete the local file after a successful commit")
	return cmd
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new, empty archive at --archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := buildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			meta := metacache.New(cfg.InfoCacheEntries, cfg.InfoCacheTTL, cfg.EnumCacheEntries, cfg.EnumCacheTTL)
			defer meta.Close()

			code := formatFlag
			if code == "" {
				code = strconv.Itoa(int(archivefs.FormatTar))
			}
			spec := archivefs.MountSpec{"file": archivePath, "create": "", "format": code}
			_, err = archivefs.Mount(ctx, spec, meta, logger)
			return err
		},
	}
	return cmd
}
