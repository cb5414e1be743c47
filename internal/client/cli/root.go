package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/tasksync/internal/client/iocli"
)

// Options зависимости корневой команды
type Options struct {
	IO      iocli.IO
	Stderr  io.Writer // логи и метрики
	Version string
}

// NewRootCmd creates the root command of the tasksync client.
func NewRootCmd(opts Options) *cobra.Command {
	v := newViper()
	var configPath string

	cmd := &cobra.Command{
		Use:           "tasksync",
		Short:         "tasksync - offline-first task and tag sync client",
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.config/tasksync/config.yaml)")
	flags.String("server", "", "server URL")
	flags.String("db", "", "path to local database")
	flags.String("token", "", "bearer token for the server")
	flags.String("client-id", "", "override device client ID")
	flags.String("master-password-file", "", "file with the encryption password")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.Bool("otel", false, "write sync metrics to stderr")

	for key, name := range map[string]string{
		keyServer:             "server",
		keyDB:                 "db",
		keyToken:              "token",
		keyClientID:           "client-id",
		keyMasterPasswordFile: "master-password-file",
		keyLogLevel:           "log-level",
		keyOtelEnabled:        "otel",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	// run открывает хранилище на время одной команды
	run := func(cmd *cobra.Command, fn func(ctx context.Context, c *Cli) error) error {
		if err := readConfigFile(v, configPath); err != nil {
			return err
		}
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		ctx := cmd.Context()

		a, err := openApp(ctx, cfg, logger, opts.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Error("failed to close client", "error", err)
			}
		}()

		return fn(ctx, newCli(opts.IO, a, cfg, logger))
	}

	cmd.AddCommand(
		newPutCmd(run),
		newGetCmd(run),
		newListCmd(run),
		newDeleteCmd(run),
		newSyncCmd(run),
		newWatchCmd(run),
		newStatusCmd(run),
		newExportCmd(run),
		newImportCmd(run),
		newEncryptionCmd(run),
	)

	return cmd
}

type runFunc func(cmd *cobra.Command, fn func(ctx context.Context, c *Cli) error) error

func newPutCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "put <type> <id> <json>",
		Short: "Create or update an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runPut(ctx, args[0], args[1], args[2])
			})
		},
	}
}

func newGetCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Show an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runGet(ctx, args[0], args[1])
			})
		},
	}
}

func newListCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list [type]",
		Short: "List entities",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entityType string
			if len(args) == 1 {
				entityType = args[0]
			}
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runList(ctx, entityType)
			})
		},
	}
}

func newDeleteCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runDelete(ctx, args[0], args[1])
			})
		},
	}
}

func newSyncCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runSync(ctx)
			})
		},
	}
}

func newWatchCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Synchronize periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runWatch(ctx, c.cfg.SyncInterval)
			})
		},
	}
}

func newStatusCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show synchronization status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runStatus(ctx)
			})
		},
	}
}

func newExportCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export all entities to a backup file (\"-\" for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runExport(ctx, args[0])
			})
		},
	}
}

func newImportCmd(run runFunc) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace local data with a backup and push it on next sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runImport(ctx, args[0], assumeYes)
			})
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "accept an encryption mode change without asking")
	return cmd
}

func newEncryptionCmd(run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encryption",
		Short: "Manage end-to-end encryption",
	}

	var assumeYes bool
	disable := &cobra.Command{
		Use:   "disable",
		Short: "Store remote data unencrypted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runEncryptionDisable(ctx, assumeYes)
			})
		},
	}
	disable.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Encrypt remote data with a password",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(ctx context.Context, c *Cli) error {
					return c.runEncryptionEnable(ctx)
				})
			},
		},
		disable,
		&cobra.Command{
			Use:   "change-password",
			Short: "Re-encrypt remote data with a new password",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(ctx context.Context, c *Cli) error {
					return c.runChangePassword(ctx)
				})
			},
		},
	)
	return cmd
}
