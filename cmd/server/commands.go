package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/tasksync/internal/server"
	"github.com/iudanet/tasksync/internal/server/jwt"
	"github.com/iudanet/tasksync/internal/server/storage/sqlite"
)

// envPrefix префикс переменных окружения сервера
const envPrefix = "TASKSYNC_SERVER"

const (
	keyAddr       = "addr"
	keyDB         = "db"
	keyJWTSecret  = "jwt_secret"
	keyRateLimit  = "rate_limit"
	keyRateWindow = "rate_window"
	keyLogLevel   = "log_level"
)

type serverConfig struct {
	Addr       string
	DBPath     string
	JWTSecret  string
	RateLimit  int
	RateWindow time.Duration
	LogLevel   slog.Level
}

func newViper() *viper.Viper {
	defaults := server.DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyAddr, ":8080")
	v.SetDefault(keyDB, "tasksync-server.db")
	v.SetDefault(keyRateLimit, defaults.RateLimit)
	v.SetDefault(keyRateWindow, defaults.RateWindow)
	v.SetDefault(keyLogLevel, "info")
	return v
}

func loadConfig(v *viper.Viper) (*serverConfig, error) {
	cfg := &serverConfig{
		Addr:       v.GetString(keyAddr),
		DBPath:     v.GetString(keyDB),
		JWTSecret:  v.GetString(keyJWTSecret),
		RateLimit:  v.GetInt(keyRateLimit),
		RateWindow: v.GetDuration(keyRateWindow),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(keyLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", keyLogLevel, err)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required (--jwt-secret or TASKSYNC_SERVER_JWT_SECRET)")
	}
	if cfg.RateLimit <= 0 || cfg.RateWindow <= 0 {
		return nil, fmt.Errorf("%s and %s must be positive", keyRateLimit, keyRateWindow)
	}
	return cfg, nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "tasksync-server",
		Short:         "tasksync-server - operation log sync server",
		Version:       version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("jwt-secret", "", "secret for signing bearer tokens")
	flags.String("db", "", "path to SQLite database")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	for key, name := range map[string]string{
		keyJWTSecret: "jwt-secret",
		keyDB:        "db",
		keyLogLevel:  "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(newServeCmd(v, stderr), newTokenCmd(v, stdout))
	return cmd
}

func newServeCmd(v *viper.Viper, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			return serve(cmd.Context(), cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "", "listen address")
	flags.Int("rate-limit", 0, "requests per window per client IP")
	flags.Duration("rate-window", 0, "rate limit window")
	for key, name := range map[string]string{
		keyAddr:       "addr",
		keyRateLimit:  "rate-limit",
		keyRateWindow: "rate-window",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func serve(ctx context.Context, cfg *serverConfig, logger *slog.Logger) error {
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	httpCfg := server.DefaultConfig()
	httpCfg.Version = Version
	httpCfg.RateLimit = cfg.RateLimit
	httpCfg.RateWindow = cfg.RateWindow

	srv := server.New(logger, store, jwt.NewService([]byte(cfg.JWTSecret), 0), httpCfg)
	defer srv.Close()

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	logger.Info("tasksync server", "version", Version, "db", cfg.DBPath)
	return srv.Serve(ctx, listener)
}

func newTokenCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			token, err := jwt.NewService([]byte(cfg.JWTSecret), ttl).GenerateToken(user)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, token)
			return err
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 - never expires)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
