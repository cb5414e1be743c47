package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iudanet/tasksync/internal/client/resolver"
	"github.com/iudanet/tasksync/internal/client/scheduler"
	"github.com/iudanet/tasksync/internal/client/sync"
)

// EnvPrefix префикс переменных окружения клиента
const EnvPrefix = "TASKSYNC"

// Ключи конфигурации
const (
	keyServer             = "server"
	keyDB                 = "db"
	keyToken              = "token"
	keyClientID           = "client_id"
	keyMasterPasswordFile = "master_password_file"
	keySyncInterval       = "sync.interval"
	keyMaxAttempts        = "sync.max_concurrent_resolution_attempts"
	keyBatchSize          = "sync.batch_size"
	keyLogLevel           = "log.level"
	keyOtelEnabled        = "otel.enabled"
)

// Config настройки клиента
type Config struct {
	Server                string
	DBPath                string
	Token                 string
	ClientID              string
	MasterPasswordFile    string
	LogLevel              slog.Level
	SyncInterval          time.Duration
	MaxResolutionAttempts int
	BatchSize             int
	OtelEnabled           bool
}

// newViper создает viper с значениями по умолчанию и чтением TASKSYNC_* из окружения
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyServer, "http://localhost:8080")
	v.SetDefault(keyDB, "tasksync.db")
	v.SetDefault(keySyncInterval, scheduler.DefaultInterval)
	v.SetDefault(keyMaxAttempts, resolver.DefaultMaxAttempts)
	v.SetDefault(keyBatchSize, sync.DefaultBatchSize)
	v.SetDefault(keyLogLevel, "warn")
	v.SetDefault(keyOtelEnabled, false)
	return v
}

// readConfigFile читает явно указанный файл или ~/.config/tasksync/config.yaml, если он есть
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(dir, "tasksync"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// loadConfig собирает Config из viper (флаги > окружение > файл > значения по умолчанию)
func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server:                strings.TrimRight(v.GetString(keyServer), "/"),
		DBPath:                v.GetString(keyDB),
		Token:                 v.GetString(keyToken),
		ClientID:              v.GetString(keyClientID),
		MasterPasswordFile:    v.GetString(keyMasterPasswordFile),
		SyncInterval:          v.GetDuration(keySyncInterval),
		MaxResolutionAttempts: v.GetInt(keyMaxAttempts),
		BatchSize:             v.GetInt(keyBatchSize),
		OtelEnabled:           v.GetBool(keyOtelEnabled),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(keyLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", keyLogLevel, err)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("%s cannot be empty", keyDB)
	}
	if cfg.MaxResolutionAttempts < 1 {
		return nil, fmt.Errorf("%s must be positive", keyMaxAttempts)
	}
	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("%s must be positive", keySyncInterval)
	}

	return cfg, nil
}
