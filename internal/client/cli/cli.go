// Package cli команды клиента tasksync.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iudanet/tasksync/internal/client/data"
	"github.com/iudanet/tasksync/internal/client/encryption"
	"github.com/iudanet/tasksync/internal/client/imex"
	"github.com/iudanet/tasksync/internal/client/iocli"
	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/client/sync"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/validation"
)

// MasterPasswordEnv переменная окружения с паролем шифрования
const MasterPasswordEnv = "TASKSYNC_MASTER_PASSWORD"

// Passwords источники пароля шифрования, кроме окружения и интерактивного ввода
type Passwords struct {
	FromFile string
	FromArgs string
}

// StatusStore сведения о локальном состоянии синхронизации
type StatusStore interface {
	PendingCount(ctx context.Context) (int, error)
	ListConflicts(ctx context.Context) ([]*models.EntityConflictState, error)
	GetSyncState(ctx context.Context) (*storage.SyncState, error)
	GetCursor(ctx context.Context) (int64, error)
}

// Cli выполняет команды над сервисами клиента
type Cli struct {
	io        iocli.IO
	data      data.Service
	engine    *sync.Engine
	gateway   *encryption.Gateway
	store     StatusStore
	imex      *imex.Coordinator
	logger    *slog.Logger
	cfg       *Config
	passwords Passwords
}

func newCli(stdio iocli.IO, a *app, cfg *Config, logger *slog.Logger) *Cli {
	return &Cli{
		io:        stdio,
		data:      a.data,
		engine:    a.engine,
		gateway:   a.gateway,
		store:     a.store,
		imex:      a.imex,
		logger:    logger,
		cfg:       cfg,
		passwords: Passwords{FromFile: cfg.MasterPasswordFile},
	}
}

// getMasterPassword retrieves master password from various sources with priority:
// 1. Environment variable TASKSYNC_MASTER_PASSWORD
// 2. File specified in passwords.FromFile
// 3. Command-line parameter passwords.FromArgs
// 4. Interactive prompt (fallback)
func (c *Cli) getMasterPassword(passwords Passwords) (string, error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(MasterPasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	// Priority 2: File
	if passwords.FromFile != "" {
		content, err := os.ReadFile(passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	// Priority 3: CLI parameter
	if passwords.FromArgs != "" {
		return passwords.FromArgs, nil
	}

	// Priority 4: Interactive prompt (fallback)
	password, err := c.io.ReadPassword("Encryption password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	return password, nil
}

// readNewPassword запрашивает новый пароль дважды
func (c *Cli) readNewPassword() (string, error) {
	if envPassword := os.Getenv(MasterPasswordEnv); envPassword != "" {
		return envPassword, validation.ValidatePassword(envPassword)
	}

	password, err := c.io.ReadPassword("New encryption password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return "", err
	}

	confirm, err := c.io.ReadPassword("Repeat password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if confirm != password {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// ensureUnlocked устанавливает ключ, если шифрование включено, а ключа в памяти нет
func (c *Cli) ensureUnlocked(ctx context.Context) error {
	if !c.gateway.IsEnabled() || !c.gateway.NeedsPassword() {
		return nil
	}

	password, err := c.getMasterPassword(c.passwords)
	if err != nil {
		return err
	}
	if err := c.gateway.Unlock(ctx, password); err != nil {
		return fmt.Errorf("failed to unlock encryption: %w", err)
	}
	return nil
}

func parseRef(entityType, id string) (models.EntityRef, error) {
	if err := validation.ValidateEntityType(entityType); err != nil {
		return models.EntityRef{}, err
	}
	if err := validation.ValidateIdentifier(id); err != nil {
		return models.EntityRef{}, err
	}
	return models.EntityRef{Type: models.EntityType(entityType), ID: id}, nil
}
