// Package encryption шифрует payload операций ключом, выведенным из пароля,
// и хранит настройки шифрования устройства.
package encryption

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/tasksync/internal/crypto"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/validation"
)

//go:generate moq -out configstore_mock.go . ConfigStore

// ConfigStore хранилище настроек шифрования
type ConfigStore interface {
	GetEncryptionConfig(ctx context.Context) (*models.EncryptionConfig, error)
	SaveEncryptionConfig(ctx context.Context, cfg *models.EncryptionConfig) error
}

// Gateway шифрует и расшифровывает payload операций.
// Ключевой материал заменяется целиком под write-lock, поэтому ни одна операция
// не шифруется наполовину обновленным ключом.
type Gateway struct {
	store  ConfigStore
	logger *slog.Logger
	now    func() time.Time
	keys   map[string][]byte // ключи для чужих солей, hex(salt) -> key
	cfg    models.EncryptionConfig
	// password нужен, чтобы вывести ключ для соли другого устройства
	password string
	key      []byte
	params   crypto.KDFParams
	mu       sync.RWMutex
}

// Option настраивает Gateway
type Option func(*Gateway)

// WithKDFParams задает параметры Argon2id
func WithKDFParams(params crypto.KDFParams) Option {
	return func(g *Gateway) {
		g.params = params
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New создает Gateway. До вызова Load шифрование считается выключенным.
func New(store ConfigStore, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		store:  store,
		logger: logger,
		now:    time.Now,
		params: crypto.DefaultKDFParams(),
		keys:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load читает сохраненную конфигурацию. Ключевой материал сбрасывается:
// после Load нужно вызвать Unlock или SetPassword.
func (g *Gateway) Load(ctx context.Context) error {
	cfg, err := g.store.GetEncryptionConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load encryption config: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = *cfg
	g.clearKeysLocked()
	return nil
}

// Config возвращает копию текущей конфигурации
func (g *Gateway) Config() models.EncryptionConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cfg := g.cfg
	cfg.Salt = bytes.Clone(g.cfg.Salt)
	return cfg
}

// IsEnabled возвращает текущее состояние шифрования
func (g *Gateway) IsEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg.IsEnabled
}

// HasKey сообщает, установлен ли ключевой материал
func (g *Gateway) HasKey() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.key != nil
}

// NeedsPassword true, если шифрование включено, а ключа нет
func (g *Gateway) NeedsPassword() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg.IsEnabled && g.key == nil
}

// Encrypt шифрует payload. При выключенном шифровании возвращает копию без изменений.
func (g *Gateway) Encrypt(plain []byte) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.cfg.IsEnabled {
		return bytes.Clone(plain), nil
	}
	if g.key == nil {
		return nil, ErrEncryptionUnavailable
	}

	sealed, err := crypto.Seal(plain, g.key, g.cfg.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return sealed, nil
}

// Decrypt расшифровывает payload. Ключ выводится из соли, записанной в payload,
// так что данные другого устройства с тем же паролем тоже расшифровываются.
func (g *Gateway) Decrypt(payload []byte) ([]byte, error) {
	salt, err := crypto.EnvelopeSalt(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	key, err := g.keyForSalt(salt)
	if err != nil {
		return nil, err
	}

	plain, err := crypto.Open(payload, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plain, nil
}

func (g *Gateway) keyForSalt(salt []byte) ([]byte, error) {
	g.mu.RLock()
	if g.key != nil && bytes.Equal(salt, g.cfg.Salt) {
		key := g.key
		g.mu.RUnlock()
		return key, nil
	}
	if key, ok := g.keys[hex.EncodeToString(salt)]; ok {
		g.mu.RUnlock()
		return key, nil
	}
	password := g.password
	g.mu.RUnlock()

	if password == "" {
		return nil, fmt.Errorf("%w: no password set", ErrDecryptionFailed)
	}

	// Деривация дорогая, выполняется без блокировки
	key, err := crypto.DeriveKey(password, salt, g.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	g.mu.Lock()
	if g.password == password {
		g.keys[hex.EncodeToString(salt)] = key
	}
	g.mu.Unlock()

	return key, nil
}

// Unlock устанавливает ключ из пароля, проверяя его по сохраненному отпечатку.
// Если отпечатка нет (после импорта), пароль принимается и сохраняется.
func (g *Gateway) Unlock(ctx context.Context, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	cfg := g.Config()
	salt := cfg.Salt
	if len(salt) == 0 {
		var err error
		if salt, err = crypto.GenerateSalt(); err != nil {
			return err
		}
	}

	key, err := crypto.DeriveKey(password, salt, g.params)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	if cfg.KeyMaterialRef != "" && crypto.KeyFingerprint(key) != cfg.KeyMaterialRef {
		return ErrWrongPassword
	}

	return g.install(ctx, password, salt, key, cfg.IsEnabled)
}

// SetPassword выводит и устанавливает ключ без проверки отпечатка.
// Текущая соль сохраняется, поэтому другие устройства с тем же паролем
// продолжают расшифровывать данные. Шифрование включается.
func (g *Gateway) SetPassword(ctx context.Context, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	cfg := g.Config()
	salt := cfg.Salt
	if len(salt) == 0 {
		var err error
		if salt, err = crypto.GenerateSalt(); err != nil {
			return err
		}
	}

	key, err := crypto.DeriveKey(password, salt, g.params)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	return g.install(ctx, password, salt, key, true)
}

// Rotate устанавливает новый пароль со свежей солью и включает шифрование.
// Данные, зашифрованные старым ключом, этим ключом больше не расшифровываются.
func (g *Gateway) Rotate(ctx context.Context, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	key, err := crypto.DeriveKey(password, salt, g.params)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	return g.install(ctx, password, salt, key, true)
}

// Disable выключает шифрование и забывает ключ
func (g *Gateway) Disable(ctx context.Context) error {
	return g.Invalidate(ctx, false)
}

// Invalidate сбрасывает ключевой материал, оставляя только флаг включения.
// При enabled = true шифрование недоступно, пока не будет вызван SetPassword.
func (g *Gateway) Invalidate(ctx context.Context, enabled bool) error {
	cfg := models.EncryptionConfig{IsEnabled: enabled}
	if err := g.store.SaveEncryptionConfig(ctx, &cfg); err != nil {
		return fmt.Errorf("failed to save encryption config: %w", err)
	}

	g.mu.Lock()
	g.cfg = cfg
	g.clearKeysLocked()
	g.mu.Unlock()

	g.logger.Info("Encryption key material invalidated", "enabled", enabled)
	return nil
}

func (g *Gateway) install(ctx context.Context, password string, salt, key []byte, enabled bool) error {
	cfg := models.EncryptionConfig{
		LastVerifiedAt: g.now(),
		KeyMaterialRef: crypto.KeyFingerprint(key),
		Salt:           salt,
		IsEnabled:      enabled,
	}

	if err := g.store.SaveEncryptionConfig(ctx, &cfg); err != nil {
		return fmt.Errorf("failed to save encryption config: %w", err)
	}

	g.mu.Lock()
	g.cfg = cfg
	g.clearKeysLocked()
	g.key = key
	g.password = password
	g.mu.Unlock()

	g.logger.Debug("Encryption key installed", "enabled", enabled, "key_ref", cfg.KeyMaterialRef[:8])
	return nil
}

func (g *Gateway) clearKeysLocked() {
	g.key = nil
	g.password = ""
	clear(g.keys)
}
