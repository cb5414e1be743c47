package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/server/jwt"
)

func TestTokenCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out, io.Discard)
	cmd.SetArgs([]string{"token", "--user", "alice", "--jwt-secret", "test-secret"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	claims, err := jwt.NewService([]byte("test-secret"), 0).ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	t.Setenv("TASKSYNC_SERVER_JWT_SECRET", "")

	cmd := newRootCmd(io.Discard, io.Discard)
	cmd.SetArgs([]string{"token", "--user", "alice"})
	assert.ErrorContains(t, cmd.ExecuteContext(context.Background()), "jwt secret is required")
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("TASKSYNC_SERVER_JWT_SECRET", "env-secret")
	t.Setenv("TASKSYNC_SERVER_RATE_LIMIT", "10")
	t.Setenv("TASKSYNC_SERVER_RATE_WINDOW", "30s")
	t.Setenv("TASKSYNC_SERVER_ADDR", "127.0.0.1:9999")

	cfg, err := loadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RateWindow)
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cmd := newRootCmd(io.Discard, io.Discard)
	cmd.SetArgs([]string{
		"serve",
		"--jwt-secret", "test-secret",
		"--db", filepath.Join(t.TempDir(), "server.db"),
		"--addr", "127.0.0.1:18765",
	})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18765/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
