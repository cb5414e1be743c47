package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Sync Status ===")
	c.io.Println()

	c.io.Printf("Device:     %s\n", c.engine.ClientID())
	c.io.Printf("Server:     %s\n", c.cfg.Server)

	state, err := c.store.GetSyncState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}
	c.io.Printf("Status:     %s\n", state.Status)
	if !state.LastSyncAt.IsZero() {
		c.io.Printf("Last sync:  %s\n", state.LastSyncAt.Format(time.RFC3339))
	}
	if state.LastError != "" {
		c.io.Printf("Last error: %s\n", state.LastError)
	}

	cursor, err := c.store.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cursor: %w", err)
	}
	c.io.Printf("Position:   %d\n", cursor)

	switch {
	case !c.gateway.IsEnabled():
		c.io.Println("Encryption: disabled")
	case c.gateway.NeedsPassword():
		c.io.Println("Encryption: enabled (password required)")
	default:
		c.io.Println("Encryption: enabled")
	}

	c.io.Println()

	// Получаем количество операций, ожидающих синхронизации
	pendingCount, err := c.store.PendingCount(ctx)
	if err != nil {
		// Не прерываем выполнение
		c.io.Printf("Warning: Failed to get pending count: %v\n", err)
	} else if pendingCount > 0 {
		c.io.Printf("⚠️  Pending sync: %d operation(s) waiting to be synchronized\n", pendingCount)
		c.io.Println("Run 'tasksync sync' to synchronize with server.")
	} else {
		c.io.Println("✓ All data synchronized with server")
	}

	conflicts, err := c.store.ListConflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}
	for _, cs := range conflicts {
		c.io.Printf("Conflict:   %s (attempt %d of %d)\n", cs.EntityRef, cs.RetryCount, c.cfg.MaxResolutionAttempts)
	}

	return nil
}
