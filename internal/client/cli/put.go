package cli

import (
	"context"
	"encoding/json"
	"fmt"
)

// runPut создает или обновляет сущность
func (c *Cli) runPut(ctx context.Context, entityType, id, body string) error {
	ref, err := parseRef(entityType, id)
	if err != nil {
		return err
	}

	if !json.Valid([]byte(body)) {
		return fmt.Errorf("data must be valid JSON")
	}

	state, err := c.data.Put(ctx, ref, json.RawMessage(body))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", ref, err)
	}

	c.io.Printf("✓ Saved %s (clock %s)\n", state.Ref, state.Clock)
	c.io.Println("Run 'tasksync sync' to synchronize with server.")
	return nil
}
