package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/validation"
)

// runList выводит сущности, при непустом entityType только этого типа
func (c *Cli) runList(ctx context.Context, entityType string) error {
	if entityType != "" {
		if err := validation.ValidateEntityType(entityType); err != nil {
			return err
		}
	}

	states, err := c.data.List(ctx, models.EntityType(entityType))
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	if len(states) == 0 {
		c.io.Println("No entities found.")
		c.io.Println("Use 'tasksync put <type> <id> <json>' to add one.")
		return nil
	}

	c.io.Printf("Found %d entit(ies):\n", len(states))
	for _, state := range states {
		c.io.Printf("  %-32s %s\n", state.Ref, string(state.Data))
	}
	return nil
}
