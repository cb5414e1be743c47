package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/tasksync/internal/client/data"
)

// runDelete удаляет сущность (tombstone синхронизируется как delete операция)
func (c *Cli) runDelete(ctx context.Context, entityType, id string) error {
	ref, err := parseRef(entityType, id)
	if err != nil {
		return err
	}

	if err := c.data.Delete(ctx, ref); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return fmt.Errorf("%s not found", ref)
		}
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}

	c.io.Printf("✓ Deleted %s\n", ref)
	return nil
}
