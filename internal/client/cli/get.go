package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/tasksync/internal/client/data"
)

// runGet показывает одну сущность
func (c *Cli) runGet(ctx context.Context, entityType, id string) error {
	ref, err := parseRef(entityType, id)
	if err != nil {
		return err
	}

	state, err := c.data.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return fmt.Errorf("%s not found", ref)
		}
		return fmt.Errorf("failed to get %s: %w", ref, err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, state.Data, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(state.Data)
	}

	c.io.Printf("=== %s ===\n", state.Ref)
	c.io.Printf("Updated: %s\n", state.UpdatedAt.Format(time.RFC3339))
	c.io.Printf("Clock:   %s\n", state.Clock)
	c.io.Println()
	c.io.Println(pretty.String())
	return nil
}
