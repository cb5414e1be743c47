package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/tasksync/internal/client/encryption"
	"github.com/iudanet/tasksync/internal/client/scheduler"
	"github.com/iudanet/tasksync/internal/client/sync"
	"github.com/iudanet/tasksync/internal/models"
)

// runSync выполняет один цикл синхронизации.
// Ошибка расшифровки предлагает ввести пароль заново.
func (c *Cli) runSync(ctx context.Context) error {
	if err := c.ensureUnlocked(ctx); err != nil {
		return err
	}

	c.io.Println("Starting synchronization with server...")

	res, err := c.engine.RunSyncCycle(ctx)
	if errors.Is(err, encryption.ErrDecryptionFailed) {
		res, err = c.resolveDecryptError(ctx)
	}
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	c.printCycle(res)

	if res.Status == models.SyncStatusError {
		return fmt.Errorf("synchronization finished with errors: %w", res.Err)
	}
	return nil
}

// resolveDecryptError спрашивает пароль и способ восстановления
func (c *Cli) resolveDecryptError(ctx context.Context) (*sync.CycleResult, error) {
	c.io.Println("⚠️  Remote data could not be decrypted: wrong password or corrupted data.")

	password, err := c.io.ReadPassword("Encryption password used on other devices: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return nil, encryption.ErrDecryptionFailed
	}

	overwrite, err := c.io.Confirm("Overwrite remote data with this device's state instead of retrying?")
	if err != nil {
		return nil, err
	}

	remedy := sync.RemedyResync
	if overwrite {
		remedy = sync.RemedyForceUpload
	}
	return c.engine.ResolveDecryptError(ctx, password, remedy)
}

func (c *Cli) printCycle(res *sync.CycleResult) {
	c.io.Println()
	if res.Status == models.SyncStatusSuccess {
		c.io.Println("✓ Synchronization completed successfully!")
	} else {
		c.io.Println("✗ Synchronization completed with errors")
	}
	c.io.Println()
	c.io.Printf("Uploaded:          %d operation(s), %d accepted\n", res.Uploaded, res.Accepted)
	c.io.Printf("Downloaded:        %d operation(s), %d applied\n", res.Downloaded, res.Applied)
	if res.Conflicts > 0 {
		c.io.Printf("Conflicts:         %d (%d merged, retried next cycle)\n", res.Conflicts, res.Merged)
	}
	if res.PermanentlyRejected > 0 {
		c.io.Printf("Rejected:          %d entit(ies), local data kept\n", res.PermanentlyRejected)
	}
	if res.LeftPending > 0 {
		c.io.Printf("Still pending:     %d operation(s)\n", res.LeftPending)
	}
	c.io.Printf("Server position:   %d\n", res.LatestSeq)
}

// runWatch синхронизирует периодически до отмены ctx
func (c *Cli) runWatch(ctx context.Context, interval time.Duration) error {
	if err := c.ensureUnlocked(ctx); err != nil {
		return err
	}

	c.io.Printf("Watching: sync every %s (Ctrl+C to stop)\n", interval)

	s := scheduler.New(c.engine, scheduler.Config{
		Interval: interval,
		OnCycle: func(res *sync.CycleResult) {
			line := fmt.Sprintf("[%s] %s: up %d, down %d",
				time.Now().Format(time.TimeOnly), res.Status, res.Uploaded, res.Downloaded)
			if res.Err != nil {
				line += fmt.Sprintf(" (%v)", res.Err)
			}
			c.io.Println(line)
		},
	}, c.logger)

	if err := s.Run(ctx); err != nil {
		if errors.Is(err, encryption.ErrDecryptionFailed) {
			c.io.Println("Run 'tasksync sync' to enter the encryption password.")
		}
		return err
	}
	return nil
}
