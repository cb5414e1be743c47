package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/iudanet/tasksync/internal/client/imex"
)

// runExport пишет бэкап в файл ("-" - stdout)
func (c *Cli) runExport(ctx context.Context, path string) error {
	backup, err := c.imex.Export(ctx)
	if err != nil {
		return err
	}

	if path == "-" {
		return imex.WriteBackup(c.io, backup)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	if err := imex.WriteBackup(f, backup); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	c.io.Printf("✓ Exported %d entit(ies) to %s\n", len(backup.Entities), path)
	return nil
}

// runImport заменяет локальное состояние бэкапом.
// assumeYes подтверждает смену режима шифрования без вопроса.
func (c *Cli) runImport(ctx context.Context, path string, assumeYes bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	backup, err := imex.ReadBackup(f)
	if err != nil {
		return err
	}

	confirmer := imex.ConfirmFunc(func(ctx context.Context, currentEncrypted, backupEncrypted bool) (bool, error) {
		if assumeYes {
			return true, nil
		}
		c.io.Printf("Backup encryption: %s, this device: %s.\n", onOff(backupEncrypted), onOff(currentEncrypted))
		c.io.Println("Importing replaces all local data and applies the backup's encryption setting.")
		return c.io.Confirm("Continue?")
	})

	res, err := c.imex.Import(ctx, backup, confirmer)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	c.io.Printf("✓ Imported %d entit(ies) (%s)\n", res.Entities, res.Decision)
	if res.NeedsPassword {
		c.io.Println("Backup is encrypted: the encryption password will be requested on next sync.")
	}
	c.io.Println("Run 'tasksync sync' to replace remote data with the imported state.")
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
