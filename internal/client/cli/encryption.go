package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runEncryptionEnable(ctx context.Context) error {
	if c.gateway.IsEnabled() {
		return fmt.Errorf("encryption is already enabled, use 'tasksync encryption change-password'")
	}

	password, err := c.readNewPassword()
	if err != nil {
		return err
	}
	if err := c.engine.EnableEncryption(ctx, password); err != nil {
		return err
	}

	c.io.Println("✓ Encryption enabled")
	c.io.Println("Run 'tasksync sync' to replace remote data with the encrypted state.")
	return nil
}

func (c *Cli) runEncryptionDisable(ctx context.Context, assumeYes bool) error {
	if !c.gateway.IsEnabled() {
		return fmt.Errorf("encryption is not enabled")
	}

	if !assumeYes {
		ok, err := c.io.Confirm("Remote data will be stored unencrypted. Continue?")
		if err != nil {
			return err
		}
		if !ok {
			c.io.Println("Cancelled.")
			return nil
		}
	}

	if err := c.engine.DisableEncryption(ctx); err != nil {
		return err
	}

	c.io.Println("✓ Encryption disabled")
	return nil
}

func (c *Cli) runChangePassword(ctx context.Context) error {
	if !c.gateway.IsEnabled() {
		return fmt.Errorf("encryption is not enabled, use 'tasksync encryption enable'")
	}

	// текущий пароль проверяется по отпечатку ключа
	if err := c.ensureUnlocked(ctx); err != nil {
		return err
	}

	password, err := c.readNewPassword()
	if err != nil {
		return err
	}
	if err := c.engine.ChangePassword(ctx, password); err != nil {
		return err
	}

	c.io.Println("✓ Password changed")
	c.io.Println("Other devices will ask for the new password on their next sync.")
	return nil
}
