package core

import (
	"context"
	"fmt"

	"github.com/olyamironova/wallet-exchange/internal/port"
)

// withTx runs fn inside a repository transaction and commits it. Any error or
// panic from fn rolls the transaction back.
func withTx(ctx context.Context, repo port.Repository, fn func(port.Tx) error) (err error) {
	tx, err := repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
