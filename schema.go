package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

// CreateSchema creates the users and confirmation_tokens tables. Intended for
// tests and bootstrapping; production deployments normally own migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*User)(nil),
		(*ConfirmationToken)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
