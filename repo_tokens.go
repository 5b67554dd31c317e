package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ConfirmationTokens interface {
	repository.Repository[*ConfirmationToken]

	GetByHash(ctx context.Context, hash string) (*ConfirmationToken, error)
	GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*ConfirmationToken, error)

	// Consume marks the token used iff it is still unconsumed. Returns true
	// when this caller won the write; false means someone got there first.
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)

	// InvalidateActive consumes every outstanding token of the given purpose
	// for a user, returning how many were retired.
	InvalidateActive(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, at time.Time) (int64, error)
	InvalidateActiveTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, at time.Time) (int64, error)

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	DeleteExpiredTx(ctx context.Context, tx bun.IDB, before time.Time) (int64, error)
}

type confirmationTokens struct {
	repository.Repository[*ConfirmationToken]
	db *bun.DB
}

var (
	_ ConfirmationTokens                        = (*confirmationTokens)(nil)
	_ repository.Repository[*ConfirmationToken] = (*confirmationTokens)(nil)
)

func NewConfirmationTokensRepository(db *bun.DB) ConfirmationTokens {
	repo := repository.NewRepository[*ConfirmationToken](db, repository.ModelHandlers[*ConfirmationToken]{
		NewRecord: func() *ConfirmationToken { return &ConfirmationToken{} },
		GetID: func(t *ConfirmationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *ConfirmationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})

	return &confirmationTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *confirmationTokens) GetByHash(ctx context.Context, hash string) (*ConfirmationToken, error) {
	return r.GetByHashTx(ctx, r.db, hash)
}

func (r *confirmationTokens) GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*ConfirmationToken, error) {
	record := &ConfirmationToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *confirmationTokens) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.ConsumeTx(ctx, r.db, id, at)
}

// ConsumeTx is the compare-and-swap on the consumed flag: the consumed_at IS
// NULL guard means concurrent callers racing on the same token see exactly
// one rows-affected of 1.
func (r *confirmationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*ConfirmationToken)(nil)).
		Set("consumed_at = ?", at).
		Set("updated_at = ?", at).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *confirmationTokens) InvalidateActive(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, at time.Time) (int64, error) {
	return r.InvalidateActiveTx(ctx, r.db, userID, purpose, at)
}

func (r *confirmationTokens) InvalidateActiveTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, at time.Time) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*ConfirmationToken)(nil)).
		Set("consumed_at = ?", at).
		Set("updated_at = ?", at).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *confirmationTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.DeleteExpiredTx(ctx, r.db, before)
}

func (r *confirmationTokens) DeleteExpiredTx(ctx context.Context, tx bun.IDB, before time.Time) (int64, error) {
	res, err := tx.NewDelete().
		Model((*ConfirmationToken)(nil)).
		Where("?TableAlias.expires_at <= ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
