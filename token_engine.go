package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// tokenByteLength is the raw entropy per token, well above the 128 bit floor.
const tokenByteLength = 32

// TokenEngine issues and redeems single-use confirmation tokens. It is the
// sole mutator of token state; raw values never touch storage, only their
// sha256 digest does.
type TokenEngine struct {
	repo   RepositoryManager
	clock  Clock
	random io.Reader
	ttls   map[TokenPurpose]time.Duration
	logger Logger
}

// NewTokenEngine returns an engine with 24h TTLs and crypto/rand entropy
func NewTokenEngine(repo RepositoryManager, cfg Config) *TokenEngine {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	return &TokenEngine{
		repo:   repo,
		clock:  time.Now,
		random: rand.Reader,
		ttls: map[TokenPurpose]time.Duration{
			PurposeEmailConfirm:  cfg.GetEmailConfirmTTL(),
			PurposePasswordReset: cfg.GetPasswordResetTTL(),
		},
		logger: defLogger{},
	}
}

func (e *TokenEngine) WithLogger(logger Logger) *TokenEngine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithClock injects a custom time source (useful for tests)
func (e *TokenEngine) WithClock(clock Clock) *TokenEngine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// WithRandom overrides the entropy source (useful for tests)
func (e *TokenEngine) WithRandom(r io.Reader) *TokenEngine {
	if r != nil {
		e.random = r
	}
	return e
}

// WithTTL overrides the time-to-live for one purpose
func (e *TokenEngine) WithTTL(purpose TokenPurpose, ttl time.Duration) *TokenEngine {
	if purpose.IsValid() && ttl > 0 {
		e.ttls[purpose] = ttl
	}
	return e
}

// TTL returns the configured time-to-live for a purpose
func (e *TokenEngine) TTL(purpose TokenPurpose) time.Duration {
	return e.ttls[purpose]
}

// IssueToken retires any outstanding token of the same purpose for the user,
// stores a fresh record, and returns the raw value. This is the only time the
// raw value exists outside the caller's hands.
func (e *TokenEngine) IssueToken(ctx context.Context, userID uuid.UUID, purpose TokenPurpose) (string, error) {
	select {
	case <-ctx.Done():
		return "", goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during token issue")
	default:
	}

	if !purpose.IsValid() {
		return "", goerrors.New("unknown token purpose", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": purpose})
	}

	raw, err := e.generateTokenValue()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token value")
	}

	now := e.clock()
	record := &ConfirmationToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashTokenValue(raw),
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.ttls[purpose]),
	}

	err = e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := e.repo.ConfirmationTokens().InvalidateActiveTx(ctx, tx, userID, purpose, now); err != nil {
			return WrapStoreError(err, "failed to invalidate prior tokens")
		}

		if _, err := e.repo.ConfirmationTokens().CreateTx(ctx, tx, record); err != nil {
			return WrapStoreError(err, "failed to store confirmation token")
		}

		return nil
	})

	if err != nil {
		return "", err
	}

	return raw, nil
}

// ValidateAndConsume redeems a raw token value. The existence, purpose,
// expiry, and consumed checks plus the consumed write all happen inside one
// transaction: two requests racing on the same value get exactly one success.
// Errors are internally distinguishable via IsTokenError; callers facing the
// outside world should collapse them (see Lifecycle).
func (e *TokenEngine) ValidateAndConsume(ctx context.Context, raw string, purpose TokenPurpose) (uuid.UUID, error) {
	select {
	case <-ctx.Done():
		return uuid.Nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during token validation")
	default:
	}

	var userID uuid.UUID
	hash := HashTokenValue(raw)

	err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := e.repo.ConfirmationTokens().GetByHashTx(ctx, tx, hash)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return errTokenNotFound
			}
			return WrapStoreError(err, "failed to look up token")
		}

		if record.Purpose != purpose {
			return errTokenWrongPurpose
		}

		if record.Consumed() {
			return errTokenConsumed
		}

		if record.ExpiredAt(e.clock()) {
			return errTokenExpired
		}

		won, err := e.repo.ConfirmationTokens().ConsumeTx(ctx, tx, record.ID, e.clock())
		if err != nil {
			return WrapStoreError(err, "failed to consume token")
		}

		if !won {
			return errTokenConsumed
		}

		userID = record.UserID
		return nil
	})

	if err != nil {
		return uuid.Nil, err
	}

	return userID, nil
}

// StartReaper deletes expired rows every interval until ctx is cancelled.
// Purely housekeeping: validation is lazy and correct without it.
func (e *TokenEngine) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.repo.ConfirmationTokens().DeleteExpired(ctx, e.clock())
				if err != nil {
					e.logger.Warn("token reaper sweep failed", "error", err)
					continue
				}
				if n > 0 {
					e.logger.Debug("token reaper removed expired tokens", "count", n)
				}
			}
		}
	}()
}

func (e *TokenEngine) generateTokenValue() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := io.ReadFull(e.random, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashTokenValue is the at-rest digest of a raw token value. Storing only the
// digest means a leaked token table cannot be replayed against accounts.
func HashTokenValue(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
