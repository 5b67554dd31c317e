package accounts

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore owns user records and password material. It is the only
// component that writes password hashes or the active/confirmed flags.
type CredentialStore struct {
	repo             RepositoryManager
	cfg              Config
	logger           Logger
	clock            Clock
	deterministicIDs bool

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialStore creates a store with default config
func NewCredentialStore(repo RepositoryManager, cfg Config) *CredentialStore {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	return &CredentialStore{
		repo:   repo,
		cfg:    cfg,
		logger: defLogger{},
		clock:  time.Now,
	}
}

func (s *CredentialStore) WithLogger(logger Logger) *CredentialStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom time source (useful for tests)
func (s *CredentialStore) WithClock(clock Clock) *CredentialStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithDeterministicIDs derives user IDs from the email via hashid instead of
// random UUIDs. Useful when the same account must map to the same ID across
// environments.
func (s *CredentialStore) WithDeterministicIDs() *CredentialStore {
	s.deterministicIDs = true
	return s
}

// CreateUser normalizes the email, hashes the password, and persists a new
// inactive, unconfirmed user. Conflicts surface as ErrDuplicateEmail or
// ErrDuplicateUsername; a password under the configured minimum as
// ErrWeakPassword.
func (s *CredentialStore) CreateUser(ctx context.Context, email, username, rawPassword string) (*User, error) {
	if len(rawPassword) < s.cfg.GetMinPasswordLength() {
		return nil, ErrWeakPassword
	}

	hash, err := HashPasswordWithCost(rawPassword, s.cfg.GetPasswordHashCost())
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Email:        NormalizeEmail(email),
		Username:     username,
		PasswordHash: hash,
	}

	if s.deterministicIDs {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	record, err := s.repo.Users().Register(ctx, user)
	if err != nil {
		return nil, err
	}

	return record, nil
}

// VerifyPassword reports whether rawPassword matches the user's stored hash.
// The comparison cost does not depend on how the inputs differ.
func (s *CredentialStore) VerifyPassword(user *User, rawPassword string) bool {
	if user == nil || user.PasswordHash == "" {
		s.DummyCompare(rawPassword)
		return false
	}
	return ComparePasswordAndHash(rawPassword, user.PasswordHash) == nil
}

// DummyCompare runs a bcrypt comparison against a fixed throwaway hash so a
// miss takes as long as a real verification. The throwaway hash uses the
// store's configured cost, keeping the miss and hit paths on the same curve.
func (s *CredentialStore) DummyCompare(rawPassword string) {
	s.dummyOnce.Do(func() {
		h, err := HashPasswordWithCost(uuid.NewString(), s.cfg.GetPasswordHashCost())
		if err != nil {
			h = RandomPasswordHash()
		}
		s.dummyHash = h
	})
	_ = ComparePasswordAndHash(rawPassword, s.dummyHash)
}

// SetPassword rehashes and replaces the stored hash, retiring every
// outstanding password-reset token for the user in the same transaction.
func (s *CredentialStore) SetPassword(ctx context.Context, userID uuid.UUID, rawPassword string) error {
	if len(rawPassword) < s.cfg.GetMinPasswordLength() {
		return ErrWeakPassword
	}

	hash, err := HashPasswordWithCost(rawPassword, s.cfg.GetPasswordHashCost())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Users().SetPasswordTx(ctx, tx, userID, hash); err != nil {
			return WrapStoreError(err, "failed to update password hash")
		}

		if _, err := s.repo.ConfirmationTokens().InvalidateActiveTx(ctx, tx, userID, PurposePasswordReset, s.clock()); err != nil {
			return WrapStoreError(err, "failed to invalidate reset tokens")
		}

		return nil
	})
}

// ActivateUser sets the active flag. Idempotent.
func (s *CredentialStore) ActivateUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Users().Activate(ctx, userID); err != nil {
		return WrapStoreError(err, "failed to activate user")
	}
	return nil
}

// ConfirmEmail sets the email-confirmed flag. Idempotent.
func (s *CredentialStore) ConfirmEmail(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Users().ConfirmEmail(ctx, userID); err != nil {
		return WrapStoreError(err, "failed to confirm email")
	}
	return nil
}
