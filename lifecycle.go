package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Lifecycle orchestrates registration, email confirmation, password reset,
// and authentication over the credential store and the token engine. It is
// the programmatic surface a web layer calls into; it issues no sessions and
// renders nothing.
type Lifecycle struct {
	repo     RepositoryManager
	creds    *CredentialStore
	tokens   *TokenEngine
	notifier Notifier
	sink     ActivitySink
	logger   Logger
	cfg      Config
}

// NewLifecycle wires a Lifecycle with its own credential store and token
// engine over the given repositories.
func NewLifecycle(repo RepositoryManager, cfg Config) *Lifecycle {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	return &Lifecycle{
		repo:     repo,
		creds:    NewCredentialStore(repo, cfg),
		tokens:   NewTokenEngine(repo, cfg),
		notifier: noopNotifier{},
		sink:     noopActivitySink{},
		logger:   defLogger{},
		cfg:      cfg,
	}
}

func (l *Lifecycle) WithLogger(logger Logger) *Lifecycle {
	if logger != nil {
		l.logger = logger
		l.creds.WithLogger(logger)
		l.tokens.WithLogger(logger)
	}
	return l
}

// WithNotifier sets the notification gateway used for confirmation and reset
// messages.
func (l *Lifecycle) WithNotifier(n Notifier) *Lifecycle {
	l.notifier = normalizeNotifier(n)
	return l
}

// WithActivitySink configures an ActivitySink for emitting lifecycle events.
func (l *Lifecycle) WithActivitySink(sink ActivitySink) *Lifecycle {
	l.sink = normalizeActivitySink(sink)
	return l
}

// WithClock injects a custom time source into the store and the engine
func (l *Lifecycle) WithClock(clock Clock) *Lifecycle {
	l.creds.WithClock(clock)
	l.tokens.WithClock(clock)
	return l
}

// CredentialStore returns the CredentialStore instance used by this Lifecycle
func (l *Lifecycle) CredentialStore() *CredentialStore {
	return l.creds
}

// TokenEngine returns the TokenEngine instance used by this Lifecycle
func (l *Lifecycle) TokenEngine() *TokenEngine {
	return l.tokens
}

// Register creates an inactive, unconfirmed user and issues an email
// confirmation token. Notification delivery is best effort: a failure is
// logged and the account stays pending, it never rolls back the user.
func (l *Lifecycle) Register(ctx context.Context, payload RegistrationPayload) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during registration")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := payload.Validate(l.cfg.GetMinPasswordLength()); err != nil {
		if _, weak := FormatValidationErrorToMap(err)["password"]; weak {
			return nil, ErrWeakPassword
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	user, err := l.creds.CreateUser(ctx, payload.Email, payload.Username, payload.Password)
	if err != nil {
		return nil, err
	}

	if payload.Bio != "" || payload.ProfilePicture != "" {
		if err := l.repo.Users().UpdateProfile(ctx, user.ID, payload.Bio, payload.ProfilePicture); err != nil {
			l.logger.Warn("failed to store registration profile", "error", err)
		} else {
			user.Bio = payload.Bio
			user.ProfilePicture = payload.ProfilePicture
		}
	}

	raw, err := l.tokens.IssueToken(ctx, user.ID, PurposeEmailConfirm)
	if err != nil {
		// user exists but has no live token; ResendConfirmation recovers
		l.logger.Error("failed to issue confirmation token", "user_id", user.ID.String(), "error", err)
		return user, err
	}

	l.deliver(user, PurposeEmailConfirm, raw)
	l.emit(ctx, ActivityEventUserRegistered, ActorRef{ID: user.ID.String(), Type: "user"}, user.ID.String(), map[string]any{
		"email": user.Email,
	})

	return user, nil
}

// ResendConfirmation re-issues the email confirmation token for a pending
// account. Like RequestPasswordReset it reports success even when the email
// is unknown or already confirmed, so it cannot be used to probe accounts.
func (l *Lifecycle) ResendConfirmation(ctx context.Context, email string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during confirmation resend")
	default:
	}

	user, err := l.repo.Users().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return WrapStoreError(err, "failed to look up user for confirmation resend")
	}

	if user.EmailConfirmed {
		return nil
	}

	raw, err := l.tokens.IssueToken(ctx, user.ID, PurposeEmailConfirm)
	if err != nil {
		return err
	}

	l.deliver(user, PurposeEmailConfirm, raw)
	return nil
}

// ConfirmEmail redeems an email confirmation token, marking the account
// confirmed and active. Every token failure surfaces as the generic
// ErrInvalidToken; the specific reason is logged, not exposed.
func (l *Lifecycle) ConfirmEmail(ctx context.Context, tokenValue string) (uuid.UUID, error) {
	userID, err := l.tokens.ValidateAndConsume(ctx, tokenValue, PurposeEmailConfirm)
	if err != nil {
		if IsTokenError(err) {
			l.logger.Debug("email confirmation rejected", "reason", err.Error())
		}
		return uuid.Nil, collapseTokenError(err)
	}

	if err := l.creds.ConfirmEmail(ctx, userID); err != nil {
		return uuid.Nil, err
	}

	if err := l.creds.ActivateUser(ctx, userID); err != nil {
		return uuid.Nil, err
	}

	l.emit(ctx, ActivityEventEmailConfirmed, ActorRef{ID: userID.String(), Type: "user"}, userID.String(), nil)

	return userID, nil
}

// RequestPasswordReset issues a reset token and notifies the account holder.
// It reports success whether or not the email names an account, so the
// response cannot confirm account existence.
func (l *Lifecycle) RequestPasswordReset(ctx context.Context, email string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset request")
	default:
	}

	user, err := l.repo.Users().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return WrapStoreError(err, "failed to look up user for password reset")
	}

	raw, err := l.tokens.IssueToken(ctx, user.ID, PurposePasswordReset)
	if err != nil {
		return err
	}

	l.deliver(user, PurposePasswordReset, raw)
	l.emit(ctx, ActivityEventPasswordResetRequest, ActorRef{ID: user.ID.String(), Type: "user"}, user.ID.String(), nil)

	return nil
}

// ResetPassword redeems a reset token and installs the new password. Token
// failures mirror ConfirmEmail's generic error.
func (l *Lifecycle) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	userID, err := l.tokens.ValidateAndConsume(ctx, tokenValue, PurposePasswordReset)
	if err != nil {
		if IsTokenError(err) {
			l.logger.Debug("password reset rejected", "reason", err.Error())
		}
		return collapseTokenError(err)
	}

	if err := l.creds.SetPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	l.emit(ctx, ActivityEventPasswordResetSuccess, ActorRef{ID: userID.String(), Type: "user"}, userID.String(), nil)

	return nil
}

// Authenticate verifies email and password, returning the account identity.
// A miss on the email burns a comparison against a dummy hash so unknown and
// known addresses fail in comparable time; all failures are
// ErrInvalidCredentials.
func (l *Lifecycle) Authenticate(ctx context.Context, email, rawPassword string) (Identity, error) {
	user, err := l.repo.Users().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			l.creds.DummyCompare(rawPassword)
			l.emitLoginFailure(ctx, email, "")
			return nil, ErrInvalidCredentials
		}
		return nil, WrapStoreError(err, "failed to look up user during authentication")
	}

	if !l.creds.VerifyPassword(user, rawPassword) {
		l.emitLoginFailure(ctx, email, user.ID.String())
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		l.emitLoginFailure(ctx, email, user.ID.String())
		return nil, ErrInvalidCredentials
	}

	l.emit(ctx, ActivityEventLoginSuccess, ActorRef{ID: user.ID.String(), Type: "user"}, user.ID.String(), map[string]any{
		"identifier": email,
	})

	return accountIdentity{
		id:          user.ID.String(),
		email:       user.Email,
		username:    user.Username,
		isStaff:     user.IsStaff,
		isSuperuser: user.IsSuperuser,
	}, nil
}

// deliver hands the raw token to the notification gateway on its own
// goroutine with a bounded timeout; the triggering request never waits on it
// and a committed mutation stands regardless of the outcome.
func (l *Lifecycle) deliver(user *User, purpose TokenPurpose, raw string) {
	req := NotificationRequest{
		UserID:   user.ID.String(),
		Email:    user.Email,
		Username: user.Username,
		Purpose:  purpose,
		Token:    raw,
	}

	notifier := normalizeNotifier(l.notifier)
	timeout := l.cfg.GetNotifyTimeout()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := notifier.Send(ctx, req); err != nil {
			l.logger.Warn("notification delivery failed", "purpose", purpose, "user_id", req.UserID, "error", err)
		}
	}()
}

func (l *Lifecycle) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(l.sink).Record(ctx, event); err != nil {
		l.logger.Warn("activity sink record error: %v", err)
	}
}

func (l *Lifecycle) emitLoginFailure(ctx context.Context, identifier, userID string) {
	actor := ActorRef{Type: "unknown"}
	if userID != "" {
		actor = ActorRef{ID: userID, Type: "user"}
	}

	l.emit(ctx, ActivityEventLoginFailure, actor, userID, map[string]any{
		"identifier": identifier,
	})
}

type accountIdentity struct {
	id          string
	username    string
	email       string
	isStaff     bool
	isSuperuser bool
}

func (a accountIdentity) ID() string        { return a.id }
func (a accountIdentity) Username() string  { return a.username }
func (a accountIdentity) Email() string     { return a.email }
func (a accountIdentity) IsStaff() bool     { return a.isStaff }
func (a accountIdentity) IsSuperuser() bool { return a.isSuperuser }

var _ Identity = accountIdentity{}
