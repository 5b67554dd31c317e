package accounts_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// fakeUsers is an in-memory Users repository. Only the methods the engine
// actually touches are implemented; everything else panics through the nil
// embedded Repository.
type fakeUsers struct {
	repository.Repository[*accounts.User]

	mu      sync.Mutex
	byID    map[uuid.UUID]*accounts.User
	lookupE error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uuid.UUID]*accounts.User{}}
}

func (f *fakeUsers) Register(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	return f.RegisterTx(ctx, nil, user)
}

func (f *fakeUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	email := accounts.NormalizeEmail(user.Email)
	for _, existing := range f.byID {
		if existing.Email == email {
			return nil, accounts.ErrDuplicateEmail
		}
		if existing.Username == user.Username {
			return nil, accounts.ErrDuplicateUsername
		}
	}

	record := *user
	record.Email = email
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	f.byID[record.ID] = &record
	out := record
	return &out, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return f.GetByEmailTx(ctx, nil, email)
}

func (f *fakeUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lookupE != nil {
		return nil, f.lookupE
	}

	email = accounts.NormalizeEmail(email)
	for _, u := range f.byID {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByUsername(ctx context.Context, username string) (*accounts.User, error) {
	return f.GetByUsernameTx(ctx, nil, username)
}

func (f *fakeUsers) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.byID {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return f.SetPasswordTx(ctx, nil, id, passwordHash)
}

func (f *fakeUsers) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, id uuid.UUID, bio, profilePicture string) error {
	return f.UpdateProfileTx(ctx, nil, id, bio, profilePicture)
}

func (f *fakeUsers) UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, bio, profilePicture string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok {
		u.Bio = bio
		u.ProfilePicture = profilePicture
	}
	return nil
}

func (f *fakeUsers) Activate(ctx context.Context, id uuid.UUID) error {
	return f.ActivateTx(ctx, nil, id)
}

func (f *fakeUsers) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok {
		u.Active = true
	}
	return nil
}

func (f *fakeUsers) ConfirmEmail(ctx context.Context, id uuid.UUID) error {
	return f.ConfirmEmailTx(ctx, nil, id)
}

func (f *fakeUsers) ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok {
		u.EmailConfirmed = true
	}
	return nil
}

func (f *fakeUsers) get(id uuid.UUID) *accounts.User {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok {
		out := *u
		return &out
	}
	return nil
}

// fakeTokens is an in-memory ConfirmationTokens repository with a
// mutex-guarded compare-and-swap on the consumed flag.
type fakeTokens struct {
	repository.Repository[*accounts.ConfirmationToken]

	mu   sync.Mutex
	byID map[uuid.UUID]*accounts.ConfirmationToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byID: map[uuid.UUID]*accounts.ConfirmationToken{}}
}

func (f *fakeTokens) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.ConfirmationToken, criteria ...repository.InsertCriteria) (*accounts.ConfirmationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *record
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeTokens) GetByHash(ctx context.Context, hash string) (*accounts.ConfirmationToken, error) {
	return f.GetByHashTx(ctx, nil, hash)
}

func (f *fakeTokens) GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*accounts.ConfirmationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.byID {
		if t.TokenHash == hash {
			out := *t
			return &out, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeTokens) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return f.ConsumeTx(ctx, nil, id, at)
}

func (f *fakeTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.byID[id]
	if !ok || t.ConsumedAt != nil {
		return false, nil
	}

	stamp := at
	t.ConsumedAt = &stamp
	return true, nil
}

func (f *fakeTokens) InvalidateActive(ctx context.Context, userID uuid.UUID, purpose accounts.TokenPurpose, at time.Time) (int64, error) {
	return f.InvalidateActiveTx(ctx, nil, userID, purpose, at)
}

func (f *fakeTokens) InvalidateActiveTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose accounts.TokenPurpose, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, t := range f.byID {
		if t.UserID == userID && t.Purpose == purpose && t.ConsumedAt == nil {
			stamp := at
			t.ConsumedAt = &stamp
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return f.DeleteExpiredTx(ctx, nil, before)
}

func (f *fakeTokens) DeleteExpiredTx(ctx context.Context, tx bun.IDB, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for id, t := range f.byID {
		if !before.Before(t.ExpiresAt) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) activeFor(userID uuid.UUID, purpose accounts.TokenPurpose) []*accounts.ConfirmationToken {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*accounts.ConfirmationToken
	for _, t := range f.byID {
		if t.UserID == userID && t.Purpose == purpose && t.ConsumedAt == nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeTokens) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// fakeRepo bundles the fakes behind the RepositoryManager contract. RunInTx
// hands the callback a zero bun.Tx; the fakes ignore it.
type fakeRepo struct {
	users  *fakeUsers
	tokens *fakeTokens
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  newFakeUsers(),
		tokens: newFakeTokens(),
	}
}

func (r *fakeRepo) Users() accounts.Users { return r.users }

func (r *fakeRepo) ConfirmationTokens() accounts.ConfirmationTokens { return r.tokens }

func (r *fakeRepo) Validate() error { return nil }

func (r *fakeRepo) MustValidate() {}

func (r *fakeRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return f(ctx, bun.Tx{})
	}
}

// captureNotifier records every delivery and signals on a channel so tests
// can wait for the fire-and-forget goroutine.
type captureNotifier struct {
	mu       sync.Mutex
	requests []accounts.NotificationRequest
	received chan accounts.NotificationRequest
	err      error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{received: make(chan accounts.NotificationRequest, 8)}
}

func (n *captureNotifier) Send(ctx context.Context, req accounts.NotificationRequest) error {
	n.mu.Lock()
	n.requests = append(n.requests, req)
	err := n.err
	n.mu.Unlock()

	n.received <- req
	return err
}

func (n *captureNotifier) sent() []accounts.NotificationRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]accounts.NotificationRequest, len(n.requests))
	copy(out, n.requests)
	return out
}

func (n *captureNotifier) wait(t *testing.T, timeout time.Duration) accounts.NotificationRequest {
	t.Helper()
	select {
	case req := <-n.received:
		return req
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for notification")
		return accounts.NotificationRequest{}
	}
}

// capturingSink collects activity events
type capturingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt accounts.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(eventType accounts.ActivityEventType) []accounts.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []accounts.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

var (
	_ accounts.Users              = (*fakeUsers)(nil)
	_ accounts.ConfirmationTokens = (*fakeTokens)(nil)
	_ accounts.RepositoryManager  = (*fakeRepo)(nil)
	_ accounts.Notifier           = (*captureNotifier)(nil)
	_ accounts.ActivitySink       = (*capturingSink)(nil)
)
