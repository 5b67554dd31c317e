package accounts

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	IsStaff() bool
	IsSuperuser() bool
}

// Clock is an injected time source so expiry checks are testable
type Clock func() time.Time

// NotificationRequest carries everything the gateway needs to deliver a
// confirmation or reset message. Token is the raw single-use value; the
// gateway owns formatting and transport.
type NotificationRequest struct {
	UserID   string       `json:"user_id"`
	Email    string       `json:"email"`
	Username string       `json:"username"`
	Purpose  TokenPurpose `json:"purpose"`
	Token    string       `json:"token"`
}

// Notifier is the notification gateway contract. Delivery failures are
// reported but never roll back the operation that triggered them.
type Notifier interface {
	Send(ctx context.Context, req NotificationRequest) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, req NotificationRequest) error

// Send implements Notifier
func (f NotifierFunc) Send(ctx context.Context, req NotificationRequest) error {
	if f == nil {
		return nil
	}
	return f(ctx, req)
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, NotificationRequest) error { return nil }

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// Config holds lifecycle options
type Config interface {
	GetPasswordHashCost() int
	GetMinPasswordLength() int
	GetEmailConfirmTTL() time.Duration
	GetPasswordResetTTL() time.Duration
	GetNotifyTimeout() time.Duration
}

// DefaultConfig carries the stock values used when the host application does
// not provide its own Config implementation.
type DefaultConfig struct {
	PasswordHashCost  int
	MinPasswordLength int
	EmailConfirmTTL   time.Duration
	PasswordResetTTL  time.Duration
	NotifyTimeout     time.Duration
}

// NewDefaultConfig returns a Config with 24h token TTLs and the build's
// default bcrypt cost.
func NewDefaultConfig() DefaultConfig {
	return DefaultConfig{
		PasswordHashCost:  passwordHashCost(),
		MinPasswordLength: 6,
		EmailConfirmTTL:   24 * time.Hour,
		PasswordResetTTL:  24 * time.Hour,
		NotifyTimeout:     5 * time.Second,
	}
}

func (c DefaultConfig) GetPasswordHashCost() int  { return c.PasswordHashCost }
func (c DefaultConfig) GetMinPasswordLength() int { return c.MinPasswordLength }

func (c DefaultConfig) GetEmailConfirmTTL() time.Duration { return c.EmailConfirmTTL }

func (c DefaultConfig) GetPasswordResetTTL() time.Duration { return c.PasswordResetTTL }

func (c DefaultConfig) GetNotifyTimeout() time.Duration { return c.NotifyTimeout }

var _ Config = DefaultConfig{}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
