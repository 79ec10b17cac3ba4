/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/telemetry"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const minPasswordLength = 8

// State is an identity transition broadcast on the auth.state channel.
type State string

const (
	StateSignedIn         State = "signed_in"
	StateSignedOut        State = "signed_out"
	StatePasswordRecovery State = "password_recovery"
	StateUserUpdated      State = "user_updated"
)

// UserStore is the subset of the gateway used for accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
}

// Identity is an authenticated user plus the token proving it.
type Identity struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ProviderConfig configures token lifetimes.
type ProviderConfig struct {
	Secret     []byte
	SessionTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

// Provider is the identity provider: accounts, tokens and revocation.
type Provider struct {
	store  UserStore
	bus    events.Broker
	cfg    ProviderConfig
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> token expiry
}

// NewProvider creates an identity provider.
func NewProvider(store UserStore, bus events.Broker, cfg ProviderConfig, logger zerolog.Logger) *Provider {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Provider{
		store:   store,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With().Str("component", "auth").Logger(),
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// SetClock overrides the provider's time source.
func (p *Provider) SetClock(now func() time.Time) {
	p.now = now
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (*Identity, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
	}
	if err := p.store.CreateUser(ctx, user); err != nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("signup", "error").Inc()
		if errors.Is(err, gateway.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	telemetry.AuthAttemptsTotal.WithLabelValues("signup", "ok").Inc()
	p.logger.Info().Str("user_id", user.ID).Msg("account created")
	return p.issueSession(user, StateSignedIn)
}

// SignIn verifies credentials and issues a session token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	user, err := p.store.GetUserByEmail(ctx, email)
	if err != nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("signin", "denied").Inc()
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("signin", "denied").Inc()
		return nil, ErrInvalidCredentials
	}
	telemetry.AuthAttemptsTotal.WithLabelValues("signin", "ok").Inc()
	return p.issueSession(user, StateSignedIn)
}

// SignOut revokes a session token.
func (p *Provider) SignOut(_ context.Context, token string) error {
	claims, err := ParseAt(p.cfg.Secret, token, p.now())
	if err != nil {
		return ErrInvalidToken
	}
	p.revoke(claims)
	p.emit(claims.UserID, StateSignedOut, claims.ID)
	return nil
}

// RequestPasswordReset returns a single-use reset token for email. Unknown
// emails yield an empty token and no error so callers cannot probe accounts.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := p.store.GetUserByEmail(ctx, email)
	if errors.Is(err, gateway.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token, err := IssueAt(p.cfg.Secret, Claims{UserID: user.ID, Email: user.Email, Purpose: PurposePasswordReset}, p.cfg.ResetTTL, p.now())
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}
	p.logger.Info().Str("user_id", user.ID).Msg("password reset requested")
	return token, nil
}

// ResetPassword consumes a reset token and sets a new password.
func (p *Provider) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := p.verify(resetToken, PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := p.setPassword(ctx, claims.UserID, newPassword); err != nil {
		return err
	}
	p.revoke(claims)
	p.emit(claims.UserID, StatePasswordRecovery, claims.ID)
	return nil
}

// UpdatePassword changes the password of a signed-in user.
func (p *Provider) UpdatePassword(ctx context.Context, userID, current, next string) error {
	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	if err := p.setPassword(ctx, userID, next); err != nil {
		return err
	}
	p.emit(userID, StateUserUpdated, "")
	return nil
}

// UpdateProfile changes the display name.
func (p *Provider) UpdateProfile(ctx context.Context, userID, displayName string) (*models.User, error) {
	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.DisplayName = strings.TrimSpace(displayName)
	if err := p.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	p.emit(userID, StateUserUpdated, "")
	return user, nil
}

// Lookup resolves a session token to the current identity.
func (p *Provider) Lookup(ctx context.Context, token string) (*Identity, error) {
	claims, err := p.verify(token, PurposeSession)
	if err != nil {
		return nil, err
	}
	user, err := p.store.GetUser(ctx, claims.UserID)
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return &Identity{User: user, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify implements Verifier with revocation.
func (p *Provider) Verify(token string) (*Claims, error) {
	return p.verify(token, PurposeSession)
}

func (p *Provider) verify(token, purpose string) (*Claims, error) {
	claims, err := ParseAt(p.cfg.Secret, token, p.now())
	if err != nil || claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	p.mu.Lock()
	_, revoked := p.revoked[claims.ID]
	p.mu.Unlock()
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *Provider) setPassword(ctx context.Context, userID, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	return p.store.UpdateUser(ctx, user)
}

func (p *Provider) issueSession(user *models.User, state State) (*Identity, error) {
	now := p.now()
	token, err := IssueAt(p.cfg.Secret, Claims{UserID: user.ID, Email: user.Email, Purpose: PurposeSession}, p.cfg.SessionTTL, now)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	p.emit(user.ID, state, "")
	return &Identity{User: user, Token: token, ExpiresAt: now.Add(p.cfg.SessionTTL)}, nil
}

// revoke records a token id until its natural expiry and prunes stale entries.
func (p *Provider) revoke(claims *Claims) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, id)
		}
	}
	exp := now.Add(p.cfg.SessionTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	p.revoked[claims.ID] = exp
}

func (p *Provider) emit(userID string, state State, tokenID string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.EventAuthStateChanged, events.Payload{
		"key":      userID,
		"state":    string(state),
		"token_id": tokenID,
	})
}

// StateOf extracts the identity transition from an auth.state payload.
func StateOf(p events.Payload) State {
	s, _ := p["state"].(string)
	return State(s)
}
