package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/slidify/internal/events"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSessionAnonymous(t *testing.T) {
	bus := events.NewBus()
	s := NewSession(newTestProvider(t, bus), bus)
	if err := s.Init(context.Background(), ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Dispose()

	if s.Identity() != nil || s.UserID() != "" {
		t.Fatal("expected anonymous session")
	}
	if got := s.DisplayName(); got != "Guest" {
		t.Fatalf("DisplayName()=%q", got)
	}
	if err := s.SignOut(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestSessionInitRejectsInvalidToken(t *testing.T) {
	bus := events.NewBus()
	s := NewSession(newTestProvider(t, bus), bus)
	if err := s.Init(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if s.UserID() != "" {
		t.Fatal("failed Init must leave session anonymous")
	}
}

func TestSessionSignInAndOut(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	p := newTestProvider(t, bus)
	if _, err := p.SignUp(ctx, "ana@example.com", "long-enough", ""); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	s := NewSession(p, bus)
	defer s.Dispose()

	var states []State
	unsubscribe := s.Subscribe(func(state State, _ *Identity) {
		states = append(states, state)
	})
	defer unsubscribe()

	identity, err := s.SignIn(ctx, "ana@example.com", "long-enough")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if s.UserID() != identity.User.ID || s.DisplayName() != "ana" {
		t.Fatalf("unexpected session user %q / %q", s.UserID(), s.DisplayName())
	}

	token := identity.Token
	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if s.Identity() != nil {
		t.Fatal("expected identity cleared after sign out")
	}
	if _, err := p.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("expected token revoked")
	}
	if len(states) != 2 || states[0] != StateSignedIn || states[1] != StateSignedOut {
		t.Fatalf("unexpected transitions %v", states)
	}
}

func TestSessionFollowsRemoteSignOut(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	p := newTestProvider(t, bus)
	identity, err := p.SignUp(ctx, "ana@example.com", "long-enough", "")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	other, err := p.SignIn(ctx, "ana@example.com", "long-enough")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	s := NewSession(p, bus)
	if err := s.Init(ctx, identity.Token); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Dispose()

	// Signing out a different token of the same user leaves this session bound.
	if err := p.SignOut(ctx, other.Token); err != nil {
		t.Fatalf("SignOut other: %v", err)
	}
	if err := p.SignOut(ctx, identity.Token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	waitFor(t, func() bool { return s.Identity() == nil })
}

func TestSessionRefreshesOnProfileUpdate(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	p := newTestProvider(t, bus)
	identity, err := p.SignUp(ctx, "ana@example.com", "long-enough", "")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	s := NewSession(p, bus)
	if err := s.Init(ctx, identity.Token); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Dispose()

	if _, err := p.UpdateProfile(ctx, identity.User.ID, "Ana Maria"); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	waitFor(t, func() bool { return s.DisplayName() == "Ana Maria" })
}

func TestSessionDisposeIsIdempotent(t *testing.T) {
	bus := events.NewBus()
	s := NewSession(newTestProvider(t, bus), bus)
	if err := s.Init(context.Background(), ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.Dispose()
	s.Dispose()
}
