/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/friendsincode/slidify/internal/events"
)

// ErrNotSignedIn is returned by Session operations that need an identity.
var ErrNotSignedIn = errors.New("not signed in")

// Session is the explicitly constructed identity context handed to
// components that need the current user. Init binds it to a token and starts
// listening for identity transitions; Dispose releases the listener.
type Session struct {
	provider *Provider
	bus      events.Broker

	mu        sync.RWMutex
	identity  *Identity
	tokenID   string
	listeners map[int]func(State, *Identity)
	nextID    int
	stopWatch func()
}

// NewSession creates an unbound session context.
func NewSession(provider *Provider, bus events.Broker) *Session {
	return &Session{
		provider:  provider,
		bus:       bus,
		listeners: make(map[int]func(State, *Identity)),
	}
}

// Init resolves token (may be empty for an anonymous session) and subscribes
// to identity transitions. Calling Init again rebinds the session.
func (s *Session) Init(ctx context.Context, token string) error {
	s.Dispose()

	var identity *Identity
	var tokenID string
	if token != "" {
		id, err := s.provider.Lookup(ctx, token)
		if err != nil {
			return err
		}
		claims, err := s.provider.Verify(token)
		if err != nil {
			return err
		}
		identity, tokenID = id, claims.ID
	}

	s.mu.Lock()
	s.identity = identity
	s.tokenID = tokenID
	s.mu.Unlock()

	if s.bus != nil {
		stop := events.Watch(s.bus, events.EventAuthStateChanged, "", s.onTransition)
		s.mu.Lock()
		s.stopWatch = stop
		s.mu.Unlock()
	}
	return nil
}

// Dispose stops listening and forgets the identity. Safe to call repeatedly.
func (s *Session) Dispose() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.identity = nil
	s.tokenID = ""
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// SignIn authenticates and binds the session to the new identity.
func (s *Session) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx, identity.Token); err != nil {
		return nil, err
	}
	s.notify(StateSignedIn)
	return identity, nil
}

// SignOut revokes the bound token and clears the identity.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	identity, tokenID := s.identity, s.tokenID
	s.identity = nil
	s.tokenID = ""
	s.mu.Unlock()
	if identity == nil {
		return ErrNotSignedIn
	}
	if err := s.provider.SignOut(ctx, identity.Token); err != nil {
		s.mu.Lock()
		if s.identity == nil {
			s.identity, s.tokenID = identity, tokenID
		}
		s.mu.Unlock()
		return err
	}
	s.notify(StateSignedOut)
	return nil
}

// Identity returns the bound identity or nil when anonymous.
func (s *Session) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// UserID returns the bound user id or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || s.identity.User == nil {
		return ""
	}
	return s.identity.User.ID
}

// DisplayName returns the user's display name, or "Guest" when anonymous.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || s.identity.User == nil {
		return "Guest"
	}
	return s.identity.User.Name()
}

// RefreshProfile reloads the user row behind the bound token.
func (s *Session) RefreshProfile(ctx context.Context) error {
	s.mu.RLock()
	identity := s.identity
	s.mu.RUnlock()
	if identity == nil {
		return ErrNotSignedIn
	}
	fresh, err := s.provider.Lookup(ctx, identity.Token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.identity != nil && s.identity.Token == identity.Token {
		s.identity = fresh
	}
	s.mu.Unlock()
	return nil
}

// Subscribe registers fn for identity transitions of this session and returns
// a function that removes it.
func (s *Session) Subscribe(fn func(State, *Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) onTransition(p events.Payload) {
	userID := s.UserID()
	if userID == "" || p.Key() != userID {
		return
	}

	state := StateOf(p)
	switch state {
	case StateSignedOut:
		tokenID, _ := p["token_id"].(string)
		s.mu.Lock()
		if tokenID != s.tokenID {
			s.mu.Unlock()
			return
		}
		s.identity = nil
		s.tokenID = ""
		s.mu.Unlock()
	case StateUserUpdated, StatePasswordRecovery:
		if err := s.RefreshProfile(context.Background()); err != nil {
			s.provider.logger.Debug().Err(err).Msg("refresh profile after transition failed")
		}
	default:
		return
	}
	s.notify(state)
}

func (s *Session) notify(state State) {
	s.mu.RLock()
	identity := s.identity
	fns := make([]func(State, *Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(state, identity)
	}
}
