/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package billing exposes the read-only subscription status of the signed-in user.
package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/clock"
	"github.com/friendsincode/slidify/internal/debounce"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/models"
)

// Store reads billing rows.
type Store interface {
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

// Status is the derived subscription state of one user.
type Status struct {
	UserID  string                    `json:"user_id"`
	Status  models.SubscriptionStatus `json:"status"`
	Plan    string                    `json:"plan"`
	Premium bool                      `json:"premium"`
}

func statusOf(userID string, sub *models.Subscription) Status {
	if sub == nil {
		return Status{UserID: userID, Plan: PlanFree}
	}
	plan := sub.Plan
	if plan == "" || !sub.Status.Premium() {
		plan = PlanFree
	}
	return Status{UserID: userID, Status: sub.Status, Plan: plan, Premium: sub.Status.Premium()}
}

// Lookup reads the status of userID once. A missing row is the free plan.
func Lookup(ctx context.Context, store Store, userID string) (Status, error) {
	if userID == "" {
		return statusOf("", nil), nil
	}
	sub, err := store.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return Status{}, err
	}
	return statusOf(userID, sub), nil
}

// PlanFree is reported when a user has no premium subscription.
const PlanFree = "free"

// Provider tracks one user's subscription and follows change notifications.
type Provider struct {
	store  Store
	bus    events.Broker
	sched  clock.Scheduler
	quiet  time.Duration
	logger zerolog.Logger

	mu        sync.RWMutex
	status    Status
	stopWatch func()
	queue     *debounce.Queue[events.Payload]
	listeners map[int]func(Status)
	nextID    int
}

// NewProvider creates a subscription provider. Notifications are coalesced
// over the quiet window before the status is recomputed.
func NewProvider(store Store, bus events.Broker, sched clock.Scheduler, quiet time.Duration, logger zerolog.Logger) *Provider {
	if sched == nil {
		sched = clock.Real()
	}
	return &Provider{
		store:     store,
		bus:       bus,
		sched:     sched,
		quiet:     quiet,
		logger:    logger.With().Str("component", "billing").Logger(),
		status:    Status{Plan: PlanFree},
		listeners: make(map[int]func(Status)),
	}
}

// Start loads the subscription of userID and subscribes to its changes.
// An empty userID resets the provider to the free plan.
func (p *Provider) Start(ctx context.Context, userID string) error {
	p.Stop()

	if userID == "" {
		p.set(Status{Plan: PlanFree})
		return nil
	}

	status, err := Lookup(ctx, p.store, userID)
	if err != nil {
		return err
	}
	p.set(status)

	if p.bus == nil {
		return nil
	}
	queue := debounce.New(p.sched, p.quiet, func(batch []events.Payload) {
		p.apply(userID, batch[len(batch)-1])
	})
	stop := events.Watch(p.bus, events.EventSubscriptionChanged, userID, queue.Push)

	p.mu.Lock()
	p.queue = queue
	p.stopWatch = stop
	p.mu.Unlock()
	return nil
}

// Stop unsubscribes from change notifications. Safe to call repeatedly.
func (p *Provider) Stop() {
	p.mu.Lock()
	stop, queue := p.stopWatch, p.queue
	p.stopWatch, p.queue = nil, nil
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	if queue != nil {
		queue.Close()
	}
}

// Status returns the current derived status.
func (p *Provider) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Premium reports whether the tracked user has premium features.
func (p *Provider) Premium() bool {
	return p.Status().Premium
}

// Plan returns the tracked user's plan name.
func (p *Provider) Plan() string {
	return p.Status().Plan
}

// Subscribe registers fn for status changes and returns its remover.
func (p *Provider) Subscribe(fn func(Status)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) apply(userID string, payload events.Payload) {
	if payload.Op() == events.OpDelete {
		p.set(statusOf(userID, nil))
		return
	}

	sub, err := models.ParseSubscription(payload["record"])
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("malformed subscription notification, refetching")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sub, err = p.store.GetSubscription(ctx, userID)
		if err != nil && !errors.Is(err, gateway.ErrNotFound) {
			p.logger.Error().Err(err).Str("user_id", userID).Msg("refetch subscription failed")
			return
		}
	}
	p.set(statusOf(userID, sub))
}

func (p *Provider) set(status Status) {
	p.mu.Lock()
	changed := p.status != status
	p.status = status
	fns := make([]func(Status), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Debug().Str("user_id", status.UserID).Str("plan", status.Plan).Bool("premium", status.Premium).Msg("subscription status")
	for _, fn := range fns {
		fn(status)
	}
}

func (p *Provider) pending() int {
	p.mu.RLock()
	queue := p.queue
	p.mu.RUnlock()
	if queue == nil {
		return 0
	}
	return queue.Len()
}
