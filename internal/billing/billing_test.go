package billing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/clock"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	subs map[string]*models.Subscription
}

func (f *fakeStore) GetSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeStore) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]*models.Subscription)
	}
	copied := *sub
	f.subs[sub.UserID] = &copied
	return nil
}

func waitPending(t *testing.T, p *Provider, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending notifications, have %d", n, p.pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusDerivation(t *testing.T) {
	tests := []struct {
		name    string
		sub     *models.Subscription
		premium bool
		plan    string
	}{
		{name: "no row", sub: nil, premium: false, plan: PlanFree},
		{name: "active", sub: &models.Subscription{UserID: "u1", Status: models.SubscriptionActive, Plan: "pro"}, premium: true, plan: "pro"},
		{name: "trialing", sub: &models.Subscription{UserID: "u1", Status: models.SubscriptionTrialing, Plan: "pro"}, premium: true, plan: "pro"},
		{name: "past due", sub: &models.Subscription{UserID: "u1", Status: models.SubscriptionPastDue, Plan: "pro"}, premium: true, plan: "pro"},
		{name: "canceled", sub: &models.Subscription{UserID: "u1", Status: models.SubscriptionCanceled, Plan: "pro"}, premium: false, plan: PlanFree},
		{name: "unpaid", sub: &models.Subscription{UserID: "u1", Status: models.SubscriptionUnpaid, Plan: "pro"}, premium: false, plan: PlanFree},
	}
	for _, tt := range tests {
		got := statusOf("u1", tt.sub)
		if got.Premium != tt.premium || got.Plan != tt.plan {
			t.Fatalf("%s: got %+v", tt.name, got)
		}
	}
}

func TestProviderStartLoadsStatus(t *testing.T) {
	store := &fakeStore{subs: map[string]*models.Subscription{
		"u1": {UserID: "u1", Status: models.SubscriptionActive, Plan: "pro"},
	}}
	p := NewProvider(store, nil, clock.NewManual(time.Now()), 500*time.Millisecond, zerolog.Nop())

	if err := p.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Premium() || p.Plan() != "pro" {
		t.Fatalf("unexpected status %+v", p.Status())
	}

	if err := p.Start(context.Background(), "u2"); err != nil {
		t.Fatalf("Start missing row: %v", err)
	}
	if p.Premium() || p.Plan() != PlanFree {
		t.Fatalf("expected free plan, got %+v", p.Status())
	}
}

func TestProviderFollowsDebouncedChanges(t *testing.T) {
	store := &fakeStore{subs: map[string]*models.Subscription{
		"u1": {UserID: "u1", Status: models.SubscriptionTrialing, Plan: "pro"},
	}}
	bus := events.NewBus()
	sched := clock.NewManual(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	p := NewProvider(store, bus, sched, 500*time.Millisecond, zerolog.Nop())
	if err := p.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	var seen []Status
	p.Subscribe(func(s Status) { seen = append(seen, s) })

	// Another user's change is filtered by key.
	bus.Publish(events.EventSubscriptionChanged, events.Change(events.OpUpdate, "u2",
		&models.Subscription{UserID: "u2", Status: models.SubscriptionCanceled}))
	bus.Publish(events.EventSubscriptionChanged, events.Change(events.OpUpdate, "u1",
		&models.Subscription{UserID: "u1", Status: models.SubscriptionPastDue, Plan: "pro"}))
	bus.Publish(events.EventSubscriptionChanged, events.Change(events.OpUpdate, "u1",
		map[string]any{"user_id": "u1", "status": "canceled", "plan": "pro"}))
	waitPending(t, p, 2)

	sched.Advance(499 * time.Millisecond)
	if !p.Premium() {
		t.Fatal("status changed before the quiet window elapsed")
	}
	sched.Advance(time.Millisecond)
	if p.Premium() {
		t.Fatalf("expected canceled subscription to drop premium, got %+v", p.Status())
	}
	if len(seen) != 1 {
		t.Fatalf("expected one coalesced status change, got %d", len(seen))
	}
}

func TestProviderRefetchesOnMalformedNotification(t *testing.T) {
	store := &fakeStore{subs: map[string]*models.Subscription{
		"u1": {UserID: "u1", Status: models.SubscriptionCanceled},
	}}
	bus := events.NewBus()
	sched := clock.NewManual(time.Now())
	p := NewProvider(store, bus, sched, 0, zerolog.Nop())
	if err := p.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	_ = store.UpsertSubscription(context.Background(), &models.Subscription{UserID: "u1", Status: models.SubscriptionActive, Plan: "pro"})
	bus.Publish(events.EventSubscriptionChanged, events.Change(events.OpUpdate, "u1", map[string]any{"status": 42}))
	waitPending(t, p, 1)
	sched.Advance(0)

	if !p.Premium() {
		t.Fatalf("expected refetched active status, got %+v", p.Status())
	}
}

func TestProviderStopIgnoresLaterChanges(t *testing.T) {
	store := &fakeStore{subs: map[string]*models.Subscription{
		"u1": {UserID: "u1", Status: models.SubscriptionActive},
	}}
	bus := events.NewBus()
	sched := clock.NewManual(time.Now())
	p := NewProvider(store, bus, sched, 100*time.Millisecond, zerolog.Nop())
	if err := p.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()
	p.Stop()

	bus.Publish(events.EventSubscriptionChanged, events.Change(events.OpDelete, "u1", nil))
	sched.Advance(time.Second)
	if !p.Premium() {
		t.Fatal("stopped provider must not follow notifications")
	}
	if sched.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", sched.Pending())
	}
}

func TestPolicyLimits(t *testing.T) {
	policy := DefaultPolicy()
	if got := policy.Limits(false).MaxImages; got != 15 {
		t.Fatalf("free MaxImages=%d", got)
	}
	if got := policy.Limits(true).MaxImages; got != 100 {
		t.Fatalf("premium MaxImages=%d", got)
	}

	owner := "u1"
	tracks := []models.MusicTrack{
		{ID: "pub", Tier: models.MusicTierPublic},
		{ID: "prem", Tier: models.MusicTierPremium},
		{ID: "mine", Tier: models.MusicTierPrivate, OwnerID: &owner},
	}
	if got := policy.Limits(false).VisibleMusic(tracks, "u1"); len(got) != 2 {
		t.Fatalf("free visible=%d", len(got))
	}
	if got := policy.Limits(true).VisibleMusic(tracks, "u2"); len(got) != 2 {
		t.Fatalf("premium stranger visible=%d", len(got))
	}
}

func TestWebhookHandler(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"user_id":"u1","status":"active","plan":"pro"}`)

	tests := []struct {
		name   string
		secret string
		ts     int64
		body   []byte
		status int
	}{
		{name: "valid", secret: "whsec", ts: now.Unix(), body: body, status: http.StatusNoContent},
		{name: "wrong secret", secret: "other", ts: now.Unix(), body: body, status: http.StatusUnauthorized},
		{name: "stale", secret: "whsec", ts: now.Add(-time.Hour).Unix(), body: body, status: http.StatusUnauthorized},
		{name: "invalid row", secret: "whsec", ts: now.Unix(), body: []byte(`{"status":"active"}`), status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		store := &fakeStore{}
		h := NewWebhookHandler(store, "whsec", zerolog.Nop())
		h.now = func() time.Time { return now }

		req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(tt.body))
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(tt.ts, 10))
		req.Header.Set(HeaderSignature, Sign(tt.secret, tt.ts, tt.body))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != tt.status {
			t.Fatalf("%s: status=%d body=%s", tt.name, rr.Code, rr.Body.String())
		}
		if tt.status == http.StatusNoContent {
			sub, err := store.GetSubscription(context.Background(), "u1")
			if err != nil || !sub.Status.Premium() {
				t.Fatalf("%s: stored %+v err=%v", tt.name, sub, err)
			}
		}
	}
}
