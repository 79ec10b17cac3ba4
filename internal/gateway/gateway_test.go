package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/slidify/internal/db"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/media"
	"github.com/friendsincode/slidify/internal/models"
)

func newTestGateway(t *testing.T) (*Gateway, *events.Bus) {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := events.NewBus()
	blobs := media.NewServiceWithStorage(media.NewFilesystemStorage(t.TempDir(), "http://test/media", zerolog.Nop()), 0, zerolog.Nop())
	return New(database, bus, blobs, nil, zerolog.Nop()), bus
}

func expectEvent(t *testing.T, sub events.Subscriber, key string) events.Payload {
	t.Helper()
	select {
	case p := <-sub:
		if p.Key() != key {
			t.Fatalf("event key %q, want %q", p.Key(), key)
		}
		return p
	case <-time.After(time.Second):
		t.Fatalf("no event for key %q", key)
	}
	return nil
}

func TestSlideshowLifecycle(t *testing.T) {
	g, bus := newTestGateway(t)
	ctx := context.Background()
	sub := bus.Subscribe(events.EventSlideshowChanged)

	owner := "user-1"
	show := &models.Slideshow{UserID: &owner, Name: "Trip", Images: []string{"a", "b", "c"}, Duration: 3, Transition: "fade"}
	if err := g.CreateSlideshow(ctx, show); err != nil {
		t.Fatalf("CreateSlideshow: %v", err)
	}
	if p := expectEvent(t, sub, show.ID); p.Op() != events.OpInsert {
		t.Fatalf("op = %s", p.Op())
	}

	got, err := g.GetSlideshow(ctx, show.ID)
	if err != nil {
		t.Fatalf("GetSlideshow: %v", err)
	}
	if got.Images[2] != "c" {
		t.Fatalf("image order lost: %v", got.Images)
	}

	if _, err := g.UpdateSlideshow(ctx, show.ID, "someone-else", func(s *models.Slideshow) error {
		s.Name = "Hijack"
		return nil
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	updated, err := g.UpdateSlideshow(ctx, show.ID, owner, func(s *models.Slideshow) error {
		s.Name = "Trip 2"
		return nil
	})
	if err != nil || updated.Name != "Trip 2" {
		t.Fatalf("UpdateSlideshow: %v %+v", err, updated)
	}
	expectEvent(t, sub, show.ID)

	if _, err := g.UpdateSlideshow(ctx, show.ID, owner, func(s *models.Slideshow) error {
		s.Duration = 0
		return nil
	}); !models.IsMalformed(err) {
		t.Fatalf("expected malformed record, got %v", err)
	}

	views, err := g.IncrementViews(ctx, show.ID)
	if err != nil || views != 1 {
		t.Fatalf("IncrementViews = %d, %v", views, err)
	}
	expectEvent(t, sub, show.ID)

	list, err := g.ListSlideshows(ctx, owner)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSlideshows = %v, %v", list, err)
	}

	if err := g.DeleteSlideshow(ctx, show.ID, owner); err != nil {
		t.Fatalf("DeleteSlideshow: %v", err)
	}
	if _, err := g.GetSlideshow(ctx, show.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := g.IncrementViews(ctx, show.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for views, got %v", err)
	}
}

func TestInsertSessionImagesEnforcesQuota(t *testing.T) {
	g, bus := newTestGateway(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })

	sess := &models.UploadSession{SlideshowID: "s1", MaxUploads: 10, CurrentUploads: 8, ExpiresAt: now.Add(time.Hour), CreatedBy: "u1"}
	if err := g.CreateUploadSession(ctx, sess); err != nil {
		t.Fatalf("CreateUploadSession: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("token not generated")
	}

	sub := bus.Subscribe(events.EventUploadSessionChanged)

	_, err := g.InsertSessionImages(ctx, sess.ID, []models.SessionImage{{URL: "1"}, {URL: "2"}, {URL: "3"}})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	updated, err := g.InsertSessionImages(ctx, sess.ID, []models.SessionImage{{URL: "1", UploaderName: "Ana"}, {URL: "2"}})
	if err != nil {
		t.Fatalf("InsertSessionImages: %v", err)
	}
	if updated.CurrentUploads != 10 || updated.Remaining() != 0 {
		t.Fatalf("unexpected counters %+v", updated)
	}
	expectEvent(t, sub, sess.ID)

	images, err := g.ListSessionImages(ctx, sess.ID)
	if err != nil || len(images) != 2 {
		t.Fatalf("ListSessionImages = %v, %v", images, err)
	}

	byToken, err := g.GetUploadSessionByToken(ctx, sess.Token)
	if err != nil || byToken.ID != sess.ID {
		t.Fatalf("GetUploadSessionByToken = %+v, %v", byToken, err)
	}
}

func TestInsertSessionImagesRejectsExpired(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })

	sess := &models.UploadSession{MaxUploads: 5, ExpiresAt: now.Add(-time.Minute)}
	if err := g.CreateUploadSession(ctx, sess); err != nil {
		t.Fatalf("CreateUploadSession: %v", err)
	}
	if _, err := g.InsertSessionImages(ctx, sess.ID, []models.SessionImage{{URL: "x"}}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestConcurrentSessionInsertsNeverExceedQuota(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	sess := &models.UploadSession{MaxUploads: 5, ExpiresAt: time.Now().Add(time.Hour)}
	if err := g.CreateUploadSession(ctx, sess); err != nil {
		t.Fatalf("CreateUploadSession: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.InsertSessionImages(ctx, sess.ID, []models.SessionImage{{URL: "img"}})
		}()
	}
	wg.Wait()

	final, err := g.GetUploadSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetUploadSession: %v", err)
	}
	if final.CurrentUploads != 5 {
		t.Fatalf("current uploads = %d, want 5", final.CurrentUploads)
	}
}

func TestSubscriptionUpsertPublishesByUser(t *testing.T) {
	g, bus := newTestGateway(t)
	ctx := context.Background()
	sub := bus.Subscribe(events.EventSubscriptionChanged)

	if _, err := g.GetSubscription(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := g.UpsertSubscription(ctx, &models.Subscription{UserID: "u1", Status: models.SubscriptionTrialing, Plan: "pro"}); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}
	expectEvent(t, sub, "u1")
	if err := g.UpsertSubscription(ctx, &models.Subscription{UserID: "u1", Status: models.SubscriptionCanceled, Plan: "pro"}); err != nil {
		t.Fatalf("UpsertSubscription update: %v", err)
	}
	expectEvent(t, sub, "u1")

	got, err := g.GetSubscription(ctx, "u1")
	if err != nil || got.Status != models.SubscriptionCanceled {
		t.Fatalf("GetSubscription = %+v, %v", got, err)
	}
}

func TestUsersAndWaitlist(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	u := &models.User{Email: " Ana@Example.com ", PasswordHash: "x"}
	if err := g.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := g.CreateUser(ctx, &models.User{Email: "ana@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got, err := g.GetUserByEmail(ctx, "ANA@example.com"); err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByEmail = %+v, %v", got, err)
	}

	first, err := g.JoinWaitlist(ctx, &models.WaitlistEntry{Email: "w@example.com"})
	if err != nil {
		t.Fatalf("JoinWaitlist: %v", err)
	}
	again, err := g.JoinWaitlist(ctx, &models.WaitlistEntry{Email: "W@example.com"})
	if err != nil || again.ID != first.ID {
		t.Fatalf("JoinWaitlist twice = %+v, %v", again, err)
	}
	if _, err := g.JoinWaitlist(ctx, &models.WaitlistEntry{Email: "nope"}); !models.IsMalformed(err) {
		t.Fatalf("expected malformed waitlist email, got %v", err)
	}
}

func TestContentCollections(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	if _, err := g.RandomTagline(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without taglines, got %v", err)
	}
	if err := g.CreateTagline(ctx, &models.Tagline{Text: "Share moments", Active: true}); err != nil {
		t.Fatalf("CreateTagline: %v", err)
	}
	if line, err := g.RandomTagline(ctx); err != nil || line.Text != "Share moments" {
		t.Fatalf("RandomTagline = %+v, %v", line, err)
	}

	for _, m := range []models.ShareMessage{{Platform: "x", Text: "a"}, {Platform: "whatsapp", Text: "b"}} {
		m := m
		if err := g.CreateShareMessage(ctx, &m); err != nil {
			t.Fatalf("CreateShareMessage: %v", err)
		}
	}
	if msgs, err := g.ListShareMessages(ctx, "whatsapp"); err != nil || len(msgs) != 1 {
		t.Fatalf("ListShareMessages = %v, %v", msgs, err)
	}

	if err := g.CreateFeedback(ctx, &models.Feedback{Message: "love it", Rating: 5}); err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}
	if err := g.CreateFeedback(ctx, &models.Feedback{Message: "x", Rating: 9}); !models.IsMalformed(err) {
		t.Fatalf("expected malformed feedback, got %v", err)
	}

	if err := g.CreateMusic(ctx, &models.MusicTrack{Title: "B", URL: "b.mp3", Tier: models.MusicTierPublic}); err != nil {
		t.Fatalf("CreateMusic: %v", err)
	}
	if err := g.CreateMusic(ctx, &models.MusicTrack{Title: "A", URL: "a.mp3", Tier: models.MusicTierPremium}); err != nil {
		t.Fatalf("CreateMusic: %v", err)
	}
	tracks, err := g.ListMusic(ctx)
	if err != nil || len(tracks) != 2 || tracks[0].Title != "A" {
		t.Fatalf("ListMusic = %v, %v", tracks, err)
	}

	if err := g.RecordShare(ctx, &models.ShareEvent{SlideshowID: "s1", Platform: "x"}); err != nil {
		t.Fatalf("RecordShare: %v", err)
	}
}

func TestBlobPassthrough(t *testing.T) {
	g, _ := newTestGateway(t)
	if err := g.Upload(context.Background(), media.BucketAudio, "u/song.mp3", []byte("ID3")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := g.PublicURL(media.BucketAudio, "u/song.mp3"); got != "http://test/media/audio/u/song.mp3" {
		t.Fatalf("PublicURL = %s", got)
	}
}
