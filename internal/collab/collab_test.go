package collab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/clock"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/media"
	"github.com/friendsincode/slidify/internal/models"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func pngFile(name string, size int) File {
	data := make([]byte, size)
	copy(data, pngMagic)
	return File{Name: name, Data: data}
}

func pngFiles(n, size int) []File {
	files := make([]File, n)
	for i := range files {
		files[i] = pngFile(fmt.Sprintf("img-%d.png", i), size)
	}
	return files
}

func TestStageRemainingSlots(t *testing.T) {
	session := models.UploadSession{MaxUploads: 10, CurrentUploads: 8}
	res := Stage(DefaultLimits(), session.Remaining(), nil, pngFiles(5, 1024))

	if len(res.Accepted) != 2 {
		t.Fatalf("accepted=%d, want 2", len(res.Accepted))
	}
	if len(res.Rejected) != 3 {
		t.Fatalf("rejected=%d, want 3", len(res.Rejected))
	}
	for _, r := range res.Rejected {
		if r.Reason != ReasonNoSlots {
			t.Fatalf("unexpected reason %q", r.Reason)
		}
	}
}

func TestStageOversizeFileDoesNotBlockOthers(t *testing.T) {
	limits := DefaultLimits()
	files := []File{
		pngFile("a.png", 1024),
		pngFile("huge.png", int(limits.MaxFileBytes)+1),
		pngFile("b.png", 2048),
	}
	res := Stage(limits, 10, nil, files)
	if len(res.Accepted) != 2 || res.Accepted[0].Name != "a.png" || res.Accepted[1].Name != "b.png" {
		t.Fatalf("unexpected accepted %+v", res.Accepted)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != (Rejection{File: "huge.png", Reason: ReasonTooLarge}) {
		t.Fatalf("unexpected rejected %+v", res.Rejected)
	}
}

func TestStageRules(t *testing.T) {
	limits := Limits{MaxFileBytes: 100, MaxBatchFiles: 3, MaxBatchBytes: 250}
	tests := []struct {
		name     string
		slots    int
		staged   []File
		incoming []File
		accepted int
		reasons  []Reason
	}{
		{
			name:     "not an image",
			slots:    10,
			incoming: []File{{Name: "notes.txt", Data: []byte("hello world")}, pngFile("a.png", 50)},
			accepted: 1,
			reasons:  []Reason{ReasonNotImage},
		},
		{
			name:     "batch count counts staged files",
			slots:    10,
			staged:   pngFiles(2, 10),
			incoming: pngFiles(2, 10),
			accepted: 1,
			reasons:  []Reason{ReasonBatchCount},
		},
		{
			name:     "batch bytes",
			slots:    10,
			incoming: []File{pngFile("a.png", 100), pngFile("b.png", 100), pngFile("c.png", 100)},
			accepted: 2,
			reasons:  []Reason{ReasonBatchBytes},
		},
		{
			name:     "staged files consume slots",
			slots:    2,
			staged:   pngFiles(2, 10),
			incoming: pngFiles(1, 10),
			accepted: 0,
			reasons:  []Reason{ReasonNoSlots},
		},
		{
			name:     "size checked before slots",
			slots:    0,
			incoming: []File{pngFile("big.png", 101)},
			accepted: 0,
			reasons:  []Reason{ReasonTooLarge},
		},
	}

	for _, tt := range tests {
		res := Stage(limits, tt.slots, tt.staged, tt.incoming)
		if len(res.Accepted) != tt.accepted {
			t.Fatalf("%s: accepted=%d, want %d", tt.name, len(res.Accepted), tt.accepted)
		}
		if len(res.Rejected) != len(tt.reasons) {
			t.Fatalf("%s: rejected=%+v", tt.name, res.Rejected)
		}
		for i, r := range res.Rejected {
			if r.Reason != tt.reasons[i] {
				t.Fatalf("%s: reason[%d]=%q, want %q", tt.name, i, r.Reason, tt.reasons[i])
			}
		}
	}
}

type fakeBackend struct {
	mu        sync.Mutex
	session   models.UploadSession
	fetches   int
	uploads   int
	inserted  []models.SessionImage
	failOn    string
	insertErr error

	// When set, UploadImage signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func (b *fakeBackend) GetUploadSessionByToken(_ context.Context, token string) (*models.UploadSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if token != b.session.Token {
		return nil, gateway.ErrNotFound
	}
	b.fetches++
	s := b.session
	return &s, nil
}

func (b *fakeBackend) UploadImage(_ context.Context, owner, filename string, data []byte) (*media.StoredImage, error) {
	if filename == b.failOn {
		return nil, errors.New("storage unavailable")
	}
	if b.release != nil {
		select {
		case b.started <- struct{}{}:
		default:
		}
		<-b.release
	}
	b.mu.Lock()
	b.uploads++
	b.mu.Unlock()
	return &media.StoredImage{
		Key:  owner + "/" + filename,
		URL:  "https://cdn.example.com/" + owner + "/" + filename,
		Size: int64(len(data)),
	}, nil
}

func (b *fakeBackend) InsertSessionImages(_ context.Context, sessionID string, images []models.SessionImage) (*models.UploadSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return nil, b.insertErr
	}
	if b.session.CurrentUploads+len(images) > b.session.MaxUploads {
		return nil, gateway.ErrQuotaExceeded
	}
	b.inserted = append(b.inserted, images...)
	b.session.CurrentUploads += len(images)
	s := b.session
	return &s, nil
}

func (b *fakeBackend) setCurrent(n int) {
	b.mu.Lock()
	b.session.CurrentUploads = n
	b.mu.Unlock()
}

func (b *fakeBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newBackend(current int) *fakeBackend {
	return &fakeBackend{session: models.UploadSession{
		ID:             "sess-1",
		Token:          "tok",
		SlideshowID:    "show-1",
		MaxUploads:     10,
		CurrentUploads: current,
		ExpiresAt:      testNow.Add(time.Hour),
		Active:         true,
	}}
}

func newTestFlow(t *testing.T, backend *fakeBackend, bus events.Broker, sched *clock.Manual) *Flow {
	t.Helper()
	cfg := DefaultConfig()
	f := NewFlow(backend, bus, sched, cfg, zerolog.Nop())
	t.Cleanup(f.Close)
	if _, err := f.Open(context.Background(), "tok"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return f
}

func TestFlowSubmit(t *testing.T) {
	backend := newBackend(8)
	f := newTestFlow(t, backend, nil, clock.NewManual(testNow))

	res, err := f.Stage(pngFiles(5, 512)...)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if len(res.Accepted) != 2 || len(res.Rejected) != 3 {
		t.Fatalf("accepted=%d rejected=%d", len(res.Accepted), len(res.Rejected))
	}
	if f.Remaining() != 0 {
		t.Fatalf("Remaining=%d", f.Remaining())
	}

	var notified models.UploadSession
	f.OnChange(func(s models.UploadSession) { notified = s })

	session, err := f.Submit(context.Background(), "  Grandma ")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.CurrentUploads != 10 || notified.CurrentUploads != 10 {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(backend.inserted) != 2 || backend.inserted[0].UploaderName != "Grandma" {
		t.Fatalf("unexpected inserts %+v", backend.inserted)
	}
	if len(f.Staged()) != 0 {
		t.Fatal("staged files should be cleared after submit")
	}
	if _, err := f.Stage(pngFile("late.png", 10)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("full session should reject staging, got %v", err)
	}
}

func TestFlowStagingDuringSubmit(t *testing.T) {
	backend := newBackend(0)
	backend.started = make(chan struct{}, 1)
	backend.release = make(chan struct{})
	f := newTestFlow(t, backend, nil, clock.NewManual(testNow))

	if _, err := f.Stage(pngFile("a.png", 64), pngFile("b.png", 64)); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), "Ana")
		done <- err
	}()

	select {
	case <-backend.started:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never started")
	}
	if f.Unstage("a.png") {
		t.Fatal("Unstage must refuse a file in the batch being uploaded")
	}
	if _, err := f.Stage(pngFile("c.png", 64)); err != nil {
		t.Fatalf("Stage during submit: %v", err)
	}
	close(backend.release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Submit did not finish")
	}

	if len(backend.inserted) != 2 {
		t.Fatalf("inserted=%d, want 2", len(backend.inserted))
	}
	if got := f.Staged(); len(got) != 1 || got[0] != "c.png" {
		t.Fatalf("staged after submit = %v, want [c.png]", got)
	}
	if !f.Unstage("c.png") {
		t.Fatal("Unstage should work once the submit is done")
	}
}

func TestWithoutSubmitted(t *testing.T) {
	a := File{Name: "a.png", seq: 1}
	b := File{Name: "b.png", seq: 2}
	c := File{Name: "a.png", seq: 3}
	got := withoutSubmitted([]File{b, c}, []File{a, b})
	if len(got) != 1 || got[0].seq != 3 {
		t.Fatalf("withoutSubmitted = %+v, want only the restaged a.png", got)
	}
}

func TestFlowSubmitIsAllOrNothing(t *testing.T) {
	backend := newBackend(0)
	backend.failOn = "img-2.png"
	f := newTestFlow(t, backend, nil, clock.NewManual(testNow))

	if _, err := f.Stage(pngFiles(4, 256)...); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Submit(context.Background(), "Ana"); err == nil {
		t.Fatal("expected batch failure")
	}
	if len(backend.inserted) != 0 {
		t.Fatalf("no image records may be written, got %d", len(backend.inserted))
	}
	if len(f.Staged()) != 4 {
		t.Fatalf("files should stay staged for retry, have %d", len(f.Staged()))
	}

	backend.failOn = ""
	if _, err := f.Submit(context.Background(), "Ana"); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if len(backend.inserted) != 4 {
		t.Fatalf("inserted=%d", len(backend.inserted))
	}
}

func TestFlowSubmitQuotaRace(t *testing.T) {
	backend := newBackend(7)
	f := newTestFlow(t, backend, nil, clock.NewManual(testNow))
	if _, err := f.Stage(pngFiles(3, 64)...); err != nil {
		t.Fatal(err)
	}

	// Another contributor fills the session meanwhile.
	backend.setCurrent(9)
	_, err := f.Submit(context.Background(), "Ana")
	if !errors.Is(err, ErrSessionClosed) || !errors.Is(err, gateway.ErrQuotaExceeded) {
		t.Fatalf("expected ErrSessionClosed wrapping quota error, got %v", err)
	}
	if s, _ := f.Session(); s.CurrentUploads != 9 {
		t.Fatalf("session not refreshed after rejection: %+v", s)
	}
}

func TestFlowRejectsExpiredSession(t *testing.T) {
	backend := newBackend(0)
	sched := clock.NewManual(testNow)
	f := newTestFlow(t, backend, nil, sched)
	if _, err := f.Stage(pngFile("a.png", 64)); err != nil {
		t.Fatal(err)
	}
	sched.Advance(2 * time.Hour)
	if _, err := f.Submit(context.Background(), "Ana"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if backend.uploads != 0 {
		t.Fatal("expired session must not upload")
	}
}

func TestFlowDebouncedRefresh(t *testing.T) {
	backend := newBackend(0)
	bus := events.NewBus()
	sched := clock.NewManual(testNow)
	f := newTestFlow(t, backend, bus, sched)
	base := backend.fetchCount()

	backend.setCurrent(3)
	for i := 0; i < 5; i++ {
		bus.Publish(events.EventUploadSessionChanged, events.Change(events.OpUpdate, "sess-1", nil))
	}
	bus.Publish(events.EventUploadSessionChanged, events.Change(events.OpUpdate, "other", nil))

	deadline := time.Now().Add(2 * time.Second)
	for f.queue.Len() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("notifications not queued, have %d", f.queue.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	sched.Advance(500 * time.Millisecond)
	if got := backend.fetchCount() - base; got != 1 {
		t.Fatalf("expected one coalesced refetch, got %d", got)
	}
	if s, _ := f.Session(); s.CurrentUploads != 3 {
		t.Fatalf("session not refreshed: %+v", s)
	}
}

func TestFlowPollSkippedWhileSubmitting(t *testing.T) {
	backend := newBackend(0)
	sched := clock.NewManual(testNow)
	f := newTestFlow(t, backend, nil, sched)
	base := backend.fetchCount()

	sched.Advance(30 * time.Second)
	if got := backend.fetchCount() - base; got != 1 {
		t.Fatalf("poll fetches=%d", got)
	}

	f.mu.Lock()
	f.submitting = true
	f.mu.Unlock()
	sched.Advance(30 * time.Second)
	if got := backend.fetchCount() - base; got != 1 {
		t.Fatalf("poll ran during submit, fetches=%d", got)
	}

	f.mu.Lock()
	f.submitting = false
	f.mu.Unlock()
	sched.Advance(30 * time.Second)
	if got := backend.fetchCount() - base; got != 2 {
		t.Fatalf("poll did not resume, fetches=%d", got)
	}

	f.Close()
	if sched.Pending() != 0 {
		t.Fatalf("timers left after Close: %d", sched.Pending())
	}
}

func TestFlowOpenUnknownToken(t *testing.T) {
	f := NewFlow(newBackend(0), nil, clock.NewManual(testNow), DefaultConfig(), zerolog.Nop())
	defer f.Close()
	if _, err := f.Open(context.Background(), "nope"); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.Stage(pngFile("a.png", 10)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestRejectionError(t *testing.T) {
	r := Rejection{File: "a.png", Reason: ReasonTooLarge}
	if !bytes.Contains([]byte(r.Error()), []byte("too_large")) {
		t.Fatalf("Error()=%q", r.Error())
	}
}
