package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/models"
)

func TestUnavailableRedisDisablesCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	start := time.Now()
	c := New(cfg, zerolog.Nop())
	defer c.Close()
	if time.Since(start) > 10*time.Second {
		t.Fatal("New blocked too long")
	}
	if c.IsAvailable() {
		t.Fatal("expected cache disabled without redis")
	}

	ctx := context.Background()
	show := &models.Slideshow{ID: "s1", Duration: 3, Images: []string{"a.jpg"}}
	if err := c.SetSlideshow(ctx, show); err != nil {
		t.Fatalf("SetSlideshow on disabled cache: %v", err)
	}
	if _, ok := c.GetSlideshow(ctx, "s1"); ok {
		t.Fatal("disabled cache returned a hit")
	}
	if _, ok := c.GetMusic(ctx); ok {
		t.Fatal("disabled cache returned music")
	}
	if err := c.InvalidateSlideshow(ctx, "s1"); err != nil {
		t.Fatalf("InvalidateSlideshow: %v", err)
	}
}

func TestDisabledCache(t *testing.T) {
	c := Disabled(zerolog.Nop())
	if c.IsAvailable() {
		t.Fatal("Disabled cache reports available")
	}
	if err := c.SetTaglines(context.Background(), []models.Tagline{{Text: "hi"}}); err != nil {
		t.Fatalf("SetTaglines: %v", err)
	}
	if _, ok := c.GetTaglines(context.Background()); ok {
		t.Fatal("Disabled cache returned taglines")
	}
}
