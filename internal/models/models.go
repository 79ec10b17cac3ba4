package models

import (
	"strings"
	"time"
)

// User represents an authenticated account.
type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex" json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `gorm:"type:varchar(80)" json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Name returns the display name, falling back to the mailbox part of the email.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Validate checks the user row invariants.
func (u *User) Validate() error {
	if u.ID == "" {
		return malformed("users", "id", "missing")
	}
	if !strings.Contains(u.Email, "@") {
		return malformed("users", "email", "not an email address")
	}
	return nil
}

// Slideshow is a saved presentation. Images are stored in display order.
type Slideshow struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *string   `gorm:"type:uuid;index" json:"user_id"`
	Name       string    `gorm:"type:varchar(120)" json:"name"`
	Message    string    `gorm:"type:text" json:"message"`
	Images     []string  `gorm:"serializer:json" json:"images"`
	AudioURL   string    `json:"audio_url"`
	MusicID    *string   `gorm:"type:uuid" json:"music_id"`
	Duration   float64   `json:"duration"`
	Transition string    `gorm:"type:varchar(16)" json:"transition"`
	Views      int       `gorm:"not null;default:0" json:"views"`
	Loop       bool      `json:"loop"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SlideDuration returns the configured per-slide duration.
func (s *Slideshow) SlideDuration() time.Duration {
	return time.Duration(s.Duration * float64(time.Second))
}

// OwnedBy reports whether the slideshow belongs to userID. Anonymous shows belong to nobody.
func (s *Slideshow) OwnedBy(userID string) bool {
	return s.UserID != nil && userID != "" && *s.UserID == userID
}

// Validate checks the slideshow row invariants.
func (s *Slideshow) Validate() error {
	if s.ID == "" {
		return malformed("slideshows", "id", "missing")
	}
	if s.Duration <= 0 {
		return malformed("slideshows", "duration", "must be positive")
	}
	for _, img := range s.Images {
		if strings.TrimSpace(img) == "" {
			return malformed("slideshows", "images", "contains an empty reference")
		}
	}
	return nil
}

// MusicTier controls who may pick a track.
type MusicTier string

const (
	MusicTierPublic  MusicTier = "public"
	MusicTierPremium MusicTier = "premium"
	MusicTierPrivate MusicTier = "private"
)

// MusicTrack is a background audio option.
type MusicTrack struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"index" json:"title"`
	URL       string    `json:"url"`
	Duration  float64   `json:"duration"`
	Tier      MusicTier `gorm:"type:varchar(16);index" json:"tier"`
	OwnerID   *string   `gorm:"type:uuid;index" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the collection name used by change notifications.
func (MusicTrack) TableName() string {
	return "music"
}

// Validate checks the music row invariants.
func (m *MusicTrack) Validate() error {
	if m.ID == "" {
		return malformed("music", "id", "missing")
	}
	if strings.TrimSpace(m.Title) == "" {
		return malformed("music", "title", "missing")
	}
	if m.URL == "" {
		return malformed("music", "url", "missing")
	}
	switch m.Tier {
	case MusicTierPublic, MusicTierPremium, MusicTierPrivate:
	default:
		return malformed("music", "tier", "unknown tier "+string(m.Tier))
	}
	return nil
}

// VisibleTo reports whether a user with the given id and premium flag may select the track.
func (m *MusicTrack) VisibleTo(userID string, premium bool) bool {
	switch m.Tier {
	case MusicTierPublic:
		return true
	case MusicTierPremium:
		return premium
	case MusicTierPrivate:
		return m.OwnerID != nil && userID != "" && *m.OwnerID == userID
	}
	return false
}
