package models

import (
	"strings"
	"time"
)

// Tagline is a rotating marketing line shown on the landing view.
type Tagline struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id" yaml:"-"`
	Text      string    `gorm:"type:text" json:"text" yaml:"text"`
	Active    bool      `gorm:"not null;default:true" json:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// ShareMessage is a prewritten caption offered when sharing a slideshow.
type ShareMessage struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id" yaml:"-"`
	Platform  string    `gorm:"type:varchar(24);index" json:"platform" yaml:"platform"`
	Text      string    `gorm:"type:text" json:"text" yaml:"text"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// ShareEvent records that a slideshow link was shared.
type ShareEvent struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	SlideshowID string    `gorm:"type:uuid;index" json:"slideshow_id"`
	Platform    string    `gorm:"type:varchar(24)" json:"platform"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// Validate checks the share event invariants.
func (e *ShareEvent) Validate() error {
	if e.SlideshowID == "" {
		return malformed("share_events", "slideshow_id", "missing")
	}
	if strings.TrimSpace(e.Platform) == "" {
		return malformed("share_events", "platform", "missing")
	}
	return nil
}

// Feedback is a free-form message left by a visitor.
type Feedback struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    *string   `gorm:"type:uuid;index" json:"user_id"`
	Email     string    `json:"email"`
	Message   string    `gorm:"type:text" json:"message"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

func (Feedback) TableName() string {
	return "feedback"
}

// Validate checks the feedback invariants.
func (f *Feedback) Validate() error {
	if strings.TrimSpace(f.Message) == "" {
		return malformed("feedback", "message", "missing")
	}
	if f.Rating < 0 || f.Rating > 5 {
		return malformed("feedback", "rating", "out of range 0..5")
	}
	return nil
}

// WaitlistEntry is an email address waiting for access.
type WaitlistEntry struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Source    string    `gorm:"type:varchar(32)" json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func (WaitlistEntry) TableName() string {
	return "waitlist"
}

// Validate checks the waitlist invariants.
func (w *WaitlistEntry) Validate() error {
	if !strings.Contains(w.Email, "@") {
		return malformed("waitlist", "email", "not an email address")
	}
	return nil
}
