package models

import "time"

// UploadSession is a token-addressed, quota- and time-bounded channel for
// contributing images to someone else's slideshow.
type UploadSession struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	Token          string    `gorm:"uniqueIndex;type:varchar(64)" json:"token"`
	SlideshowID    string    `gorm:"type:uuid;index" json:"slideshow_id"`
	MaxUploads     int       `gorm:"not null" json:"max_uploads"`
	CurrentUploads int       `gorm:"not null;default:0" json:"current_uploads"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	CreatedBy      string    `gorm:"type:uuid;index" json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Remaining returns how many more images the session accepts.
func (s *UploadSession) Remaining() int {
	if n := s.MaxUploads - s.CurrentUploads; n > 0 {
		return n
	}
	return 0
}

// Expired reports whether the session expiry has passed at now.
func (s *UploadSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Open reports whether the session still accepts submissions.
func (s *UploadSession) Open(now time.Time) bool {
	return s.Active && !s.Expired(now) && s.Remaining() > 0
}

// Validate checks the upload session row invariants.
func (s *UploadSession) Validate() error {
	if s.ID == "" {
		return malformed("upload_sessions", "id", "missing")
	}
	if s.Token == "" {
		return malformed("upload_sessions", "token", "missing")
	}
	if s.MaxUploads <= 0 {
		return malformed("upload_sessions", "max_uploads", "must be positive")
	}
	if s.CurrentUploads < 0 {
		return malformed("upload_sessions", "current_uploads", "negative")
	}
	return nil
}

// SessionImage is one image contributed through an upload session.
type SessionImage struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    string    `gorm:"type:uuid;index;not null" json:"session_id"`
	URL          string    `json:"url"`
	UploaderName string    `gorm:"type:varchar(80)" json:"uploader_name"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// Validate checks the session image row invariants.
func (i *SessionImage) Validate() error {
	if i.SessionID == "" {
		return malformed("session_images", "session_id", "missing")
	}
	if i.URL == "" {
		return malformed("session_images", "url", "missing")
	}
	return nil
}
