package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MalformedRecordError reports a row whose shape or values violate the model.
type MalformedRecordError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s record: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("malformed %s record: %s: %s", e.Collection, e.Field, e.Reason)
}

func malformed(collection, field, reason string) error {
	return &MalformedRecordError{Collection: collection, Field: field, Reason: reason}
}

// IsMalformed reports whether err carries a MalformedRecordError.
func IsMalformed(err error) bool {
	var target *MalformedRecordError
	return errors.As(err, &target)
}

type validator interface {
	Validate() error
}

// parseRecord converts a raw row (typed struct, map from a change payload,
// or JSON bytes) into T and validates it.
func parseRecord[T any, PT interface {
	*T
	validator
}](collection string, raw any) (*T, error) {
	switch v := raw.(type) {
	case nil:
		return nil, malformed(collection, "", "empty record")
	case PT:
		if v == nil {
			return nil, malformed(collection, "", "empty record")
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return (*T)(v), nil
	case T:
		out := v
		if err := PT(&out).Validate(); err != nil {
			return nil, err
		}
		return &out, nil
	}

	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, malformed(collection, "", "unencodable value")
		}
		data = encoded
	}

	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, malformed(collection, typeErr.Field, "expected "+typeErr.Type.String()+", got "+typeErr.Value)
		}
		return nil, malformed(collection, "", err.Error())
	}
	if err := PT(out).Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseSlideshow parses and validates a slideshow row.
func ParseSlideshow(raw any) (*Slideshow, error) {
	return parseRecord[Slideshow]("slideshows", raw)
}

// ParseMusicTrack parses and validates a music row.
func ParseMusicTrack(raw any) (*MusicTrack, error) {
	return parseRecord[MusicTrack]("music", raw)
}

// ParseUploadSession parses and validates an upload session row.
func ParseUploadSession(raw any) (*UploadSession, error) {
	return parseRecord[UploadSession]("upload_sessions", raw)
}

// ParseSessionImage parses and validates a session image row.
func ParseSessionImage(raw any) (*SessionImage, error) {
	return parseRecord[SessionImage]("session_images", raw)
}

// ParseSubscription parses and validates a billing row.
func ParseSubscription(raw any) (*Subscription, error) {
	return parseRecord[Subscription]("subscriptions", raw)
}

// ParseUser parses and validates a user row.
func ParseUser(raw any) (*User, error) {
	return parseRecord[User]("users", raw)
}

// ParseFeedback parses and validates a feedback body.
func ParseFeedback(raw any) (*Feedback, error) {
	return parseRecord[Feedback]("feedback", raw)
}

// ParseWaitlistEntry parses and validates a waitlist body.
func ParseWaitlistEntry(raw any) (*WaitlistEntry, error) {
	return parseRecord[WaitlistEntry]("waitlist", raw)
}

// ParseShareEvent parses and validates a share event body.
func ParseShareEvent(raw any) (*ShareEvent, error) {
	return parseRecord[ShareEvent]("share_events", raw)
}
