/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories. Record collections use their table name.
type EventType string

const (
	EventSlideshowChanged     EventType = "slideshows"
	EventMusicChanged         EventType = "music"
	EventUploadSessionChanged EventType = "upload_sessions"
	EventSessionImageChanged  EventType = "session_images"
	EventSubscriptionChanged  EventType = "subscriptions"
	EventShareRecorded        EventType = "share_events"
	EventUserChanged          EventType = "users"

	// Identity transitions (signed_in, signed_out, password_recovery, user_updated)
	EventAuthStateChanged EventType = "auth.state"

	// Playback lifecycle
	EventPlaybackViewed EventType = "playback.viewed"
	EventPlaybackEnded  EventType = "playback.ended"
)

// Op is the kind of record mutation carried by a change notification.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Broker is implemented by the in-process bus and the distributed buses.
type Broker interface {
	Subscribe(eventType EventType) Subscriber
	Publish(eventType EventType, payload Payload)
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Change builds a record change payload. key is the value listeners filter on
// (a slideshow id, an upload session id, a user id).
func Change(op Op, key string, record any) Payload {
	return Payload{"op": string(op), "key": key, "record": record}
}

// Key returns the filter key of a change payload.
func (p Payload) Key() string {
	key, _ := p["key"].(string)
	return key
}

// Op returns the mutation kind of a change payload.
func (p Payload) Op() Op {
	op, _ := p["op"].(string)
	return Op(op)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers drop events.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}
