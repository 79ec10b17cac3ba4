/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// Watch delivers change payloads of eventType whose key matches key to fn on a
// dedicated goroutine. An empty key matches every payload. The returned stop
// function unsubscribes and waits for the goroutine to exit; it is safe to call twice.
func Watch(broker Broker, eventType EventType, key string, fn func(Payload)) (stop func()) {
	sub := broker.Subscribe(eventType)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for payload := range sub {
			if key != "" && payload.Key() != key {
				continue
			}
			fn(payload)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			broker.Unsubscribe(eventType, sub)
			<-done
		})
	}
}
