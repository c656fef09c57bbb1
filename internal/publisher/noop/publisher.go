// Package noop provides a publisher that discards every message.
package noop

import "context"

// Publisher drops all payloads; used when completion notifications are not
// configured.
type Publisher struct{}

// New returns a noop Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish discards the payload.
func (Publisher) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
