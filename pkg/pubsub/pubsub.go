// Package pubsub distributes authority status events to HTTP dashboards
// over Server-Sent Events. It is a side channel next to the graph sync
// protocol: lossy, retain-last, no ordering contract beyond the per-topic
// version counter.
package pubsub

import (
	"context"
	"encoding/json"
)

// Event represents a published status event
type Event struct {
	Topic   string          `json:"topic"`   // e.g. "authority_status"
	Type    string          `json:"type"`    // e.g. "revision_advanced", "viewer_connected"
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Per-topic version for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic.
	// Context cancellation will close the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// AuthorityStatus is the payload published on the authority_status topic.
type AuthorityStatus struct {
	Revision int64 `json:"revision"`
	Nodes    int   `json:"nodes"`
	Edges    int   `json:"edges"`
	Viewers  int   `json:"viewers"`
}
