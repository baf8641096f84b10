// Package analytics captures product events for turn lifecycle transitions.
package analytics

import (
	"context"
	"fmt"
	"sync"

	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog/log"
)

// Event names.
const (
	EventTurnPrompted        = "collab_turn_prompted"
	EventTurnWarning         = "collab_turn_warning"
	EventTimeoutAutofill     = "collab_timeout_autofill"
	EventTimeoutHostOverride = "collab_timeout_host_override"
)

// Event is a single analytics capture.
type Event struct {
	Name       string
	TurnID     string
	Properties map[string]any
}

// Sink accepts events. Implementations must not block the caller on
// network I/O and must not return errors.
type Sink interface {
	Capture(ctx context.Context, ev Event)
	Close() error
}

// SessionID returns the session identifier attached to every event for a turn.
func SessionID(turnID string) string {
	return "hourglass-" + turnID
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Capture(context.Context, Event) {}
func (NopSink) Close() error                   { return nil }

// enqueuer is the part of posthog.Client the sink uses.
type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// PostHogSink sends events to PostHog. Delivery is batched by the client.
type PostHogSink struct {
	client enqueuer
	once   sync.Once
}

// NewPostHogSink returns a PostHog-backed sink. An empty endpoint uses the
// client default.
func NewPostHogSink(apiKey, endpoint string) (*PostHogSink, error) {
	cfg := posthog.Config{}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	client, err := posthog.NewWithConfig(apiKey, cfg)
	if err != nil {
		return nil, fmt.Errorf("analytics: posthog client: %w", err)
	}
	return &PostHogSink{client: client}, nil
}

// New returns a PostHog sink when apiKey is set and NopSink otherwise.
func New(apiKey, endpoint string) (Sink, error) {
	if apiKey == "" {
		return NopSink{}, nil
	}
	return NewPostHogSink(apiKey, endpoint)
}

// Capture enqueues ev. Enqueue failures are logged at debug and dropped.
func (s *PostHogSink) Capture(_ context.Context, ev Event) {
	session := SessionID(ev.TurnID)
	props := posthog.NewProperties()
	for k, v := range ev.Properties {
		props.Set(k, v)
	}
	props.Set("session_id", session)

	err := s.client.Enqueue(posthog.Capture{
		DistinctId: session,
		Event:      ev.Name,
		Properties: props,
	})
	if err != nil {
		log.Debug().Err(err).Str("event", ev.Name).Str("turn_id", ev.TurnID).Msg("analytics: capture dropped")
	}
}

// Close flushes pending events. Safe to call more than once.
func (s *PostHogSink) Close() error {
	var err error
	s.once.Do(func() { err = s.client.Close() })
	return err
}
