package interfaces

import "context"

// EventPublisher emits domain events to the event bus. Publishing is
// best-effort from the caller's perspective: a failed publish must not roll
// back the state change it announces.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, event any) error
}
