package shared

import "context"

// Event names emitted by the domain services.
const (
	EventDependencyCreated = "dependency.created"
	EventDependencyDeleted = "dependency.deleted"
	EventAssignmentCreated = "assignment.created"
	EventAssignmentRevoked = "assignment.revoked"
)

// Publisher fans a domain event out to interested subscribers. Publishing is
// best-effort: services log failures and carry on, the primary write has
// already committed.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// NopPublisher drops events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, any) error { return nil }
