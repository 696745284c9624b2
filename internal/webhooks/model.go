package webhooks

import (
	"time"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/shared"
)

// SupportedEvents are the event names an endpoint may subscribe to.
var SupportedEvents = []string{
	shared.EventDependencyCreated,
	shared.EventDependencyDeleted,
	shared.EventAssignmentCreated,
	shared.EventAssignmentRevoked,
}

// Endpoint is a registered webhook receiver. Secret signs every delivery and
// is returned only once, at registration.
type Endpoint struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Delivery is one signed POST to one endpoint. It is what gets queued.
type Delivery struct {
	EndpointID uuid.UUID `json:"endpointId"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret"`
	Event      string    `json:"event"`
	Body       []byte    `json:"body"`
}

func eventSupported(event string) bool {
	for _, e := range SupportedEvents {
		if e == event {
			return true
		}
	}
	return false
}
