package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Dispatcher hands a delivery off for asynchronous processing. Backed by the
// job queue in production.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Delivery) error
}

// Service manages endpoint registrations and fans events out to them.
// It implements shared.Publisher.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	audit      shared.Recorder
	logger     *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, dispatcher Dispatcher, audit shared.Recorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopRecorder{}
	}
	return &Service{repo: repo, dispatcher: dispatcher, audit: audit, logger: logger}
}

// List returns all registered endpoints.
func (s *Service) List(ctx context.Context) ([]Endpoint, error) {
	return s.repo.List(ctx)
}

// RegisterInput describes a new endpoint.
type RegisterInput struct {
	URL    string
	Events []string
}

// Register creates an endpoint subscribed to the given events. Every event
// must be one of SupportedEvents. The generated signing secret is returned
// alongside the endpoint; it is not retrievable afterwards.
func (s *Service) Register(ctx context.Context, input RegisterInput, actorID int64) (Endpoint, string, error) {
	parsed, err := url.Parse(input.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Endpoint{}, "", fmt.Errorf("webhooks: url must be absolute http(s): %w", httpx.ErrValidation)
	}
	if len(input.Events) == 0 {
		return Endpoint{}, "", fmt.Errorf("webhooks: at least one event is required: %w", httpx.ErrValidation)
	}
	for _, event := range input.Events {
		if !eventSupported(event) {
			return Endpoint{}, "", fmt.Errorf("webhooks: unsupported event %q: %w", event, httpx.ErrInvalidOperation)
		}
	}

	secret, err := newSecret()
	if err != nil {
		return Endpoint{}, "", err
	}

	created, err := s.repo.Insert(ctx, Endpoint{
		URL:       input.URL,
		Secret:    secret,
		Events:    input.Events,
		CreatedBy: actorID,
	})
	if err != nil {
		return Endpoint{}, "", err
	}
	s.recordAudit(ctx, actorID, "webhook.registered", created.ID)
	return created, secret, nil
}

// Remove deletes an endpoint registration.
func (s *Service) Remove(ctx context.Context, id uuid.UUID, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "webhook.removed", id)
	return nil
}

// Publish implements shared.Publisher: one delivery is queued per endpoint
// subscribed to the event. A failure to queue one delivery does not stop the
// rest; the first error is returned after all endpoints were attempted.
func (s *Service) Publish(ctx context.Context, event string, payload any) error {
	endpoints, err := s.repo.ListForEvent(ctx, event)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event":      event,
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
		"data":       payload,
	})
	if err != nil {
		return fmt.Errorf("webhooks: marshal event: %w", err)
	}

	var firstErr error
	for _, ep := range endpoints {
		err := s.dispatcher.Dispatch(ctx, Delivery{
			EndpointID: ep.ID,
			URL:        ep.URL,
			Secret:     ep.Secret,
			Event:      event,
			Body:       body,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("webhook dispatch failed", slog.String("event", event), slog.String("endpoint", ep.ID.String()), slog.Any("error", err))
		}
	}
	return firstErr
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("webhooks: generate secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id uuid.UUID) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "webhook_endpoint",
		EntityID: id.String(),
	})
	if err != nil && s.logger != nil {
		s.logger.Error("webhooks record audit", slog.Any("error", err))
	}
}
