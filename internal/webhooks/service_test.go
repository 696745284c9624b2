package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

type fakeEndpointRepo struct {
	endpoints []Endpoint
}

func (r *fakeEndpointRepo) List(context.Context) ([]Endpoint, error) {
	return r.endpoints, nil
}

func (r *fakeEndpointRepo) Get(_ context.Context, id uuid.UUID) (Endpoint, error) {
	for _, ep := range r.endpoints {
		if ep.ID == id {
			return ep, nil
		}
	}
	return Endpoint{}, fmt.Errorf("webhooks: endpoint %s: %w", id, httpx.ErrNotFound)
}

func (r *fakeEndpointRepo) ListForEvent(_ context.Context, event string) ([]Endpoint, error) {
	var out []Endpoint
	for _, ep := range r.endpoints {
		if !ep.Active {
			continue
		}
		for _, e := range ep.Events {
			if e == event {
				out = append(out, ep)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeEndpointRepo) Insert(_ context.Context, ep Endpoint) (Endpoint, error) {
	ep.ID = uuid.New()
	ep.Active = true
	ep.CreatedAt = time.Now()
	ep.UpdatedAt = ep.CreatedAt
	r.endpoints = append(r.endpoints, ep)
	return ep, nil
}

func (r *fakeEndpointRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, ep := range r.endpoints {
		if ep.ID == id {
			r.endpoints = append(r.endpoints[:i], r.endpoints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("webhooks: endpoint %s: %w", id, httpx.ErrNotFound)
}

type fakeDispatcher struct {
	deliveries []Delivery
	failFor    map[uuid.UUID]error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, delivery Delivery) error {
	if err := d.failFor[delivery.EndpointID]; err != nil {
		return err
	}
	d.deliveries = append(d.deliveries, delivery)
	return nil
}

func newWebhookService(repo Repository, dispatcher Dispatcher) *Service {
	return NewService(repo, dispatcher, shared.NopRecorder{}, slog.Default())
}

func TestRegisterValidatesURL(t *testing.T) {
	svc := newWebhookService(&fakeEndpointRepo{}, &fakeDispatcher{})

	for _, raw := range []string{"", "not-a-url", "ftp://example.com/hook", "/relative/path"} {
		_, _, err := svc.Register(context.Background(), RegisterInput{URL: raw, Events: SupportedEvents}, 1)
		require.ErrorIs(t, err, httpx.ErrValidation, "url %q", raw)
	}
}

func TestRegisterRequiresEvents(t *testing.T) {
	svc := newWebhookService(&fakeEndpointRepo{}, &fakeDispatcher{})

	_, _, err := svc.Register(context.Background(), RegisterInput{URL: "https://example.com/hook"}, 1)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRegisterRejectsUnknownEvent(t *testing.T) {
	svc := newWebhookService(&fakeEndpointRepo{}, &fakeDispatcher{})

	_, _, err := svc.Register(context.Background(), RegisterInput{
		URL:    "https://example.com/hook",
		Events: []string{shared.EventDependencyCreated, "asset.exploded"},
	}, 1)
	require.ErrorIs(t, err, httpx.ErrInvalidOperation)
	require.Contains(t, err.Error(), "asset.exploded")
}

func TestRegisterIssuesSecretOnce(t *testing.T) {
	repo := &fakeEndpointRepo{}
	svc := newWebhookService(repo, &fakeDispatcher{})

	ep, secret, err := svc.Register(context.Background(), RegisterInput{
		URL:    "https://example.com/hook",
		Events: []string{shared.EventDependencyCreated},
	}, 7)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(secret, "whsec_"))
	require.Len(t, secret, len("whsec_")+64)
	require.True(t, ep.Active)
	require.Equal(t, int64(7), ep.CreatedBy)

	// The secret never round-trips through the API representation.
	raw, err := json.Marshal(ep)
	require.NoError(t, err)
	require.NotContains(t, string(raw), secret)
}

func TestPublishFansOutPerSubscriber(t *testing.T) {
	repo := &fakeEndpointRepo{}
	dispatcher := &fakeDispatcher{}
	svc := newWebhookService(repo, dispatcher)

	first, _, err := svc.Register(context.Background(), RegisterInput{
		URL: "https://a.example.com/hook", Events: []string{shared.EventDependencyCreated},
	}, 1)
	require.NoError(t, err)
	_, _, err = svc.Register(context.Background(), RegisterInput{
		URL: "https://b.example.com/hook", Events: []string{shared.EventAssignmentRevoked},
	}, 1)
	require.NoError(t, err)

	err = svc.Publish(context.Background(), shared.EventDependencyCreated, map[string]any{"id": "d-1"})
	require.NoError(t, err)
	require.Len(t, dispatcher.deliveries, 1, "only the subscribed endpoint receives the event")
	got := dispatcher.deliveries[0]
	require.Equal(t, first.ID, got.EndpointID)
	require.Equal(t, shared.EventDependencyCreated, got.Event)

	var envelope struct {
		Event      string         `json:"event"`
		OccurredAt string         `json:"occurredAt"`
		Data       map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.Body, &envelope))
	require.Equal(t, shared.EventDependencyCreated, envelope.Event)
	require.NotEmpty(t, envelope.OccurredAt)
	require.Equal(t, "d-1", envelope.Data["id"])
}

func TestPublishContinuesPastFailures(t *testing.T) {
	repo := &fakeEndpointRepo{}
	dispatcher := &fakeDispatcher{failFor: map[uuid.UUID]error{}}
	svc := newWebhookService(repo, dispatcher)

	broken, _, err := svc.Register(context.Background(), RegisterInput{
		URL: "https://a.example.com/hook", Events: []string{shared.EventDependencyDeleted},
	}, 1)
	require.NoError(t, err)
	healthy, _, err := svc.Register(context.Background(), RegisterInput{
		URL: "https://b.example.com/hook", Events: []string{shared.EventDependencyDeleted},
	}, 1)
	require.NoError(t, err)

	queueDown := errors.New("queue unavailable")
	dispatcher.failFor[broken.ID] = queueDown

	err = svc.Publish(context.Background(), shared.EventDependencyDeleted, nil)
	require.ErrorIs(t, err, queueDown)
	require.Len(t, dispatcher.deliveries, 1)
	require.Equal(t, healthy.ID, dispatcher.deliveries[0].EndpointID)
}

func TestPublishWithoutSubscribersIsANoop(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc := newWebhookService(&fakeEndpointRepo{}, dispatcher)

	require.NoError(t, svc.Publish(context.Background(), shared.EventAssignmentCreated, nil))
	require.Empty(t, dispatcher.deliveries)
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"event":"dependency.created"}`)

	sig := Sign("whsec_abc", body)
	require.True(t, strings.HasPrefix(sig, "sha256="))
	require.Equal(t, sig, Sign("whsec_abc", body))
	require.NotEqual(t, sig, Sign("whsec_other", body))
	require.NotEqual(t, sig, Sign("whsec_abc", []byte(`{}`)))
}

func TestDeliverSignsAndPosts(t *testing.T) {
	var gotSignature, gotEvent, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get("X-Aegis-Event")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	body := []byte(`{"event":"dependency.created","data":{}}`)
	delivery := Delivery{
		EndpointID: uuid.New(),
		URL:        server.URL,
		Secret:     "whsec_test",
		Event:      shared.EventDependencyCreated,
		Body:       body,
	}

	err := NewDeliverer(time.Second).Deliver(context.Background(), delivery)
	require.NoError(t, err)
	require.Equal(t, Sign("whsec_test", body), gotSignature)
	require.Equal(t, shared.EventDependencyCreated, gotEvent)
	require.Equal(t, string(body), gotBody)
}

func TestDeliverTreatsNon2xxAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewDeliverer(time.Second).Deliver(context.Background(), Delivery{
		URL: server.URL, Event: shared.EventDependencyCreated, Body: []byte(`{}`),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
