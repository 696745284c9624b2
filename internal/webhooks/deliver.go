package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the request body, keyed by the
// endpoint secret, as "sha256=<hex>". Receivers verify it before trusting
// the payload.
const SignatureHeader = "X-Aegis-Signature"

// Sign computes the signature header value for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliverer performs the actual HTTP POST for a delivery. The job worker
// owns retry policy; Deliverer just reports failure.
type Deliverer struct {
	client *http.Client
}

// NewDeliverer constructs a Deliverer.
func NewDeliverer(timeout time.Duration) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{client: &http.Client{Timeout: timeout}}
}

// Deliver posts the signed payload to the endpoint. Any non-2xx response is
// an error so the queue retries it.
func (d *Deliverer) Deliver(ctx context.Context, delivery Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Body))
	if err != nil {
		return fmt.Errorf("webhooks: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Aegis-Event", delivery.Event)
	req.Header.Set(SignatureHeader, Sign(delivery.Secret, delivery.Body))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhooks: deliver to %s: %w", delivery.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhooks: endpoint %s answered %d", delivery.EndpointID, resp.StatusCode)
	}
	return nil
}
