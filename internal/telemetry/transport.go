package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sendTimeout bounds one batch send end to end. An in-flight request is
// never forcibly cancelled by shutdown; this timeout is what bounds it.
const sendTimeout = 5 * time.Second

// Sender ships one batch of anonymized events. Implementations are
// stateless and perform no retries: a batch either fully succeeds or is
// fully dropped, and the retry policy belongs to the collector's circuit
// breaker.
type Sender interface {
	SendBatch(ctx context.Context, events []AnonymizedEvent) error
}

// HTTPClient is the subset of *http.Client the sender needs, split out
// so tests can substitute a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// batchPayload is the wire envelope: one POST body per batch.
type batchPayload struct {
	Events []AnonymizedEvent `json:"events"`
}

type httpSender struct {
	endpoint string
	version  string
	client   HTTPClient
}

// NewHTTPSender creates a Sender that POSTs batches to the given
// endpoint. A nil client gets a default http.Client with the transport
// timeout applied.
func NewHTTPSender(endpoint, version string, client HTTPClient) Sender {
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	return &httpSender{
		endpoint: endpoint,
		version:  version,
		client:   client,
	}
}

// SendBatch serializes the batch as a single JSON request and performs
// one bounded network call. A non-2xx status, a network failure, and a
// timeout are all reported uniformly as an error.
func (s *httpSender) SendBatch(ctx context.Context, events []AnonymizedEvent) error {
	body, err := json.Marshal(batchPayload{Events: events})
	if err != nil {
		return fmt.Errorf("marshaling event batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("skycast/%s", s.version))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event batch rejected with status %d", resp.StatusCode)
	}
	return nil
}
