// Package records persists copilot output to the interview session-record
// service.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
	"meeting-copilot/internal/observability"
)

const (
	kindSuggestions = "suggestions"
	kindSummary     = "summary"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     *observability.Tracer
	logger     logging.Logger
}

var _ ports.RecordStore = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger logging.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tracer:     observability.NewTracer(),
		logger:     logger.With(logging.F("component", "records")),
	}
}

// SaveCopilotRecord posts one record. Any non-2xx answer is a failure.
func (c *Client) SaveCopilotRecord(ctx context.Context, sessionID string, rec domain.CopilotRecord) (err error) {
	kind := kindSuggestions
	if rec.IsSummary() {
		kind = kindSummary
	}
	ctx, span := c.tracer.StartPersistSpan(ctx, sessionID, kind)
	defer func() { observability.EndSpan(span, err) }()

	// Consumers expect lists, never null.
	if rec.Suggestions == nil {
		rec.Suggestions = []string{}
	}
	if rec.TranscriptChunks == nil {
		rec.TranscriptChunks = []string{}
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %v", domain.ErrPersistenceFailure, err)
	}

	endpoint := c.baseURL + "/sessions/" + url.PathEscape(sessionID) + "/copilot"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", domain.ErrPersistenceFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int(observability.AttrStatus, resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: POST %s: %d: %s", domain.ErrPersistenceFailure, endpoint, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	c.logger.Debug("Copilot record saved",
		logging.F("session_id", sessionID),
		logging.F("kind", kind),
		logging.F("suggestions", len(rec.Suggestions)))
	return nil
}
