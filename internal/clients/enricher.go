package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EnricherClient handles communication with the enrichment service
type EnricherClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// EnrichRequest represents a request to the enrichment service. Tags carries
// the user's existing vocabulary when the caller wants it used as
// classification context.
type EnrichRequest struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags,omitempty"`
}

// EnrichMetadata holds the descriptive fields the enrichment service
// extracted. Absent fields stay nil; the pipeline writes them through as
// explicit unsets rather than keeping stale values.
type EnrichMetadata struct {
	Title     *string `json:"title"`
	Favicon   *string `json:"favicon"`
	MetaImage *string `json:"meta_image"`
}

// EnrichResponse represents a response from the enrichment service. A
// populated Detail field is a structured failure and invalidates every
// other field.
type EnrichResponse struct {
	Detail   string         `json:"detail,omitempty"`
	Tags     []string       `json:"tags"`
	Metadata EnrichMetadata `json:"metadata"`
	Content  *string        `json:"content,omitempty"`
}

// NewEnricherClient creates a new enrichment service client. The bearer
// token is configured once per process.
func NewEnricherClient(baseURL, apiToken string) *EnricherClient {
	return &EnricherClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout:   10 * time.Minute, // AI classification can take several minutes
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Enrich sends a URL to the enrichment service and returns extracted
// content, metadata and topical tags. A structured failure detail from the
// service is returned as an error so callers never act on partial fields
// from a failed attempt.
func (c *EnricherClient) Enrich(ctx context.Context, url string, existingTags []string) (*EnrichResponse, error) {
	tracer := otel.Tracer("linkkeeper")
	ctx, span := tracer.Start(ctx, "enricher.Enrich")
	defer span.End()

	span.SetAttributes(
		attribute.String("enricher.url", url),
		attribute.Int("enricher.existing_tag_count", len(existingTags)),
	)

	reqBody := EnrichRequest{URL: url, Tags: existingTags}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal request")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/enrich", c.baseURL),
		bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send request")
		return nil, fmt.Errorf("failed to send request to enricher: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read response")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, fmt.Errorf("enrichment service returned status %d: %s", resp.StatusCode, string(body))
	}

	var enrichResp EnrichResponse
	if err := json.Unmarshal(body, &enrichResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal response")
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if enrichResp.Detail != "" {
		span.SetStatus(codes.Error, "enrichment failed")
		return nil, fmt.Errorf("enrichment service reported failure: %s", enrichResp.Detail)
	}

	span.SetAttributes(attribute.Int("enricher.tag_count", len(enrichResp.Tags)))
	span.SetStatus(codes.Ok, "success")
	return &enrichResp, nil
}
