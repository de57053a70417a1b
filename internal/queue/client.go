package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Task type constants
const (
	TypeEnrichLink = "enrich:link"
)

// EnrichTaskPayload represents the payload for a link enrichment task
type EnrichTaskPayload struct {
	UserID           string `json:"user_id"`
	URL              string `json:"url"`
	UserLinkID       string `json:"user_link_id"`
	SendExistingTags bool   `json:"send_existing_tags"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// EnqueueEnrich enqueues a link enrichment task. Enrichment is fire and
// forget: the save request never waits for it, and the task gets exactly
// one attempt. Failures inside the task are logged there and never
// propagate back here.
func (c *Client) EnqueueEnrich(ctx context.Context, userID, url, userLinkID string, sendExistingTags bool) (string, error) {
	payload := EnrichTaskPayload{
		UserID:           userID,
		URL:              url,
		UserLinkID:       userLinkID,
		SendExistingTags: sendExistingTags,
		EnqueuedAt:       time.Now().UnixNano(),
	}

	// Add tracing context if available
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeEnrichLink),
			attribute.String("user_link_id", userLinkID),
			attribute.String("url", url),
			attribute.Int64("enqueued_at", payload.EnqueuedAt),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeEnrichLink, payloadBytes)

	opts := []asynq.Option{
		asynq.TaskID(userLinkID),            // Use the user link ID for correlation
		asynq.MaxRetry(0),                   // Single best-effort attempt per save
		asynq.Timeout(15 * time.Minute),     // Bounded by the enricher's own transport deadline
		asynq.Queue("enrich"),
		asynq.Retention(24 * time.Hour),     // Keep completed tasks for a day for inspection
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	return info.ID, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
