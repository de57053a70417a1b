package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	internalslug "github.com/zombar/linkkeeper/internal/slug"
	"github.com/zombar/linkkeeper/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// handleEnrichTask processes a link enrichment task. It always returns nil:
// enrichment is best effort, its failures are logged inside the pipeline
// and must never surface to the caller or trigger a retry.
func (w *Worker) handleEnrichTask(ctx context.Context, t *asynq.Task) error {
	var payload EnrichTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w", err)
	}

	// Calculate queue wait time
	var queueWaitTime time.Duration
	if payload.EnqueuedAt > 0 {
		enqueuedTime := time.Unix(0, payload.EnqueuedAt)
		queueWaitTime = time.Since(enqueuedTime)
	}

	w.logger.Info("processing enrichment task",
		"user_link_id", payload.UserLinkID,
		"url", payload.URL,
		"queue_wait_seconds", queueWaitTime.Seconds(),
	)

	// Recreate trace context from payload if available
	if payload.TraceID != "" && payload.SpanID != "" {
		traceID, err := trace.TraceIDFromHex(payload.TraceID)
		if err == nil {
			spanID, err := trace.SpanIDFromHex(payload.SpanID)
			if err == nil {
				remoteSpanCtx := trace.NewSpanContext(trace.SpanContextConfig{
					TraceID:    traceID,
					SpanID:     spanID,
					TraceFlags: trace.FlagsSampled,
					Remote:     true,
				})
				ctx = trace.ContextWithRemoteSpanContext(ctx, remoteSpanCtx)

				var span trace.Span
				ctx, span = otel.Tracer("linkkeeper").Start(ctx, "asynq.task.process",
					trace.WithSpanKind(trace.SpanKindConsumer),
					trace.WithAttributes(
						attribute.String("task.type", TypeEnrichLink),
						attribute.String("user_link_id", payload.UserLinkID),
						attribute.String("url", payload.URL),
						attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
					),
				)
				defer span.End()
			}
		}
	}

	w.processEnrichment(ctx, payload)
	return nil
}

// processEnrichment runs the enrichment pipeline for one saved link. Each
// step catches its own failure, logs it and lets the remaining independent
// steps proceed; nothing already committed is rolled back.
func (w *Worker) processEnrichment(ctx context.Context, p EnrichTaskPayload) {
	// Step 1: optionally load the user's existing vocabulary as
	// classification context. A failure here just means the enricher
	// classifies without context.
	var existingTags []string
	if p.SendExistingTags {
		texts, err := w.store.ListTagTexts(p.UserID)
		if err != nil {
			w.logger.Warn("failed to load existing tags for context",
				"user_id", p.UserID,
				"error", err,
			)
			w.recordStepFailure("load_vocabulary")
		} else {
			existingTags = texts
		}
	}

	// Step 2: call the enrichment service. A failure (including a
	// structured detail from the service) invalidates the whole attempt;
	// nothing derived from it may be written.
	result, err := w.enricher.Enrich(ctx, p.URL, existingTags)
	if err != nil {
		w.logger.Error("enrichment call failed",
			"user_link_id", p.UserLinkID,
			"url", p.URL,
			"error", err,
		)
		w.recordRun("failed")
		return
	}

	// Step 3: content snapshot on the user link. Independent of tags and
	// metadata, so its failure does not stop them.
	if result.Content != nil {
		if err := w.store.UpdateUserLinkContent(p.UserLinkID, *result.Content); err != nil {
			w.logger.Error("failed to update user link content",
				"user_link_id", p.UserLinkID,
				"error", err,
			)
			w.recordStepFailure("content_update")
		}
	}

	// Step 4: reconcile tags and attach them to the user link
	if len(result.Tags) > 0 {
		tags, err := w.reconcileTags(p.UserID, result.Tags)
		if err != nil {
			w.logger.Error("failed to reconcile tags",
				"user_id", p.UserID,
				"user_link_id", p.UserLinkID,
				"error", err,
			)
			w.recordStepFailure("tag_reconciliation")
		} else if len(tags) > 0 {
			tagIDs := make([]int64, 0, len(tags))
			for _, tag := range tags {
				tagIDs = append(tagIDs, tag.ID)
			}
			if err := w.store.AddUserLinkTags(p.UserLinkID, tagIDs); err != nil {
				w.logger.Error("failed to attach tags to user link",
					"user_link_id", p.UserLinkID,
					"error", err,
				)
				w.recordStepFailure("tag_association")
			}
		}
	}

	// Step 5: overwrite the link's descriptive fields. Scoped by URL, not
	// link ID, since concurrent saves of the same URL share one row. Absent
	// fields are written as NULL so stale data never survives a completed
	// enrichment. Last writer wins.
	var slug *string
	if result.Metadata.Title != nil {
		s := internalslug.GenerateWithFallback(*result.Metadata.Title, p.UserLinkID)
		slug = &s
	}
	err = w.store.UpdateLinkMetadata(p.URL,
		result.Metadata.Title, result.Metadata.Favicon, result.Metadata.MetaImage, slug)
	if err != nil {
		w.logger.Error("failed to update link metadata",
			"url", p.URL,
			"error", err,
		)
		w.recordStepFailure("metadata_update")
	}

	w.recordRun("completed")
	w.logger.Info("enrichment completed",
		"user_link_id", p.UserLinkID,
		"url", p.URL,
		"tag_count", len(result.Tags),
	)
}

// reconcileTags maps a set of candidate tag texts to tag rows for a user,
// creating rows only for texts missing from that user's vocabulary. Texts
// are matched exactly and case-sensitively. A concurrent run creating the
// same texts trips the unique index; the loser re-queries the committed
// rows instead of failing the whole enrichment.
func (w *Worker) reconcileTags(userID string, texts []string) ([]*storage.Tag, error) {
	// Dedupe input, preserving order
	seen := make(map[string]bool)
	uniq := make([]string, 0, len(texts))
	for _, text := range texts {
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		uniq = append(uniq, text)
	}
	if len(uniq) == 0 {
		return nil, nil
	}

	existing, err := w.store.GetTagsByTexts(userID, uniq)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing tags: %w", err)
	}

	have := make(map[string]bool, len(existing))
	for _, tag := range existing {
		have[tag.Text] = true
	}

	var missing []string
	for _, text := range uniq {
		if !have[text] {
			missing = append(missing, text)
		}
	}
	if len(missing) == 0 {
		return existing, nil
	}

	created, err := w.store.CreateTags(userID, missing)
	if err == nil {
		if w.businessMetrics != nil {
			w.businessMetrics.TagsCreatedTotal.Add(float64(len(created)))
		}
		return append(existing, created...), nil
	}

	// A concurrent reconciliation for the same user likely created one of
	// the missing texts first. Re-query and create whatever is still
	// absent.
	w.logger.Warn("tag insert conflicted, re-querying",
		"user_id", userID,
		"error", err,
	)

	requeried, err := w.store.GetTagsByTexts(userID, uniq)
	if err != nil {
		return nil, fmt.Errorf("failed to re-query tags after conflict: %w", err)
	}

	have = make(map[string]bool, len(requeried))
	for _, tag := range requeried {
		have[tag.Text] = true
	}
	missing = missing[:0]
	for _, text := range uniq {
		if !have[text] {
			missing = append(missing, text)
		}
	}
	if len(missing) == 0 {
		return requeried, nil
	}

	created, err = w.store.CreateTags(userID, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to create tags after conflict recovery: %w", err)
	}
	if w.businessMetrics != nil {
		w.businessMetrics.TagsCreatedTotal.Add(float64(len(created)))
	}

	return append(requeried, created...), nil
}

func (w *Worker) recordRun(status string) {
	if w.businessMetrics != nil {
		w.businessMetrics.EnrichmentRunsTotal.WithLabelValues(status).Inc()
	}
}

func (w *Worker) recordStepFailure(step string) {
	if w.businessMetrics != nil {
		w.businessMetrics.EnrichmentStepFailuresTotal.WithLabelValues(step).Inc()
	}
}
