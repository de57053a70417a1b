package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/zombar/linkkeeper/internal/metrics"
	"github.com/zombar/linkkeeper/internal/storage"
)

// IdentityVerifier turns a bearer credential into a user identifier
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// EnrichEnqueuer schedules the background enrichment pipeline for a save
type EnrichEnqueuer interface {
	EnqueueEnrich(ctx context.Context, userID, url, userLinkID string, sendExistingTags bool) (string, error)
}

// URLCache defines the interface for URL resolution caching
type URLCache interface {
	Get(ctx context.Context, url string) (string, error)
	Set(ctx context.Context, url, linkID string) error
}

// Handler contains all HTTP handlers
type Handler struct {
	storage          *storage.Storage
	identity         IdentityVerifier
	queue            EnrichEnqueuer
	urlCache         URLCache // optional
	sendExistingTags bool
	businessMetrics  *metrics.BusinessMetrics
	logger           *slog.Logger
}

// New creates a new Handler
func New(store *storage.Storage, identity IdentityVerifier, queue EnrichEnqueuer, urlCache URLCache, sendExistingTags bool, businessMetrics *metrics.BusinessMetrics) *Handler {
	return &Handler{
		storage:          store,
		identity:         identity,
		queue:            queue,
		urlCache:         urlCache,
		sendExistingTags: sendExistingTags,
		businessMetrics:  businessMetrics,
		logger:           slog.Default(),
	}
}

// SaveLinkRequest represents a request to save a URL
type SaveLinkRequest struct {
	URL string `json:"url"`
}

// SaveLinkResponse represents the response to a save
type SaveLinkResponse struct {
	Link     *storage.Link     `json:"link"`
	UserLink *storage.UserLink `json:"user_link"`
}

// SearchTagsRequest represents a request to search saved links by tags
type SearchTagsRequest struct {
	Tags  []string `json:"tags"`
	Fuzzy bool     `json:"fuzzy"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// authenticate extracts the bearer token and verifies it with the identity
// provider. An empty user ID return means the response has already been
// written.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if auth == "" || token == auth {
		respondError(w, "Missing bearer credential", http.StatusUnauthorized)
		return ""
	}

	userID, err := h.identity.Verify(r.Context(), token)
	if err != nil {
		respondError(w, "Invalid credential", http.StatusUnauthorized)
		return ""
	}

	return userID
}

// SaveLink saves a URL for the authenticated user. The response only waits
// for link resolution and the user-link insert; enrichment runs detached
// and its outcome is invisible here.
func (h *Handler) SaveLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SaveLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.URL == "" {
		respondError(w, "URL is required", http.StatusBadRequest)
		return
	}

	userID := h.authenticate(w, r)
	if userID == "" {
		return
	}

	link := h.resolveLink(r.Context(), req.URL)
	if link == nil {
		respondError(w, "Failed to resolve link", http.StatusInternalServerError)
		return
	}

	userLink, err := h.storage.CreateUserLink(userID, link.ID)
	if err != nil {
		// No enrichment may start once the synchronous path has failed
		h.logger.Error("failed to create user link", "user_id", userID, "link_id", link.ID, "error", err)
		respondError(w, "Failed to save link", http.StatusInternalServerError)
		return
	}

	// Fire and forget: a failed enqueue is an enrichment failure, and
	// those never affect the caller's result.
	if _, err := h.queue.EnqueueEnrich(r.Context(), userID, link.URL, userLink.ID, h.sendExistingTags); err != nil {
		h.logger.Error("failed to enqueue enrichment",
			"user_link_id", userLink.ID,
			"url", link.URL,
			"error", err,
		)
	}

	respondJSON(w, SaveLinkResponse{Link: link, UserLink: userLink}, http.StatusCreated)
}

// resolveLink finds or creates the canonical link for a URL, consulting the
// cache first. Cache trouble degrades to the store; a nil return means the
// store itself failed.
func (h *Handler) resolveLink(ctx context.Context, url string) *storage.Link {
	if h.urlCache != nil {
		if linkID, err := h.urlCache.Get(ctx, url); err == nil && linkID != "" {
			if link, err := h.storage.GetLink(linkID); err == nil {
				h.recordResolution("cached")
				return link
			}
		}
	}

	link, err := h.storage.GetLinkByURL(url)
	outcome := "existing"
	if err != nil {
		if err.Error() != "link not found" {
			h.logger.Error("failed to resolve link", "url", url, "error", err)
			return nil
		}
		outcome = "created"
		link, err = h.storage.GetOrCreateLink(url)
		if err != nil {
			h.logger.Error("failed to resolve link", "url", url, "error", err)
			return nil
		}
	}

	if h.urlCache != nil {
		if err := h.urlCache.Set(ctx, url, link.ID); err != nil {
			h.logger.Warn("failed to populate URL cache", "url", url, "error", err)
		}
	}

	h.recordResolution(outcome)
	return link
}

func (h *Handler) recordResolution(outcome string) {
	if h.businessMetrics != nil {
		h.businessMetrics.LinksResolvedTotal.WithLabelValues(outcome).Inc()
	}
}

// GetSavedLink retrieves one of the authenticated user's saved links by ID
func (h *Handler) GetSavedLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := h.authenticate(w, r)
	if userID == "" {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/links/")
	if id == "" {
		respondError(w, "Link ID is required", http.StatusBadRequest)
		return
	}

	saved, err := h.storage.GetSavedLink(id)
	if err != nil {
		if err.Error() == "user link not found" {
			respondError(w, "Link not found", http.StatusNotFound)
			return
		}
		respondError(w, "Failed to get link", http.StatusInternalServerError)
		return
	}

	// Saved links are private to their owner
	if saved.UserID != userID {
		respondError(w, "Link not found", http.StatusNotFound)
		return
	}

	respondJSON(w, saved, http.StatusOK)
}

// ListSavedLinks lists the authenticated user's saved links with pagination
func (h *Handler) ListSavedLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := h.authenticate(w, r)
	if userID == "" {
		return
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	saved, err := h.storage.ListSavedLinks(userID, limit, offset)
	if err != nil {
		respondError(w, "Failed to list links", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"links":  saved,
		"count":  len(saved),
		"limit":  limit,
		"offset": offset,
	}

	respondJSON(w, response, http.StatusOK)
}

// SearchTags searches the authenticated user's saved links by tag
func (h *Handler) SearchTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SearchTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Tags) == 0 {
		respondError(w, "At least one tag is required", http.StatusBadRequest)
		return
	}

	userID := h.authenticate(w, r)
	if userID == "" {
		return
	}

	userLinkIDs, err := h.storage.SearchByTags(userID, req.Tags, req.Fuzzy)
	if err != nil {
		respondError(w, "Failed to search tags", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"user_link_ids": userLinkIDs,
		"count":         len(userLinkIDs),
	}

	respondJSON(w, response, http.StatusOK)
}

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
