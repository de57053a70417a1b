package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/zombar/linkkeeper/internal/storage"
)

type fakeVerifier struct {
	userID string
	err    error
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.userID, nil
}

type enqueueCall struct {
	userID           string
	url              string
	userLinkID       string
	sendExistingTags bool
}

type fakeEnqueuer struct {
	calls []enqueueCall
	err   error
}

func (f *fakeEnqueuer) EnqueueEnrich(_ context.Context, userID, url, userLinkID string, sendExistingTags bool) (string, error) {
	f.calls = append(f.calls, enqueueCall{userID, url, userLinkID, sendExistingTags})
	if f.err != nil {
		return "", f.err
	}
	return userLinkID, nil
}

func setupHandler(t *testing.T, identity IdentityVerifier, queue EnrichEnqueuer) (*Handler, *storage.Storage) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return New(store, identity, queue, nil, true, nil), store
}

func saveRequest(t *testing.T, url, token string) *http.Request {
	t.Helper()

	body, err := json.Marshal(SaveLinkRequest{URL: url})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/links", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestSaveLink(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	handler, _ := setupHandler(t, &fakeVerifier{userID: "user-1"}, enqueuer)

	w := httptest.NewRecorder()
	handler.SaveLink(w, saveRequest(t, "https://example.com", "tok"))

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp SaveLinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Link == nil || resp.Link.URL != "https://example.com" {
		t.Errorf("Expected link in response, got %+v", resp.Link)
	}
	if resp.UserLink == nil || resp.UserLink.UserID != "user-1" {
		t.Errorf("Expected user link in response, got %+v", resp.UserLink)
	}
	if resp.UserLink.LinkID != resp.Link.ID {
		t.Error("Expected user link to reference the resolved link")
	}

	if len(enqueuer.calls) != 1 {
		t.Fatalf("Expected 1 enqueue call, got %d", len(enqueuer.calls))
	}
	call := enqueuer.calls[0]
	if call.userID != "user-1" || call.url != "https://example.com" || call.userLinkID != resp.UserLink.ID {
		t.Errorf("Enqueue called with wrong args: %+v", call)
	}
	if !call.sendExistingTags {
		t.Error("Expected configured vocabulary flag to be passed through")
	}
}

func TestSaveLinkDeduplicatesURL(t *testing.T) {
	handler, _ := setupHandler(t, &fakeVerifier{userID: "user-1"}, &fakeEnqueuer{})

	var first, second SaveLinkResponse
	for i, dst := range []*SaveLinkResponse{&first, &second} {
		w := httptest.NewRecorder()
		handler.SaveLink(w, saveRequest(t, "https://example.com", "tok"))
		if w.Code != http.StatusCreated {
			t.Fatalf("Save %d: expected 201, got %d", i, w.Code)
		}
		if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
			t.Fatalf("Save %d: failed to unmarshal: %v", i, err)
		}
	}

	// One canonical link, two saves of it
	if first.Link.ID != second.Link.ID {
		t.Error("Expected both saves to resolve to the same link")
	}
	if first.UserLink.ID == second.UserLink.ID {
		t.Error("Expected distinct user links per save")
	}
}

func TestSaveLinkMissingURL(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	handler, _ := setupHandler(t, &fakeVerifier{userID: "user-1"}, enqueuer)

	w := httptest.NewRecorder()
	handler.SaveLink(w, saveRequest(t, "", "tok"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if len(enqueuer.calls) != 0 {
		t.Error("Expected no enqueue for rejected request")
	}
}

func TestSaveLinkUnauthenticated(t *testing.T) {
	for name, tc := range map[string]struct {
		verifier *fakeVerifier
		token    string
	}{
		"missing token": {&fakeVerifier{userID: "user-1"}, ""},
		"invalid token": {&fakeVerifier{err: errors.New("rejected")}, "bad"},
	} {
		t.Run(name, func(t *testing.T) {
			enqueuer := &fakeEnqueuer{}
			handler, store := setupHandler(t, tc.verifier, enqueuer)

			w := httptest.NewRecorder()
			handler.SaveLink(w, saveRequest(t, "https://example.com", tc.token))

			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", w.Code)
			}
			if len(enqueuer.calls) != 0 {
				t.Error("Expected no enqueue for unauthenticated request")
			}
			// Rejected requests must leave no rows behind
			if _, err := store.GetLinkByURL("https://example.com"); err == nil {
				t.Error("Expected no link created for unauthenticated request")
			}
		})
	}
}

func TestSaveLinkEnqueueFailureStillSucceeds(t *testing.T) {
	enqueuer := &fakeEnqueuer{err: errors.New("redis down")}
	handler, store := setupHandler(t, &fakeVerifier{userID: "user-1"}, enqueuer)

	w := httptest.NewRecorder()
	handler.SaveLink(w, saveRequest(t, "https://example.com", "tok"))

	// Enrichment failures are invisible to the caller
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201 despite enqueue failure, got %d", w.Code)
	}
	if _, err := store.GetLinkByURL("https://example.com"); err != nil {
		t.Errorf("Expected link to exist: %v", err)
	}
}

func TestGetSavedLink(t *testing.T) {
	handler, store := setupHandler(t, &fakeVerifier{userID: "user-1"}, &fakeEnqueuer{})

	link, err := store.GetOrCreateLink("https://example.com")
	if err != nil {
		t.Fatalf("Failed to create link: %v", err)
	}
	ul, err := store.CreateUserLink("user-1", link.ID)
	if err != nil {
		t.Fatalf("Failed to create user link: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/links/"+ul.ID, nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.GetSavedLink(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var saved storage.SavedLink
	if err := json.Unmarshal(w.Body.Bytes(), &saved); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if saved.URL != "https://example.com" {
		t.Errorf("Expected URL in response, got %q", saved.URL)
	}
}

func TestGetSavedLinkWrongOwner(t *testing.T) {
	handler, store := setupHandler(t, &fakeVerifier{userID: "user-2"}, &fakeEnqueuer{})

	link, err := store.GetOrCreateLink("https://example.com")
	if err != nil {
		t.Fatalf("Failed to create link: %v", err)
	}
	ul, err := store.CreateUserLink("user-1", link.ID)
	if err != nil {
		t.Fatalf("Failed to create user link: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/links/"+ul.ID, nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.GetSavedLink(w, req)

	// Another user's save looks like it does not exist
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for another user's link, got %d", w.Code)
	}
}

func TestGetSavedLinkNotFound(t *testing.T) {
	handler, _ := setupHandler(t, &fakeVerifier{userID: "user-1"}, &fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/api/links/missing-id", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.GetSavedLink(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestListSavedLinks(t *testing.T) {
	handler, store := setupHandler(t, &fakeVerifier{userID: "user-1"}, &fakeEnqueuer{})

	for _, url := range []string{"https://a.example.com", "https://b.example.com"} {
		link, err := store.GetOrCreateLink(url)
		if err != nil {
			t.Fatalf("Failed to create link: %v", err)
		}
		if _, err := store.CreateUserLink("user-1", link.ID); err != nil {
			t.Fatalf("Failed to create user link: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/links?limit=10", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.ListSavedLinks(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Expected 2 links, got %d", resp.Count)
	}
}

func TestSearchTags(t *testing.T) {
	handler, store := setupHandler(t, &fakeVerifier{userID: "user-1"}, &fakeEnqueuer{})

	link, err := store.GetOrCreateLink("https://example.com")
	if err != nil {
		t.Fatalf("Failed to create link: %v", err)
	}
	ul, err := store.CreateUserLink("user-1", link.ID)
	if err != nil {
		t.Fatalf("Failed to create user link: %v", err)
	}
	tags, err := store.CreateTags("user-1", []string{"golang"})
	if err != nil {
		t.Fatalf("Failed to create tags: %v", err)
	}
	if err := store.AddUserLinkTags(ul.ID, []int64{tags[0].ID}); err != nil {
		t.Fatalf("Failed to add user link tags: %v", err)
	}

	body, err := json.Marshal(SearchTagsRequest{Tags: []string{"golang"}})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/links/search", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.SearchTags(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		UserLinkIDs []string `json:"user_link_ids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.UserLinkIDs) != 1 || resp.UserLinkIDs[0] != ul.ID {
		t.Errorf("Expected [%s], got %v", ul.ID, resp.UserLinkIDs)
	}
}

func TestSearchTagsRequiresTags(t *testing.T) {
	handler, _ := setupHandler(t, &fakeVerifier{userID: "user-1"}, &fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/api/links/search", bytes.NewReader([]byte(`{"tags":[]}`)))
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.SearchTags(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	handler, _ := setupHandler(t, &fakeVerifier{userID: "user-1"}, &fakeEnqueuer{})

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
