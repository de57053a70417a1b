package urlcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache := New(mr.Addr())
	t.Cleanup(func() { cache.Close() })

	return cache
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "simple URL unchanged",
			input: "https://example.com/article",
			want:  "https://example.com/article",
		},
		{
			name:  "uppercase scheme and host lowered",
			input: "HTTPS://Example.COM/Article",
			want:  "https://example.com/Article",
		},
		{
			name:  "tracking parameters stripped",
			input: "https://example.com/article?utm_source=feed&utm_campaign=spring&id=42",
			want:  "https://example.com/article?id=42",
		},
		{
			name:  "query parameters sorted",
			input: "https://example.com/article?b=2&a=1",
			want:  "https://example.com/article?a=1&b=2",
		},
		{
			name:  "fragment removed",
			input: "https://example.com/article#section-2",
			want:  "https://example.com/article",
		},
		{
			name:  "trailing slash removed",
			input: "https://example.com/article/",
			want:  "https://example.com/article",
		},
		{
			name:  "root path kept",
			input: "https://example.com/",
			want:  "https://example.com/",
		},
		{
			name:  "fbclid stripped",
			input: "https://example.com/article?fbclid=abc123",
			want:  "https://example.com/article",
		},
		{
			name:    "missing scheme",
			input:   "example.com/article",
			wantErr: true,
		},
		{
			name:    "empty URL",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeURL(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("normalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCacheSetGet(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "https://example.com/article", "link-123"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	linkID, err := cache.Get(ctx, "https://example.com/article")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if linkID != "link-123" {
		t.Errorf("Expected link-123, got %q", linkID)
	}
}

func TestCacheGetMiss(t *testing.T) {
	cache := setupCache(t)

	linkID, err := cache.Get(context.Background(), "https://example.com/unseen")
	if err != nil {
		t.Fatalf("Expected miss without error, got: %v", err)
	}
	if linkID != "" {
		t.Errorf("Expected empty ID on miss, got %q", linkID)
	}
}

func TestCacheNormalizedVariantsShareEntry(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "https://example.com/article", "link-123"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	// Tracking-parameter and case variants hit the same entry
	for _, variant := range []string{
		"https://example.com/article?utm_source=mail",
		"HTTPS://EXAMPLE.com/article",
		"https://example.com/article#top",
	} {
		linkID, err := cache.Get(ctx, variant)
		if err != nil {
			t.Fatalf("Failed to get %q: %v", variant, err)
		}
		if linkID != "link-123" {
			t.Errorf("Expected variant %q to resolve from cache, got %q", variant, linkID)
		}
	}
}

func TestCacheDelete(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "https://example.com", "link-123"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if err := cache.Delete(ctx, "https://example.com"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	linkID, err := cache.Get(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if linkID != "" {
		t.Errorf("Expected miss after delete, got %q", linkID)
	}
}

func TestCacheInvalidURL(t *testing.T) {
	cache := setupCache(t)

	if err := cache.Set(context.Background(), "not a url", "link-123"); err == nil {
		t.Error("Expected error for invalid URL")
	}
}
