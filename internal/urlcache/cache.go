package urlcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CacheTTL is the time-to-live for cached URL resolutions (30 days)
	CacheTTL = 30 * 24 * time.Hour
	// KeyPrefix is the prefix for all cache keys
	KeyPrefix = "linkcache:"
)

// trackingParams are common tracking/analytics parameters that don't affect
// which canonical link a URL resolves to
var trackingParams = map[string]bool{
	// UTM parameters (Google Analytics)
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	// Facebook
	"fbclid": true,
	// Google Ads
	"gclid":  true,
	"gclsrc": true,
	// Other tracking
	"ref":       true,
	"source":    true,
	"referrer":  true,
	"campaign":  true,
	"_ga":       true,
	"mc_cid":    true,
	"mc_eid":    true,
	"msclkid":   true,
	"yclid":     true,
	"_openstat": true,
}

// Cache maps normalized URLs to canonical link IDs using Redis, saving the
// resolver a store round trip for recently seen URLs. Every operation is
// best-effort; callers fall back to the store on any error.
type Cache struct {
	client *redis.Client
}

// New creates a new URL cache instance
func New(redisAddr string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	return &Cache{
		client: client,
	}
}

// normalizeURL normalizes a URL for caching by:
// 1. Converting scheme and host to lowercase
// 2. Removing tracking parameters
// 3. Sorting remaining query parameters
// 4. Removing trailing slash
// 5. Removing fragment (#)
func normalizeURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: missing scheme or host")
	}

	parsedURL.Scheme = strings.ToLower(parsedURL.Scheme)
	parsedURL.Host = strings.ToLower(parsedURL.Host)
	parsedURL.Fragment = ""

	query := parsedURL.Query()
	filteredQuery := url.Values{}
	for key, values := range query {
		if !trackingParams[strings.ToLower(key)] {
			filteredQuery[key] = values
		}
	}

	// Sort query parameters for consistent hashing
	var keys []string
	for key := range filteredQuery {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sortedQuery := url.Values{}
	for _, key := range keys {
		values := filteredQuery[key]
		sort.Strings(values)
		sortedQuery[key] = values
	}
	parsedURL.RawQuery = sortedQuery.Encode()

	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/")
	}

	return parsedURL.String(), nil
}

// hashURL creates a SHA256 hash of the normalized URL for use as a cache key
func hashURL(rawURL string) (string, error) {
	normalized, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:]), nil
}

func makeKey(urlHash string) string {
	return KeyPrefix + urlHash
}

// Get retrieves the canonical link ID for a URL from cache.
// Returns the link ID if found, empty string on a miss.
func (c *Cache) Get(ctx context.Context, url string) (string, error) {
	urlHash, err := hashURL(url)
	if err != nil {
		return "", fmt.Errorf("failed to hash URL: %w", err)
	}

	linkID, err := c.client.Get(ctx, makeKey(urlHash)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cache entry: %w", err)
	}

	return linkID, nil
}

// Set stores a URL -> link ID mapping in cache
func (c *Cache) Set(ctx context.Context, url, linkID string) error {
	urlHash, err := hashURL(url)
	if err != nil {
		return fmt.Errorf("failed to hash URL: %w", err)
	}

	if err := c.client.Set(ctx, makeKey(urlHash), linkID, CacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	return nil
}

// Delete removes a URL from the cache
func (c *Cache) Delete(ctx context.Context, url string) error {
	urlHash, err := hashURL(url)
	if err != nil {
		return fmt.Errorf("failed to hash URL: %w", err)
	}

	if err := c.client.Del(ctx, makeKey(urlHash)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if the Redis connection is alive
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
