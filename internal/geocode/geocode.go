// Package geocode turns listing addresses into coordinates using a
// Nominatim-compatible search endpoint, with an optional Redis cache.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/metrics"
	"github.com/hawkpark/hawkpark-be/internal/models"
)

const (
	cacheTTL         = 7 * 24 * time.Hour
	negativeCacheTTL = time.Hour
	cacheKeyPrefix   = "geocode:"
	notFoundMarker   = "none"
	userAgent        = "hawkpark-be/1.0"
)

// Client resolves addresses. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	region     string
	timeout    time.Duration
	cache      *redis.Client
}

// New creates a geocoding Client. region, when set, is appended to every
// address (e.g. "Ontario, Canada") to keep matches local. cache may be nil.
func New(baseURL, region string, timeout time.Duration, cache *redis.Client) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		region:     strings.TrimSpace(region),
		timeout:    timeout,
		cache:      cache,
	}
}

// NewRedisClient connects to the cache at rawURL ("redis://host:port/db" or "host:port").
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(rawURL, "://") {
		parsed, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: rawURL}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Lookup returns the coordinates of address, or nil if the service has no match.
func (c *Client) Lookup(ctx context.Context, address string) (*models.Coordinates, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	q := c.query(address)
	key := cacheKeyPrefix + strings.ToLower(q)

	if coords, hit := c.fromCache(ctx, key); hit {
		metrics.GeocodeLookups.WithLabelValues("cache").Inc()
		return coords, nil
	}

	coords, err := c.search(ctx, q)
	if err != nil {
		metrics.GeocodeLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.GeocodeLookups.WithLabelValues("remote").Inc()
	c.store(ctx, key, coords)
	return coords, nil
}

// query is the search text sent for address.
func (c *Client) query(address string) string {
	if c.region == "" {
		return address
	}
	return address + ", " + c.region
}

func (c *Client) fromCache(ctx context.Context, key string) (*models.Coordinates, bool) {
	if c.cache == nil {
		return nil, false
	}
	val, err := c.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("Geocode cache read failed")
		}
		return nil, false
	}
	if val == notFoundMarker {
		return nil, true
	}
	var coords models.Coordinates
	if err := json.Unmarshal([]byte(val), &coords); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding malformed geocode cache entry")
		return nil, false
	}
	return &coords, true
}

func (c *Client) store(ctx context.Context, key string, coords *models.Coordinates) {
	if c.cache == nil {
		return
	}
	val, ttl := notFoundMarker, negativeCacheTTL
	if coords != nil {
		data, err := json.Marshal(coords)
		if err != nil {
			return
		}
		val, ttl = string(data), cacheTTL
	}
	if err := c.cache.Set(ctx, key, val, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Geocode cache write failed")
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (c *Client) search(ctx context.Context, q string) (*models.Coordinates, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	query := url.Values{}
	query.Set("q", q)
	query.Set("format", "json")
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode longitude: %w", err)
	}
	return &models.Coordinates{Lat: lat, Lon: lon}, nil
}
