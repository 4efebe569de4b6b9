// Package routing adapts OpenRouteService to the geocoding and route
// optimization ports.
package routing

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pharmacy-delivery-service/internal/ports"
)

const (
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultProfile = "driving-car"
)

type Options struct {
	APIKey  string
	BaseURL string
	Profile string
	// Country restricts geocoding results (ISO 3166 alpha-2). Empty means worldwide.
	Country string
	// RatePerSec caps outgoing calls. Zero disables throttling.
	RatePerSec float64
	Cache      ports.GeocodeCache
	HTTPClient *http.Client
}

// Client talks to OpenRouteService. It coordinates address normalization,
// the persistent geocode cache, rate limiting, and retry with backoff.
//
// The client is safe for concurrent use.
type Client struct {
	session *http.Client
	apiKey  string
	baseURL string
	profile string
	country string
	limiter *rate.Limiter
	cache   ports.GeocodeCache

	backoff time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}

	c := &Client{
		session: opts.HTTPClient,
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		profile: opts.Profile,
		country: opts.Country,
		cache:   opts.Cache,
		backoff: 200 * time.Millisecond,
	}
	if c.session == nil {
		c.session = &http.Client{Timeout: 15 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.profile == "" {
		c.profile = DefaultProfile
	}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}

	return c, nil
}

// normalize collapses whitespace and case so equivalent addresses share a cache key.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var (
	_ ports.Geocoder        = (*Client)(nil)
	_ ports.ReverseGeocoder = (*Client)(nil)
	_ ports.RouteOptimizer  = (*Client)(nil)
)
