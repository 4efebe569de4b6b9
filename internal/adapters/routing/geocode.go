package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/platform/obs"
)

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

// Geocode resolves one address through the cache, then /geocode/search.
// Fresh results are written back to the cache on a best-effort basis.
func (c *Client) Geocode(ctx context.Context, address string) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	key := normalize(address)
	if key == "" {
		return domain.Coordinates{}, fmt.Errorf("geocode: %w: address cannot be empty", domain.ErrValidation)
	}

	if c.cache != nil {
		hits, err := c.cache.GetMany(ctx, []string{key})
		if err != nil {
			return domain.Coordinates{}, fmt.Errorf("geocode %q: read cache: %w", address, err)
		}
		if hit, ok := hits[key]; ok {
			return hit, nil
		}
	}

	decoded, err := c.geocodeQuery(ctx, "/geocode/search", func(q map[string]string) {
		q["text"] = key
		q["size"] = "1"
		if c.country != "" {
			q["boundary.country"] = c.country
		}
	})
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(decoded.Features) == 0 {
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w: no match", address, domain.ErrNotFound)
	}

	raw := decoded.Features[0].Geometry.Coordinates
	if len(raw) != 2 {
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w: invalid coordinate format", address, domain.ErrUpstream)
	}
	coords := domain.Coordinates{Lng: raw[0], Lat: raw[1]}
	if err := coords.Validate(); err != nil {
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w: %v", address, domain.ErrUpstream, err)
	}

	if c.cache != nil {
		if err := c.cache.PutMany(ctx, map[string]domain.Coordinates{key: coords}); err != nil {
			log.Printf("req_id=%s op=ors.Geocode geocode cache write failed: %v", obs.RequestID(ctx), err)
		}
	}
	return coords, nil
}

// ReverseGeocode returns the display label of the closest address to at.
func (c *Client) ReverseGeocode(ctx context.Context, at domain.Coordinates) (_ string, err error) {
	defer obs.Time(ctx, "ors.ReverseGeocode")(&err)

	if err := at.Validate(); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}

	decoded, err := c.geocodeQuery(ctx, "/geocode/reverse", func(q map[string]string) {
		q["point.lat"] = strconv.FormatFloat(at.Lat, 'f', -1, 64)
		q["point.lon"] = strconv.FormatFloat(at.Lng, 'f', -1, 64)
		q["size"] = "1"
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocode %v,%v: %w", at.Lat, at.Lng, err)
	}

	for _, f := range decoded.Features {
		if label := strings.TrimSpace(f.Properties.Label); label != "" {
			return label, nil
		}
	}
	return "", fmt.Errorf("reverse geocode %v,%v: %w: no match", at.Lat, at.Lng, domain.ErrNotFound)
}

func (c *Client) geocodeQuery(ctx context.Context, path string, params func(map[string]string)) (geocodeResponse, error) {
	endpoint := c.baseURL + path
	q := map[string]string{}
	params(q)

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		values := req.URL.Query()
		for k, v := range q {
			values.Set(k, v)
		}
		req.URL.RawQuery = values.Encode()
		return req, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return geocodeResponse{}, err
		}
		return geocodeResponse{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return geocodeResponse{}, fmt.Errorf("%w: decode geocode response: %v", domain.ErrUpstream, err)
	}
	return decoded, nil
}
