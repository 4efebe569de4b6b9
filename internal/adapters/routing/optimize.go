package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/platform/obs"
	"pharmacy-delivery-service/internal/ports"
)

// VROOM-style request accepted by /optimization. Job ids are 1-based
// indexes into the stops slice.
type optimizationRequest struct {
	Jobs     []optimizationJob     `json:"jobs"`
	Vehicles []optimizationVehicle `json:"vehicles"`
	Options  struct {
		Geometry bool `json:"g"`
	} `json:"options"`
}

type optimizationJob struct {
	ID       int       `json:"id"`
	Location []float64 `json:"location"`
}

type optimizationVehicle struct {
	ID      int       `json:"id"`
	Profile string    `json:"profile"`
	Start   []float64 `json:"start"`
}

type optimizationResponse struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Summary struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"summary"`
	Unassigned []struct {
		ID int `json:"id"`
	} `json:"unassigned"`
	Routes []struct {
		Geometry string `json:"geometry"`
		Steps    []struct {
			Type string `json:"type"`
			Job  int    `json:"job"`
		} `json:"steps"`
	} `json:"routes"`
}

// Optimize asks /optimization for the best visiting order of stops from start.
// Stops the solver leaves out are reported in Unassigned; if none can be
// placed the call fails with an OptimizationError naming all of them.
func (c *Client) Optimize(ctx context.Context, start domain.Coordinates, stops []ports.OptimizationStop) (_ ports.OptimizationResult, err error) {
	defer obs.Time(ctx, "ors.Optimize")(&err)

	if len(stops) == 0 {
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: "no stops to optimize"}
	}
	if err := start.Validate(); err != nil {
		return ports.OptimizationResult{}, fmt.Errorf("optimize: start: %w", err)
	}

	var body optimizationRequest
	body.Options.Geometry = true
	body.Vehicles = []optimizationVehicle{{ID: 1, Profile: c.profile, Start: start.CoordsToList()}}
	body.Jobs = make([]optimizationJob, 0, len(stops))
	for i, s := range stops {
		if err := s.Location.Validate(); err != nil {
			return ports.OptimizationResult{}, fmt.Errorf("optimize: stop %s: %w", s.ID, err)
		}
		body.Jobs = append(body.Jobs, optimizationJob{ID: i + 1, Location: s.Location.CoordsToList()})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.OptimizationResult{}, fmt.Errorf("optimize: marshal request: %w", err)
	}

	endpoint := c.baseURL + "/optimization"
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		if ctx.Err() != nil {
			return ports.OptimizationResult{}, err
		}
		reason := err.Error()
		var he *httpStatusError
		if errors.As(err, &he) {
			reason = upstreamReason(he)
		}
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: reason}
	}
	defer resp.Body.Close()

	var decoded optimizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: "decode response: " + err.Error()}
	}
	if decoded.Code != 0 {
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: fmt.Sprintf("code %d: %s", decoded.Code, decoded.Error)}
	}

	idOf := func(job int) (string, bool) {
		if job < 1 || job > len(stops) {
			return "", false
		}
		return stops[job-1].ID, true
	}

	var out ports.OptimizationResult
	for _, u := range decoded.Unassigned {
		if id, ok := idOf(u.ID); ok {
			out.Unassigned = append(out.Unassigned, id)
		}
	}

	if len(decoded.Routes) == 0 {
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: "no route returned", Unassignable: out.Unassigned}
	}

	route := decoded.Routes[0]
	for _, step := range route.Steps {
		if step.Type != "job" {
			continue
		}
		id, ok := idOf(step.Job)
		if !ok {
			return ports.OptimizationResult{}, &domain.OptimizationError{Reason: "unknown job id " + strconv.Itoa(step.Job)}
		}
		out.OrderedIDs = append(out.OrderedIDs, id)
	}
	if len(out.OrderedIDs) == 0 {
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: "no stops could be routed", Unassignable: out.Unassigned}
	}

	out.EncodedPath = route.Geometry
	out.DistanceMeters = decoded.Summary.Distance
	out.DurationSeconds = decoded.Summary.Duration
	return out, nil
}

// upstreamReason extracts the "error" field from an ORS error body when present.
func upstreamReason(he *httpStatusError) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal([]byte(he.Body), &payload) == nil && len(payload.Error) > 0 {
		var msg string
		if json.Unmarshal(payload.Error, &msg) == nil {
			return fmt.Sprintf("status %d: %s", he.Code, msg)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return fmt.Sprintf("status %d: %s", he.Code, nested.Message)
		}
	}
	return he.Error()
}
