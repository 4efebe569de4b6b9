package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/ports"
)

type AgentSeed struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Status  string `json:"status"`
}

type StopSeed struct {
	StopID  string   `json:"stop_id"`
	Address string   `json:"address"`
	Phone   string   `json:"phone"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	AgentID string   `json:"agent_id"`
}

type Seed struct {
	Agents []AgentSeed `json:"agents"`
	Stops  []StopSeed  `json:"stops"`
}

// SeedFromJSON loads demo agents and stops into an empty database. Stops are
// sequenced in file order per owner. A database that already holds agents or
// stops is left alone and 0 is returned.
func SeedFromJSON(ctx context.Context, repo ports.RouteRepository, jsonPath string) (int, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("seed routes: read %q: %w", jsonPath, err)
	}

	var data Seed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return 0, fmt.Errorf("seed routes: parse json: %w", err)
	}

	agents, stops, err := data.toDomain()
	if err != nil {
		return 0, err
	}

	existingAgents, err := repo.ListAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed routes: %w", err)
	}
	existingStops, err := repo.ListStops(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed routes: %w", err)
	}
	if len(existingAgents) > 0 || len(existingStops) > 0 {
		log.Printf("op=seed skipped: database already has agents=%d stops=%d", len(existingAgents), len(existingStops))
		return 0, nil
	}

	for _, a := range agents {
		if err := repo.UpsertAgent(ctx, a); err != nil {
			return 0, fmt.Errorf("seed routes: %w", err)
		}
	}
	if err := repo.SaveStops(ctx, stops); err != nil {
		return 0, fmt.Errorf("seed routes: %w", err)
	}

	return len(agents) + len(stops), nil
}

func (s Seed) toDomain() ([]domain.Agent, []domain.Stop, error) {
	agents := make([]domain.Agent, 0, len(s.Agents))
	known := make(map[string]struct{}, len(s.Agents))
	for i, item := range s.Agents {
		id := strings.TrimSpace(item.AgentID)
		if id == "" {
			return nil, nil, fmt.Errorf("seed routes: agent at index %d: agent_id cannot be empty", i+1)
		}
		if _, dup := known[id]; dup {
			return nil, nil, fmt.Errorf("seed routes: agent at index %d: duplicate agent_id %q", i+1, id)
		}
		status := domain.AgentAvailable
		if item.Status != "" {
			st, err := domain.ParseAgentStatus(item.Status)
			if err != nil {
				return nil, nil, fmt.Errorf("seed routes: agent at index %d: %w", i+1, err)
			}
			status = st
		}
		known[id] = struct{}{}
		agents = append(agents, domain.Agent{ID: id, Name: item.Name, Phone: item.Phone, Status: status})
	}

	stops := make([]domain.Stop, 0, len(s.Stops))
	seen := make(map[string]struct{}, len(s.Stops))
	seq := map[string]int{}
	for i, item := range s.Stops {
		id := strings.TrimSpace(item.StopID)
		addr := strings.TrimSpace(item.Address)
		if id == "" || addr == "" {
			return nil, nil, fmt.Errorf("seed routes: stop at index %d: stop_id and address are required", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, nil, fmt.Errorf("seed routes: stop at index %d: duplicate stop_id %q", i+1, id)
		}
		seen[id] = struct{}{}

		owner := strings.TrimSpace(item.AgentID)
		status := domain.StopPending
		if owner != "" {
			if _, ok := known[owner]; !ok {
				return nil, nil, fmt.Errorf("seed routes: stop %q: unknown agent_id %q", id, owner)
			}
			status = domain.StopAssigned
		}
		seq[owner]++

		stop := domain.Stop{ID: id, Address: addr, Phone: item.Phone, Status: status, AgentID: owner, Sequence: seq[owner]}
		if item.Lat != nil && item.Lng != nil {
			loc := domain.Coordinates{Lat: *item.Lat, Lng: *item.Lng}
			if err := loc.Validate(); err != nil {
				return nil, nil, fmt.Errorf("seed routes: stop %q: %w", id, err)
			}
			stop.Location = &loc
		}
		stops = append(stops, stop)
	}

	return agents, stops, nil
}
