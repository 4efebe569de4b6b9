// Package assignment is the authoritative model of stop ownership: which
// stops sit in the pending pool, which agent owns the rest, and in what order.
//
// Every stop id is held by exactly one sequence at a time, either the pending
// pool or one agent's route. All mutations go through a single lock and are
// persisted before they are committed to memory, so a failed write leaves
// the store exactly as it was.
package assignment

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/ports"
)

// pendingOwner is the owner key used for the pending pool.
const pendingOwner = ""

type Store struct {
	repo ports.RouteRepository

	mu      sync.Mutex
	stops   map[string]*domain.Stop
	agents  map[string]*domain.Agent
	pending []string
	routes  map[string][]string
}

// NewStore returns an empty store. A nil repo keeps everything in memory.
func NewStore(repo ports.RouteRepository) *Store {
	return &Store{
		repo:   repo,
		stops:  make(map[string]*domain.Stop),
		agents: make(map[string]*domain.Agent),
		routes: make(map[string][]string),
	}
}

// AddStop appends a new stop to the end of the pending pool.
func (s *Store) AddStop(ctx context.Context, stop domain.Stop) (domain.Stop, error) {
	stop.ID = strings.TrimSpace(stop.ID)
	stop.Address = strings.TrimSpace(stop.Address)
	if stop.ID == "" {
		return domain.Stop{}, fmt.Errorf("add stop: %w: id cannot be empty", domain.ErrValidation)
	}
	if stop.Address == "" {
		return domain.Stop{}, fmt.Errorf("add stop %s: %w: address cannot be empty", stop.ID, domain.ErrValidation)
	}
	if stop.Location != nil {
		if err := stop.Location.Validate(); err != nil {
			return domain.Stop{}, fmt.Errorf("add stop %s: %w", stop.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stops[stop.ID]; ok {
		return domain.Stop{}, fmt.Errorf("add stop %s: %w: duplicate id", stop.ID, domain.ErrValidation)
	}

	stop = stop.Clone()
	stop.Status = domain.StopPending
	stop.AgentID = ""
	stop.Notified = false

	st := stage{stop.ID: stop}
	pool := append(clone(s.pending), stop.ID)
	s.stageSequence(st, pendingOwner, pool)

	if err := s.apply(ctx, "add stop", st, map[string][]string{pendingOwner: pool}); err != nil {
		return domain.Stop{}, err
	}
	return s.stops[stop.ID].Clone(), nil
}

// AddAgent registers a delivery agent. Status defaults to available.
func (s *Store) AddAgent(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	agent.ID = strings.TrimSpace(agent.ID)
	if agent.ID == "" {
		return domain.Agent{}, fmt.Errorf("add agent: %w: id cannot be empty", domain.ErrValidation)
	}
	if agent.Status == "" {
		agent.Status = domain.AgentAvailable
	}
	if _, err := domain.ParseAgentStatus(string(agent.Status)); err != nil {
		return domain.Agent{}, fmt.Errorf("add agent %s: %w", agent.ID, err)
	}
	if agent.LastKnownPosition != nil {
		if err := agent.LastKnownPosition.Validate(); err != nil {
			return domain.Agent{}, fmt.Errorf("add agent %s: %w", agent.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agent.ID]; ok {
		return domain.Agent{}, fmt.Errorf("add agent %s: %w: duplicate id", agent.ID, domain.ErrValidation)
	}

	agent = agent.Clone()
	if err := s.saveAgent(ctx, "add agent", agent); err != nil {
		return domain.Agent{}, err
	}
	s.agents[agent.ID] = &agent
	s.routes[agent.ID] = nil
	return agent.Clone(), nil
}

// Assign moves a stop, wherever it currently is, to the end of the agent's
// sequence. The stop's Notified flag is reset for the new assignment.
func (s *Store) Assign(ctx context.Context, stopID, agentID string) (domain.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop, err := s.openStopLocked(stopID)
	if err != nil {
		return domain.Stop{}, fmt.Errorf("assign stop %s: %w", stopID, err)
	}
	if _, ok := s.agents[agentID]; !ok {
		return domain.Stop{}, fmt.Errorf("assign stop %s: %w: %s", stopID, domain.ErrAgentNotFound, agentID)
	}

	from := stop.AgentID
	moved := stop.Clone()
	moved.Status = domain.StopAssigned
	moved.Notified = false
	st := stage{stopID: moved}

	seqs := map[string][]string{}
	if from != agentID {
		source := removeID(s.sequenceLocked(from), stopID)
		s.stageSequence(st, from, source)
		seqs[from] = source
	}
	target := append(removeID(s.sequenceLocked(agentID), stopID), stopID)
	s.stageSequence(st, agentID, target)
	seqs[agentID] = target

	if err := s.apply(ctx, "assign stop", st, seqs); err != nil {
		return domain.Stop{}, err
	}
	return s.stops[stopID].Clone(), nil
}

// Unassign returns a stop to the end of the pending pool.
func (s *Store) Unassign(ctx context.Context, stopID string) (domain.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop, err := s.openStopLocked(stopID)
	if err != nil {
		return domain.Stop{}, fmt.Errorf("unassign stop %s: %w", stopID, err)
	}
	if stop.AgentID == pendingOwner {
		return stop.Clone(), nil
	}

	from := stop.AgentID
	moved := stop.Clone()
	moved.Status = domain.StopPending
	moved.Notified = false
	st := stage{stopID: moved}

	source := removeID(s.sequenceLocked(from), stopID)
	pool := append(clone(s.pending), stopID)
	s.stageSequence(st, from, source)
	s.stageSequence(st, pendingOwner, pool)

	if err := s.apply(ctx, "unassign stop", st, map[string][]string{from: source, pendingOwner: pool}); err != nil {
		return domain.Stop{}, err
	}
	return s.stops[stopID].Clone(), nil
}

// Complete closes a stop as delivered or cancelled. The stop leaves its
// sequence and the remaining stops are renumbered.
func (s *Store) Complete(ctx context.Context, stopID string, status domain.StopStatus) (domain.Stop, error) {
	if !status.Closed() {
		return domain.Stop{}, fmt.Errorf("complete stop %s: %w: status %q is not final", stopID, domain.ErrValidation, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stop, err := s.openStopLocked(stopID)
	if err != nil {
		return domain.Stop{}, fmt.Errorf("complete stop %s: %w", stopID, err)
	}

	owner := stop.AgentID
	closed := stop.Clone()
	closed.Status = status
	closed.Sequence = 0
	st := stage{stopID: closed}

	rest := removeID(s.sequenceLocked(owner), stopID)
	s.stageSequence(st, owner, rest)

	if err := s.apply(ctx, "complete stop", st, map[string][]string{owner: rest}); err != nil {
		return domain.Stop{}, err
	}
	return s.stops[stopID].Clone(), nil
}

// ReorderPending replaces the pending pool's order wholesale. ids must name
// exactly the stops currently pending.
func (s *Store) ReorderPending(ctx context.Context, ids []string) ([]domain.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sameSet(s.pending, ids); err != nil {
		return nil, fmt.Errorf("reorder pending: %w", err)
	}

	pool := clone(ids)
	st := stage{}
	s.stageSequence(st, pendingOwner, pool)
	if err := s.apply(ctx, "reorder pending", st, map[string][]string{pendingOwner: pool}); err != nil {
		return nil, err
	}
	return s.snapshotLocked(pool), nil
}

// ReorderAssigned is ReorderPending scoped to one agent's sequence.
// Notified flags are left alone: the stops keep their assignment.
func (s *Store) ReorderAssigned(ctx context.Context, agentID string, ids []string) ([]domain.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		return nil, fmt.Errorf("reorder agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	if err := sameSet(s.routes[agentID], ids); err != nil {
		return nil, fmt.Errorf("reorder agent %s: %w", agentID, err)
	}

	route := clone(ids)
	st := stage{}
	s.stageSequence(st, agentID, route)
	if err := s.apply(ctx, "reorder assigned", st, map[string][]string{agentID: route}); err != nil {
		return nil, err
	}
	return s.snapshotLocked(route), nil
}

// StopsFor returns a copy of the agent's ordered sequence.
func (s *Store) StopsFor(agentID string) ([]domain.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		return nil, fmt.Errorf("stops for agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	return s.snapshotLocked(s.routes[agentID]), nil
}

// Pending returns a copy of the pending pool in order.
func (s *Store) Pending() []domain.Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.pending)
}

func (s *Store) Stop(stopID string) (domain.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop, ok := s.stops[stopID]
	if !ok {
		return domain.Stop{}, fmt.Errorf("%w: %s", domain.ErrStopNotFound, stopID)
	}
	return stop.Clone(), nil
}

func (s *Store) Agent(agentID string) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return domain.Agent{}, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agentID)
	}
	return agent.Clone(), nil
}

// Agents returns every agent ordered by id.
func (s *Store) Agents() []domain.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStopLocation records a geocoding result for an open stop.
func (s *Store) SetStopLocation(ctx context.Context, stopID string, at domain.Coordinates) (domain.Stop, error) {
	if err := at.Validate(); err != nil {
		return domain.Stop{}, fmt.Errorf("set location for stop %s: %w", stopID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stop, err := s.openStopLocked(stopID)
	if err != nil {
		return domain.Stop{}, fmt.Errorf("set location for stop %s: %w", stopID, err)
	}

	updated := stop.Clone()
	updated.Location = at.Ptr()
	if err := s.apply(ctx, "set stop location", stage{stopID: updated}, nil); err != nil {
		return domain.Stop{}, err
	}
	return updated.Clone(), nil
}

// ClaimNotification atomically marks the stop notified. It reports false
// when the stop is already notified, closed, or no longer owned by agentID.
func (s *Store) ClaimNotification(ctx context.Context, agentID, stopID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop, ok := s.stops[stopID]
	if !ok {
		return false, fmt.Errorf("claim notification: %w: %s", domain.ErrStopNotFound, stopID)
	}
	if stop.AgentID != agentID || stop.Notified || stop.Status.Closed() {
		return false, nil
	}

	claimed := stop.Clone()
	claimed.Notified = true
	if err := s.apply(ctx, "claim notification", stage{stopID: claimed}, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SetAgentStatus(ctx context.Context, agentID string, status domain.AgentStatus) (domain.Agent, error) {
	if _, err := domain.ParseAgentStatus(string(status)); err != nil {
		return domain.Agent{}, fmt.Errorf("set status for agent %s: %w", agentID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return domain.Agent{}, fmt.Errorf("set status: %w: %s", domain.ErrAgentNotFound, agentID)
	}

	updated := agent.Clone()
	updated.Status = status
	if err := s.saveAgent(ctx, "set agent status", updated); err != nil {
		return domain.Agent{}, err
	}
	s.agents[agentID] = &updated
	return updated.Clone(), nil
}

// RecordPosition stores the agent's latest position and bearing. It is only
// honored while the agent is in_route; otherwise ErrAgentNotActive is
// returned so a late fix cannot bring back a position after logout.
func (s *Store) RecordPosition(ctx context.Context, agentID string, pos domain.Coordinates, bearing float64, at time.Time) (domain.Agent, error) {
	if err := pos.Validate(); err != nil {
		return domain.Agent{}, fmt.Errorf("record position for agent %s: %w", agentID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return domain.Agent{}, fmt.Errorf("record position: %w: %s", domain.ErrAgentNotFound, agentID)
	}
	if agent.Status != domain.AgentInRoute {
		return domain.Agent{}, fmt.Errorf("record position for agent %s (status %s): %w", agentID, agent.Status, domain.ErrAgentNotActive)
	}

	if s.repo != nil {
		if err := s.repo.UpdatePosition(ctx, agentID, pos, bearing, at); err != nil {
			return domain.Agent{}, fmt.Errorf("record position for agent %s: %w", agentID, err)
		}
	}

	updated := agent.Clone()
	updated.LastKnownPosition = pos.Ptr()
	updated.BearingDegrees = bearing
	ts := at
	updated.UpdatedAt = &ts
	s.agents[agentID] = &updated
	return updated.Clone(), nil
}

// ownerMatchesStatus reports whether an open stop's status agrees with its
// owner: pending stops have none, every other open stop has one.
func ownerMatchesStatus(stop domain.Stop) bool {
	return (stop.AgentID == pendingOwner) == (stop.Status == domain.StopPending)
}

// Load replaces the in-memory state with what the repository holds.
// Duplicate stop ids, stops owned by unknown agents and open stops whose
// status disagrees with their owner fail with ErrInvariantViolation and
// leave the current state untouched.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("load store: list agents: %w", err)
	}
	stops, err := s.repo.ListStops(ctx)
	if err != nil {
		return fmt.Errorf("load store: list stops: %w", err)
	}

	agentMap := make(map[string]*domain.Agent, len(agents))
	routes := make(map[string][]string, len(agents))
	for _, a := range agents {
		if _, dup := agentMap[a.ID]; dup {
			return fmt.Errorf("load store: %w: agent %s listed twice", domain.ErrInvariantViolation, a.ID)
		}
		agent := a.Clone()
		agentMap[a.ID] = &agent
		routes[a.ID] = nil
	}

	sort.SliceStable(stops, func(i, j int) bool {
		if stops[i].AgentID != stops[j].AgentID {
			return stops[i].AgentID < stops[j].AgentID
		}
		return stops[i].Sequence < stops[j].Sequence
	})

	stopMap := make(map[string]*domain.Stop, len(stops))
	var pending []string
	for _, st := range stops {
		if _, dup := stopMap[st.ID]; dup {
			return fmt.Errorf("load store: %w: stop %s owned twice", domain.ErrInvariantViolation, st.ID)
		}
		stop := st.Clone()
		stopMap[st.ID] = &stop
		if stop.Status.Closed() {
			continue
		}
		if !ownerMatchesStatus(stop) {
			return fmt.Errorf("load store: %w: stop %s is %s with owner %q", domain.ErrInvariantViolation, stop.ID, stop.Status, stop.AgentID)
		}
		if stop.AgentID == pendingOwner {
			pending = append(pending, stop.ID)
			continue
		}
		if _, ok := agentMap[stop.AgentID]; !ok {
			return fmt.Errorf("load store: %w: stop %s owned by unknown agent %s", domain.ErrInvariantViolation, stop.ID, stop.AgentID)
		}
		routes[stop.AgentID] = append(routes[stop.AgentID], stop.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents = agentMap
	s.stops = stopMap
	s.pending = pending
	s.routes = routes
	renumberLocked(s.stops, pendingOwner, s.pending)
	for id, route := range s.routes {
		renumberLocked(s.stops, id, route)
	}

	log.Printf("op=assignment.Load agents=%d stops=%d pending=%d", len(agentMap), len(stopMap), len(pending))
	return nil
}

// Verify checks that every open stop appears in exactly one sequence and
// that the sequence agrees with the stop's owner.
func (s *Store) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]string, len(s.stops))
	check := func(owner string, ids []string) error {
		for _, id := range ids {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("%w: stop %s held by %q and %q", domain.ErrInvariantViolation, id, prev, owner)
			}
			seen[id] = owner

			stop, ok := s.stops[id]
			if !ok {
				return fmt.Errorf("%w: sequence %q references unknown stop %s", domain.ErrInvariantViolation, owner, id)
			}
			if stop.AgentID != owner || stop.Status.Closed() || !ownerMatchesStatus(*stop) {
				return fmt.Errorf("%w: stop %s (owner %q, status %s) found in sequence %q", domain.ErrInvariantViolation, id, stop.AgentID, stop.Status, owner)
			}
		}
		return nil
	}

	if err := check(pendingOwner, s.pending); err != nil {
		return err
	}
	for agentID, ids := range s.routes {
		if err := check(agentID, ids); err != nil {
			return err
		}
	}
	for id, stop := range s.stops {
		if _, ok := seen[id]; !ok && !stop.Status.Closed() {
			return fmt.Errorf("%w: open stop %s is in no sequence", domain.ErrInvariantViolation, id)
		}
	}
	return nil
}
