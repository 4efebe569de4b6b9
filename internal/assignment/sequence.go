package assignment

import (
	"context"
	"fmt"
	"sort"

	"pharmacy-delivery-service/internal/domain"
)

// stage holds the stop records a mutation will write, keyed by id.
type stage map[string]domain.Stop

func (st stage) list() []domain.Stop {
	out := make([]domain.Stop, 0, len(st))
	for _, stop := range st {
		out = append(out, stop)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// stageSequence stages every stop in ids with its new owner and 1-based position.
func (s *Store) stageSequence(st stage, owner string, ids []string) {
	for i, id := range ids {
		stop, ok := st[id]
		if !ok {
			stop = s.stops[id].Clone()
		}
		stop.AgentID = owner
		stop.Sequence = i + 1
		st[id] = stop
	}
}

// apply persists the staged stops and, only if that succeeds, commits them
// and the new sequences to memory.
func (s *Store) apply(ctx context.Context, op string, st stage, seqs map[string][]string) error {
	if s.repo != nil && len(st) > 0 {
		if err := s.repo.SaveStops(ctx, st.list()); err != nil {
			return fmt.Errorf("%s: persist stops: %w", op, err)
		}
	}

	for id, stop := range st {
		v := stop
		s.stops[id] = &v
	}
	for owner, ids := range seqs {
		if owner == pendingOwner {
			s.pending = ids
			continue
		}
		s.routes[owner] = ids
	}
	return nil
}

func (s *Store) saveAgent(ctx context.Context, op string, agent domain.Agent) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.UpsertAgent(ctx, agent); err != nil {
		return fmt.Errorf("%s %s: persist agent: %w", op, agent.ID, err)
	}
	return nil
}

// openStopLocked returns the stop if it exists and is not closed.
func (s *Store) openStopLocked(stopID string) (*domain.Stop, error) {
	stop, ok := s.stops[stopID]
	if !ok || stop.Status.Closed() {
		return nil, domain.ErrStopNotFound
	}
	return stop, nil
}

func (s *Store) sequenceLocked(owner string) []string {
	if owner == pendingOwner {
		return s.pending
	}
	return s.routes[owner]
}

func (s *Store) snapshotLocked(ids []string) []domain.Stop {
	out := make([]domain.Stop, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.stops[id].Clone())
	}
	return out
}

func renumberLocked(stops map[string]*domain.Stop, owner string, ids []string) {
	for i, id := range ids {
		stops[id].AgentID = owner
		stops[id].Sequence = i + 1
	}
}

// sameSet reports ErrInvalidReorder unless next is a permutation of current.
func sameSet(current, next []string) error {
	if len(current) != len(next) {
		return fmt.Errorf("%w: got %d ids, sequence holds %d", domain.ErrInvalidReorder, len(next), len(current))
	}

	want := make(map[string]struct{}, len(current))
	for _, id := range current {
		want[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(next))
	for _, id := range next {
		if _, ok := want[id]; !ok {
			return fmt.Errorf("%w: stop %s is not in this sequence", domain.ErrInvalidReorder, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: stop %s listed twice", domain.ErrInvalidReorder, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func clone(ids []string) []string {
	return append([]string(nil), ids...)
}
