package domain

// Represents the outcome of one optimization pass over a stop sequence.
// AgentID is empty when the pending pool was optimized. OrderedIDs holds
// the full order applied to the sequence: optimized stops first, then the
// unassignable ones in their previous relative order.
type OptimizedRoute struct {
	AgentID         string
	Start           Coordinates
	OrderedIDs      []string
	Unassignable    []string
	EncodedPath     string
	Path            []Coordinates
	DistanceMeters  float64
	DurationSeconds float64
}
