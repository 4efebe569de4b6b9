package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"pharmacy-delivery-service/internal/domain"
)

// agentRow and stopRow mirror the table columns. Conversion to and from the
// domain types goes through the explicit functions below only.
type agentRow struct {
	ID        string
	Name      string
	Phone     string
	Status    string
	Lat       sql.NullFloat64
	Lng       sql.NullFloat64
	Bearing   float64
	UpdatedAt sql.NullString
}

type stopRow struct {
	ID       string
	Address  string
	Phone    string
	Lat      sql.NullFloat64
	Lng      sql.NullFloat64
	Status   string
	AgentID  string
	Seq      int
	Notified bool
}

func agentRowFrom(a domain.Agent) agentRow {
	row := agentRow{
		ID:      a.ID,
		Name:    a.Name,
		Phone:   a.Phone,
		Status:  string(a.Status),
		Bearing: a.BearingDegrees,
	}
	row.Lat, row.Lng = nullCoords(a.LastKnownPosition)
	if a.UpdatedAt != nil {
		row.UpdatedAt = sql.NullString{String: formatTime(*a.UpdatedAt), Valid: true}
	}
	return row
}

func (r agentRow) toDomain() (domain.Agent, error) {
	status, err := domain.ParseAgentStatus(r.Status)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("agent_id=%s: %w", r.ID, err)
	}

	a := domain.Agent{
		ID:                r.ID,
		Name:              r.Name,
		Phone:             r.Phone,
		Status:            status,
		LastKnownPosition: coordsFrom(r.Lat, r.Lng),
		BearingDegrees:    r.Bearing,
	}
	if r.UpdatedAt.Valid && r.UpdatedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, r.UpdatedAt.String)
		if err != nil {
			return domain.Agent{}, fmt.Errorf("agent_id=%s: parse updated_at: %w", r.ID, err)
		}
		a.UpdatedAt = &t
	}
	return a, nil
}

func stopRowFrom(s domain.Stop) stopRow {
	row := stopRow{
		ID:       s.ID,
		Address:  s.Address,
		Phone:    s.Phone,
		Status:   string(s.Status),
		AgentID:  s.AgentID,
		Seq:      s.Sequence,
		Notified: s.Notified,
	}
	row.Lat, row.Lng = nullCoords(s.Location)
	return row
}

func (r stopRow) toDomain() (domain.Stop, error) {
	status, err := domain.ParseStopStatus(r.Status)
	if err != nil {
		return domain.Stop{}, fmt.Errorf("stop_id=%s: %w", r.ID, err)
	}
	return domain.Stop{
		ID:       r.ID,
		Address:  r.Address,
		Phone:    r.Phone,
		Location: coordsFrom(r.Lat, r.Lng),
		Sequence: r.Seq,
		Notified: r.Notified,
		Status:   status,
		AgentID:  r.AgentID,
	}, nil
}

func nullCoords(c *domain.Coordinates) (lat, lng sql.NullFloat64) {
	if c == nil {
		return lat, lng
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lng, Valid: true}
}

func coordsFrom(lat, lng sql.NullFloat64) *domain.Coordinates {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &domain.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
