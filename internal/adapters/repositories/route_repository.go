package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/platform/obs"
)

// SQLRouteRepository implements ports.RouteRepository on SQLite or Postgres.
// Queries are written with ? placeholders and rebound for pgx.
type SQLRouteRepository struct {
	DB     *sql.DB
	driver string
}

func NewSQLRouteRepository(db *sql.DB, driver string) *SQLRouteRepository {
	return &SQLRouteRepository{DB: db, driver: driver}
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (r *SQLRouteRepository) rebind(q string) string {
	if r.driver != "pgx" {
		return q
	}

	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *SQLRouteRepository) check() error {
	if r.DB == nil {
		return errors.New("route repository: DB is nil")
	}
	return nil
}

// Return every agent ordered by id.
func (r *SQLRouteRepository) ListAgents(ctx context.Context) (_ []domain.Agent, err error) {
	defer obs.Time(ctx, "repo.ListAgents")(&err)
	if err := r.check(); err != nil {
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, `
	SELECT
		agent_id,
		name,
		phone,
		status,
		lat,
		lng,
		bearing,
		updated_at
	FROM agents
	ORDER BY agent_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: query agents table: %w", err)
	}
	defer rows.Close()

	agents := make([]domain.Agent, 0, 16)
	for rows.Next() {
		var row agentRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Phone, &row.Status, &row.Lat, &row.Lng, &row.Bearing, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list agents: scan row: %w", err)
		}
		agent, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agents: row iteration: %w", err)
	}

	return agents, nil
}

// Return every stop ordered by owner and sequence.
func (r *SQLRouteRepository) ListStops(ctx context.Context) (_ []domain.Stop, err error) {
	defer obs.Time(ctx, "repo.ListStops")(&err)
	if err := r.check(); err != nil {
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, `
	SELECT
		stop_id,
		address,
		phone,
		lat,
		lng,
		status,
		agent_id,
		seq,
		notified
	FROM stops
	ORDER BY agent_id, seq, stop_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("list stops: query stops table: %w", err)
	}
	defer rows.Close()

	stops := make([]domain.Stop, 0, 64)
	for rows.Next() {
		var row stopRow
		if err := rows.Scan(&row.ID, &row.Address, &row.Phone, &row.Lat, &row.Lng, &row.Status, &row.AgentID, &row.Seq, &row.Notified); err != nil {
			return nil, fmt.Errorf("list stops: scan row: %w", err)
		}
		stop, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("list stops: %w", err)
		}
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stops: row iteration: %w", err)
	}

	return stops, nil
}

func (r *SQLRouteRepository) UpsertAgent(ctx context.Context, agent domain.Agent) (err error) {
	defer obs.Time(ctx, "repo.UpsertAgent")(&err)
	if err := r.check(); err != nil {
		return err
	}

	row := agentRowFrom(agent)
	_, err = r.DB.ExecContext(ctx, r.rebind(`
	INSERT INTO agents (agent_id, name, phone, status, lat, lng, bearing, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (agent_id) DO UPDATE
	SET name = excluded.name,
		phone = excluded.phone,
		status = excluded.status,
		lat = excluded.lat,
		lng = excluded.lng,
		bearing = excluded.bearing,
		updated_at = excluded.updated_at;
	`), row.ID, row.Name, row.Phone, row.Status, row.Lat, row.Lng, row.Bearing, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert agent agent_id=%s: %w", agent.ID, err)
	}
	return nil
}

// SaveStops writes the batch in one transaction; either every record lands or none.
func (r *SQLRouteRepository) SaveStops(ctx context.Context, stops []domain.Stop) (err error) {
	defer obs.Time(ctx, "repo.SaveStops")(&err)
	if err := r.check(); err != nil {
		return err
	}
	if len(stops) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save stops: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
	INSERT INTO stops (stop_id, address, phone, lat, lng, status, agent_id, seq, notified)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (stop_id) DO UPDATE
	SET address = excluded.address,
		phone = excluded.phone,
		lat = excluded.lat,
		lng = excluded.lng,
		status = excluded.status,
		agent_id = excluded.agent_id,
		seq = excluded.seq,
		notified = excluded.notified;
	`))
	if err != nil {
		return fmt.Errorf("save stops: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range stops {
		row := stopRowFrom(s)
		if _, err := stmt.ExecContext(ctx, row.ID, row.Address, row.Phone, row.Lat, row.Lng, row.Status, row.AgentID, row.Seq, row.Notified); err != nil {
			return fmt.Errorf("save stops: upsert stop_id=%s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save stops: commit tx: %w", err)
	}
	return nil
}

func (r *SQLRouteRepository) UpdatePosition(ctx context.Context, agentID string, pos domain.Coordinates, bearing float64, at time.Time) (err error) {
	defer obs.Time(ctx, "repo.UpdatePosition")(&err)
	if err := r.check(); err != nil {
		return err
	}

	res, err := r.DB.ExecContext(ctx, r.rebind(`
	UPDATE agents
	SET lat = ?, lng = ?, bearing = ?, updated_at = ?
	WHERE agent_id = ?;
	`), pos.Lat, pos.Lng, bearing, formatTime(at), agentID)
	if err != nil {
		return fmt.Errorf("update position agent_id=%s: %w", agentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update position agent_id=%s: rows affected: %w", agentID, err)
	}
	if n == 0 {
		return fmt.Errorf("update position: %w: %s", domain.ErrAgentNotFound, agentID)
	}
	return nil
}
