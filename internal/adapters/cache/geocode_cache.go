// Package cache holds SQL-backed implementations of ports.GeocodeCache.
package cache

import (
	"database/sql"
	"fmt"
	"strings"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/ports"
)

// NewGeocodeCache returns the cache flavor matching the database driver.
func NewGeocodeCache(db *sql.DB, driver string) (ports.GeocodeCache, error) {
	switch driver {
	case "sqlite":
		return NewSqliteGeocodeCache(db), nil
	case "pgx":
		return NewPostgresGeocodeCache(db), nil
	}
	return nil, fmt.Errorf("geocode cache: unsupported driver %q", driver)
}

// uniqueAddresses trims, drops empties and de-duplicates while keeping order.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func scanCoordinates(rows *sql.Rows, sizeHint int) (map[string]domain.Coordinates, error) {
	defer rows.Close()

	out := make(map[string]domain.Coordinates, sizeHint)
	for rows.Next() {
		var addr string
		var c domain.Coordinates
		if err := rows.Scan(&addr, &c.Lat, &c.Lng); err != nil {
			return nil, fmt.Errorf("get geocode cache: scan rows: %w", err)
		}
		out[addr] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get geocode cache: row iteration: %w", err)
	}
	return out, nil
}

func checkEntries(entries map[string]domain.Coordinates) error {
	for addr, c := range entries {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("put geocode cache: %w: empty address key", domain.ErrValidation)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("put geocode cache address=%q: %w", addr, err)
		}
	}
	return nil
}
