package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-delivery-service/internal/adapters/repositories"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/platform/db"
)

func newSqliteCache(t *testing.T) *SqliteGeocodeCache {
	t.Helper()
	conn, err := db.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, repositories.InitSchema(context.Background(), conn))
	return NewSqliteGeocodeCache(conn)
}

func TestSqliteGeocodeCachePutThenGet(t *testing.T) {
	c := newSqliteCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutMany(ctx, map[string]domain.Coordinates{
		"1 main st":  {Lat: 33.1, Lng: -112.1},
		"2 elm st":   {Lat: 33.2, Lng: -112.2},
	}))
	require.NoError(t, c.PutMany(ctx, map[string]domain.Coordinates{
		"2 elm st": {Lat: 33.25, Lng: -112.25},
	}))

	got, err := c.GetMany(ctx, []string{"1 main st", " 2 elm st ", "1 main st", "", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, domain.Coordinates{Lat: 33.1, Lng: -112.1}, got["1 main st"])
	assert.Equal(t, domain.Coordinates{Lat: 33.25, Lng: -112.25}, got["2 elm st"])
}

func TestSqliteGeocodeCacheEmptyInputs(t *testing.T) {
	c := newSqliteCache(t)
	ctx := context.Background()

	got, err := c.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, c.PutMany(ctx, nil))
}

func TestSqliteGeocodeCacheRejectsBadEntries(t *testing.T) {
	c := newSqliteCache(t)

	err := c.PutMany(context.Background(), map[string]domain.Coordinates{" ": {Lat: 1, Lng: 1}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = c.PutMany(context.Background(), map[string]domain.Coordinates{"x": {Lat: 100}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewGeocodeCacheByDriver(t *testing.T) {
	c, err := NewGeocodeCache(nil, "pgx")
	require.NoError(t, err)
	assert.IsType(t, &PostgresGeocodeCache{}, c)

	c, err = NewGeocodeCache(nil, "sqlite")
	require.NoError(t, err)
	assert.IsType(t, &SqliteGeocodeCache{}, c)

	_, err = NewGeocodeCache(nil, "mysql")
	assert.Error(t, err)
}

func TestNilDB(t *testing.T) {
	_, err := NewPostgresGeocodeCache(nil).GetMany(context.Background(), []string{"a"})
	assert.Error(t, err)
}
