package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_PoolConfigAppliesLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://hub:pw@db:5432/donors?sslmode=disable"
	cfg.MaxConns = 12
	cfg.MinConns = 3
	cfg.MaxConnLifetime = 10 * time.Minute

	pc, err := cfg.poolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(3), pc.MinConns)
	assert.Equal(t, 10*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, "donors", pc.ConnConfig.Database)
}

func TestConfig_PoolConfigRejectsBadURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://hub:pw@db:notaport/donors"

	_, err := cfg.poolConfig()
	assert.Error(t, err)
}

func TestErrorHelpers(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: constraintPendingPair})
	assert.True(t, IsUniqueViolation(dup))
	assert.Equal(t, constraintPendingPair, ConstraintName(dup))

	check := &pgconn.PgError{Code: "23514", ConstraintName: "chk_rating"}
	assert.False(t, IsUniqueViolation(check))

	plain := errors.New("boom")
	assert.False(t, IsUniqueViolation(plain))
	assert.Empty(t, ConstraintName(plain))

	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(plain))
}
