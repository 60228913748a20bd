package gateway

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func fakePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return &pgxpool.Pool{}
}
