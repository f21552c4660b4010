package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// Store implements request.Store on PostgreSQL.
// Outside a transaction it queries the pool; inside WithinTx it queries the
// transaction and reads donors with SELECT ... FOR UPDATE.
type Store struct {
	conn *Connection
	q    Querier
	inTx bool
	log  *logger.Logger
}

// NewStore creates a Store over conn.
func NewStore(conn *Connection, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		conn: conn,
		q:    conn,
		log:  log.With(logger.Component("postgres_store")),
	}
}

// WithinTx implements request.Store. A nested call joins the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx request.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, &Store{conn: s.conn, q: tx, inTx: true, log: s.log})
	})
}

var _ request.Store = (*Store)(nil)
