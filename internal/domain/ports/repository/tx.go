package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must gracefully accept nil for the
// non-transactional path.
type Tx interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying handle via tx. Keeping the handle opaque stops
// transaction types from leaking into use-case interfaces while still
// letting repository implementations run SELECT ... FOR UPDATE or advisory
// locks on the tx connection.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
