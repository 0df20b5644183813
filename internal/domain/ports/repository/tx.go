package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle produced by a TransactionManager.
type Tx interface{}

// NoTX runs a repository call outside any transaction.
var NoTX Tx

// TransactionManager runs fn in one database transaction. fn's error rolls
// the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
