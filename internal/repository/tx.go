package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound: строка не найдена (или условный апдейт не затронул ни одной строки).
var ErrNotFound = errors.New("not found")

// TxManager выполняет fn в одной транзакции. Репозитории берут транзакцию из ctx.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

func txFromCtx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// conn: транзакция из контекста, иначе пул.
func conn(ctx context.Context, db *pgxpool.Pool) querier {
	if tx, ok := txFromCtx(ctx); ok {
		return tx
	}
	return db
}

type PgTxManager struct {
	db *pgxpool.Pool
}

func NewPgTxManager(db *pgxpool.Pool) *PgTxManager {
	return &PgTxManager{db: db}
}

func (m *PgTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromCtx(ctx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, m.db, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// InTx сообщает, выполняется ли вызов внутри транзакции (любой реализации).
func InTx(ctx context.Context) bool {
	if _, ok := txFromCtx(ctx); ok {
		return true
	}
	_, ok := ctx.Value(memTxKey{}).(bool)
	return ok
}
