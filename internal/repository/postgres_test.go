package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"skinvault/internal/db"
	"skinvault/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Интеграционные тесты идут только при заданном DATABASE_URL.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL не задан, пропускаем тесты Postgres")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

type pgFixture struct {
	pool     *pgxpool.Pool
	tokens   *PasswordResetRepository
	accounts *AccountRepository
	tx       *PgTxManager
	account  string
	email    string
	now      time.Time
}

func newPgFixture(t *testing.T) *pgFixture {
	pool := testPool(t)
	f := &pgFixture{
		pool:     pool,
		tokens:   NewPasswordResetRepository(pool),
		accounts: NewAccountRepository(pool),
		tx:       NewPgTxManager(pool),
		account:  "acc-" + uuid.NewString(),
		now:      time.Now().UTC().Truncate(time.Second),
	}
	f.email = f.account + "@Example.com"

	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, email, display_name, password_hash) VALUES ($1, $2, 'Ann', 'old')`, f.account, f.email)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM password_reset_tokens WHERE owner_id = $1`, f.account)
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, f.account)
	})
	return f
}

func (f *pgFixture) issue(t *testing.T, ttl time.Duration) *models.PasswordResetToken {
	t.Helper()
	tok := &models.PasswordResetToken{
		ID:        uuid.NewString(),
		OwnerID:   f.account,
		TokenHash: "hash-" + uuid.NewString(),
		IssuedAt:  f.now,
		ExpiresAt: f.now.Add(ttl),
	}
	require.NoError(t, f.tokens.Create(context.Background(), tok))
	return tok
}

func TestPostgres_CreateIsIdempotent(t *testing.T) {
	f := newPgFixture(t)
	tok := f.issue(t, time.Hour)

	require.NoError(t, f.tokens.Create(context.Background(), tok), "повтор вставки не должен падать на unique")

	got, err := f.tokens.GetByHash(context.Background(), tok.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.False(t, got.Consumed)
}

func TestPostgres_ConsumeIfValid(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	tok := f.issue(t, time.Hour)

	consumed, err := f.tokens.ConsumeIfValid(ctx, tok.TokenHash, f.now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, consumed.Consumed)
	require.NotNil(t, consumed.ConsumedAt)

	_, err = f.tokens.ConsumeIfValid(ctx, tok.TokenHash, f.now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)

	expired := f.issue(t, time.Hour)
	_, err = f.tokens.ConsumeIfValid(ctx, expired.TokenHash, f.now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound, "на границе expires_at токен уже не годен")

	_, err = f.tokens.GetByHash(ctx, "hash-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_ConcurrentConsumeSingleWinner(t *testing.T) {
	f := newPgFixture(t)
	tok := f.issue(t, time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.tokens.ConsumeIfValid(context.Background(), tok.TokenHash, f.now.Add(time.Minute)); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestPostgres_TxRollbackKeepsToken(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	tok := f.issue(t, time.Hour)

	err := f.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := f.tokens.ConsumeIfValid(ctx, tok.TokenHash, f.now.Add(time.Minute)); err != nil {
			return err
		}
		return f.accounts.UpdatePasswordHash(ctx, "acc-missing-"+uuid.NewString(), "new")
	})
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.tokens.GetByHash(ctx, tok.TokenHash)
	require.NoError(t, err)
	assert.False(t, got.Consumed, "откат транзакции должен вернуть токен")
}

func TestPostgres_TxCommit(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	tok := f.issue(t, time.Hour)

	require.NoError(t, f.tx.WithinTx(ctx, func(ctx context.Context) error {
		assert.True(t, InTx(ctx))
		consumed, err := f.tokens.ConsumeIfValid(ctx, tok.TokenHash, f.now.Add(time.Minute))
		if err != nil {
			return err
		}
		return f.accounts.UpdatePasswordHash(ctx, consumed.OwnerID, "new-hash")
	}))

	acc, err := f.accounts.GetByEmail(ctx, f.email)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", acc.PasswordHash)
	assert.Equal(t, "Ann", acc.DisplayName)

	got, err := f.tokens.GetByHash(ctx, tok.TokenHash)
	require.NoError(t, err)
	assert.True(t, got.Consumed)
}

func TestPostgres_DeleteExpired(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	old := f.issue(t, -time.Minute)
	fresh := f.issue(t, time.Hour)

	_, err := f.tokens.DeleteExpired(ctx, f.now)
	require.NoError(t, err)

	_, err = f.tokens.GetByHash(ctx, old.TokenHash)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = f.tokens.GetByHash(ctx, fresh.TokenHash)
	assert.NoError(t, err)
}
