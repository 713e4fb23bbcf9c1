package repository

import (
	"context"
	"errors"
	"net"
	"time"

	"skinvault/internal/logger"
	"skinvault/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Retrier ограничивает каждый вызов хранилища таймаутом и повторяет
// транзиентные сетевые ошибки не более MaxRetries раз.
type Retrier struct {
	MaxRetries      uint64
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func NewRetrier(maxRetries int, timeout time.Duration) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrier{
		MaxRetries:      uint64(maxRetries),
		Timeout:         timeout,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(cctx)
}

// Do выполняет fn. Внутри транзакции повторов нет: транзакция после ошибки уже мертва.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return r.attempt(ctx, fn)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.InitialInterval
	exp.MaxInterval = r.MaxInterval
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, r.MaxRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		logger.WithCtx(ctx).Warn("Транзиентная ошибка хранилища, повтор",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}, b)
}

// IsTransient: сетевые сбои и таймауты, которые имеет смысл повторить.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type retryingResetRepo struct {
	next  PasswordResetRepo
	retry *Retrier
}

// NewRetryingResetRepo оборачивает каждый вызов next в Retrier.
func NewRetryingResetRepo(next PasswordResetRepo, retry *Retrier) PasswordResetRepo {
	return &retryingResetRepo{next: next, retry: retry}
}

func (r *retryingResetRepo) Create(ctx context.Context, t *models.PasswordResetToken) error {
	return r.retry.Do(ctx, "reset_tokens.create", func(ctx context.Context) error {
		return r.next.Create(ctx, t)
	})
}

func (r *retryingResetRepo) GetByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var out *models.PasswordResetToken
	err := r.retry.Do(ctx, "reset_tokens.get", func(ctx context.Context) error {
		var err error
		out, err = r.next.GetByHash(ctx, tokenHash)
		return err
	})
	return out, err
}

func (r *retryingResetRepo) ConsumeIfValid(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error) {
	var out *models.PasswordResetToken
	err := r.retry.Do(ctx, "reset_tokens.consume", func(ctx context.Context) error {
		var err error
		out, err = r.next.ConsumeIfValid(ctx, tokenHash, now)
		return err
	})
	return out, err
}

func (r *retryingResetRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.retry.Do(ctx, "reset_tokens.delete_expired", func(ctx context.Context) error {
		var err error
		n, err = r.next.DeleteExpired(ctx, cutoff)
		return err
	})
	return n, err
}

type retryingAccountRepo struct {
	next  AccountRepo
	retry *Retrier
}

func NewRetryingAccountRepo(next AccountRepo, retry *Retrier) AccountRepo {
	return &retryingAccountRepo{next: next, retry: retry}
}

func (r *retryingAccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var out *models.Account
	err := r.retry.Do(ctx, "accounts.get_by_email", func(ctx context.Context) error {
		var err error
		out, err = r.next.GetByEmail(ctx, email)
		return err
	})
	return out, err
}

func (r *retryingAccountRepo) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	return r.retry.Do(ctx, "accounts.update_password", func(ctx context.Context) error {
		return r.next.UpdatePasswordHash(ctx, accountID, passwordHash)
	})
}
