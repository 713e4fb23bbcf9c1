package repository

import (
	"context"
	"errors"
	"time"

	"skinvault/internal/logger"
	"skinvault/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PasswordResetRepo interface {
	Create(ctx context.Context, t *models.PasswordResetToken) error
	GetByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	ConsumeIfValid(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type PasswordResetRepository struct {
	db *pgxpool.Pool
}

func NewPasswordResetRepository(db *pgxpool.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

const resetTokenColumns = `id, owner_id, token_hash, issued_at, expires_at, consumed, consumed_at`

// Create идемпотентен по id: повтор после потерянного ответа не падает на unique.
func (r *PasswordResetRepository) Create(ctx context.Context, t *models.PasswordResetToken) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO password_reset_tokens (id, owner_id, token_hash, issued_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.OwnerID, t.TokenHash, t.IssuedAt, t.ExpiresAt,
	)
	if err != nil {
		logger.WithCtx(ctx).Error("Create reset token failed", zap.Error(err), zap.String("owner_id", t.OwnerID))
	}
	return err
}

// GetByHash возвращает токен в любом состоянии: классификацию (истёк/использован) делает сервис.
func (r *PasswordResetRepository) GetByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+resetTokenColumns+` FROM password_reset_tokens WHERE token_hash = $1`,
		tokenHash,
	)
	return scanResetToken(row)
}

// ConsumeIfValid атомарно помечает токен использованным, если он ещё годен.
// Два параллельных сброса одним токеном: второй получит ErrNotFound.
func (r *PasswordResetRepository) ConsumeIfValid(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE password_reset_tokens
		SET consumed = true, consumed_at = $2
		WHERE token_hash = $1
		  AND consumed = false
		  AND expires_at > $2
		RETURNING `+resetTokenColumns,
		tokenHash, now,
	)
	return scanResetToken(row)
}

func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM password_reset_tokens
		WHERE expires_at < $1
		   OR (consumed AND consumed_at < $1)`,
		cutoff,
	)
	if err != nil {
		logger.WithCtx(ctx).Error("Delete expired reset tokens failed", zap.Error(err))
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanResetToken(row pgx.Row) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	err := row.Scan(&t.ID, &t.OwnerID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.Consumed, &t.ConsumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
