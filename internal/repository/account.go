package repository

import (
	"context"
	"errors"

	"skinvault/internal/logger"
	"skinvault/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AccountRepo: то немногое из credential store, что нужно сбросу пароля.
type AccountRepo interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error
}

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	logger.WithCtx(ctx).Debug("Получение аккаунта по email (repo)")
	var a models.Account
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, email, COALESCE(display_name, ''), password_hash
		FROM users
		WHERE lower(email) = lower($1)
		LIMIT 1`, email,
	).Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.WithCtx(ctx).Error("Ошибка получения аккаунта по email (repo)", zap.Error(err))
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		passwordHash, accountID,
	)
	if err != nil {
		logger.WithCtx(ctx).Error("Ошибка обновления пароля (repo)", zap.String("account_id", accountID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
