package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"skinvault/internal/logger"
	"skinvault/internal/metrics"
	"skinvault/internal/models"
	"skinvault/internal/repository"
	"skinvault/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultResetTokenTTL = time.Hour

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrTokenNotFound   = errors.New("reset token not found")
	ErrTokenExpired    = errors.New("reset token expired")
	ErrTokenConsumed   = errors.New("reset token already used")
	ErrEmailDispatch   = errors.New("failed to send reset email")
)

// IsInvalidToken: любая причина, по которой токен нельзя использовать.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenConsumed)
}

// WeakPasswordError: новый пароль не прошёл правила сложности.
type WeakPasswordError struct {
	Problems []string
}

func (e *WeakPasswordError) Error() string {
	return "weak password: " + strings.Join(e.Problems, "; ")
}

// ResetMailer: то, что сервису нужно от EmailDispatcher.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL, displayName string) bool
}

type PasswordService struct {
	tokens   repository.PasswordResetRepo
	accounts repository.AccountRepo
	tx       repository.TxManager
	mailer   ResetMailer

	appURL         string // https://skinvault.example → ссылка /reset-password?token=...
	tokenTTL       time.Duration
	sweepRetention time.Duration
	now            func() time.Time
	newToken       func() (string, error)
}

type PasswordServiceOption func(*PasswordService)

func WithTokenTTL(ttl time.Duration) PasswordServiceOption {
	return func(s *PasswordService) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithSweepRetention(d time.Duration) PasswordServiceOption {
	return func(s *PasswordService) { s.sweepRetention = d }
}

func WithClock(now func() time.Time) PasswordServiceOption {
	return func(s *PasswordService) { s.now = now }
}

func WithTokenGenerator(gen func() (string, error)) PasswordServiceOption {
	return func(s *PasswordService) { s.newToken = gen }
}

func NewPasswordService(
	tokens repository.PasswordResetRepo,
	accounts repository.AccountRepo,
	tx repository.TxManager,
	mailer ResetMailer,
	appURL string,
	opts ...PasswordServiceOption,
) *PasswordService {
	s := &PasswordService{
		tokens:   tokens,
		accounts: accounts,
		tx:       tx,
		mailer:   mailer,
		appURL:   strings.TrimRight(appURL, "/"),
		tokenTTL: DefaultResetTokenTTL,
		now:      time.Now,
		newToken: GenerateResetToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResetURL: ссылка из письма. base64url-токен экранирование не меняет.
func (s *PasswordService) ResetURL(token string) string {
	return s.appURL + "/reset-password?token=" + url.QueryEscape(token)
}

// RequestReset выпускает токен и отправляет письмо.
// Успех только если письмо ушло: иначе ErrEmailDispatch, хотя токен уже сохранён.
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	log := logger.WithCtx(ctx)
	email = strings.TrimSpace(strings.ToLower(email))
	log.Info("Запрос на сброс пароля", zap.String("email_masked", utils.MaskEmail(email)))

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Аккаунт для сброса пароля не найден", zap.String("email_masked", utils.MaskEmail(email)))
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}

	token, err := s.newToken()
	if err != nil {
		log.Error("Ошибка генерации токена для сброса", zap.Error(err), zap.String("account_id", account.ID))
		return err
	}

	now := s.now()
	rec := &models.PasswordResetToken{
		ID:        uuid.NewString(),
		OwnerID:   account.ID,
		TokenHash: HashResetToken(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if !s.mailer.SendPasswordReset(ctx, account.Email, s.ResetURL(token), account.DisplayName) {
		log.Error("Токен сохранён, но письмо не отправлено", zap.String("account_id", account.ID))
		return ErrEmailDispatch
	}

	log.Info("Письмо со ссылкой на сброс пароля отправлено",
		zap.String("account_id", account.ID),
		zap.Time("expires_at", rec.ExpiresAt),
	)
	return nil
}

// ValidateToken: read-only проверка: возвращает id владельца, ничего не меняет.
func (s *PasswordService) ValidateToken(ctx context.Context, token string) (string, error) {
	rec, err := s.usableToken(ctx, token)
	if err != nil {
		return "", err
	}
	return rec.OwnerID, nil
}

func (s *PasswordService) usableToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenNotFound
	}

	rec, err := s.tokens.GetByHash(ctx, HashResetToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}

	if rec.Consumed {
		return nil, ErrTokenConsumed
	}
	if rec.Expired(s.now()) {
		return nil, ErrTokenExpired
	}
	return rec, nil
}

// ResetPassword повторно проверяет токен (с момента validate могло пройти время),
// затем в одной транзакции гасит токен и меняет пароль. Если смена пароля не удалась,
// транзакция откатывается и токен остаётся годным.
func (s *PasswordService) ResetPassword(ctx context.Context, token, newPassword string) error {
	log := logger.WithCtx(ctx)
	log.Info("Попытка сброса пароля по токену")

	rec, err := s.usableToken(ctx, token)
	if err != nil {
		log.Warn("Неверный или просроченный токен при сбросе пароля", zap.Error(err))
		return err
	}

	if problems := utils.ValidatePasswordStrength(newPassword); len(problems) > 0 {
		log.Warn("Слабый новый пароль", zap.Strings("problems", problems))
		return &WeakPasswordError{Problems: problems}
	}

	pwHash, err := utils.HashPassword(newPassword)
	if err != nil {
		log.Error("Ошибка генерации хеша пароля", zap.Error(err), zap.String("account_id", rec.OwnerID))
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		consumed, err := s.tokens.ConsumeIfValid(ctx, rec.TokenHash, s.now())
		if errors.Is(err, repository.ErrNotFound) {
			// проиграли гонку параллельному сбросу или токен истёк между проверками
			if rec.Expired(s.now()) {
				return ErrTokenExpired
			}
			return ErrTokenConsumed
		}
		if err != nil {
			return fmt.Errorf("consume reset token: %w", err)
		}

		if err := s.accounts.UpdatePasswordHash(ctx, consumed.OwnerID, pwHash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("Пароль не сброшен", zap.String("account_id", rec.OwnerID), zap.Error(err))
		return err
	}

	log.Info("Пароль успешно сброшен", zap.String("account_id", rec.OwnerID))
	return nil
}

// SweepExpired удаляет истёкшие и использованные токены старше retention.
func (s *PasswordService) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.sweepRetention)
	n, err := s.tokens.DeleteExpired(ctx, cutoff)
	if err != nil {
		logger.WithCtx(ctx).Error("Ошибка очистки токенов сброса", zap.Error(err))
		return 0, err
	}
	metrics.ResetTokensSweptTotal.Add(float64(n))
	logger.WithCtx(ctx).Info("Очистка токенов сброса", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}
