package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"skinvault/internal/config"
	"skinvault/internal/logger"
	"skinvault/internal/metrics"
	"skinvault/internal/utils/helpers"

	"go.uber.org/zap"
)

type EmailMessage struct {
	From     string
	FromName string
	To       string
	ToName   string
	Subject  string
	HTML     string
	Text     string
}

// EmailProvider: транспорт конкретного почтового сервиса. Реализации взаимозаменяемы.
type EmailProvider interface {
	Name() string
	Send(ctx context.Context, msg EmailMessage) error
}

// ProviderError: провайдер ответил не 2xx.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// EmailDispatcher рендерит письмо сброса и отдаёт его провайдеру. Повторов нет.
type EmailDispatcher struct {
	provider EmailProvider
	from     string
	fromName string
	timeout  time.Duration
}

func NewEmailDispatcher(provider EmailProvider, from, fromName string, timeout time.Duration) *EmailDispatcher {
	return &EmailDispatcher{provider: provider, from: from, fromName: fromName, timeout: timeout}
}

// NewEmailDispatcherFromConfig выбирает провайдера по EMAIL_PROVIDER.
func NewEmailDispatcherFromConfig(cfg *config.Config) (*EmailDispatcher, error) {
	client := &http.Client{Timeout: cfg.EmailTimeout}

	var p EmailProvider
	switch cfg.EmailProvider {
	case config.EmailProviderResend:
		p = NewResendProvider(cfg.EmailAPIKey, client)
	case config.EmailProviderSendGrid:
		p = NewSendGridProvider(cfg.EmailAPIKey, client)
	case config.EmailProviderMailgun:
		p = NewMailgunProvider(cfg.EmailAPIKey, cfg.EmailDomain, client)
	case config.EmailProviderPostmark:
		p = NewPostmarkProvider(cfg.EmailAPIKey, client)
	case config.EmailProviderSMTP:
		p = NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailTimeout)
	case config.EmailProviderLog:
		p = LogProvider{}
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}

	from := cfg.EmailFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	return NewEmailDispatcher(p, from, cfg.EmailFromName, cfg.EmailTimeout), nil
}

func (d *EmailDispatcher) ProviderName() string {
	return d.provider.Name()
}

// SendPasswordReset возвращает false, если провайдер упал или ответил не 2xx.
func (d *EmailDispatcher) SendPasswordReset(ctx context.Context, to, resetURL, displayName string) bool {
	msg := EmailMessage{
		From:     d.from,
		FromName: d.fromName,
		To:       to,
		ToName:   displayName,
		Subject:  helpers.PasswordResetSubject,
		HTML:     helpers.BuildPasswordResetHTML(displayName, resetURL),
		Text:     helpers.BuildPasswordResetText(displayName, resetURL),
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.provider.Send(ctx, msg); err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusTooManyRequests {
			metrics.EmailDispatchTotal.WithLabelValues(d.provider.Name(), "rate_limited").Inc()
			logger.WithCtx(ctx).Warn("Почтовый провайдер ограничил частоту отправки",
				zap.String("provider", d.provider.Name()),
				zap.Error(err),
			)
			return false
		}
		metrics.EmailDispatchTotal.WithLabelValues(d.provider.Name(), "error").Inc()
		logger.WithCtx(ctx).Error("Не удалось отправить письмо сброса пароля",
			zap.String("provider", d.provider.Name()),
			zap.Error(err),
		)
		return false
	}

	metrics.EmailDispatchTotal.WithLabelValues(d.provider.Name(), "ok").Inc()
	logger.WithCtx(ctx).Info("Письмо сброса пароля отправлено", zap.String("provider", d.provider.Name()))
	return true
}

// LogProvider ничего не отправляет, только пишет ссылку в лог (локальная разработка).
type LogProvider struct{}

func (LogProvider) Name() string { return config.EmailProviderLog }

func (LogProvider) Send(ctx context.Context, msg EmailMessage) error {
	logger.WithCtx(ctx).Info("EMAIL_PROVIDER=log: письмо не отправляется",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
