package app

import (
	"context"
	"time"

	"skinvault/internal/config"
	"skinvault/internal/db"
	"skinvault/internal/handlers"
	"skinvault/internal/logger"
	"skinvault/internal/repository"
	"skinvault/internal/routes"
	"skinvault/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// App: собранные зависимости; Close освобождает пул и останавливает фоновые задачи.
type App struct {
	Router          *mux.Router
	PasswordService *services.PasswordService

	cancel context.CancelFunc
	close  func()
}

func (a *App) Close() {
	a.cancel()
	a.close()
}

func InitApp(cfg *config.Config) (*App, error) {
	var (
		tokens   repository.PasswordResetRepo
		accounts repository.AccountRepo
		tx       repository.TxManager
		closeFn  = func() {}
	)

	switch cfg.Storage {
	case "memory":
		store := repository.NewMemoryStore()
		tokens, accounts, tx = store, store, store
	default:
		pool, err := db.NewPostgresConnection(cfg)
		if err != nil {
			return nil, err
		}
		migrateCtx, cancel := context.WithTimeout(context.Background(), cfg.StorageTimeout)
		err = db.Migrate(migrateCtx, pool)
		cancel()
		if err != nil {
			pool.Close()
			return nil, err
		}
		tokens = repository.NewPasswordResetRepository(pool)
		accounts = repository.NewAccountRepository(pool)
		tx = repository.NewPgTxManager(pool)
		closeFn = pool.Close
	}

	// Один таймаут+ретрай на каждый вызов хранилища
	retrier := repository.NewRetrier(cfg.StorageRetries, cfg.StorageTimeout)
	tokens = repository.NewRetryingResetRepo(tokens, retrier)
	accounts = repository.NewRetryingAccountRepo(accounts, retrier)

	// Сервисы
	dispatcher, err := services.NewEmailDispatcherFromConfig(cfg)
	if err != nil {
		closeFn()
		return nil, err
	}
	passwordSvc := services.NewPasswordService(tokens, accounts, tx, dispatcher, cfg.AppURL,
		services.WithTokenTTL(cfg.PasswordResetTTL),
		services.WithSweepRetention(cfg.ResetSweepRetention),
	)

	// Хендлеры
	passwordHandler := handlers.NewPasswordHandler(passwordSvc, cfg.PasswordResetUniformResponse)

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.ResetSweepInterval > 0 {
		StartResetTokenSweeper(ctx, passwordSvc, cfg.ResetSweepInterval)
	}

	// Маршруты
	router := mux.NewRouter()
	routes.InitRoutes(router, passwordHandler, cfg.JWTSecret)

	logger.Log.Info("Приложение собрано",
		zap.String("storage", cfg.Storage),
		zap.String("email_provider", dispatcher.ProviderName()),
	)

	return &App{Router: router, PasswordService: passwordSvc, cancel: cancel, close: closeFn}, nil
}

type sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// StartResetTokenSweeper: один проход сразу, дальше по тикеру до отмены ctx.
func StartResetTokenSweeper(ctx context.Context, svc sweeper, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		_, _ = svc.SweepExpired(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = svc.SweepExpired(ctx)
			}
		}
	}()
}
