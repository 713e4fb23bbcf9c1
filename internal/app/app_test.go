package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"skinvault/internal/config"
	"skinvault/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) SweepExpired(context.Context) (int64, error) {
	s.calls.Add(1)
	return 0, nil
}

func TestStartResetTokenSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &countingSweeper{}

	StartResetTokenSweeper(ctx, s, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	stopped := s.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, s.calls.Load(), "после отмены ctx проходов быть не должно")
}

func memoryConfig() *config.Config {
	return &config.Config{
		Port:               "8080",
		Storage:            "memory",
		StorageTimeout:     time.Second,
		StorageRetries:     1,
		JWTSecret:          "secret",
		EmailProvider:      config.EmailProviderLog,
		EmailFromName:      "SkinVault",
		EmailTimeout:       time.Second,
		AppURL:             "https://skinvault.test",
		PasswordResetTTL:   time.Hour,
		ResetSweepInterval: 0,
	}
}

func TestInitApp_Routes(t *testing.T) {
	a, err := InitApp(memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	serve := func(method, path, body, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(http.MethodGet, "/api/password-reset", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())

	rec = serve(http.MethodPost, "/api/password-reset", `{"action":"request","email":"ghost@example.com"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(http.MethodPost, "/api/admin/password-reset/sweep", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin, err := utils.GenerateToken("secret", "acc-admin", "admin", time.Minute)
	require.NoError(t, err)
	rec = serve(http.MethodPost, "/api/admin/password-reset/sweep", "", admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":0}`, rec.Body.String())

	rec = serve(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "skinvault_password_reset_actions_total")
}
