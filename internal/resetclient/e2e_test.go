package resetclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"skinvault/internal/handlers"
	"skinvault/internal/models"
	"skinvault/internal/repository"
	"skinvault/internal/resetclient"
	"skinvault/internal/services"
	"skinvault/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lastLinkMailer struct{ link string }

func (m *lastLinkMailer) SendPasswordReset(_ context.Context, _, resetURL, _ string) bool {
	m.link = resetURL
	return true
}

func TestResetFlowOverHTTP(t *testing.T) {
	store := repository.NewMemoryStore()
	oldHash, err := utils.HashPassword("OldPass1!")
	require.NoError(t, err)
	store.SeedAccount(models.Account{ID: "acc-1", Email: "user@example.com", DisplayName: "Ann", PasswordHash: oldHash})

	mailer := &lastLinkMailer{}
	svc := services.NewPasswordService(store, store, store, mailer, "https://skinvault.test")
	h := handlers.NewPasswordHandler(svc, false)
	srv := httptest.NewServer(http.HandlerFunc(h.Handle))
	defer srv.Close()

	c := resetclient.New(resetclient.NewHTTPTransport(srv.URL, 5*time.Second))
	ctx := context.Background()

	res := c.RequestPasswordReset(ctx, "user@example.com")
	require.True(t, res.Success, res.Error)

	link, err := url.Parse(mailer.link)
	require.NoError(t, err)
	assert.Equal(t, "/reset-password", link.Path)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	vr := c.ValidateToken(ctx, token)
	require.True(t, vr.Valid, vr.Error)
	assert.Equal(t, "acc-1", vr.UserID)

	res = c.ResetPassword(ctx, token, "NewPass1!")
	require.True(t, res.Success, res.Error)

	acc, ok := store.Account("acc-1")
	require.True(t, ok)
	assert.True(t, utils.CheckPassword(acc.PasswordHash, "NewPass1!"))

	vr = c.ValidateToken(ctx, token)
	assert.False(t, vr.Valid)
	assert.Equal(t, "Invalid or expired token", vr.Error)

	res = c.RequestPasswordReset(ctx, "nobody@example.com")
	assert.False(t, res.Success)
	assert.Equal(t, "User not found", res.Error)
}
