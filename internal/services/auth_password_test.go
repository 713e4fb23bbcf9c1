package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"skinvault/internal/models"
	"skinvault/internal/repository"
	"skinvault/internal/utils"
)

// Мок почты: запоминает вызовы, отвечает ok.
type fakeMailer struct {
	mu    sync.Mutex
	calls []mailCall
	ok    bool
}

type mailCall struct {
	To, URL, Name string
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, resetURL, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mailCall{To: to, URL: resetURL, Name: name})
	return m.ok
}

func (m *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		t.Fatal("письмо не отправлялось")
	}
	u, err := url.Parse(m.calls[len(m.calls)-1].URL)
	if err != nil {
		t.Fatalf("битая ссылка сброса: %v", err)
	}
	return u.Query().Get("token")
}

type testEnv struct {
	svc    *PasswordService
	store  *repository.MemoryStore
	mailer *fakeMailer
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  repository.NewMemoryStore(),
		mailer: &fakeMailer{ok: true},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env.store.SeedAccount(models.Account{
		ID:           "acc-1",
		Email:        "user@example.com",
		DisplayName:  "Gabe",
		PasswordHash: "old-hash",
	})
	env.svc = NewPasswordService(env.store, env.store, env.store, env.mailer, "https://skinvault.test/",
		WithClock(func() time.Time { return env.now }),
	)
	return env
}

func TestRequestReset_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.RequestReset(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("ожидалась ErrAccountNotFound, получено %v", err)
	}
	if len(env.mailer.calls) != 0 {
		t.Fatal("для несуществующего email письмо отправляться не должно")
	}
	if env.store.TokenCount() != 0 {
		t.Fatal("токен не должен создаваться")
	}
}

func TestRequestReset_SendsOneEmailWithToken(t *testing.T) {
	env := newTestEnv(t)

	if err := env.svc.RequestReset(context.Background(), "  USER@example.com "); err != nil {
		t.Fatalf("ошибка запроса сброса: %v", err)
	}
	if len(env.mailer.calls) != 1 {
		t.Fatalf("ожидалось ровно одно письмо, отправлено %d", len(env.mailer.calls))
	}
	call := env.mailer.calls[0]
	if call.To != "user@example.com" || call.Name != "Gabe" {
		t.Fatalf("неверный адресат: %+v", call)
	}
	if !strings.HasPrefix(call.URL, "https://skinvault.test/reset-password?token=") {
		t.Fatalf("неверный формат ссылки: %s", call.URL)
	}

	token := env.mailer.lastToken(t)
	rec, err := env.store.GetByHash(context.Background(), HashResetToken(token))
	if err != nil {
		t.Fatalf("токен из письма не найден в хранилище: %v", err)
	}
	if rec.OwnerID != "acc-1" || rec.Consumed {
		t.Fatalf("неверная запись токена: %+v", rec)
	}
	if !rec.ExpiresAt.Equal(env.now.Add(time.Hour)) {
		t.Fatalf("срок жизни должен быть 1 час, expires_at=%v", rec.ExpiresAt)
	}
}

func TestRequestReset_DispatchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.ok = false

	err := env.svc.RequestReset(context.Background(), "user@example.com")
	if !errors.Is(err, ErrEmailDispatch) {
		t.Fatalf("ожидалась ErrEmailDispatch, получено %v", err)
	}
	if env.store.TokenCount() != 1 {
		t.Fatal("токен должен остаться сохранённым, даже если письмо не ушло")
	}
}

func TestRequestReset_TokenGeneratorFailure(t *testing.T) {
	env := newTestEnv(t)
	entropyErr := errors.New("entropy unavailable")
	env.svc.newToken = func() (string, error) { return "", entropyErr }

	if err := env.svc.RequestReset(context.Background(), "user@example.com"); !errors.Is(err, entropyErr) {
		t.Fatalf("ошибка источника энтропии должна пробрасываться, получено %v", err)
	}
	if len(env.mailer.calls) != 0 {
		t.Fatal("письмо не должно отправляться без токена")
	}
}

func TestValidateToken_Window(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.RequestReset(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("ошибка запроса сброса: %v", err)
	}
	token := env.mailer.lastToken(t)
	issued := env.now

	env.now = issued.Add(59 * time.Minute)
	userID, err := env.svc.ValidateToken(context.Background(), token)
	if err != nil || userID != "acc-1" {
		t.Fatalf("на T+59m токен должен быть валиден: id=%q err=%v", userID, err)
	}

	env.now = issued.Add(61 * time.Minute)
	if _, err := env.svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("на T+61m ожидалась ErrTokenExpired, получено %v", err)
	}

	env.now = issued.Add(time.Hour)
	if _, err := env.svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("ровно в expires_at токен уже недействителен, получено %v", err)
	}
}

func TestValidateToken_Unknown(t *testing.T) {
	env := newTestEnv(t)

	for _, tok := range []string{"", "   ", "does-not-exist"} {
		if _, err := env.svc.ValidateToken(context.Background(), tok); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("токен %q: ожидалась ErrTokenNotFound, получено %v", tok, err)
		}
	}
}

func TestValidateToken_DoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	token := env.mailer.lastToken(t)

	for i := 0; i < 3; i++ {
		if _, err := env.svc.ValidateToken(context.Background(), token); err != nil {
			t.Fatalf("повторная проверка #%d упала: %v", i, err)
		}
	}
	rec, _ := env.store.GetByHash(context.Background(), HashResetToken(token))
	if rec.Consumed {
		t.Fatal("validate не должен гасить токен")
	}
}

func TestResetPassword_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	token := env.mailer.lastToken(t)

	if err := env.svc.ResetPassword(context.Background(), token, "NewPass1!"); err != nil {
		t.Fatalf("ошибка сброса пароля: %v", err)
	}

	acc, _ := env.store.Account("acc-1")
	if !utils.CheckPassword(acc.PasswordHash, "NewPass1!") {
		t.Fatal("пароль не обновлён")
	}

	if _, err := env.svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("после сброса validate должен падать, получено %v", err)
	}
	if err := env.svc.ResetPassword(context.Background(), token, "Another1!"); !IsInvalidToken(err) {
		t.Fatalf("повторный сброс должен падать, получено %v", err)
	}

	acc, _ = env.store.Account("acc-1")
	if !utils.CheckPassword(acc.PasswordHash, "NewPass1!") {
		t.Fatal("повторный сброс не должен менять пароль")
	}
}

func TestResetPassword_Expired(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	token := env.mailer.lastToken(t)

	env.now = env.now.Add(61 * time.Minute)
	if err := env.svc.ResetPassword(context.Background(), token, "NewPass1!"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("ожидалась ErrTokenExpired, получено %v", err)
	}
}

func TestResetPassword_WeakPassword(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	token := env.mailer.lastToken(t)

	err := env.svc.ResetPassword(context.Background(), token, "short1!")
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("ожидалась WeakPasswordError, получено %v", err)
	}
	if weak.Problems[0] != utils.ErrMsgPasswordTooShort {
		t.Fatalf("первая проблема должна быть про длину: %v", weak.Problems)
	}

	if _, err := env.svc.ValidateToken(context.Background(), token); err != nil {
		t.Fatalf("после отказа по сложности токен должен остаться годным: %v", err)
	}
}

func TestResetPassword_PasswordOverBcryptLimit(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	token := env.mailer.lastToken(t)

	// 40 кириллических символов: 80 байт
	err := env.svc.ResetPassword(context.Background(), token, "Aa1!"+strings.Repeat("ж", 40))
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("ожидалась WeakPasswordError, получено %v", err)
	}
	if weak.Problems[0] != utils.ErrMsgPasswordTooLong {
		t.Fatalf("ожидалась проблема про 72 байта: %v", weak.Problems)
	}
	if _, err := env.svc.ValidateToken(context.Background(), token); err != nil {
		t.Fatalf("токен должен остаться годным: %v", err)
	}
}

func TestResetPassword_CredentialFailureKeepsToken(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	token := env.mailer.lastToken(t)

	env.store.FailPasswordUpdate = errors.New("credential store down")
	if err := env.svc.ResetPassword(context.Background(), token, "NewPass1!"); err == nil || IsInvalidToken(err) {
		t.Fatalf("ожидалась ошибка хранилища, получено %v", err)
	}

	rec, _ := env.store.GetByHash(context.Background(), HashResetToken(token))
	if rec.Consumed {
		t.Fatal("токен не должен гаснуть, если пароль не сменился")
	}

	env.store.FailPasswordUpdate = nil
	if err := env.svc.ResetPassword(context.Background(), token, "NewPass1!"); err != nil {
		t.Fatalf("повтор после восстановления хранилища должен пройти: %v", err)
	}
}

func TestResetPassword_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	token := env.mailer.lastToken(t)

	const n = 4
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.svc.ResetPassword(context.Background(), token, "NewPass1!")
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !IsInvalidToken(err):
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("ровно один сброс должен пройти, прошло %d", ok)
	}
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	old := env.mailer.lastToken(t)

	env.now = env.now.Add(2 * time.Hour)
	_ = env.svc.RequestReset(context.Background(), "user@example.com")
	fresh := env.mailer.lastToken(t)

	n, err := env.svc.SweepExpired(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ожидалось удаление одного токена: n=%d err=%v", n, err)
	}
	if _, err := env.svc.ValidateToken(context.Background(), old); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("истёкший токен должен быть удалён, получено %v", err)
	}
	if _, err := env.svc.ValidateToken(context.Background(), fresh); err != nil {
		t.Fatalf("свежий токен трогать нельзя: %v", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.svc.RequestReset(ctx, "user@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := env.mailer.lastToken(t)

	userID, err := env.svc.ValidateToken(ctx, token)
	if err != nil || userID != "acc-1" {
		t.Fatalf("validate: id=%q err=%v", userID, err)
	}
	if err := env.svc.ResetPassword(ctx, token, "NewPass1!"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := env.svc.ValidateToken(ctx, token); !IsInvalidToken(err) {
		t.Fatalf("validate после reset должен падать, получено %v", err)
	}
}
