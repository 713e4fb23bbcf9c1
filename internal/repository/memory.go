package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"skinvault/internal/models"
)

type memTxKey struct{}

// MemoryStore: хранилище в памяти для STORAGE=memory и тестов.
// Реализует PasswordResetRepo, AccountRepo и TxManager.
type MemoryStore struct {
	mu       sync.Mutex
	tokens   map[string]models.PasswordResetToken // по token_hash
	accounts map[string]models.Account            // по id

	// FailPasswordUpdate: ошибка, которую вернёт UpdatePasswordHash (для тестов отката).
	FailPasswordUpdate error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]models.PasswordResetToken),
		accounts: make(map[string]models.Account),
	}
}

// lock берёт мьютекс, если мы не внутри WithinTx (там он уже взят).
func (s *MemoryStore) lock(ctx context.Context) func() {
	if _, ok := ctx.Value(memTxKey{}).(bool); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx держит мьютекс на всё время fn и откатывает изменения при ошибке.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(bool); ok {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := make(map[string]models.PasswordResetToken, len(s.tokens))
	for k, v := range s.tokens {
		tokens[k] = v
	}
	accounts := make(map[string]models.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.tokens, s.accounts = tokens, accounts
		return err
	}
	return nil
}

// SeedAccount добавляет аккаунт (dev/тесты).
func (s *MemoryStore) SeedAccount(a models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *MemoryStore) Account(id string) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *MemoryStore) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *MemoryStore) Create(ctx context.Context, t *models.PasswordResetToken) error {
	defer s.lock(ctx)()
	if cur, ok := s.tokens[t.TokenHash]; ok && cur.ID == t.ID {
		return nil
	}
	s.tokens[t.TokenHash] = *t
	return nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	defer s.lock(ctx)()
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ConsumeIfValid(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error) {
	defer s.lock(ctx)()
	t, ok := s.tokens[tokenHash]
	if !ok || !t.Usable(now) {
		return nil, ErrNotFound
	}
	consumedAt := now
	t.Consumed = true
	t.ConsumedAt = &consumedAt
	s.tokens[tokenHash] = t
	return &t, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	defer s.lock(ctx)()
	var n int64
	for k, t := range s.tokens {
		if t.ExpiresAt.Before(cutoff) || (t.Consumed && t.ConsumedAt != nil && t.ConsumedAt.Before(cutoff)) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	defer s.lock(ctx)()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			a := a
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	defer s.lock(ctx)()
	if s.FailPasswordUpdate != nil {
		return s.FailPasswordUpdate
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	s.accounts[accountID] = a
	return nil
}
