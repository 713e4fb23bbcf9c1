package models

import "time"

// PasswordResetToken: одноразовое право сменить пароль одного аккаунта.
// Сам токен в базе не хранится, только его хеш.
type PasswordResetToken struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	TokenHash  string     `json:"-"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Usable: не использован и срок ещё не вышел.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.Consumed && now.Before(t.ExpiresAt)
}

// Expired: now >= expires_at.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
