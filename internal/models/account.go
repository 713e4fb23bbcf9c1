package models

// Account: запись credential store. Сервис сброса трогает только эти поля.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"`
}
