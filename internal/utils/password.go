package utils

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// bcrypt не принимает пароли длиннее 72 байт.
	MaxPasswordBytes  = 72
	bcryptCost        = 12
)

// Тексты ошибок показываются пользователю как есть.
const (
	ErrMsgPasswordTooShort  = "Password must be at least 8 characters long"
	ErrMsgPasswordTooLong   = "Password must be at most 72 bytes long"
	ErrMsgPasswordNoUpper   = "Password must contain at least one uppercase letter"
	ErrMsgPasswordNoLower   = "Password must contain at least one lowercase letter"
	ErrMsgPasswordNoDigit   = "Password must contain at least one number"
	ErrMsgPasswordNoSymbol  = "Password must contain at least one special character"
	ErrMsgPasswordsMismatch = "Passwords do not match"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength возвращает все нарушенные правила (пусто: пароль годится).
func ValidatePasswordStrength(password string) []string {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var problems []string
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, ErrMsgPasswordTooShort)
	}
	if len(password) > MaxPasswordBytes {
		problems = append(problems, ErrMsgPasswordTooLong)
	}
	if !upper {
		problems = append(problems, ErrMsgPasswordNoUpper)
	}
	if !lower {
		problems = append(problems, ErrMsgPasswordNoLower)
	}
	if !digit {
		problems = append(problems, ErrMsgPasswordNoDigit)
	}
	if !symbol {
		problems = append(problems, ErrMsgPasswordNoSymbol)
	}
	return problems
}

func ValidatePasswordConfirmation(password, confirmation string) []string {
	problems := ValidatePasswordStrength(password)
	if password != confirmation {
		problems = append(problems, ErrMsgPasswordsMismatch)
	}
	return problems
}

// MaskEmail прячет локальную часть адреса для логов: j***@example.com.
func MaskEmail(email string) string {
	at := -1
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			at = i
			break
		}
	}
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
