// Package resetclient: клиент ручки сброса пароля, нормализующий ответы для UI.
package resetclient

import (
	"context"
	"net/http"
	"strings"

	"skinvault/internal/utils"
)

const (
	ActionRequest  = "request"
	ActionValidate = "validate"
	ActionReset    = "reset"
)

const (
	msgNetworkError = "Unable to reach the server. Please check your connection and try again."
	msgRateLimited  = "Too many requests. Please wait a moment before trying again."
	msgUnexpected   = "Something went wrong. Please try again."
)

// Result: нормализованный ответ request/reset.
type Result struct {
	Success     bool
	Message     string
	Error       string
	RateLimited bool
	Problems    []string
}

type ValidateResult struct {
	Valid       bool
	UserID      string
	Error       string
	RateLimited bool
}

type Client struct {
	transport Transport
}

func New(transport Transport) *Client {
	return &Client{transport: transport}
}

// RequestPasswordReset никогда не возвращает пустой Result: любой сбой превращается в Error.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) *Result {
	email = strings.TrimSpace(email)
	if email == "" {
		return &Result{Error: "Email is required"}
	}
	resp, err := c.transport.Send(ctx, Request{Action: ActionRequest, Email: email})
	return normalize(resp, err)
}

func (c *Client) ValidateToken(ctx context.Context, token string) *ValidateResult {
	if strings.TrimSpace(token) == "" {
		return &ValidateResult{Error: "Reset link is missing a token"}
	}
	resp, err := c.transport.Send(ctx, Request{Action: ActionValidate, Token: token})
	if err != nil {
		return &ValidateResult{Error: msgNetworkError}
	}
	if isRateLimited(resp) {
		return &ValidateResult{Error: msgRateLimited, RateLimited: true}
	}
	if resp.Valid && resp.StatusCode < 300 {
		return &ValidateResult{Valid: true, UserID: resp.UserID}
	}
	return &ValidateResult{Error: firstNonEmpty(resp.Error, msgUnexpected)}
}

// ResetPassword сначала проверяет пароль локально (те же правила, что на сервере).
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) *Result {
	if problems := utils.ValidatePasswordStrength(newPassword); len(problems) > 0 {
		return &Result{Error: problems[0], Problems: problems}
	}
	resp, err := c.transport.Send(ctx, Request{Action: ActionReset, Token: token, NewPassword: newPassword})
	return normalize(resp, err)
}

// ResetPasswordConfirmed: вариант формы с полем подтверждения.
func (c *Client) ResetPasswordConfirmed(ctx context.Context, token, newPassword, confirmation string) *Result {
	if problems := utils.ValidatePasswordConfirmation(newPassword, confirmation); len(problems) > 0 {
		return &Result{Error: problems[0], Problems: problems}
	}
	return c.ResetPassword(ctx, token, newPassword)
}

func normalize(resp *Response, err error) *Result {
	if err != nil {
		return &Result{Error: msgNetworkError}
	}
	if isRateLimited(resp) {
		return &Result{Error: msgRateLimited, RateLimited: true}
	}
	if resp.Success && resp.StatusCode < 300 {
		return &Result{Success: true, Message: resp.Message}
	}
	return &Result{Error: firstNonEmpty(resp.Error, msgUnexpected), Problems: resp.Details}
}

// isRateLimited узнаёт лимит апстрима по статусу или тексту ошибки. Сами мы ничего не лимитируем.
func isRateLimited(resp *Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	e := strings.ToLower(resp.Error)
	return strings.Contains(e, "rate limit") || strings.Contains(e, "too many requests")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
