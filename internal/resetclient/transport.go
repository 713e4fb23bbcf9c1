package resetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Request: тело единственной ручки сброса.
type Request struct {
	Action      string `json:"action"`
	Email       string `json:"email,omitempty"`
	Token       string `json:"token,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
}

// Response: всё, что сервер может вернуть (поля зависят от action).
type Response struct {
	StatusCode int      `json:"-"`
	Success    bool     `json:"success"`
	Valid      bool     `json:"valid"`
	UserID     string   `json:"userId"`
	Message    string   `json:"message"`
	Error      string   `json:"error"`
	Details    []string `json:"details"`
}

// Transport доставляет Request до обработчика. Выбирается вызывающим кодом явно.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport: POST JSON на endpoint.
type HTTPTransport struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{Endpoint: endpoint, HTTPClient: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Send(ctx context.Context, req Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	out := &Response{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
		}
	}
	out.StatusCode = resp.StatusCode
	return out, nil
}

// FakeTransport отвечает функцией Handle, без сети. Для тестов и локальной разработки.
type FakeTransport struct {
	Handle func(req Request) (*Response, error)
	Calls  []Request

	mu sync.Mutex
}

func (t *FakeTransport) Send(_ context.Context, req Request) (*Response, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, req)
	t.mu.Unlock()
	return t.Handle(req)
}

// Requests возвращает копию принятых запросов.
func (t *FakeTransport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Request(nil), t.Calls...)
}

// NewDevTransport: фейк, который на всё отвечает успехом (локальная разработка без бэкенда).
func NewDevTransport() *FakeTransport {
	return &FakeTransport{Handle: func(req Request) (*Response, error) {
		switch req.Action {
		case ActionValidate:
			return &Response{StatusCode: http.StatusOK, Valid: true, UserID: "dev-user"}, nil
		case ActionReset:
			return &Response{StatusCode: http.StatusOK, Success: true, Message: "Password has been reset successfully (development mode)"}, nil
		default:
			return &Response{StatusCode: http.StatusOK, Success: true, Message: "Password reset email sent (development mode)"}, nil
		}
	}}
}
