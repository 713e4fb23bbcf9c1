package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"skinvault/internal/logger"
	"skinvault/internal/metrics"
	"skinvault/internal/services"
	"skinvault/internal/utils"
	"skinvault/internal/utils/helpers"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxResetBodyBytes = 64 << 10

// Тексты ответов: клиент показывает их пользователю.
const (
	msgResetEmailSent   = "Password reset email sent"
	msgUniformSent      = "If an account with that email exists, a password reset link has been sent"
	msgPasswordReset    = "Password has been reset successfully"
	msgInvalidToken     = "Invalid or expired token"
	msgUserNotFound     = "User not found"
	msgMethodNotAllowed = "Method not allowed"
	msgInvalidBody      = "Invalid request body"
	msgInvalidAction    = "Invalid action"
	msgEmailRequired    = "A valid email is required"
	msgTokenRequired    = "Token is required"
	msgResetRequired    = "Token and new password are required"
	msgSendFailed       = "Failed to send reset email"
	msgResetFailed      = "Failed to reset password"
	msgInternal         = "Internal server error"
)

const (
	actionRequest  = "request"
	actionValidate = "validate"
	actionReset    = "reset"
)

type passwordResetService interface {
	RequestReset(ctx context.Context, email string) error
	ValidateToken(ctx context.Context, token string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	SweepExpired(ctx context.Context) (int64, error)
}

type PasswordHandler struct {
	svc             passwordResetService
	uniformResponse bool
	validate        *validator.Validate
}

// NewPasswordHandler: uniformResponse=true отвечает на запрос сброса одинаково,
// существует e-mail или нет.
func NewPasswordHandler(svc passwordResetService, uniformResponse bool) *PasswordHandler {
	return &PasswordHandler{svc: svc, uniformResponse: uniformResponse, validate: validator.New()}
}

type passwordResetReq struct {
	Action      string `json:"action" validate:"required,oneof=request validate reset"`
	Email       string `json:"email,omitempty"`
	Token       string `json:"token,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
}

type messageResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type validateResp struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"userId,omitempty"`
	Error  string `json:"error,omitempty"`
}

type weakPasswordResp struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

type sweepResp struct {
	Deleted int64 `json:"deleted"`
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Max-Age", "86400")
}

func observe(action, outcome string) {
	metrics.PasswordResetActionsTotal.WithLabelValues(action, outcome).Inc()
}

// Handle godoc
// @Summary Сброс пароля (request / validate / reset)
// @Description Единая точка: action=request отправляет письмо, validate проверяет токен, reset меняет пароль.
// @Tags password
// @Accept json
// @Produce json
// @Param input body passwordResetReq true "action + email | token | token,newPassword"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} helpers.ErrorResponse
// @Failure 405 {object} helpers.ErrorResponse
// @Failure 500 {object} helpers.ErrorResponse
// @Router /api/password-reset [post]
func (h *PasswordHandler) Handle(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		helpers.Error(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	log := logger.WithCtx(r.Context())

	var req passwordResetReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxResetBodyBytes)).Decode(&req); err != nil {
		log.Warn("Невалидный payload в password-reset", zap.Error(err))
		helpers.Error(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req.Action = strings.TrimSpace(strings.ToLower(req.Action))
	if err := h.validate.Struct(req); err != nil {
		log.Warn("Неизвестный action в password-reset", zap.String("action", req.Action))
		helpers.Error(w, http.StatusBadRequest, msgInvalidAction)
		return
	}

	switch req.Action {
	case actionRequest:
		h.request(w, r, req)
	case actionValidate:
		h.validateToken(w, r, req)
	case actionReset:
		h.reset(w, r, req)
	}
}

func (h *PasswordHandler) request(w http.ResponseWriter, r *http.Request, req passwordResetReq) {
	log := logger.WithCtx(r.Context())
	email := strings.TrimSpace(req.Email)
	if err := h.validate.Var(email, "required,email"); err != nil {
		observe(actionRequest, "bad_request")
		helpers.Error(w, http.StatusBadRequest, msgEmailRequired)
		return
	}

	err := h.svc.RequestReset(r.Context(), email)
	switch {
	case err == nil:
		observe(actionRequest, "ok")
		msg := msgResetEmailSent
		if h.uniformResponse {
			msg = msgUniformSent
		}
		helpers.JSON(w, http.StatusOK, messageResp{Success: true, Message: msg})
	case errors.Is(err, services.ErrAccountNotFound):
		observe(actionRequest, "not_found")
		if h.uniformResponse {
			helpers.JSON(w, http.StatusOK, messageResp{Success: true, Message: msgUniformSent})
			return
		}
		helpers.Error(w, http.StatusNotFound, msgUserNotFound)
	case errors.Is(err, services.ErrEmailDispatch):
		observe(actionRequest, "email_failed")
		helpers.Error(w, http.StatusInternalServerError, msgSendFailed)
	default:
		observe(actionRequest, "error")
		log.Error("Сбой при запросе восстановления пароля",
			zap.String("email_masked", utils.MaskEmail(email)),
			zap.Error(err),
		)
		helpers.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

func (h *PasswordHandler) validateToken(w http.ResponseWriter, r *http.Request, req passwordResetReq) {
	if strings.TrimSpace(req.Token) == "" {
		observe(actionValidate, "bad_request")
		helpers.JSON(w, http.StatusBadRequest, validateResp{Valid: false, Error: msgTokenRequired})
		return
	}

	userID, err := h.svc.ValidateToken(r.Context(), req.Token)
	switch {
	case err == nil:
		observe(actionValidate, "ok")
		helpers.JSON(w, http.StatusOK, validateResp{Valid: true, UserID: userID})
	case services.IsInvalidToken(err):
		observe(actionValidate, "invalid_token")
		helpers.JSON(w, http.StatusBadRequest, validateResp{Valid: false, Error: msgInvalidToken})
	default:
		observe(actionValidate, "error")
		logger.WithCtx(r.Context()).Error("Сбой проверки токена сброса", zap.Error(err))
		helpers.JSON(w, http.StatusInternalServerError, validateResp{Valid: false, Error: msgInternal})
	}
}

func (h *PasswordHandler) reset(w http.ResponseWriter, r *http.Request, req passwordResetReq) {
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		observe(actionReset, "bad_request")
		helpers.Error(w, http.StatusBadRequest, msgResetRequired)
		return
	}

	err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword)
	var weak *services.WeakPasswordError
	switch {
	case err == nil:
		observe(actionReset, "ok")
		helpers.JSON(w, http.StatusOK, messageResp{Success: true, Message: msgPasswordReset})
	case services.IsInvalidToken(err):
		observe(actionReset, "invalid_token")
		helpers.Error(w, http.StatusBadRequest, msgInvalidToken)
	case errors.As(err, &weak):
		observe(actionReset, "weak_password")
		helpers.JSON(w, http.StatusBadRequest, weakPasswordResp{Error: weak.Problems[0], Details: weak.Problems})
	default:
		observe(actionReset, "error")
		logger.WithCtx(r.Context()).Error("Сбой сброса пароля", zap.Error(err))
		helpers.Error(w, http.StatusInternalServerError, msgResetFailed)
	}
}

// Sweep godoc
// @Summary Очистка истёкших токенов сброса
// @Tags password
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} sweepResp
// @Failure 401 {string} string
// @Failure 403 {string} string
// @Failure 500 {object} helpers.ErrorResponse
// @Router /api/admin/password-reset/sweep [post]
func (h *PasswordHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SweepExpired(r.Context())
	if err != nil {
		helpers.Error(w, http.StatusInternalServerError, msgInternal)
		return
	}
	helpers.JSON(w, http.StatusOK, sweepResp{Deleted: n})
}
