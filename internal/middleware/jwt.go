package middleware

import (
	"context"
	"net/http"
	"strings"

	"skinvault/internal/logger"
	"skinvault/internal/reqctx"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type ContextKey string

const ContextRole ContextKey = "role"

// JWTAuth проверяет HS256 access-токен и кладёт user_id/role в контекст.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			log := logger.WithCtx(r.Context())

			if secret == "" {
				log.Warn("JWTAuth: JWT_SECRET не задан, доступ закрыт")
				http.Error(w, "Недоступно", http.StatusUnauthorized)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("JWTAuth: отсутствует access token")
				http.Error(w, "Отсутствует access token", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				log.Warn("JWTAuth: неверный или просроченный токен", zap.Error(err))
				http.Error(w, "Неверный или просроченный токен", http.StatusUnauthorized)
				return
			}

			userID, ok1 := claims["user_id"].(string)
			role, ok2 := claims["role"].(string)
			if !ok1 || !ok2 {
				log.Warn("JWTAuth: недопустимый payload", zap.Any("claims", claims))
				http.Error(w, "Недопустимый payload", http.StatusUnauthorized)
				return
			}

			ctx := reqctx.WithUserID(r.Context(), userID)
			ctx = context.WithValue(ctx, ContextRole, role)

			log.Debug("JWTAuth: токен валиден", zap.String("user_id", userID), zap.String("role", role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
