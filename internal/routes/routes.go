package routes

import (
	"net/http"

	"skinvault/internal/handlers"
	"skinvault/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

func InitRoutes(router *mux.Router, passwordHandler *handlers.PasswordHandler, jwtSecret string) {
	router.Use(middleware.RequestID, middleware.Recoverer, middleware.Logging)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Swagger по префиксу /swagger/
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	api := router.PathPrefix("/api").Subrouter()

	// --- Публичный маршрут сброса: метод проверяет сам хендлер (405 в формате JSON) ---
	api.HandleFunc("/password-reset", passwordHandler.Handle)

	// --- Админка (JWT, role=admin) ---
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.JWTAuth(jwtSecret), middleware.OnlyRole("admin"))
	admin.HandleFunc("/password-reset/sweep", passwordHandler.Sweep).Methods(http.MethodPost)
}
