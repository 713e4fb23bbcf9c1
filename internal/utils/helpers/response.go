package helpers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse: единая форма ошибки: {"error": "..."}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON пишет payload как есть (без обёртки data).
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func Error(w http.ResponseWriter, status int, errMsg string) {
	JSON(w, status, ErrorResponse{Error: errMsg})
}
