package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/facevote-api/internal/domain"
)

// writeJSONError writes the same error envelope handlers use, so clients can
// branch on error_code no matter which layer rejected the request.
func writeJSONError(w http.ResponseWriter, status int, code domain.Code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_code": string(code)})
}
