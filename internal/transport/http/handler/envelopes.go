package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/facevote-api/internal/application/session"
	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper. ErrorCode is the stable
// taxonomy code clients branch on; Error is for humans.
type MessageEnvelope struct {
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorCode domain.Code      `json:"error_code,omitempty"`
	State     domain.CastState `json:"state,omitempty"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	Bearer string       `json:"Bearer"`
	User   *domain.User `json:"user"`
}

type ExpiryEnvelope struct {
	ExpiresAt time.Time `json:"expires_at"`
}

type VoteTokenEnvelope struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReceiptEnvelope is the public view of an accepted ballot. The voter is
// masked; a voter holding their own identity can recompute the id.
type ReceiptEnvelope struct {
	VoteID     string              `json:"id"`
	TargetID   string              `json:"target_id"`
	Voter      string              `json:"voter"`
	Selections map[string][]string `json:"selections"`
	CastAt     time.Time           `json:"cast_at"`
	Nonce      string              `json:"nonce"`
}

func toAuthEnvelope(res *session.LoginResult) AuthEnvelope {
	return AuthEnvelope{Bearer: res.Bearer, User: res.User}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code, msg := httpError(err)
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: msg, ErrorCode: domain.CodeBadRequest})
}

// decodeJSON reads the body into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	return true
}

var codeStatus = map[domain.Code]int{
	domain.CodeOTPExpired:        http.StatusGone,
	domain.CodeOTPInvalid:        http.StatusUnauthorized,
	domain.CodeNotRegistered:     http.StatusPreconditionFailed,
	domain.CodeTokenExpired:      http.StatusGone,
	domain.CodeTokenInvalid:      http.StatusForbidden,
	domain.CodeDoubleVoteAttempt: http.StatusConflict,
	domain.CodeFaceNotDetected:   http.StatusUnprocessableEntity,
	domain.CodeFaceMismatch:      http.StatusUnprocessableEntity,
	domain.CodeBallotInvalid:     http.StatusUnprocessableEntity,
	domain.CodeBadRequest:        http.StatusBadRequest,
	domain.CodeUnauthorized:      http.StatusUnauthorized,
	domain.CodeForbidden:         http.StatusForbidden,
	domain.CodeNotFound:          http.StatusNotFound,
	domain.CodeConflict:          http.StatusConflict,
	domain.CodeRateLimited:       http.StatusTooManyRequests,
}

// httpError maps a service error to a status, a taxonomy code and a message
// safe to return. Unclassified errors are logged and reported as INTERNAL.
func httpError(err error) (int, domain.Code, string) {
	code := domain.CodeOf(err)
	status, ok := codeStatus[code]
	if !ok {
		slog.Error("unhandled error", "err", err)
		return http.StatusInternalServerError, domain.CodeInternal, "internal error"
	}
	var ce *domain.CodedError
	if errors.As(err, &ce) {
		return status, code, ce.Message
	}
	return status, code, err.Error()
}
