package handler

import (
	"net/http"

	"github.com/facevote-api/internal/application/otp"
)

// OTPHandler handles one-time passcode issuance and verification.
type OTPHandler struct {
	svc otp.Service
}

func NewOTPHandler(svc otp.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req otp.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	expiresAt, err := h.svc.Issue(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ExpiryEnvelope{ExpiresAt: expiresAt})
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req otp.VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Verify(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verified"})
}
