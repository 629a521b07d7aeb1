package handler

import (
	"net/http"

	"github.com/facevote-api/internal/application/ballot"
	"github.com/facevote-api/internal/application/votetoken"
	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/identity"
	"github.com/facevote-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// VoteHandler handles vote token minting, casting and receipts.
type VoteHandler struct {
	tokens  votetoken.Service
	ballots ballot.Service
}

func NewVoteHandler(tokens votetoken.Service, ballots ballot.Service) *VoteHandler {
	return &VoteHandler{tokens: tokens, ballots: ballots}
}

func (h *VoteHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	tok, expiresAt, err := h.tokens.Mint(r.Context(), claims.Identity)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, VoteTokenEnvelope{Token: tok, ExpiresAt: expiresAt})
}

func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	var req domain.CastRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.ballots.Cast(r.Context(), claims.Identity, req)
	if err != nil {
		status, code, msg := httpError(err)
		writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: code, State: domain.StateRejected})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *VoteHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	b, err := h.ballots.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptEnvelope{
		VoteID:     b.VoteID,
		TargetID:   b.TargetID,
		Voter:      identity.Mask(b.VoterID),
		Selections: b.Selections,
		CastAt:     b.CastAt,
		Nonce:      b.Nonce,
	})
}
