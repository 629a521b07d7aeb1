package handler

import (
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/facevote-api/internal/application/face"
	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/transport/http/middleware"
)

// FaceHandler handles face registration and signed reference retrieval.
type FaceHandler struct {
	svc      face.Service
	maxBytes int64
}

func NewFaceHandler(svc face.Service, maxBytes int64) *FaceHandler {
	return &FaceHandler{svc: svc, maxBytes: maxBytes}
}

type registerFaceBody struct {
	Image       string `json:"image" validate:"required,base64"`
	ContentType string `json:"content_type"`
	OTPCode     string `json:"otp_code" validate:"required,numeric"`
}

// Register accepts either a multipart form (fields "image" and "otp_code")
// or a JSON body carrying the image as base64.
func (h *FaceHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	// Headroom for multipart framing and base64 expansion.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes*2+1<<16)

	var in face.RegisterInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(h.maxBytes + 1<<16); err != nil {
			writeBadRequest(w, "invalid multipart form")
			return
		}
		f, header, err := r.FormFile("image")
		if err != nil {
			writeBadRequest(w, "missing image field")
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			writeBadRequest(w, "could not read image")
			return
		}
		in = face.RegisterInput{
			Image:       data,
			ContentType: header.Header.Get("Content-Type"),
			OTPCode:     r.FormValue("otp_code"),
		}
	} else {
		var body registerFaceBody
		if !decodeJSON(w, r, &body) {
			return
		}
		data, err := base64.StdEncoding.DecodeString(body.Image)
		if err != nil {
			writeBadRequest(w, "image is not valid base64")
			return
		}
		in = face.RegisterInput{Image: data, ContentType: body.ContentType, OTPCode: body.OTPCode}
	}

	ref, err := h.svc.Register(r.Context(), claims.Identity, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// GetReference returns the signed reference; ?fresh=1 forces a re-mint.
func (h *FaceHandler) GetReference(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	fresh := r.URL.Query().Get("fresh")
	ref, err := h.svc.SignedReference(r.Context(), claims.Identity, fresh == "1" || strings.EqualFold(fresh, "true"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, ref)
}
