package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Code is a stable, machine-readable error code carried in every error response.
type Code string

const (
	CodeOTPExpired           Code = "OTP_EXPIRED"
	CodeOTPInvalid           Code = "OTP_INVALID"
	CodeNotRegistered        Code = "NOT_REGISTERED"
	CodeSignedReferenceStale Code = "SIGNED_REFERENCE_STALE"
	CodeTokenExpired         Code = "TOKEN_EXPIRED"
	CodeTokenInvalid         Code = "TOKEN_INVALID"
	CodeDoubleVoteAttempt    Code = "DOUBLE_VOTE_ATTEMPT"
	CodeFaceNotDetected      Code = "FACE_NOT_DETECTED"
	CodeFaceMismatch         Code = "FACE_MISMATCH"
	CodeFaceCaptureFailed    Code = "FACE_CAPTURE_FAILED"
	CodeBallotInvalid        Code = "BALLOT_INVALID"
	CodeBadRequest           Code = "BAD_REQUEST"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeInternal             Code = "INTERNAL"
)

// CodedError is a taxonomy error. Two CodedErrors match under errors.Is when
// their codes are equal, so callers compare against the package-level values.
type CodedError struct {
	Code    Code
	Message string
}

func (e *CodedError) Error() string { return e.Message }

func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	return ok && t.Code == e.Code
}

var (
	ErrOTPExpired           = &CodedError{Code: CodeOTPExpired, Message: "one-time code expired or not issued"}
	ErrOTPInvalid           = &CodedError{Code: CodeOTPInvalid, Message: "one-time code invalid"}
	ErrNotRegistered        = &CodedError{Code: CodeNotRegistered, Message: "no face registered for this identity"}
	ErrSignedReferenceStale = &CodedError{Code: CodeSignedReferenceStale, Message: "signed reference is stale"}
	ErrTokenExpired         = &CodedError{Code: CodeTokenExpired, Message: "vote token expired or already used"}
	ErrTokenInvalid         = &CodedError{Code: CodeTokenInvalid, Message: "vote token does not belong to caller"}
	ErrDoubleVoteAttempt    = &CodedError{Code: CodeDoubleVoteAttempt, Message: "a ballot was already accepted for this target"}
	ErrFaceNotDetected      = &CodedError{Code: CodeFaceNotDetected, Message: "no face detected"}
	ErrFaceMismatch         = &CodedError{Code: CodeFaceMismatch, Message: "face does not match registered reference"}
	ErrFaceCaptureFailed    = &CodedError{Code: CodeFaceCaptureFailed, Message: "could not load face reference"}
	ErrBallotInvalid        = &CodedError{Code: CodeBallotInvalid, Message: "ballot is invalid"}
)

// Errorf returns a CodedError with the given code and a formatted message.
func Errorf(code Code, msg string) *CodedError {
	return &CodedError{Code: code, Message: msg}
}

// CodeOf extracts the taxonomy code from err, falling back to the sentinel
// mapping and finally CodeInternal.
func CodeOf(err error) Code {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrConflict):
		return CodeConflict
	}
	return CodeInternal
}
