package http

import (
	"github.com/facevote-api/internal/application/ballot"
	"github.com/facevote-api/internal/application/face"
	"github.com/facevote-api/internal/application/otp"
	"github.com/facevote-api/internal/application/session"
	"github.com/facevote-api/internal/application/target"
	"github.com/facevote-api/internal/application/votetoken"
	jwtinfra "github.com/facevote-api/internal/infrastructure/jwt"
)

// Deps holds the services the router exposes. cmd/api builds them from the
// infrastructure layer; tests may substitute any implementation.
type Deps struct {
	OTP         otp.Service
	Sessions    session.Service
	Faces       face.Service
	VoteTokens  votetoken.Service
	Ballots     ballot.Service
	Targets     target.Service
	JWTProvider *jwtinfra.Provider
}
