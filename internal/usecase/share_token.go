package usecase

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ShareTokenService mints opaque share tokens for batch read access.
// Tokens are signed so a leaked database dump cannot be used to forge new
// ones, but verification is by exact match against the stored token, so a
// revoked token dies with the row.
type ShareTokenService struct {
	secret []byte
}

func NewShareTokenService(secret string) *ShareTokenService {
	return &ShareTokenService{secret: []byte(secret)}
}

type shareClaims struct {
	BatchID string `json:"bid"`
	jwt.RegisteredClaims
}

func (s *ShareTokenService) Mint(batchID string) (string, error) {
	claims := shareClaims{
		BatchID: batchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}
