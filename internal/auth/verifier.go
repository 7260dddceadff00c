package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/smartgrant/session-server-go/internal/errors"
)

// Identity is the verified caller derived from a bearer credential. The auth
// provider issues access tokens whose subject is the wallet address; token
// verification is the entire trust boundary of the API.
type Identity struct {
	Address string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// TokenVerifier validates ES256 access tokens issued by the external auth
// provider against its published verification key.
type TokenVerifier struct {
	appID  string
	issuer string
	key    *ecdsa.PublicKey
}

func NewTokenVerifier(appID, issuer, verificationKeyPEM string) (*TokenVerifier, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(verificationKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return &TokenVerifier{appID: appID, issuer: issuer, key: key}, nil
}

func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return v.key, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.New(apperrors.ErrCodeTokenExpired, "Token expired").WithCause(err)
		}
		return nil, apperrors.InvalidToken("Invalid authentication token").WithCause(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, apperrors.InvalidToken("Invalid authentication token")
	}

	return &Identity{Address: claims.Subject}, nil
}
