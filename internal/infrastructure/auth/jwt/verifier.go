package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	gojwt.RegisteredClaims
}

// Verifier validates HS256 tokens minted by the identity provider.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewVerifier(secret, issuer string, leeway time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: leeway}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	const op = "verify token"

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := gojwt.ParseWithClaims(token, &claims, func(*gojwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, gojwt.ErrTokenExpired):
			return domain.Identity{}, domain.Errorf(domain.ErrUnauthorized, op, "token expired")
		default:
			return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, op, err)
		}
	}
	if claims.Subject == "" {
		return domain.Identity{}, domain.Errorf(domain.ErrUnauthorized, op, "token has no subject")
	}

	return domain.Identity{
		UserID: claims.Subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
		Role:   domain.Role(claims.Role),
	}, nil
}

// Issue signs a token for identity. Used by tests and local tooling.
func (v *Verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: identity.Email,
		Role:  string(identity.Role),
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
