package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/core/ports"
)

type AuthorizeUseCase struct {
	verifier ports.TokenVerifier
}

func NewAuthorizeUseCase(verifier ports.TokenVerifier) *AuthorizeUseCase {
	return &AuthorizeUseCase{verifier: verifier}
}

// Authorize resolves the bearer credential and checks the role's permission set.
func (uc *AuthorizeUseCase) Authorize(ctx context.Context, authorization string, perm domain.Permission) (domain.Identity, error) {
	const op = "authorize"

	token, ok := parseBearerToken(authorization)
	if !ok {
		return domain.Identity{}, domain.Errorf(domain.ErrUnauthorized, op, "missing bearer token")
	}

	identity, err := uc.verifier.Verify(ctx, token)
	if err != nil {
		if domain.IsKind(err, domain.ErrUnauthorized) {
			return domain.Identity{}, err
		}
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, op, err)
	}
	if identity.UserID == "" {
		return domain.Identity{}, domain.Errorf(domain.ErrUnauthorized, op, "token has no subject")
	}

	if !identity.Role.Valid() {
		return domain.Identity{}, domain.Errorf(domain.ErrForbidden, op, "unknown role %q", identity.Role)
	}
	if !identity.Role.Can(perm) {
		return domain.Identity{}, domain.Errorf(domain.ErrForbidden, op, "role %s is not allowed to %s", identity.Role, perm)
	}
	return identity, nil
}

func parseBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
