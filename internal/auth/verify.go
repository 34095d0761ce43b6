package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrTokenRevoked = errors.New("token revoked")

// Verifier checks a bearer token. With a non-nil Repo it also rejects tokens
// minted before the user's last logout or password change.
type Verifier struct {
	Tokens TokenService
	Repo   *Repo
}

func (v Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.Tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if v.Repo == nil {
		return claims, nil
	}
	current, err := v.Repo.GetTokenVersion(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if current != claims.TokenVersion {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
