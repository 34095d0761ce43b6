package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxClaimsKey = "auth_claims"

// AuthMiddleware requires a bearer token. With a non-nil repo it also
// rejects tokens minted before the user's last logout or password change.
func AuthMiddleware(tokens TokenService, repo *Repo) gin.HandlerFunc {
	v := Verifier{Tokens: tokens, Repo: repo}
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// OptionalAuth attaches claims when a valid, unrevoked bearer token is
// present and lets anonymous requests through untouched.
func OptionalAuth(tokens TokenService, repo *Repo) gin.HandlerFunc {
	v := Verifier{Tokens: tokens, Repo: repo}
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := v.Verify(c.Request.Context(), token); err == nil {
				c.Set(CtxClaimsKey, claims)
			}
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[len("Bearer "):])
	return token, token != ""
}
