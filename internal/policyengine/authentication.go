package policyengine

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"gatewaycore/internal/domain"
)

// Authentication implements the Authentication built-in policy: Bearer JWT
// or ApiKey, per §4.2. A verified JWT's "sub" claim is stashed on the
// request context's Identity field; the token's other claims are not kept.
type Authentication struct {
	JWTSecret []byte
	APIKey    string
}

func (a *Authentication) Evaluate(_ context.Context, rc *domain.RequestContext) (*domain.PolicyResult, error) {
	header := rc.Request.Header.Get("Authorization")
	if header == "" {
		return domain.Deny(401, "Unauthorized", "Missing authentication header"), nil
	}

	switch {
	case strings.HasPrefix(header, "Bearer "):
		return a.evaluateBearer(strings.TrimPrefix(header, "Bearer "), rc)
	case strings.HasPrefix(header, "ApiKey "):
		return a.evaluateAPIKey(strings.TrimPrefix(header, "ApiKey "), rc)
	default:
		return domain.Deny(401, "Unauthorized", "unsupported authorization scheme"), nil
	}
}

func (a *Authentication) evaluateBearer(token string, rc *domain.RequestContext) (*domain.PolicyResult, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return a.JWTSecret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !parsed.Valid {
		return domain.Deny(401, "Unauthorized", "invalid bearer token"), nil
	}

	if sub, ok := claims["sub"].(string); ok {
		rc.Identity = sub
	}
	return domain.Allow(), nil
}

func (a *Authentication) evaluateAPIKey(key string, _ *domain.RequestContext) (*domain.PolicyResult, error) {
	if subtle.ConstantTimeCompare([]byte(key), []byte(a.APIKey)) != 1 {
		return domain.Deny(401, "Unauthorized", "invalid API key"), nil
	}
	return domain.Allow(), nil
}
