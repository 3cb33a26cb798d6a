// Package auth authenticates API callers from bearer tokens minted by the
// identity provider.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
	"vetting/pkg/requestcontext"
)

type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker reports whether a token id was revoked before expiry.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTClaims is the subset of token claims the API acts on.
type JWTClaims struct {
	Subject       string
	PrincipalType string
	// JTI identifies the token for revocation.
	JTI string
}

var errUnauthenticated = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid bearer token")

type authenticator struct {
	validator   JWTValidator
	revocations TokenRevocationChecker
	logger      *slog.Logger
}

// RequireAuth stores the token's principal on the request context and rejects
// the request otherwise. revocations may be nil, in which case revocation is
// not checked.
func RequireAuth(validator JWTValidator, revocations TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	a := &authenticator{validator: validator, revocations: revocations, logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := a.authenticate(r)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(r.Context(), principal)))
		})
	}
}

func (a *authenticator) authenticate(r *http.Request) (requestcontext.PrincipalInfo, error) {
	ctx := r.Context()
	log := a.logger.With("request_id", requestcontext.RequestID(ctx), "path", r.URL.Path)

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		log.WarnContext(ctx, "rejected request without bearer token")
		return requestcontext.PrincipalInfo{}, errUnauthenticated
	}
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		log.WarnContext(ctx, "rejected invalid token", "error", err)
		return requestcontext.PrincipalInfo{}, errUnauthenticated
	}

	if a.revocations != nil {
		if claims.JTI == "" {
			log.WarnContext(ctx, "rejected token without jti", "subject", claims.Subject)
			return requestcontext.PrincipalInfo{}, errUnauthenticated
		}
		revoked, err := a.revocations.IsTokenRevoked(ctx, claims.JTI)
		if err != nil {
			log.ErrorContext(ctx, "token revocation lookup failed", "error", err)
			return requestcontext.PrincipalInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "revocation lookup failed")
		}
		if revoked {
			log.WarnContext(ctx, "rejected revoked token", "jti", claims.JTI, "subject", claims.Subject)
			return requestcontext.PrincipalInfo{}, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
		}
	}
	return requestcontext.PrincipalInfo{ID: claims.Subject, Type: claims.PrincipalType}, nil
}
