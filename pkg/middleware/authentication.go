package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	appctx "github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/context"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

const verifyTimeout = 5 * time.Second

type UserClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// VerifyFunc checks a raw bearer token and returns its claims
type VerifyFunc func(ctx context.Context, raw string) (*UserClaims, error)

// OIDCVerifier discovers the issuer and returns a VerifyFunc bound to clientID
func OIDCVerifier(ctx context.Context, issuer, clientID string) (VerifyFunc, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	return func(ctx context.Context, raw string) (*UserClaims, error) {
		idToken, err := verifier.Verify(ctx, raw)
		if err != nil {
			return nil, err
		}
		var claims UserClaims
		if err := idToken.Claims(&claims); err != nil {
			return nil, err
		}
		return &claims, nil
	}, nil
}

// Authentication rejects requests without a valid bearer token and stores the subject as the user id
func Authentication(logger ectologger.Logger, verify VerifyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Authentication")
			defer span.End()

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
			claims, err := verify(verifyCtx, strings.TrimPrefix(auth, "Bearer "))
			cancel()
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx = appctx.SetUserID(ctx, claims.Sub)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
