package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zonecraft/portal-backend/api/responses"
	"github.com/zonecraft/portal-backend/pkg/config"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// BillingRateLimit throttles money-moving requests per authenticated user.
// Must run after Auth so the user id is in context.
func BillingRateLimit(cfg config.RateLimitConfig, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.BillingWindow <= 0 || cfg.BillingLimit <= 0 || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			scope := fmt.Sprintf("billing:%s", userID)
			allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(cfg.BillingLimit), cfg.BillingWindow)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				if logg != nil {
					limCtx := logg.WithFields(ctx, map[string]any{"count": count, "limit": cfg.BillingLimit})
					logg.Warn(limCtx, "billing rate limit exceeded")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many billing requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
