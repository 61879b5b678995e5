package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/trustledger/internal/observability"
	"github.com/odyssey-erp/trustledger/internal/platform/authn"
	"github.com/odyssey-erp/trustledger/internal/platform/httpx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// PrincipalMiddleware attaches the caller. With a verifier the caller comes
// from a bearer token and the gateway header is ignored; without one the
// trusted gateway header names it. Requests carrying neither continue
// anonymously and handlers that need a caller answer 401.
func PrincipalMiddleware(header string, verifier *authn.Verifier) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-Principal"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p shared.Principal
			if verifier != nil {
				if token, ok := authn.BearerToken(r.Header.Get("Authorization")); ok {
					verified, err := verifier.Verify(token)
					if err != nil {
						httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "invalid_token", err.Error())
						return
					}
					p = verified
				}
			} else {
				p = shared.ParsePrincipal(r.Header.Get(header))
			}
			if !p.IsZero() {
				r = r.WithContext(shared.ContextWithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateKey buckets authenticated callers by principal and everyone else by IP.
func rateKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		return "principal:" + p.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// MiddlewareStack installs the trustledger middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	header := "X-Principal"
	perMinute := 120
	var verifier *authn.Verifier
	if cfg.Config != nil {
		verifier = authn.NewVerifier(cfg.Config.JWTSecret, cfg.Config.JWTIssuer, cfg.Config.JWTAudience)
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.PrincipalHeader != "" {
			header = cfg.Config.PrincipalHeader
		}
		perMinute = cfg.Config.RateLimitPerMinute
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		PrincipalMiddleware(header, verifier),
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
	}
	if perMinute > 0 {
		middlewares = append(middlewares, httprate.Limit(perMinute, time.Minute,
			httprate.WithKeyFuncs(rateKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "rate_limited", "")
			}),
		))
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}
