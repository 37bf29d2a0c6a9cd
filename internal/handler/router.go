package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"registration-service/internal/util"
)

// HealthReporter returns one entry per dependency, nil meaning healthy.
type HealthReporter interface {
	HealthCheck(ctx context.Context) map[string]error
}

type RouterOptions struct {
	RequireTLS     bool
	CORSOrigins    []string
	RequestTimeout time.Duration
	// RequestLimit caps /register calls per client address per minute.
	RequestLimit int
	Limiter      IPLimiter
	Health       HealthReporter
}

// requireHTTPS rejects any request that wasn't made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired)
			_, _ = w.Write([]byte(`{"status":"failed","message":"HTTPS required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates and configures the Chi router with all middleware and routes.
// middleware.RealIP is left out: it would rewrite RemoteAddr from the first
// forwarded entry while registration keys on the last one.
func NewRouter(registrationHandler *RegistrationHandler, opts RouterOptions, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if opts.RequireTLS {
		router.Use(requireHTTPS)
	}

	router.Use(middleware.RequestID)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	router.Use(middleware.Timeout(timeout))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"https://*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/health", healthHandler(opts.Health, logger))

	limit := RateLimitMiddleware(opts.Limiter, opts.RequestLimit, time.Minute, logger)
	registrationHandler.RegisterRoutes(router, limit)
	router.Route("/api/v1", func(r chi.Router) {
		registrationHandler.RegisterRoutes(r, limit)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusNotFound, failed("Endpoint not found"), logger)
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusMethodNotAllowed, failed(msgInvalidMethod), logger)
	})

	return router
}

type healthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components,omitempty"`
}

func healthHandler(reporter HealthReporter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "healthy", Service: "registration-service"}
		statusCode := http.StatusOK
		if reporter != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			resp.Components = make(map[string]string)
			for name, err := range reporter.HealthCheck(ctx) {
				if err != nil {
					resp.Components[name] = err.Error()
					resp.Status = "degraded"
					statusCode = http.StatusServiceUnavailable
					continue
				}
				resp.Components[name] = "ok"
			}
		}
		if statusCode != http.StatusOK {
			logger.Warn("Health check failed", util.Any("components", resp.Components))
		}
		respondWithJSON(w, statusCode, resp, logger)
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("client_ip", ClientIP(r)),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
