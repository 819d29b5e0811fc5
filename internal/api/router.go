package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EricDistort/QuberX/internal/handler"
	"github.com/EricDistort/QuberX/internal/infrastructure/auth"
	"github.com/EricDistort/QuberX/internal/infrastructure/observability"
	"github.com/EricDistort/QuberX/internal/infrastructure/redis"
)

type RouterConfig struct {
	Sessions   redis.RedisClient
	Tokens     *auth.TokenManager
	AdminToken string
	Limiter    *RateLimiter
}

func SetupRouter(h *handler.Handler, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	h.RegisterPublicRoutes(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.AdminMiddleware(cfg.AdminToken))
	h.RegisterAdminRoutes(admin)

	protected := r.PathPrefix("/").Subrouter()
	protected.Use(auth.AuthMiddleware(cfg.Sessions, cfg.Tokens))
	protected.Use(cfg.Limiter.Middleware)
	h.RegisterProtectedRoutes(protected)

	return r
}

// metricsMiddleware labels requests with the route template rather than
// the raw path to keep label cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}

		observability.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		observability.HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
