package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/aradsms/notification_service/internal/notification_service/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var throttleDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "notification",
		Name:      "throttle_decisions_total",
		Help:      "Throttle Guard decisions on inbound requests.",
	},
	[]string{"decision"},
)

// KeyFunc picks the identifier a request is throttled under.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by remote host. Run chi's RealIP first to honour
// X-Forwarded-For.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// OperatorOrClientIP keys requests by the authenticated operator's subject,
// falling back to ClientIP when AuthMiddleware did not run.
func OperatorOrClientIP(r *http.Request) string {
	if op, ok := OperatorFromContext(r.Context()); ok && op.ID != "" {
		return "operator:" + op.ID
	}
	return ClientIP(r)
}

// ThrottleMiddleware admits requests through guard and answers 429 with
// Retry-After once a key exhausts its window.
func ThrottleMiddleware(guard *throttle.Guard, key KeyFunc, logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With("middleware", "throttle")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := key(r)
			d := guard.Check(id)
			resetSeconds := int(math.Ceil(d.ResetAfter.Seconds()))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(resetSeconds))

			if !d.Allowed {
				throttleDecisionsTotal.WithLabelValues("denied").Inc()
				logger.WarnContext(r.Context(), "Request throttled", "key", id, "retry_after", d.ResetAfter)
				h.Set("Retry-After", strconv.Itoa(resetSeconds))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			throttleDecisionsTotal.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
