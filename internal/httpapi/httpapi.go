// Package httpapi wires the HTTP surface: the signing-session trio, the order/shipment/payment
// CRUD surface, and the ambient additions (/healthz, /metrics), onto a chi router, with routes
// registered as closures directly against the mux. It lives in its own package rather than
// inline in cmd/podxd's main; cmd/podxd builds Deps once and passes it to Router.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/accordsai/podx/internal/applog"
	"github.com/accordsai/podx/internal/appmetrics"
	"github.com/accordsai/podx/internal/chain"
	"github.com/accordsai/podx/internal/session"
	"github.com/accordsai/podx/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps holds every handler's dependencies. Constructed once in cmd/podxd and passed to Router.
type Deps struct {
	Store    *store.Store
	Sessions *session.Service
	Chain    *chain.Gateway
}

// Router builds the full chi router.
func Router(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler(d))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/signing-sessions", createSessionHandler(d))
	r.Get("/signing-sessions/{sessionId}", resolveSessionHandler(d))
	r.Post("/signing-sessions/{sessionId}/sign", completeSessionHandler(d))

	r.Post("/orders", createOrderHandler(d))
	r.Post("/orders/{orderId}/status", updateOrderStatusHandler(d))
	r.Post("/shipments", createShipmentHandler(d))
	r.Post("/shipments/{shipmentId}/courier", updateShipmentCourierHandler(d))
	r.Post("/payments/{orderId}/escrow", escrowPaymentHandler(d))

	return r
}

// requestLogger logs every request at info with its outcome status using zap directly rather
// than pulling in a third middleware dependency for it, and records the HTTP request metrics
// against the matched route pattern rather than the raw path so path-parameterized routes
// (/orders/{orderId}/status) don't blow up label cardinality.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		status := ww.Status()

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		statusLabel := strconv.Itoa(status)
		appmetrics.HTTPRequestDuration.WithLabelValues(r.Method, routePattern, statusLabel).Observe(duration.Seconds())
		appmetrics.HTTPRequestsTotal.WithLabelValues(r.Method, routePattern, statusLabel).Inc()

		applog.L().Info("http request",
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
		)
	})
}

func healthzHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := d.Store.DB.Ping(ctx); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
