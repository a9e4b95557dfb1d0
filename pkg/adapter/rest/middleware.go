package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/auth"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// routeTemplate returns the matched route template, so metric labels stay
// bounded no matter which ids are requested.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// instrument records metrics and logs every matched request. It also turns
// handler panics into 500 responses.
func (a *HTTPAdapter) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeTemplate(r)
		rec := &statusRecorder{ResponseWriter: w}

		a.metrics.RecordRequestStart()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("HTTP: panic serving %s %s: %v", r.Method, r.URL.Path, p)
				if rec.status == 0 {
					writeError(rec, http.StatusInternalServerError, "internal server error")
				}
			}

			duration := time.Since(start)
			a.metrics.RecordRequestEnd()
			a.metrics.RecordRequest(route, r.Method, rec.status, duration)
			logger.With("method", r.Method, "route", route, "status", rec.status, "bytes", rec.bytes).
				Debug("HTTP %s %s completed in %s", r.Method, r.URL.Path, duration)
		}()

		next.ServeHTTP(rec, r)
	})
}

// authenticate rejects requests without valid credentials and stores the
// principal in the request context.
func (a *HTTPAdapter) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.authenticator.Authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="fragments"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// rateLimit applies the per-owner token bucket. Must run after authenticate.
func (a *HTTPAdapter) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		if !a.limiter.Allow(p.OwnerID) {
			a.metrics.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
