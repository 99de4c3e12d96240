package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer, so streaming handlers behind this
// middleware can still flush after each backend page.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logRequests logs method, path, status, and latency per request at info,
// matching the teacher's request-scoped zerolog.Logger usage (§10.1).
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	})
}

// streamTracker wraps a ResponseWriter so a streaming handler can tell,
// after an error, whether it already flushed bytes to the client. Per §7,
// a streaming body never aborts mid-response with a non-2xx status once
// writes have started; it just ends.
type streamTracker struct {
	http.ResponseWriter
	wrote bool
}

func (t *streamTracker) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.wrote = true
	}
	return t.ResponseWriter.Write(p)
}

func (t *streamTracker) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// writeStreamError reports err as an HTTP status only if the stream hasn't
// started yet; otherwise it logs and lets the already-flushed body stand.
func writeStreamError(t *streamTracker, err error) {
	if t.wrote {
		log.Warn().Err(err).Msg("httpapi: stream aborted after partial write")
		return
	}
	writeError(t.ResponseWriter, err)
}

// recoverPanics converts a handler panic into a 500 instead of crashing the
// process, mirroring §7's "Fatal" row for the HTTP path.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("http handler panicked")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
