package http

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/jobs"
)

// maxWebhookBody bounds the inbound update payload size.
const maxWebhookBody = 1 << 20 // 1 MB

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// handleWebhook receives one platform update per request. Success is
// an empty 200; a malformed payload is a 400 without any handler
// running; any uncaught handler error is a 500 so the platform can
// redeliver.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn("reading webhook body failed",
			"error", err,
			"request_id", requestID(r.Context()),
		)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = s.deps.Dispatcher.Dispatch(r.Context(), body)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, dispatch.ErrMalformedUpdate):
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth touches no shared state so it stays responsive
// regardless of handler or job load.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON TRIGGER
// ══════════════════════════════════════════════════════════════════════════════

const bearerPrefix = "Bearer "

// handleCron runs a maintenance job synchronously. Fail closed: an
// unset secret, a missing header, or a mismatch all come back 401 and
// no job runs. Unknown job names come back 404.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if !s.cronAuthorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	jobName := r.PathValue("job_name")

	err := s.deps.Jobs.Run(r.Context(), jobName)
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		w.WriteHeader(http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("maintenance job failed",
			"job", jobName,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"` + jobStatusLabel(jobName) + ` triggered"}`))
}

// cronAuthorized validates the bearer secret without ever leaking how
// close a guess was.
func (s *Server) cronAuthorized(r *http.Request) bool {
	secret := s.deps.CronSecret
	if secret == "" {
		return false
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	provided := strings.TrimPrefix(header, bearerPrefix)

	// A "$2..." secret is a bcrypt hash of the real value.
	if strings.HasPrefix(secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(provided)) == nil
	}

	return subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) == 1
}

// jobStatusLabel renders a job name for the trigger response body.
func jobStatusLabel(name string) string {
	return strings.ReplaceAll(name, "-", " ")
}
