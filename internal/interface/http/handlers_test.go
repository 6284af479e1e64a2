package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/jobs"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeDispatcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ []byte) error {
	f.calls.Add(1)
	return f.err
}

type fakeJobs struct {
	calls atomic.Int32
	last  string
	err   error
}

func (f *fakeJobs) Run(_ context.Context, name string) error {
	if !jobs.Known(name) {
		return jobs.ErrUnknownJob
	}
	f.calls.Add(1)
	f.last = name
	return f.err
}

func newTestServer(dispatcher *fakeDispatcher, runner *fakeJobs, secret string) *Server {
	if dispatcher == nil {
		dispatcher = &fakeDispatcher{}
	}
	if runner == nil {
		runner = &fakeJobs{}
	}
	return NewServer(DefaultConfig(), Dependencies{
		Dispatcher: dispatcher,
		Jobs:       runner,
		CronSecret: secret,
	})
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// ─────────────────────────────────────────────────────────────────────────────
// Webhook
// ─────────────────────────────────────────────────────────────────────────────

func TestWebhook_SuccessReturns200(t *testing.T) {
	d := &fakeDispatcher{}
	s := newTestServer(d, nil, "")

	rec := do(s, http.MethodPost, "/", `{"update_id":1}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestWebhook_MalformedReturns400(t *testing.T) {
	d := &fakeDispatcher{err: dispatch.ErrMalformedUpdate}
	s := newTestServer(d, nil, "")

	rec := do(s, http.MethodPost, "/", "{", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_HandlerErrorReturns500(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("handler blew up")}
	s := newTestServer(d, nil, "")

	rec := do(s, http.MethodPost, "/", `{"update_id":1}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	s := newTestServer(nil, nil, "")

	rec := do(s, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

// ─────────────────────────────────────────────────────────────────────────────
// Cron trigger
// ─────────────────────────────────────────────────────────────────────────────

func bearer(secret string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + secret}
}

func TestCron_CorrectSecretRunsJob(t *testing.T) {
	runner := &fakeJobs{}
	s := newTestServer(nil, runner, "s3cret")

	rec := do(s, http.MethodPost, "/cron/account-check", "", bearer("s3cret"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"account check triggered"}`, rec.Body.String())
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, jobs.JobAccountCheck, runner.last)
}

func TestCron_DailyCleanupBody(t *testing.T) {
	runner := &fakeJobs{}
	s := newTestServer(nil, runner, "s3cret")

	rec := do(s, http.MethodPost, "/cron/daily-cleanup", "", bearer("s3cret"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"daily cleanup triggered"}`, rec.Body.String())
}

func TestCron_FailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		headers map[string]string
	}{
		{"wrong secret", "s3cret", bearer("wrong")},
		{"missing header", "s3cret", nil},
		{"secret unset", "", bearer("anything")},
		{"unset secret empty bearer", "", bearer("")},
		{"no bearer prefix", "s3cret", map[string]string{"Authorization": "s3cret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeJobs{}
			s := newTestServer(nil, runner, tt.secret)

			rec := do(s, http.MethodPost, "/cron/account-check", "", tt.headers)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, int32(0), runner.calls.Load(), "no job must run")
		})
	}
}

func TestCron_UnknownJobReturns404(t *testing.T) {
	runner := &fakeJobs{}
	s := newTestServer(nil, runner, "s3cret")

	rec := do(s, http.MethodPost, "/cron/unknown-job", "", bearer("s3cret"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestCron_BcryptHashedSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	s := newTestServer(nil, &fakeJobs{}, string(hash))

	rec := do(s, http.MethodPost, "/cron/account-check", "", bearer("s3cret"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodPost, "/cron/account-check", "", bearer("wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCron_JobFailureReturns500(t *testing.T) {
	runner := &fakeJobs{err: errors.New("db down")}
	s := newTestServer(nil, runner, "s3cret")

	rec := do(s, http.MethodPost, "/cron/account-check", "", bearer("s3cret"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
