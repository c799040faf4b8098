package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	accountmodels "verity/internal/account/models"
	accountstore "verity/internal/account/store"
	"verity/internal/identity"
	"verity/internal/notify"
	ratelimitservice "verity/internal/ratelimit/service"
	ratelimitstore "verity/internal/ratelimit/store"
	smodels "verity/internal/security/models"
	securityservice "verity/internal/security/service"
	eventstore "verity/internal/security/store/event"
	lockoutstore "verity/internal/security/store/lockout"
	"verity/internal/verification/service"
	codestore "verity/internal/verification/store/code"
	pendingstore "verity/internal/verification/store/pending"
	"verity/internal/verification/store/registration"
)

var adminKey = []byte("test-admin-key")

type RouterSuite struct {
	suite.Suite
	router   http.Handler
	notifier *notify.MemoryNotifier
	accounts *accountstore.InMemoryStore
	events   *eventstore.InMemoryStore
	security *securityservice.Service
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	s.accounts = accountstore.New()
	accounts := s.accounts
	pending := pendingstore.New()
	codes := codestore.New()
	s.events = eventstore.New()
	lockouts := lockoutstore.New()
	s.notifier = notify.NewMemory()

	verification, err := service.New(codes, pending, accounts,
		registration.NewMemory(accounts, pending), s.notifier,
		service.WithLogger(logger))
	s.Require().NoError(err)

	limiter, err := ratelimitservice.New(ratelimitstore.New(),
		ratelimitservice.WithLogger(logger))
	s.Require().NoError(err)

	s.security, err = securityservice.New(s.events, lockouts,
		securityservice.WithLogger(logger))
	s.Require().NoError(err)

	verificationHandler := NewVerificationHandler(verification, limiter, s.security, logger)
	adminHandler := NewAdminHandler(s.security, limiter)

	s.router = NewRouter(verificationHandler, adminHandler, RouterConfig{
		AdminJWTKey: adminKey,
	}, logger)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) post(path string, body any) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *RouterSuite) TestHealthz() {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestRegistrationFlow() {
	rec := s.post("/verification/register", map[string]string{
		"email":    "new@example.com",
		"password": "secret-password",
		"name":     "New User",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(true, s.decode(rec)["success"])

	// A code_sent entry lands in the audit log.
	sent, err := s.events.ListByKind(context.Background(), smodels.EventCodeSent, 10)
	s.Require().NoError(err)
	s.Len(sent, 1)

	delivery, ok := s.notifier.Last()
	s.Require().True(ok)
	code := delivery.Data["code"]

	rec = s.post("/verification/register/validate", map[string]string{
		"email": "new@example.com",
		"code":  code,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	body := s.decode(rec)
	s.Equal(true, body["success"])
	s.Equal("success", body["outcome"])

	successes, err := s.events.ListByKind(context.Background(), smodels.EventVerificationSuccess, 10)
	s.Require().NoError(err)
	s.Len(successes, 1)
}

func (s *RouterSuite) TestFailedIssueEmitsNoCodeSentEvent() {
	s.Require().NoError(s.accounts.Save(context.Background(), &accountmodels.Account{
		ID:    uuid.New(),
		Email: "taken@example.com",
	}))

	rec := s.post("/verification/register", map[string]string{
		"email":    "taken@example.com",
		"password": "secret-password",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(false, s.decode(rec)["success"])

	// Nothing was delivered, so nothing may appear in the audit log either.
	sent, err := s.events.ListByKind(context.Background(), smodels.EventCodeSent, 10)
	s.Require().NoError(err)
	s.Empty(sent)
	s.Empty(s.notifier.Deliveries())
}

func (s *RouterSuite) TestWrongCodeIsRecorded() {
	rec := s.post("/verification/register", map[string]string{
		"email":    "new@example.com",
		"password": "secret-password",
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.post("/verification/register/validate", map[string]string{
		"email": "new@example.com",
		"code":  "000000",
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(false, body["success"])
	s.Equal("incorrect", body["outcome"])

	failures, err := s.events.ListByKind(context.Background(), smodels.EventVerificationFailed, 10)
	s.Require().NoError(err)
	s.Len(failures, 1)
}

func (s *RouterSuite) TestRateLimitRejection() {
	for i := 0; i < 5; i++ {
		rec := s.post("/verification/register/resend", map[string]string{
			"email": "new@example.com",
		})
		s.Require().Equal(http.StatusOK, rec.Code)
	}

	rec := s.post("/verification/register/resend", map[string]string{
		"email": "new@example.com",
	})
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("rate_limited", s.decode(rec)["error"])

	rejected, err := s.events.ListByKind(context.Background(), smodels.EventRateLimited, 10)
	s.Require().NoError(err)
	s.Len(rejected, 1)
}

func (s *RouterSuite) TestLockedAccountCannotValidate() {
	ident := identity.ByEmail("locked@example.com")
	s.Require().NoError(s.security.LockAccount(context.Background(), ident, "abuse"))

	rec := s.post("/verification/register/validate", map[string]string{
		"email": "locked@example.com",
		"code":  "123456",
	})
	s.Equal(http.StatusLocked, rec.Code)
	s.Equal("account_locked", s.decode(rec)["error"])
}

func (s *RouterSuite) TestInvalidBody() {
	req := httptest.NewRequest(http.MethodPost, "/verification/register", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterSuite) TestAdminRequiresToken() {
	req := httptest.NewRequest(http.MethodGet, "/admin/failures", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestAdminRejectsWrongKey() {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).
		SignedString([]byte("some-other-key"))
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/admin/failures", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestAdminRejectsMissingRole() {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "viewer"}).
		SignedString(adminKey)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/admin/failures", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) adminGet(path string) *httptest.ResponseRecorder {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).
		SignedString(adminKey)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestAdminEventQueries() {
	rec := s.post("/verification/register", map[string]string{
		"email":    "new@example.com",
		"password": "secret-password",
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.adminGet("/admin/events?identifier_kind=email&identifier=new@example.com")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	events := s.decode(rec)["events"].([]any)
	s.NotEmpty(events)

	rec = s.adminGet("/admin/events/kind/code_sent")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.adminGet("/admin/stats?identifier_kind=email&identifier=new@example.com")
	s.Require().Equal(http.StatusOK, rec.Code)
	stats := s.decode(rec)
	s.Equal("email:new@example.com", stats["identifier"])

	rec = s.adminGet("/admin/events/kind/bogus")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterSuite) TestAdminUnlock() {
	ident := identity.ByEmail("locked@example.com")
	s.Require().NoError(s.security.LockAccount(context.Background(), ident, "abuse"))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).
		SignedString(adminKey)
	s.Require().NoError(err)

	payload, _ := json.Marshal(map[string]string{"kind": "email", "value": "locked@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/admin/unlock", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	locked, err := s.security.IsLocked(context.Background(), ident)
	s.Require().NoError(err)
	s.False(locked)
}

func (s *RouterSuite) TestAdminRateLimitReset() {
	for i := 0; i < 6; i++ {
		s.post("/verification/register/resend", map[string]string{"email": "new@example.com"})
	}
	rec := s.post("/verification/register/resend", map[string]string{"email": "new@example.com"})
	s.Require().Equal(http.StatusTooManyRequests, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).
		SignedString(adminKey)
	s.Require().NoError(err)

	payload, _ := json.Marshal(map[string]string{"kind": "email", "value": "new@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/admin/ratelimit/reset", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec2 := httptest.NewRecorder()
	s.router.ServeHTTP(rec2, req)
	s.Require().Equal(http.StatusOK, rec2.Code)

	rec = s.post("/verification/register/resend", map[string]string{"email": "new@example.com"})
	s.Equal(http.StatusOK, rec.Code, fmt.Sprintf("expected quota back after reset: %s", rec.Body.String()))
}
