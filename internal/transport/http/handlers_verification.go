package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"verity/internal/identity"
	rlmodels "verity/internal/ratelimit/models"
	smodels "verity/internal/security/models"
	"verity/internal/transport/http/shared"
	vmodels "verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requestcontext"

	httpjson "verity/internal/transport/http/json"
)

// VerificationService covers the code issuance and validation operations the
// handler delegates to.
type VerificationService interface {
	IssueRegistrationCode(ctx context.Context, email, credentialHash, name, phone string) (*vmodels.IssueResult, error)
	ResendRegistrationCode(ctx context.Context, email string) (*vmodels.IssueResult, error)
	IssueEmailChangeCode(ctx context.Context, userID uuid.UUID, newEmail string) (*vmodels.IssueResult, error)
	IssuePhoneChangeCode(ctx context.Context, userID uuid.UUID, newPhone string) (*vmodels.IssueResult, error)
	ValidateRegistrationCode(ctx context.Context, email, supplied string) (*vmodels.ValidationResult, error)
	ValidateEmailChangeCode(ctx context.Context, userID uuid.UUID, supplied string) (*vmodels.ValidationResult, error)
	ValidatePhoneChangeCode(ctx context.Context, userID uuid.UUID, supplied string) (*vmodels.ValidationResult, error)
}

// RateLimiter gates code issuance per identifier.
type RateLimiter interface {
	Check(ctx context.Context, ident identity.Identifier) *rlmodels.CheckResult
	RecordAttempt(ctx context.Context, ident identity.Identifier)
}

// SecurityRecorder receives the security events the verification flows emit.
type SecurityRecorder interface {
	LogEvent(ctx context.Context, event *smodels.SecurityEvent) error
	IsLocked(ctx context.Context, ident identity.Identifier) (bool, error)
	RecordVerificationAttempt(ctx context.Context, ident identity.Identifier, op vmodels.OperationType, success bool, origin string) error
}

type VerificationHandler struct {
	verification VerificationService
	limiter      RateLimiter
	security     SecurityRecorder
	logger       *slog.Logger
}

func NewVerificationHandler(verification VerificationService, limiter RateLimiter, security SecurityRecorder, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{
		verification: verification,
		limiter:      limiter,
		security:     security,
		logger:       logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

func (h *VerificationHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "email and password are required"))
		return
	}

	credentialHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "hash credential"))
		return
	}

	ident := identity.ByEmail(req.Email)
	if !h.allowIssue(w, r.Context(), ident) {
		return
	}

	result, err := h.verification.IssueRegistrationCode(r.Context(), req.Email, string(credentialHash), req.Name, req.Phone)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if result.Success {
		h.logCodeSent(r.Context(), ident, vmodels.OpRegistration)
	}
	httpjson.WriteJSON(w, http.StatusOK, result)
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *VerificationHandler) handleRegisterResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if req.Email == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "email is required"))
		return
	}

	ident := identity.ByEmail(req.Email)
	if !h.allowIssue(w, r.Context(), ident) {
		return
	}

	result, err := h.verification.ResendRegistrationCode(r.Context(), req.Email)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if result.Success {
		h.logCodeSent(r.Context(), ident, vmodels.OpRegistration)
	}
	httpjson.WriteJSON(w, http.StatusOK, result)
}

type validateRegistrationRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *VerificationHandler) handleRegisterValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if req.Email == "" || req.Code == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "email and code are required"))
		return
	}

	ident := identity.ByEmail(req.Email)
	if h.rejectIfLocked(w, r.Context(), ident) {
		return
	}

	result, err := h.verification.ValidateRegistrationCode(r.Context(), req.Email, req.Code)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.recordOutcome(r.Context(), ident, vmodels.OpRegistration, result)
	httpjson.WriteJSON(w, http.StatusOK, result)
}

type emailChangeRequest struct {
	UserID   string `json:"user_id"`
	NewEmail string `json:"new_email"`
}

func (h *VerificationHandler) handleEmailChange(w http.ResponseWriter, r *http.Request) {
	var req emailChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil || req.NewEmail == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user_id and new_email are required"))
		return
	}

	ident := identity.ByUserID(userID)
	if !h.allowIssue(w, r.Context(), ident) {
		return
	}

	result, err := h.verification.IssueEmailChangeCode(r.Context(), userID, req.NewEmail)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if result.Success {
		h.logCodeSent(r.Context(), ident, vmodels.OpEmailChange)
	}
	httpjson.WriteJSON(w, http.StatusOK, result)
}

type validateChangeRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

func (h *VerificationHandler) handleEmailChangeValidate(w http.ResponseWriter, r *http.Request) {
	ident, userID, code, ok := h.decodeChangeValidation(w, r)
	if !ok {
		return
	}
	if h.rejectIfLocked(w, r.Context(), ident) {
		return
	}

	result, err := h.verification.ValidateEmailChangeCode(r.Context(), userID, code)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.recordOutcome(r.Context(), ident, vmodels.OpEmailChange, result)
	if result.Outcome == vmodels.OutcomeSuccess {
		h.logChange(r.Context(), ident, smodels.EventEmailChanged)
	}
	httpjson.WriteJSON(w, http.StatusOK, result)
}

type phoneChangeRequest struct {
	UserID   string `json:"user_id"`
	NewPhone string `json:"new_phone"`
}

func (h *VerificationHandler) handlePhoneChange(w http.ResponseWriter, r *http.Request) {
	var req phoneChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil || req.NewPhone == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user_id and new_phone are required"))
		return
	}

	ident := identity.ByUserID(userID)
	if !h.allowIssue(w, r.Context(), ident) {
		return
	}

	result, err := h.verification.IssuePhoneChangeCode(r.Context(), userID, req.NewPhone)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if result.Success {
		h.logCodeSent(r.Context(), ident, vmodels.OpPhoneChange)
	}
	httpjson.WriteJSON(w, http.StatusOK, result)
}

func (h *VerificationHandler) handlePhoneChangeValidate(w http.ResponseWriter, r *http.Request) {
	ident, userID, code, ok := h.decodeChangeValidation(w, r)
	if !ok {
		return
	}
	if h.rejectIfLocked(w, r.Context(), ident) {
		return
	}

	result, err := h.verification.ValidatePhoneChangeCode(r.Context(), userID, code)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.recordOutcome(r.Context(), ident, vmodels.OpPhoneChange, result)
	if result.Outcome == vmodels.OutcomeSuccess {
		h.logChange(r.Context(), ident, smodels.EventPhoneChanged)
	}
	httpjson.WriteJSON(w, http.StatusOK, result)
}

func (h *VerificationHandler) decodeChangeValidation(w http.ResponseWriter, r *http.Request) (identity.Identifier, uuid.UUID, string, bool) {
	var req validateChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return identity.Identifier{}, uuid.Nil, "", false
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil || req.Code == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user_id and code are required"))
		return identity.Identifier{}, uuid.Nil, "", false
	}
	return identity.ByUserID(userID), userID, req.Code, true
}

// allowIssue enforces the per-identifier issuance quota. A rejection is
// recorded as a security event; an allowed request consumes one attempt
// before the code is issued so failed deliveries still count.
func (h *VerificationHandler) allowIssue(w http.ResponseWriter, ctx context.Context, ident identity.Identifier) bool {
	check := h.limiter.Check(ctx, ident)
	if !check.Allowed {
		if err := h.security.LogEvent(ctx, h.securityEvent(ident, smodels.EventRateLimited, nil)); err != nil {
			h.logger.WarnContext(ctx, "failed to record rate limit event", "error", err)
		}
		shared.WriteError(w, dErrors.New(dErrors.CodeRateLimited,
			fmt.Sprintf("too many requests, try again in %d minutes", check.WaitMinutes)))
		return false
	}
	h.limiter.RecordAttempt(ctx, ident)
	return true
}

// rejectIfLocked refuses validation for identifiers under an active lockout.
func (h *VerificationHandler) rejectIfLocked(w http.ResponseWriter, ctx context.Context, ident identity.Identifier) bool {
	locked, err := h.security.IsLocked(ctx, ident)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "check lockout"))
		return true
	}
	if locked {
		shared.WriteError(w, dErrors.New(dErrors.CodeAccountLocked, "account is temporarily locked"))
		return true
	}
	return false
}

// recordOutcome emits the security event matching the validation outcome.
// Only success and incorrect-code outcomes feed the lockout counter; expired
// and invalidated codes are recorded but never trigger a lock.
func (h *VerificationHandler) recordOutcome(ctx context.Context, ident identity.Identifier, op vmodels.OperationType, result *vmodels.ValidationResult) {
	var err error
	switch result.Outcome {
	case vmodels.OutcomeSuccess:
		err = h.security.RecordVerificationAttempt(ctx, ident, op, true, requestcontext.ClientIP(ctx))
	case vmodels.OutcomeIncorrect:
		err = h.security.RecordVerificationAttempt(ctx, ident, op, false, requestcontext.ClientIP(ctx))
	case vmodels.OutcomeExpired:
		err = h.security.LogEvent(ctx, h.securityEvent(ident, smodels.EventCodeExpired, map[string]string{"operation": string(op)}))
	case vmodels.OutcomeInvalidated:
		err = h.security.LogEvent(ctx, h.securityEvent(ident, smodels.EventCodeInvalidated, map[string]string{"operation": string(op)}))
	}
	if err != nil {
		h.logger.WarnContext(ctx, "failed to record verification outcome",
			"outcome", string(result.Outcome),
			"error", err,
		)
	}
}

func (h *VerificationHandler) logCodeSent(ctx context.Context, ident identity.Identifier, op vmodels.OperationType) {
	event := h.securityEvent(ident, smodels.EventCodeSent, map[string]string{"operation": string(op)})
	if err := h.security.LogEvent(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "failed to record code sent event", "error", err)
	}
}

func (h *VerificationHandler) logChange(ctx context.Context, ident identity.Identifier, kind smodels.EventKind) {
	if err := h.security.LogEvent(ctx, h.securityEvent(ident, kind, nil)); err != nil {
		h.logger.WarnContext(ctx, "failed to record change event", "error", err)
	}
}

func (h *VerificationHandler) securityEvent(ident identity.Identifier, kind smodels.EventKind, metadata map[string]string) *smodels.SecurityEvent {
	event := &smodels.SecurityEvent{Kind: kind, Metadata: metadata}
	if userID, ok := ident.UserID(); ok {
		event.UserID = &userID
	} else {
		event.Email = ident.Value()
	}
	return event
}
