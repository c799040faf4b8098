package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	accountmodels "verity/internal/account/models"
	"verity/internal/identity"
	"verity/internal/sentinel"
	"verity/internal/verification/codes"
	"verity/internal/verification/models"
	"verity/internal/verification/tracer"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requesttime"
)

// ValidateRegistrationCode checks a registration code and, on success,
// promotes the pending registration into a permanent account with a
// verified email.
func (s *Service) ValidateRegistrationCode(ctx context.Context, email, supplied string) (result *models.ValidationResult, err error) {
	defer s.observeLatency(time.Now())
	ctx, span := s.tracer.Start(ctx, tracer.SpanValidate,
		tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(email)),
		tracer.String(tracer.AttrOperation, models.OpRegistration.String()),
	)
	defer func() { span.End(err) }()

	result, code, err := s.validate(ctx, identity.ByEmail(email), models.OpRegistration, supplied)
	if err != nil || !result.Success {
		s.finishValidation(span, models.OpRegistration, result)
		return result, err
	}

	reg, err := s.pending.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// The staging record was purged between issue and confirm.
			result = failure(models.OutcomeNotFound, "no pending registration for this email address")
			s.finishValidation(span, models.OpRegistration, result)
			return result, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up pending registration")
	}

	now := requesttime.Now(ctx)
	account := &accountmodels.Account{
		ID:             uuid.New(),
		Email:          reg.Email,
		Name:           reg.Name,
		Phone:          reg.Phone,
		CredentialHash: reg.CredentialHash,
		EmailVerified:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.promoter.Promote(ctx, reg, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to promote registration")
	}

	s.logger.InfoContext(ctx, "registration confirmed",
		"account_id", account.ID.String(),
		"code_id", code.ID.String(),
	)
	result.Message = "your email address has been verified and your account is ready"
	result.Account = account
	s.finishValidation(span, models.OpRegistration, result)
	return result, nil
}

// ValidateEmailChangeCode checks an email-change code and, on success, moves
// the account to the new address carried by the code.
func (s *Service) ValidateEmailChangeCode(ctx context.Context, userID uuid.UUID, supplied string) (result *models.ValidationResult, err error) {
	defer s.observeLatency(time.Now())
	ctx, span := s.tracer.Start(ctx, tracer.SpanValidate,
		tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(userID.String())),
		tracer.String(tracer.AttrOperation, models.OpEmailChange.String()),
	)
	defer func() { span.End(err) }()

	result, code, err := s.validate(ctx, identity.ByUserID(userID), models.OpEmailChange, supplied)
	if err != nil || !result.Success {
		s.finishValidation(span, models.OpEmailChange, result)
		return result, err
	}

	account, err := s.accounts.UpdateEmail(ctx, userID, code.Payload, requesttime.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account email")
	}

	result.Message = "your email address has been updated"
	result.Account = account
	s.finishValidation(span, models.OpEmailChange, result)
	return result, nil
}

// ValidatePhoneChangeCode checks a phone-change code and, on success, sets
// the new phone number carried by the code.
func (s *Service) ValidatePhoneChangeCode(ctx context.Context, userID uuid.UUID, supplied string) (result *models.ValidationResult, err error) {
	defer s.observeLatency(time.Now())
	ctx, span := s.tracer.Start(ctx, tracer.SpanValidate,
		tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(userID.String())),
		tracer.String(tracer.AttrOperation, models.OpPhoneChange.String()),
	)
	defer func() { span.End(err) }()

	result, code, err := s.validate(ctx, identity.ByUserID(userID), models.OpPhoneChange, supplied)
	if err != nil || !result.Success {
		s.finishValidation(span, models.OpPhoneChange, result)
		return result, err
	}

	account, err := s.accounts.UpdatePhone(ctx, userID, code.Payload, requesttime.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account phone")
	}

	result.Message = "your phone number has been updated"
	result.Account = account
	s.finishValidation(span, models.OpPhoneChange, result)
	return result, nil
}

// validate runs the code state machine shared by all operation types.
//
// Attempts are only incremented on a wrong code, never on expired,
// invalidated, or not-found outcomes: the remaining-attempts arithmetic is
// part of the caller-visible contract.
func (s *Service) validate(ctx context.Context, ident identity.Identifier, op models.OperationType, supplied string) (*models.ValidationResult, *models.VerificationCode, error) {
	code, err := s.codes.FindActive(ctx, ident, op)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return failure(models.OutcomeNotFound, "no verification code found, request a new one"), nil, nil
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up verification code")
	}

	now := requesttime.Now(ctx)
	if codes.IsExpired(now, code.ExpiresAt) {
		return failure(models.OutcomeExpired, "this verification code has expired, request a new one"), nil, nil
	}

	if code.Exhausted() {
		// Ceiling reached on a previous submission; force the flag in case
		// that write was lost.
		code.Invalidated = true
		if err := s.codes.Update(ctx, code); err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate exhausted code")
		}
		return failure(models.OutcomeInvalidated, "this verification code is no longer valid, request a new one"), nil, nil
	}

	if !codes.Verify(supplied, code.CodeHash) {
		code.Attempts++
		if code.Exhausted() {
			code.Invalidated = true
			if err := s.codes.Update(ctx, code); err != nil {
				return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record failed attempt")
			}
			return failure(models.OutcomeInvalidated, "too many incorrect attempts, request a new code"), nil, nil
		}
		if err := s.codes.Update(ctx, code); err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record failed attempt")
		}
		remaining := code.Remaining()
		result := failure(models.OutcomeIncorrect, fmt.Sprintf("incorrect code, %d attempts remaining", remaining))
		result.RemainingAttempts = &remaining
		return result, nil, nil
	}

	code.Verified = true
	verifiedAt := now
	code.VerifiedAt = &verifiedAt
	if err := s.codes.Update(ctx, code); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark code verified")
	}

	return &models.ValidationResult{
		Success: true,
		Outcome: models.OutcomeSuccess,
	}, code, nil
}

func (s *Service) finishValidation(span tracer.Span, op models.OperationType, result *models.ValidationResult) {
	if result == nil {
		return
	}
	span.SetAttributes(tracer.String(tracer.AttrOutcome, string(result.Outcome)))
	if s.metrics != nil {
		s.metrics.IncrementCodesValidated(op.String(), string(result.Outcome))
	}
}

// observeLatency feeds the validation latency histogram. Started at entry to
// each Validate operation, deferred to cover every exit path.
func (s *Service) observeLatency(start time.Time) {
	if s.metrics != nil {
		s.metrics.ValidationLatency.Observe(time.Since(start).Seconds())
	}
}

func failure(outcome models.Outcome, message string) *models.ValidationResult {
	return &models.ValidationResult{
		Success: false,
		Outcome: outcome,
		Message: message,
	}
}
