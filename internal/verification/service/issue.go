package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"verity/internal/identity"
	"verity/internal/notify"
	"verity/internal/sentinel"
	"verity/internal/verification/codes"
	"verity/internal/verification/models"
	"verity/internal/verification/tracer"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requesttime"
)

// IssueRegistrationCode stages a pending registration and sends a code to
// the registering address. The credential hash is produced by the caller.
func (s *Service) IssueRegistrationCode(ctx context.Context, email, credentialHash, name, phone string) (result *models.IssueResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(email)),
		tracer.String(tracer.AttrOperation, models.OpRegistration.String()),
	)
	defer func() { span.End(err) }()

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return &models.IssueResult{Success: false, Message: "this email address is already registered"}, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing account")
	}

	now := requesttime.Now(ctx)
	reg := &models.PendingRegistration{
		ID:             uuid.New(),
		Email:          email,
		CredentialHash: credentialHash,
		Name:           name,
		Phone:          phone,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.PendingTTL),
	}
	if err := s.pending.Save(ctx, reg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stage registration")
	}

	if err := s.issueCode(ctx, span, identity.ByEmail(email), models.OpRegistration, "", email,
		notify.TemplateRegistrationCode, notify.Data{"name": name}); err != nil {
		return nil, err
	}

	return &models.IssueResult{
		Success:   true,
		Message:   "a verification code has been sent to your email address",
		PendingID: &reg.ID,
	}, nil
}

// ResendRegistrationCode invalidates the current registration code and sends
// a fresh one. Only the newest code validates afterwards.
func (s *Service) ResendRegistrationCode(ctx context.Context, email string) (result *models.IssueResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanResend,
		tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(email)),
		tracer.String(tracer.AttrOperation, models.OpRegistration.String()),
	)
	defer func() { span.End(err) }()

	reg, err := s.pending.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.IssueResult{Success: false, Message: "no pending registration for this email address"}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up pending registration")
	}

	now := requesttime.Now(ctx)
	if codes.IsExpired(now, reg.ExpiresAt) {
		return &models.IssueResult{Success: false, Message: "this registration has expired, please sign up again"}, nil
	}

	if err := s.issueCode(ctx, span, identity.ByEmail(email), models.OpRegistration, "", email,
		notify.TemplateRegistrationCode, notify.Data{"name": reg.Name}); err != nil {
		return nil, err
	}

	return &models.IssueResult{
		Success:   true,
		Message:   "a new verification code has been sent to your email address",
		PendingID: &reg.ID,
	}, nil
}

// IssueEmailChangeCode sends a code to the address the user wants to move
// to, and an informational notice to the current address.
func (s *Service) IssueEmailChangeCode(ctx context.Context, userID uuid.UUID, newEmail string) (result *models.IssueResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(userID.String())),
		tracer.String(tracer.AttrOperation, models.OpEmailChange.String()),
	)
	defer func() { span.End(err) }()

	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.IssueResult{Success: false, Message: "account not found"}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	if _, err := s.accounts.FindByEmail(ctx, newEmail); err == nil {
		return &models.IssueResult{Success: false, Message: "this email address is already registered"}, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check new email address")
	}

	if err := s.issueCode(ctx, span, identity.ByUserID(userID), models.OpEmailChange, newEmail, newEmail,
		notify.TemplateEmailChangeCode, nil); err != nil {
		return nil, err
	}

	// Best-effort notice to the current address so the owner learns about a
	// hijack attempt. Failure here never blocks the change flow.
	if err := s.notifier.Notify(ctx, account.Email, notify.TemplateEmailChangeNotice,
		notify.Data{"new_email": newEmail}); err != nil {
		s.logger.WarnContext(ctx, "email change notice delivery failed",
			"user_id", userID.String(),
			"error", err,
		)
	}

	return &models.IssueResult{
		Success: true,
		Message: "a verification code has been sent to the new email address",
	}, nil
}

// IssuePhoneChangeCode sends a code to the user's current email address to
// confirm the new phone number.
func (s *Service) IssuePhoneChangeCode(ctx context.Context, userID uuid.UUID, newPhone string) (result *models.IssueResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrIdentifier, tracer.HashIdentifier(userID.String())),
		tracer.String(tracer.AttrOperation, models.OpPhoneChange.String()),
	)
	defer func() { span.End(err) }()

	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.IssueResult{Success: false, Message: "account not found"}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	if err := s.issueCode(ctx, span, identity.ByUserID(userID), models.OpPhoneChange, newPhone, account.Email,
		notify.TemplatePhoneChangeCode, nil); err != nil {
		return nil, err
	}

	return &models.IssueResult{
		Success: true,
		Message: "a verification code has been sent to your email address",
	}, nil
}

// issueCode is the shared issuing path: it invalidates prior active codes
// for the pair, persists a fresh hashed code, and hands the plaintext to the
// notifier. The code is persisted before delivery is attempted so
// validation works even when delivery fails.
func (s *Service) issueCode(ctx context.Context, span tracer.Span, ident identity.Identifier, op models.OperationType, payload, deliverTo string, template notify.TemplateKind, data notify.Data) error {
	revoked, err := s.codes.InvalidateActive(ctx, ident, op)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate prior codes")
	}
	if revoked > 0 {
		span.AddEvent(tracer.EventPriorCodesRevoked, tracer.Int64("count", revoked))
	}

	plaintext, err := codes.Generate()
	if err != nil {
		return err
	}
	hash, err := codes.Hash(plaintext)
	if err != nil {
		return err
	}

	now := requesttime.Now(ctx)
	code := &models.VerificationCode{
		ID:          uuid.New(),
		Payload:     payload,
		CodeHash:    hash,
		Operation:   op,
		MaxAttempts: s.config.MaxAttempts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.CodeTTL),
	}
	if ident.IsEmail() {
		code.Email = ident.Value()
	} else if userID, ok := ident.UserID(); ok {
		id := userID
		code.UserID = &id
	}

	if err := s.codes.Create(ctx, code); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist verification code")
	}

	if s.metrics != nil {
		s.metrics.IncrementCodesIssued(op.String())
	}

	if data == nil {
		data = notify.Data{}
	}
	data["code"] = plaintext
	if err := s.notifier.Notify(ctx, deliverTo, template, data); err != nil {
		span.AddEvent(tracer.EventDeliveryFailed)
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "verification code delivery failed",
			"identifier", ident.String(),
			"operation", op.String(),
			"error", err,
		)
		if s.echoCodes {
			// Diagnostic channel for environments without real delivery.
			s.logger.WarnContext(ctx, "verification code echo",
				"identifier", ident.String(),
				"operation", op.String(),
				"code", plaintext,
			)
		}
		return nil
	}

	span.AddEvent(tracer.EventCodeDelivered)
	return nil
}
