package service

import (
	"context"

	"verity/internal/identity"
	"verity/internal/security/models"
	"verity/pkg/requesttime"
)

// Read-only audit surface for operational tooling. Every query here fails
// closed: a storage error is logged and an empty or zero result is returned,
// never an error to the caller.

// EventsByIdentifier returns the identifier's audit trail, newest first,
// optionally filtered by kind and capped at limit (0 means no cap).
func (s *Service) EventsByIdentifier(ctx context.Context, ident identity.Identifier, kind *models.EventKind, limit int) []*models.SecurityEvent {
	events, err := s.events.ListByIdentifier(ctx, ident, kind, limit)
	if err != nil {
		s.logger.WarnContext(ctx, "audit query failed, returning empty result",
			"identifier", ident.String(),
			"error", err,
		)
		return []*models.SecurityEvent{}
	}
	if events == nil {
		events = []*models.SecurityEvent{}
	}
	return events
}

// EventsByKind returns events of one kind across all identifiers, newest first.
func (s *Service) EventsByKind(ctx context.Context, kind models.EventKind, limit int) []*models.SecurityEvent {
	events, err := s.events.ListByKind(ctx, kind, limit)
	if err != nil {
		s.logger.WarnContext(ctx, "audit query failed, returning empty result",
			"kind", string(kind),
			"error", err,
		)
		return []*models.SecurityEvent{}
	}
	if events == nil {
		events = []*models.SecurityEvent{}
	}
	return events
}

// RecentFailures returns the most recent n verification failures.
func (s *Service) RecentFailures(ctx context.Context, n int) []*models.SecurityEvent {
	return s.EventsByKind(ctx, models.EventVerificationFailed, n)
}

// Stats aggregates the identifier's audit trail: totals by kind, current
// lock state, and the last lock time.
func (s *Service) Stats(ctx context.Context, ident identity.Identifier) *models.IdentifierStats {
	stats := &models.IdentifierStats{
		Identifier:   ident.String(),
		TotalsByKind: map[models.EventKind]int{},
	}

	totals, err := s.events.CountsByKind(ctx, ident)
	if err != nil {
		s.logger.WarnContext(ctx, "audit stats query failed, returning zero result",
			"identifier", ident.String(),
			"error", err,
		)
		return stats
	}
	stats.TotalsByKind = totals

	record, err := s.lockouts.Get(ctx, ident.String())
	if err != nil {
		s.logger.WarnContext(ctx, "lockout lookup failed in stats, reporting unlocked",
			"identifier", ident.String(),
			"error", err,
		)
		return stats
	}
	if record != nil {
		stats.CurrentlyLocked = record.Locked(requesttime.Now(ctx))
		lockedAt := record.LockedAt
		stats.LastLockedAt = &lockedAt
	}
	return stats
}
