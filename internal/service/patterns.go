package service

import (
	"context"
	"fmt"

	"github.com/kontoplan/kontoplan/internal/database"
	"github.com/kontoplan/kontoplan/internal/database/repository"
)

// PatternService applies user decisions to detected patterns. Legal
// transitions: detected -> confirmed, detected <-> ignored, and
// detected/confirmed -> paused with resume restoring the prior state.
type PatternService struct {
	Patterns *repository.PatternRepo
}

// Confirm marks a detected pattern as user-confirmed.
func (s *PatternService) Confirm(ctx context.Context, tenantID, id string) error {
	p, err := s.get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if p.Status != repository.StatusDetected {
		return transitionError(p.Status, repository.StatusConfirmed)
	}
	now := database.Now()
	return s.Patterns.UpdateStatus(ctx, tenantID, id, repository.StatusConfirmed, &now)
}

// Ignore excludes a detected pattern from forecasting. Reversible via Unignore.
func (s *PatternService) Ignore(ctx context.Context, tenantID, id string) error {
	p, err := s.get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if p.Status != repository.StatusDetected {
		return transitionError(p.Status, repository.StatusIgnored)
	}
	return s.Patterns.UpdateStatus(ctx, tenantID, id, repository.StatusIgnored, nil)
}

// Unignore returns an ignored pattern to detected.
func (s *PatternService) Unignore(ctx context.Context, tenantID, id string) error {
	p, err := s.get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if p.Status != repository.StatusIgnored {
		return transitionError(p.Status, repository.StatusDetected)
	}
	return s.Patterns.UpdateStatus(ctx, tenantID, id, repository.StatusDetected, nil)
}

// Pause temporarily excludes a detected or confirmed pattern from forecasting.
func (s *PatternService) Pause(ctx context.Context, tenantID, id string) error {
	p, err := s.get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if p.Status != repository.StatusDetected && p.Status != repository.StatusConfirmed {
		return transitionError(p.Status, repository.StatusPaused)
	}
	return s.Patterns.UpdateStatus(ctx, tenantID, id, repository.StatusPaused, nil)
}

// Resume returns a paused pattern to confirmed when it had been confirmed
// before pausing, otherwise to detected.
func (s *PatternService) Resume(ctx context.Context, tenantID, id string) error {
	p, err := s.get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if p.Status != repository.StatusPaused {
		return transitionError(p.Status, "resumed")
	}
	status := repository.StatusDetected
	if p.ConfirmedAt != nil {
		status = repository.StatusConfirmed
	}
	return s.Patterns.UpdateStatus(ctx, tenantID, id, status, nil)
}

func (s *PatternService) get(ctx context.Context, tenantID, id string) (*repository.RecurringPattern, error) {
	p, err := s.Patterns.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("pattern %s not found", id)
	}
	return p, nil
}

func transitionError(from, to string) error {
	return fmt.Errorf("pattern is %s, cannot move to %s", from, to)
}
