package service

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/store"
)

var (
	ErrAgentNotFound      = fmt.Errorf("agent %w", domain.ErrNotFound)
	ErrAgentConflict      = fmt.Errorf("agent with this handle %w", domain.ErrConflict)
	ErrMemoryNotFound     = fmt.Errorf("memory %w", domain.ErrNotFound)
	ErrReflectionNotFound = fmt.Errorf("reflection %w", domain.ErrNotFound)
	ErrQueryEmpty         = fmt.Errorf("%w: query is required", domain.ErrValidation)
	ErrInvalidTrigger     = fmt.Errorf("%w: invalid reflection trigger", domain.ErrValidation)
	ErrInvalidLimit       = fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, MaxSearchLimit)
	ErrInvalidThreshold   = fmt.Errorf("%w: threshold must be between 0 and 1", domain.ErrValidation)
	ErrInvalidKind        = fmt.Errorf("%w: invalid memory kind", domain.ErrValidation)
	ErrInvalidTier        = fmt.Errorf("%w: invalid memory tier", domain.ErrValidation)
)

// storeErr tags a collaborator failure as a store failure, keeping the cause.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
}

func generationErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrGeneration, op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, domain.ErrNotFound)
}
