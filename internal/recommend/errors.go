package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidInput       = errors.New("invalid_input")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInvalidScore       = errors.New("invalid_score")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// storeError folds storage failures into ErrServiceUnavailable. Domain
// errors raised by a store (ErrNotFound) pass through unchanged.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrServiceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrServiceUnavailable, err)
}

func checkScore(productID string, score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return fmt.Errorf("%w: product %s scored %v", ErrInvalidScore, productID, score)
	}
	return nil
}
