package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateLiveSession = errors.New("order already has a live payment session")
	ErrConcurrentTransition = errors.New("session was advanced by a concurrent actor")
	ErrAlreadyAdvanced      = errors.New("order already advanced past pending")
	ErrStoreUnavailable     = errors.New("session store unavailable")
	ErrDuplicateImage       = errors.New("image already submitted for another order")
	ErrFileTooLarge         = errors.New("file exceeds the upload size limit")
	ErrUnsupportedType      = errors.New("unsupported file type")
	ErrOrderNotEligible     = errors.New("order is not eligible for this operation")
)

// InsufficientStockError reports the first product that could not cover the
// requested quantity. Checkout is all or nothing, so one is enough.
type InsufficientStockError struct {
	ProductID uint
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d has only %d units in stock", e.ProductID, e.Available)
}

// FraudError rejects a screenshot whose verification score fell below the
// acceptance floor.
type FraudError struct {
	Score   float64
	Reasons []string
}

func (e *FraudError) Error() string {
	return fmt.Sprintf("screenshot rejected with score %.2f: %s", e.Score, strings.Join(e.Reasons, "; "))
}
