package main

import (
	"errors"
	"net/http"

	"cshop/src/common"
)

// statusFor maps engine errors onto HTTP statuses so every handler reports
// the same way.
func statusFor(err error) int {
	var stock *common.InsufficientStockError
	var fraud *common.FraudError
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrDuplicateLiveSession),
		errors.Is(err, common.ErrAlreadyAdvanced),
		errors.Is(err, common.ErrConcurrentTransition),
		errors.Is(err, common.ErrDuplicateImage):
		return http.StatusConflict
	case errors.Is(err, common.ErrOrderNotEligible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &stock):
		return http.StatusConflict
	case errors.As(err, &fraud):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
