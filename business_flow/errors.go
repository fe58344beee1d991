// Package businessflow contains the core business logic of the boost scheduling engine
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Tariff-related errors
	ErrInvalidModule     = errors.New("invalid boost module")
	ErrTariffNotFound    = errors.New("tariff not found")
	ErrServiceIDRequired = errors.New("service id is required")
	ErrInvalidMinLimit   = errors.New("min limit must be at least 1")
	ErrInvalidPrice      = errors.New("price must not be negative")
	ErrNoTariffs         = errors.New("module has no tariffs configured")

	// Order-related errors
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrTargetLinkRequired    = errors.New("target link is required")
	ErrOrderNotCreated       = errors.New("provider did not create the order")
	ErrOrderPriceUnavailable = errors.New("order price unavailable")

	// Demand-related errors
	ErrDemandNotFound     = errors.New("boost demand not found")
	ErrDemandNotRunning   = errors.New("boost demand is not running")
	ErrRefIDRequired      = errors.New("reference id is required")
	ErrInvalidBucketType  = errors.New("invalid bucket type")
	ErrInvalidTimeZone    = errors.New("invalid time zone")
	ErrDemandWindowClosed = errors.New("boost window has already elapsed")

	// Report errors
	ErrInvalidPeriod         = errors.New("period must be week or month")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsInvalidModule(err error) bool {
	return errors.Is(err, ErrInvalidModule)
}

func IsTariffNotFound(err error) bool {
	return errors.Is(err, ErrTariffNotFound)
}

func IsServiceIDRequired(err error) bool {
	return errors.Is(err, ErrServiceIDRequired)
}

func IsInvalidMinLimit(err error) bool {
	return errors.Is(err, ErrInvalidMinLimit)
}

func IsInvalidPrice(err error) bool {
	return errors.Is(err, ErrInvalidPrice)
}

func IsNoTariffs(err error) bool {
	return errors.Is(err, ErrNoTariffs)
}

func IsInvalidQuantity(err error) bool {
	return errors.Is(err, ErrInvalidQuantity)
}

func IsTargetLinkRequired(err error) bool {
	return errors.Is(err, ErrTargetLinkRequired)
}

func IsOrderNotCreated(err error) bool {
	return errors.Is(err, ErrOrderNotCreated)
}

func IsOrderPriceUnavailable(err error) bool {
	return errors.Is(err, ErrOrderPriceUnavailable)
}

func IsDemandNotFound(err error) bool {
	return errors.Is(err, ErrDemandNotFound)
}

func IsDemandNotRunning(err error) bool {
	return errors.Is(err, ErrDemandNotRunning)
}

func IsRefIDRequired(err error) bool {
	return errors.Is(err, ErrRefIDRequired)
}

func IsInvalidBucketType(err error) bool {
	return errors.Is(err, ErrInvalidBucketType)
}

func IsInvalidTimeZone(err error) bool {
	return errors.Is(err, ErrInvalidTimeZone)
}

func IsDemandWindowClosed(err error) bool {
	return errors.Is(err, ErrDemandWindowClosed)
}

func IsInvalidPeriod(err error) bool {
	return errors.Is(err, ErrInvalidPeriod)
}

func IsStartDateAfterEndDate(err error) bool {
	return errors.Is(err, ErrStartDateAfterEndDate)
}
