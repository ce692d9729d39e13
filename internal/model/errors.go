package model

import "errors"

var (
	// ErrDataUnavailable means the transaction store could not be read.
	ErrDataUnavailable = errors.New("transaction data unavailable")
	// ErrInsufficientData means a ratio was requested over an empty record set.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidCredential means the caller identity could not be verified.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrPersistenceFailure means an alert could not be stored.
	ErrPersistenceFailure = errors.New("alert persistence failed")
	// ErrDeliveryFailure means a notification could not be delivered.
	ErrDeliveryFailure = errors.New("notification delivery failed")
)
