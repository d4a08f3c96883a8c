package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrSlotTaken means another active booking holds the slot claim.
	ErrSlotTaken = errors.New("time slot is no longer available")

	ErrClassFull = errors.New("class is full")

	ErrNotAClass = errors.New("booking is not a class")

	// ErrStatusChanged is returned by conditional writes whose expected
	// status no longer matches the stored record.
	ErrStatusChanged = errors.New("booking status changed concurrently")
)
