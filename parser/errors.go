package parser

import "errors"

var (
	// ErrInvalidInput is returned for lines that are not "<digits>,<payload>".
	ErrInvalidInput = errors.New("invalid input")
	// ErrFormatMismatch is returned when an extended payload cannot be split into its fields.
	ErrFormatMismatch = errors.New("format mismatch")
	// ErrConversion is returned when a value required for dispatch cannot be derived.
	ErrConversion = errors.New("conversion failed")
)
