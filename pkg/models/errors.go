package models

import "errors"

var (
	// ErrNotFound is returned when a referenced document, module or conflict does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for empty or unusable input; no partial result is produced
	ErrInvalidInput = errors.New("invalid input")

	// ErrOracleParse is returned when generation output does not match the expected schema
	ErrOracleParse = errors.New("oracle response did not match schema")

	// ErrOracleUnavailable is returned when an oracle answers with a non-success response
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrDuplicateModuleKey is returned when a decomposition produces the same key twice
	ErrDuplicateModuleKey = errors.New("duplicate module key")

	// ErrAlreadyExists is returned by stores when an active record already covers a conflict pair
	ErrAlreadyExists = errors.New("already exists")
)
