package lexrag

import "errors"

var (
	// ErrSourceExists is returned when adding a source whose name is taken.
	ErrSourceExists = errors.New("source already exists")

	// ErrSourceNotFound is returned when a named source does not exist.
	ErrSourceNotFound = errors.New("source not found")
)
