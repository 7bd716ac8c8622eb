// Package source syncs the on-disk YAML source catalog into the
// sources table and selects which sources are due for a crawl.
package source

import "errors"

var (
	// ErrSourceNotFound indicates that the requested source was not found.
	ErrSourceNotFound = errors.New("source not found")

	// ErrDuplicateIdentifier indicates two catalog entries share an identifier.
	ErrDuplicateIdentifier = errors.New("duplicate source identifier in catalog")
)
