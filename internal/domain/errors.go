package domain

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyResult means the window produced no candidate records after filtering.
	ErrEmptyResult = errors.New("no catalog records for the requested window")

	// ErrInsufficientData means a selection exists but does not cover the window.
	ErrInsufficientData = errors.New("insufficient data for the requested window")

	// ErrRestorePending means source files must come back from cold storage first.
	ErrRestorePending = errors.New("restore from cold storage pending")

	// ErrUnknownService means the service id has no registry entry.
	ErrUnknownService = errors.New("unknown service")
)

// InvalidDomainError lists every constraint a domain descriptor violates.
type InvalidDomainError struct {
	Name       string
	Violations []string
}

func (e *InvalidDomainError) Error() string {
	prefix := "invalid domain"
	if e.Name != "" {
		prefix += " " + e.Name
	}
	return prefix + ": " + strings.Join(e.Violations, "; ")
}
