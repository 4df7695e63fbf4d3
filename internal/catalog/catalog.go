// Package catalog stores and queries the per-service file catalog.
package catalog

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/metget-build-service/internal/domain"
)

// checkRecord validates a record for ingestion and derives its tau.
func checkRecord(rec domain.CatalogRecord) (domain.CatalogRecord, error) {
	if _, err := domain.LookupService(rec.Service); err != nil {
		return rec, err
	}
	if rec.Filepath == "" {
		return rec, errors.New("catalog: record has no filepath")
	}
	if rec.Cycle.IsZero() || rec.ValidTime.IsZero() {
		return rec, errors.New("catalog: record needs both cycle and valid_time")
	}
	if rec.ValidTime.Before(rec.Cycle) {
		return rec, fmt.Errorf("catalog: valid_time %s is before cycle %s", rec.ValidTime, rec.Cycle)
	}
	rec.Cycle = rec.Cycle.UTC()
	rec.ValidTime = rec.ValidTime.UTC()
	rec.Tau = domain.TauBetween(rec.Cycle, rec.ValidTime)
	return rec, nil
}

func trackNotFound(service domain.ServiceID, scope domain.Scope) error {
	return fmt.Errorf("%w: %s advisory %s for %s %s %d",
		domain.ErrEmptyResult, service, scope.Advisory, scope.Basin, scope.Storm, scope.StormYear)
}
