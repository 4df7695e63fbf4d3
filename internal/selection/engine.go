// Package selection resolves a domain's time window into the ordered list of
// catalog files that downstream interpolation treats as ground truth.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
)

// Catalog is the read side of the catalog store the engine depends on.
type Catalog interface {
	// Cycles returns the distinct cycles having at least one record that
	// matches the filter, ascending.
	Cycles(ctx context.Context, f domain.Filter) ([]time.Time, error)

	// LatestByValidTime returns, for every valid time matching the filter,
	// the record with the greatest ingestion id, ordered by valid time.
	LatestByValidTime(ctx context.Context, f domain.Filter) ([]domain.CatalogRecord, error)
}

// errTrackService is returned when a track-scoped service reaches the
// temporal engine; those are resolved by exact advisory lookup instead.
var errTrackService = errors.New("track services have no temporal selection")

// Engine runs the assembly policies against a Catalog. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewEngine creates an Engine reading from c.
func NewEngine(c Catalog, logger *slog.Logger) *Engine {
	return &Engine{catalog: c, logger: logger}
}

// Select returns the ordered selection for req, or an error wrapping
// domain.ErrEmptyResult when nothing qualifies. Partial coverage is not an
// error here; see CheckCoverage.
func (e *Engine) Select(ctx context.Context, req domain.SelectionRequest) (domain.Selection, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("select %s: %w", req.Service.ID, err)
	}
	if req.Service.Scope == domain.ScopeTrack {
		return nil, fmt.Errorf("select %s: %w", req.Service.ID, errTrackService)
	}

	var (
		sel domain.Selection
		err error
	)
	switch req.Policy {
	case domain.PolicyNowcast:
		sel, err = e.nowcast(ctx, req)
	case domain.PolicyMultiForecast:
		sel, err = e.multiForecast(ctx, req)
	default:
		sel, err = e.singleForecast(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s %s: %w", req.Service.ID, req.Policy, err)
	}

	if len(sel) == 0 {
		return nil, fmt.Errorf("%w: service %s, policy %s, %s to %s, tau >= %d",
			domain.ErrEmptyResult, req.Service.ID, req.Policy,
			req.WindowStart.Format(time.RFC3339), req.WindowEnd.Format(time.RFC3339), req.TauFloor)
	}

	e.logger.Debug("selection complete",
		"service", req.Service.ID,
		"policy", req.Policy.String(),
		"records", len(sel),
		"first", sel[0].ValidTime,
		"last", sel[len(sel)-1].ValidTime,
	)
	return sel, nil
}

func baseFilter(req domain.SelectionRequest) domain.Filter {
	return domain.Filter{
		Service: req.Service.ID,
		Scope:   req.Scope,
		Start:   req.WindowStart,
		End:     req.WindowEnd,
	}
}

// nowcast stitches every cycle's analysis (tau 0) into one series.
func (e *Engine) nowcast(ctx context.Context, req domain.SelectionRequest) (domain.Selection, error) {
	zero := 0
	f := baseFilter(req)
	f.Tau = &zero

	recs, err := e.catalog.LatestByValidTime(ctx, f)
	if err != nil {
		return nil, err
	}
	return normalize(recs, req.WindowStart, req.WindowEnd), nil
}

// multiForecast takes, per valid time, the latest-ingested record at or past
// the tau floor from any cycle.
func (e *Engine) multiForecast(ctx context.Context, req domain.SelectionRequest) (domain.Selection, error) {
	f := baseFilter(req)
	f.MinTau = req.TauFloor
	f.ExcludeZeroHour = req.ExcludeZeroHour()

	recs, err := e.catalog.LatestByValidTime(ctx, f)
	if err != nil {
		return nil, err
	}
	return normalize(recs, req.WindowStart, req.WindowEnd), nil
}

// singleForecast uses the earliest qualifying cycle. With a positive tau
// floor, instants that cycle cannot supply are patched from the
// multi-forecast series.
func (e *Engine) singleForecast(ctx context.Context, req domain.SelectionRequest) (domain.Selection, error) {
	f := baseFilter(req)
	f.MinTau = req.TauFloor
	f.ExcludeZeroHour = req.ExcludeZeroHour()

	cycles, err := e.catalog.Cycles(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}

	f.Cycle = cycles[0]
	recs, err := e.catalog.LatestByValidTime(ctx, f)
	if err != nil {
		return nil, err
	}
	primary := normalize(recs, req.WindowStart, req.WindowEnd)

	if req.TauFloor == 0 {
		return primary, nil
	}

	fallback, err := e.multiForecast(ctx, req)
	if err != nil {
		return nil, err
	}
	merged := MergeFallback(primary, fallback)
	if added := len(merged) - len(primary); added > 0 {
		e.logger.Debug("single forecast patched from other cycles",
			"service", req.Service.ID,
			"cycle", f.Cycle,
			"patched", added,
		)
	}
	return merged, nil
}
