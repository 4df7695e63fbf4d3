// Package build turns one build request into a forcing dataset: resolve each
// domain, select its files, make sure they are out of cold storage, fetch
// them, and hand them to the output stage.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
	"github.com/couchcryptid/metget-build-service/internal/forcing"
	"github.com/couchcryptid/metget-build-service/internal/observability"
	"github.com/couchcryptid/metget-build-service/internal/selection"
	"github.com/couchcryptid/metget-build-service/internal/storage"
)

// Selector runs the temporal selection for one domain.
type Selector interface {
	Select(ctx context.Context, req domain.SelectionRequest) (domain.Selection, error)
}

// Catalog is the part of the catalog store the handler uses directly.
type Catalog interface {
	LookupTrack(ctx context.Context, service domain.ServiceID, scope domain.Scope) (domain.CatalogRecord, error)
	MarkAccessed(ctx context.Context, service domain.ServiceID, ids []int64, at time.Time) error
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Resolver     *domain.Resolver
	Selector     Selector
	Catalog      Catalog
	Store        storage.ObjectStore
	Interpolator forcing.Interpolator
	WorkDir      string
	OutputDir    string
	Logger       *slog.Logger
	Metrics      *observability.Metrics
}

// Handler processes build requests. Domains within a request are handled
// sequentially; separate requests may run concurrently.
type Handler struct {
	Deps
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d}
}

// plan is one domain's resolved selection.
type plan struct {
	domain    domain.Domain
	selection domain.Selection
}

// Handle runs a request to a terminal status: completed, error or restore.
func (h *Handler) Handle(ctx context.Context, req domain.BuildRequest) domain.StatusUpdate {
	log := h.Logger.With("request_id", req.RequestID)
	log.Info("build started",
		"domains", len(req.Domains),
		"policy", req.Policy().String(),
		"start", req.StartDate,
		"end", req.EndDate,
	)

	update := h.handle(ctx, req, log)

	h.Metrics.RequestOutcomes.WithLabelValues(string(update.Status)).Inc()
	log.Info("build finished", "status", update.Status, "messages", len(update.Messages))
	return update
}

func (h *Handler) handle(ctx context.Context, req domain.BuildRequest, log *slog.Logger) domain.StatusUpdate {
	if problems := req.Validate(); len(problems) > 0 {
		return domain.NewStatus(req.RequestID, domain.StatusError, problems...)
	}

	domains, problems := h.resolve(req)
	if len(problems) > 0 {
		return domain.NewStatus(req.RequestID, domain.StatusError, problems...)
	}

	plans, warnings, err := h.selectAll(ctx, req, domains, log)
	if err != nil {
		return domain.NewStatus(req.RequestID, domain.StatusError, err.Error())
	}
	if len(warnings) > 0 && (req.Strict || len(plans) == 0) {
		return domain.NewStatus(req.RequestID, domain.StatusError, warnings...)
	}

	pending, missing, err := h.checkStorage(ctx, plans, log)
	if err != nil {
		return domain.NewStatus(req.RequestID, domain.StatusError, err.Error())
	}
	if len(missing) > 0 {
		msgs := make([]string, len(missing))
		for i, m := range missing {
			msgs[i] = "source file missing from storage: " + m
		}
		return domain.NewStatus(req.RequestID, domain.StatusError, msgs...)
	}
	if pending > 0 {
		return domain.NewStatus(req.RequestID, domain.StatusRestore,
			fmt.Sprintf("%v: %d source files are being restored", domain.ErrRestorePending, pending))
	}

	manifest := &domain.Manifest{
		Input:       req.Input,
		InputFiles:  inputFiles(plans),
		OutputFiles: []string{},
	}

	if !req.DryRun {
		outputs, err := h.produce(ctx, req, plans)
		if err != nil {
			return domain.NewStatus(req.RequestID, domain.StatusError, append(warnings, err.Error())...)
		}
		manifest.OutputFiles = outputs

		if _, err := forcing.WriteManifest(filepath.Join(h.OutputDir, req.RequestID), *manifest); err != nil {
			return domain.NewStatus(req.RequestID, domain.StatusError, append(warnings, err.Error())...)
		}
		h.markAccessed(ctx, plans, log)
	}

	update := domain.NewStatus(req.RequestID, domain.StatusCompleted, warnings...)
	update.Manifest = manifest
	return update
}

// resolve validates every domain and collects every problem.
func (h *Handler) resolve(req domain.BuildRequest) ([]domain.Domain, []string) {
	var (
		domains  []domain.Domain
		problems []string
	)
	for _, desc := range req.Domains {
		d, err := h.Resolver.Resolve(desc)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		domains = append(domains, d)
	}
	return domains, problems
}

// selectAll runs the selection for each domain in order. Domains without
// data (or, in strict mode, with gaps) come back as warnings; anything else
// is a hard failure.
func (h *Handler) selectAll(ctx context.Context, req domain.BuildRequest, domains []domain.Domain, log *slog.Logger) ([]plan, []string, error) {
	var (
		plans    []plan
		warnings []string
	)
	policy := req.Policy()

	for _, d := range domains {
		sel, err := h.selectDomain(ctx, req, d, policy)
		if errors.Is(err, domain.ErrEmptyResult) {
			log.Warn("domain has no data", "domain", d.Name, "service", d.Service.ID, "error", err)
			warnings = append(warnings, fmt.Sprintf("domain %s: %v", d.Name, err))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("domain %s: %w", d.Name, err)
		}

		if req.Strict && d.Service.Scope != domain.ScopeTrack {
			if err := selection.CheckCoverage(sel, req.StartDate, req.EndDate, d.Service.TimeStep); err != nil {
				warnings = append(warnings, fmt.Sprintf("domain %s: %v", d.Name, err))
				continue
			}
		}

		log.Debug("domain selected", "domain", d.Name, "service", d.Service.ID, "files", len(sel))
		plans = append(plans, plan{domain: d, selection: sel})
	}
	return plans, warnings, nil
}

func (h *Handler) selectDomain(ctx context.Context, req domain.BuildRequest, d domain.Domain, policy domain.Policy) (domain.Selection, error) {
	if d.Service.Scope == domain.ScopeTrack {
		rec, err := h.Catalog.LookupTrack(ctx, d.Service.ID, d.Scope)
		if err != nil {
			return nil, err
		}
		return domain.Selection{rec}, nil
	}

	start := time.Now()
	sel, err := h.Selector.Select(ctx, domain.SelectionRequest{
		Service:     d.Service,
		Scope:       d.Scope,
		WindowStart: req.StartDate,
		WindowEnd:   req.EndDate,
		TauFloor:    d.TauFloor,
		Policy:      policy,
		DataType:    req.DataType,
	})
	h.Metrics.SelectionDuration.WithLabelValues(policy.String()).Observe(time.Since(start).Seconds())
	if err == nil {
		h.Metrics.SelectionRecords.WithLabelValues(policy.String()).Observe(float64(len(sel)))
	}
	return sel, err
}

// checkStorage looks at every selected file across every domain before
// deciding, so one restoring domain holds back the whole request. Cold files
// get a restore request; files already restoring are just counted.
func (h *Handler) checkStorage(ctx context.Context, plans []plan, log *slog.Logger) (int, []string, error) {
	var (
		pending int
		missing []string
	)
	for _, p := range plans {
		for _, rec := range p.selection {
			state, err := h.Store.Status(ctx, rec.Filepath)
			if err != nil {
				return 0, nil, fmt.Errorf("domain %s: %w", p.domain.Name, err)
			}
			switch state {
			case storage.StateHot:
			case storage.StateCold:
				if err := h.Store.RequestRestore(ctx, rec.Filepath); err != nil {
					return 0, nil, fmt.Errorf("domain %s: %w", p.domain.Name, err)
				}
				log.Info("restore requested", "domain", p.domain.Name, "file", rec.Filepath)
				pending++
			case storage.StateRestoring:
				pending++
			default:
				missing = append(missing, rec.Filepath)
			}
		}
	}
	return pending, missing, nil
}

// produce fetches every domain's files and runs the output stage. Raw
// requests get the fetched files themselves as output, laid out under the
// domain name by catalog key.
func (h *Handler) produce(ctx context.Context, req domain.BuildRequest, plans []plan) ([]string, error) {
	outDir := filepath.Join(h.OutputDir, req.RequestID)

	if req.Format == domain.FormatRaw {
		var outputs []string
		for _, p := range plans {
			for _, rec := range p.selection {
				local, err := h.Store.Fetch(ctx, rec.Filepath, filepath.Join(outDir, p.domain.Name))
				if err != nil {
					return nil, fmt.Errorf("domain %s: %w", p.domain.Name, err)
				}
				rel, err := filepath.Rel(outDir, local)
				if err != nil {
					return nil, fmt.Errorf("domain %s: %w", p.domain.Name, err)
				}
				outputs = append(outputs, filepath.ToSlash(rel))
			}
		}
		return outputs, nil
	}

	work := filepath.Join(h.WorkDir, req.RequestID)
	defer os.RemoveAll(work)

	job := forcing.Job{
		RequestID: req.RequestID,
		Filename:  req.Filename,
		Format:    req.Format,
		DataType:  req.DataType,
		Start:     req.StartDate,
		End:       req.EndDate,
		TimeStep:  req.TimeStep,
		OutputDir: outDir,
	}
	for _, p := range plans {
		in := forcing.DomainInput{
			Name:    p.domain.Name,
			Service: p.domain.Service.ID,
			Grid:    p.domain.Grid,
			Times:   p.selection.ValidTimes(),
		}
		for _, rec := range p.selection {
			local, err := h.Store.Fetch(ctx, rec.Filepath, filepath.Join(work, p.domain.Name))
			if err != nil {
				return nil, fmt.Errorf("domain %s: %w", p.domain.Name, err)
			}
			in.Files = append(in.Files, local)
		}
		job.Domains = append(job.Domains, in)
	}

	outputs, err := h.Interpolator.Interpolate(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("build output: %w", err)
	}
	return outputs, nil
}

func (h *Handler) markAccessed(ctx context.Context, plans []plan, log *slog.Logger) {
	now := domain.Now()
	for _, p := range plans {
		if err := h.Catalog.MarkAccessed(ctx, p.domain.Service.ID, p.selection.IDs(), now); err != nil {
			log.Warn("mark accessed failed", "domain", p.domain.Name, "error", err)
		}
	}
}

func inputFiles(plans []plan) map[string][]string {
	out := make(map[string][]string, len(plans))
	for _, p := range plans {
		names := make([]string, len(p.selection))
		for i, rec := range p.selection {
			names[i] = path.Base(rec.Filepath)
		}
		out[p.domain.Name] = names
	}
	return out
}
