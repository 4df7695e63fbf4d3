// Command selectcheck runs the file selection for every domain of a build
// request against a catalog database and checks the result: ordering, window
// containment, lead-time floor, cycle consistency, rainfall exclusion and
// coverage. It prints the selected files and a pass/fail summary without
// touching storage or producing output.
//
// Usage:
//
//	go run ./cmd/selectcheck -db metget.db -request request.json
//	go run ./cmd/selectcheck -db metget.db -request request.json -all-policies
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/couchcryptid/metget-build-service/internal/catalog"
	"github.com/couchcryptid/metget-build-service/internal/domain"
	"github.com/couchcryptid/metget-build-service/internal/selection"
)

// phase tracks pass/fail for a check phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dbPath := flag.String("db", "metget.db", "catalog database path")
	reqPath := flag.String("request", "", "build request JSON file")
	domainsFile := flag.String("domains", "", "optional YAML file of extra predefined domains")
	allPolicies := flag.Bool("all-policies", false, "check every policy, not just the one the request implies")
	flag.Parse()

	if *reqPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dbPath, *reqPath, *domainsFile, *allPolicies); code != 0 {
		os.Exit(code)
	}
}

func run(dbPath, reqPath, domainsFile string, allPolicies bool) int {
	fmt.Println("=== MetGet Selection Check ===")
	fmt.Println()

	req, err := loadRequest(reqPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load request: %v\n", err)
		return 1
	}
	if problems := req.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "FATAL: %s\n", p)
		}
		return 1
	}

	predefined, err := domain.LoadPredefinedDomains(domainsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	resolver := domain.NewResolver(predefined)

	ctx := context.Background()
	cat, err := catalog.Open(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open catalog: %v\n", err)
		return 1
	}
	defer cat.Close()

	engine := selection.NewEngine(cat, slog.New(slog.NewTextHandler(io.Discard, nil)))

	policies := []domain.Policy{req.Policy()}
	if allPolicies {
		policies = []domain.Policy{domain.PolicyNowcast, domain.PolicySingleForecast, domain.PolicyMultiForecast}
	}

	// ── Select and check every domain ──
	var phases []*phase
	for _, desc := range req.Domains {
		d, err := resolver.Resolve(desc)
		if err != nil {
			p := &phase{name: fmt.Sprintf("%s: resolve", desc.Name)}
			p.errorf("%v", err)
			phases = append(phases, p)
			continue
		}
		for _, policy := range policies {
			phases = append(phases, checkDomain(ctx, engine, cat, req, d, policy))
		}
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nCheck FAILED.")
	return 1
}

func loadRequest(p string) (domain.BuildRequest, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return domain.BuildRequest{}, err
	}
	return domain.ParseBuildRequest(domain.RawMessage{Key: []byte(path.Base(p)), Value: data})
}

func checkDomain(ctx context.Context, engine *selection.Engine, cat *catalog.SQLite, req domain.BuildRequest, d domain.Domain, policy domain.Policy) *phase {
	p := &phase{name: fmt.Sprintf("%s: %s (%s)", d.Name, d.Service.ID, policy)}

	var (
		sel domain.Selection
		err error
	)
	if d.Service.Scope == domain.ScopeTrack {
		var rec domain.CatalogRecord
		rec, err = cat.LookupTrack(ctx, d.Service.ID, d.Scope)
		sel = domain.Selection{rec}
	} else {
		sel, err = engine.Select(ctx, domain.SelectionRequest{
			Service:     d.Service,
			Scope:       d.Scope,
			WindowStart: req.StartDate,
			WindowEnd:   req.EndDate,
			TauFloor:    d.TauFloor,
			Policy:      policy,
			DataType:    req.DataType,
		})
	}
	if errors.Is(err, domain.ErrEmptyResult) {
		fmt.Printf("%s: no data\n", p.name)
		if req.Strict {
			p.errorf("%v", err)
		}
		return p
	}
	if err != nil {
		p.errorf("select: %v", err)
		return p
	}

	fmt.Printf("%s: %d files\n", p.name, len(sel))
	for _, rec := range sel {
		fmt.Printf("    %s  cycle %s  tau %3d  %s\n",
			rec.ValidTime.Format("2006-01-02T15Z"), rec.Cycle.Format("2006-01-02T15Z"), rec.Tau, rec.Filepath)
	}
	if d.Service.Scope == domain.ScopeTrack {
		return p
	}

	checkOrdering(p, sel)
	checkWindow(p, sel, req)
	checkLeadTimes(p, sel, d, policy)
	checkRainfall(p, sel, d, req.DataType, policy)
	if req.Strict {
		for _, g := range selection.Gaps(sel, req.StartDate, req.EndDate, d.Service.TimeStep) {
			p.errorf("coverage gap %s", g)
		}
	}
	return p
}

func checkOrdering(p *phase, sel domain.Selection) {
	for i := 1; i < len(sel); i++ {
		if !sel[i-1].ValidTime.Before(sel[i].ValidTime) {
			p.errorf("valid times out of order or repeated at %s", sel[i].ValidTime.Format("2006-01-02T15Z"))
		}
	}
}

func checkWindow(p *phase, sel domain.Selection, req domain.BuildRequest) {
	for _, rec := range sel {
		if rec.ValidTime.Before(req.StartDate) || rec.ValidTime.After(req.EndDate) {
			p.errorf("%s outside window", rec.ValidTime.Format("2006-01-02T15Z"))
		}
	}
}

func checkLeadTimes(p *phase, sel domain.Selection, d domain.Domain, policy domain.Policy) {
	for _, rec := range sel {
		switch {
		case policy == domain.PolicyNowcast && rec.Tau != 0:
			p.errorf("nowcast selected tau %d at %s", rec.Tau, rec.ValidTime.Format("2006-01-02T15Z"))
		case policy != domain.PolicyNowcast && rec.Tau < d.TauFloor:
			p.errorf("tau %d below floor %d at %s", rec.Tau, d.TauFloor, rec.ValidTime.Format("2006-01-02T15Z"))
		}
	}
	// Without a floor a single forecast never borrows from another cycle.
	if policy == domain.PolicySingleForecast && d.TauFloor == 0 && len(sel) > 0 {
		for _, rec := range sel {
			if !rec.Cycle.Equal(sel[0].Cycle) {
				p.errorf("single forecast mixes cycles %s and %s",
					sel[0].Cycle.Format("2006-01-02T15Z"), rec.Cycle.Format("2006-01-02T15Z"))
				return
			}
		}
	}
}

func checkRainfall(p *phase, sel domain.Selection, d domain.Domain, dataType domain.DataType, policy domain.Policy) {
	if !d.Service.ZeroHourRainfall || dataType != domain.DataRain || policy == domain.PolicyNowcast {
		return
	}
	for _, rec := range sel {
		if rec.IsZeroHour() {
			p.errorf("zero-hour rainfall file selected at %s", rec.ValidTime.Format("2006-01-02T15Z"))
		}
	}
}
