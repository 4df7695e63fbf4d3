package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DomainDescriptor is the user-supplied JSON shape for one output domain.
// Pointer fields distinguish "absent" from zero.
type DomainDescriptor struct {
	Name             string    `json:"name"`
	Service          ServiceID `json:"service"`
	PredefinedDomain string    `json:"predefined_domain,omitempty"`

	XInit    *float64 `json:"x_init,omitempty"`
	YInit    *float64 `json:"y_init,omitempty"`
	XEnd     *float64 `json:"x_end,omitempty"`
	YEnd     *float64 `json:"y_end,omitempty"`
	DI       *float64 `json:"di,omitempty"`
	DJ       *float64 `json:"dj,omitempty"`
	NI       *int     `json:"ni,omitempty"`
	NJ       *int     `json:"nj,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`

	Storm          string `json:"storm,omitempty"`
	Basin          string `json:"basin,omitempty"`
	Advisory       string `json:"advisory,omitempty"`
	StormYear      int    `json:"storm_year,omitempty"`
	EnsembleMember string `json:"ensemble_member,omitempty"`

	Tau int `json:"tau,omitempty"`
}

// GridForm tells which way a grid extent was described.
type GridForm int

const (
	GridCorners GridForm = iota
	GridPoints
)

// Grid is a normalized output grid. Both forms carry every field; the
// derived ones are computed from the supplied ones.
type Grid struct {
	Form     GridForm `json:"-" yaml:"-"`
	XInit    float64  `json:"x_init" yaml:"x_init"`
	YInit    float64  `json:"y_init" yaml:"y_init"`
	XEnd     float64  `json:"x_end" yaml:"x_end"`
	YEnd     float64  `json:"y_end" yaml:"y_end"`
	DI       float64  `json:"di" yaml:"di"`
	DJ       float64  `json:"dj" yaml:"dj"`
	NI       int      `json:"ni" yaml:"-"`
	NJ       int      `json:"nj" yaml:"-"`
	Rotation float64  `json:"rotation,omitempty" yaml:"-"`
}

// Domain is a validated domain ready for selection and grid building.
type Domain struct {
	Name     string
	Service  ServiceInfo
	Grid     Grid
	Scope    Scope
	TauFloor int
}

// Resolver turns descriptors into domains.
type Resolver struct {
	predefined map[string]Grid
}

// NewResolver creates a Resolver. A nil map uses DefaultPredefinedDomains.
func NewResolver(predefined map[string]Grid) *Resolver {
	if predefined == nil {
		predefined = DefaultPredefinedDomains()
	}
	return &Resolver{predefined: predefined}
}

// Predefined returns the named grids the resolver accepts, keyed by name.
func (r *Resolver) Predefined() map[string]Grid {
	out := make(map[string]Grid, len(r.predefined))
	for name, g := range r.predefined {
		out[name] = g
	}
	return out
}

// Resolve validates a descriptor. Every violated constraint is reported in one
// *InvalidDomainError. An unregistered service yields ErrUnknownService instead.
func (r *Resolver) Resolve(desc DomainDescriptor) (Domain, error) {
	var v []string

	if strings.TrimSpace(desc.Name) == "" {
		v = append(v, "name is required")
	}

	var service ServiceInfo
	if desc.Service == "" {
		v = append(v, "service is required")
	} else {
		info, err := LookupService(desc.Service)
		if err != nil {
			return Domain{}, fmt.Errorf("domain %s: %w", desc.Name, err)
		}
		service = info
	}

	grid, gv := r.resolveGrid(desc)
	v = append(v, gv...)

	if desc.Tau < 0 {
		v = append(v, fmt.Sprintf("tau must be non-negative, got %d", desc.Tau))
	}

	scope, sv := resolveScope(desc, service)
	v = append(v, sv...)

	if len(v) > 0 {
		return Domain{}, &InvalidDomainError{Name: desc.Name, Violations: v}
	}

	return Domain{
		Name:     desc.Name,
		Service:  service,
		Grid:     grid,
		Scope:    scope,
		TauFloor: desc.Tau,
	}, nil
}

func (r *Resolver) resolveGrid(desc DomainDescriptor) (Grid, []string) {
	if desc.PredefinedDomain != "" {
		var v []string
		if explicit := explicitGridFields(desc); len(explicit) > 0 {
			v = append(v, "predefined_domain cannot be combined with "+strings.Join(explicit, ", "))
		}
		g, ok := r.predefined[strings.ToLower(desc.PredefinedDomain)]
		if !ok {
			v = append(v, fmt.Sprintf("unknown predefined_domain %q", desc.PredefinedDomain))
		}
		if len(v) > 0 {
			return Grid{}, v
		}
		return completeCorners(g), nil
	}

	var v []string
	hasCorners := desc.XEnd != nil || desc.YEnd != nil
	hasPoints := desc.NI != nil || desc.NJ != nil

	if desc.XInit == nil {
		v = append(v, "x_init is required")
	}
	if desc.YInit == nil {
		v = append(v, "y_init is required")
	}
	switch {
	case hasCorners && hasPoints:
		v = append(v, "x_end/y_end and ni/nj are mutually exclusive")
	case !hasCorners && !hasPoints:
		v = append(v, "either x_end/y_end or ni/nj is required")
	}
	if desc.DI == nil {
		v = append(v, "di is required")
	} else if *desc.DI <= 0 {
		v = append(v, fmt.Sprintf("di must be positive, got %g", *desc.DI))
	}
	if desc.DJ != nil && *desc.DJ <= 0 {
		v = append(v, fmt.Sprintf("dj must be positive, got %g", *desc.DJ))
	}
	if desc.Rotation != nil && !hasPoints {
		v = append(v, "rotation is only permitted with ni/nj")
	}

	if hasCorners && !hasPoints {
		if desc.XEnd == nil {
			v = append(v, "x_end is required with y_end")
		}
		if desc.YEnd == nil {
			v = append(v, "y_end is required with x_end")
		}
		if desc.XInit != nil && desc.XEnd != nil && *desc.XEnd <= *desc.XInit {
			v = append(v, fmt.Sprintf("x_end (%g) must be greater than x_init (%g)", *desc.XEnd, *desc.XInit))
		}
		if desc.YInit != nil && desc.YEnd != nil && *desc.YEnd <= *desc.YInit {
			v = append(v, fmt.Sprintf("y_end (%g) must be greater than y_init (%g)", *desc.YEnd, *desc.YInit))
		}
	}
	if hasPoints && !hasCorners {
		if desc.NI == nil {
			v = append(v, "ni is required with nj")
		} else if *desc.NI <= 0 {
			v = append(v, fmt.Sprintf("ni must be positive, got %d", *desc.NI))
		}
		if desc.NJ == nil {
			v = append(v, "nj is required with ni")
		} else if *desc.NJ <= 0 {
			v = append(v, fmt.Sprintf("nj must be positive, got %d", *desc.NJ))
		}
	}
	for _, y := range []*float64{desc.YInit, desc.YEnd} {
		if y != nil && (*y < -90 || *y > 90) {
			v = append(v, fmt.Sprintf("latitude %g is outside [-90, 90]", *y))
		}
	}

	if len(v) > 0 {
		return Grid{}, v
	}

	g := Grid{XInit: *desc.XInit, YInit: *desc.YInit, DI: *desc.DI, DJ: *desc.DI}
	if desc.DJ != nil {
		g.DJ = *desc.DJ
	}
	if hasCorners {
		g.XEnd, g.YEnd = *desc.XEnd, *desc.YEnd
		return completeCorners(g), nil
	}

	g.Form = GridPoints
	g.NI, g.NJ = *desc.NI, *desc.NJ
	if desc.Rotation != nil {
		g.Rotation = *desc.Rotation
	}
	g.XEnd = g.XInit + float64(g.NI-1)*g.DI
	g.YEnd = g.YInit + float64(g.NJ-1)*g.DJ
	return g, nil
}

// completeCorners derives the grid-point counts of a corner-form grid.
func completeCorners(g Grid) Grid {
	g.Form = GridCorners
	if g.DJ == 0 {
		g.DJ = g.DI
	}
	g.NI = int(math.Round((g.XEnd-g.XInit)/g.DI)) + 1
	g.NJ = int(math.Round((g.YEnd-g.YInit)/g.DJ)) + 1
	return g
}

func explicitGridFields(desc DomainDescriptor) []string {
	fields := map[string]bool{
		"x_init":   desc.XInit != nil,
		"y_init":   desc.YInit != nil,
		"x_end":    desc.XEnd != nil,
		"y_end":    desc.YEnd != nil,
		"di":       desc.DI != nil,
		"dj":       desc.DJ != nil,
		"ni":       desc.NI != nil,
		"nj":       desc.NJ != nil,
		"rotation": desc.Rotation != nil,
	}
	var out []string
	for name, set := range fields {
		if set {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func resolveScope(desc DomainDescriptor, service ServiceInfo) (Scope, []string) {
	if service.ID == "" {
		return Scope{}, nil
	}

	var v []string
	require := func(ok bool, field string) {
		if !ok {
			v = append(v, fmt.Sprintf("%s is required for service %s", field, service.ID))
		}
	}
	forbid := func(set bool, field string) {
		if set {
			v = append(v, fmt.Sprintf("%s is not used by service %s", field, service.ID))
		}
	}

	var scope Scope
	switch service.Scope {
	case ScopeNone:
		forbid(desc.Storm != "", "storm")
		forbid(desc.EnsembleMember != "", "ensemble_member")
		forbid(desc.Advisory != "", "advisory")
	case ScopeStorm:
		require(desc.Storm != "", "storm")
		forbid(desc.EnsembleMember != "", "ensemble_member")
		scope.Storm = desc.Storm
	case ScopeEnsemble:
		require(desc.EnsembleMember != "", "ensemble_member")
		if service.StormRequired {
			require(desc.Storm != "", "storm")
			scope.Storm = desc.Storm
		} else {
			forbid(desc.Storm != "", "storm")
		}
		scope.EnsembleMember = desc.EnsembleMember
	case ScopeTrack:
		require(desc.Storm != "", "storm")
		require(desc.Basin != "", "basin")
		require(desc.Advisory != "", "advisory")
		require(desc.StormYear > 0, "storm_year")
		scope = Scope{Storm: desc.Storm, Basin: desc.Basin, Advisory: desc.Advisory, StormYear: desc.StormYear}
	}
	return scope, v
}
