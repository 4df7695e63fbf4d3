package domain

import (
	"fmt"
	"sort"
	"time"
)

// ServiceID names an upstream model or product.
type ServiceID string

const (
	ServiceGFS        ServiceID = "gfs-ncep"
	ServiceNAM        ServiceID = "nam-ncep"
	ServiceHWRF       ServiceID = "hwrf"
	ServiceCOAMPS     ServiceID = "coamps-tc"
	ServiceCTCX       ServiceID = "coamps-ctcx"
	ServiceGEFS       ServiceID = "gefs-ncep"
	ServiceHRRR       ServiceID = "hrrr-conus"
	ServiceHRRRAlaska ServiceID = "hrrr-alaska"
	ServiceWPC        ServiceID = "wpc-ncep"
	ServiceNHC        ServiceID = "nhc"
)

// ScopeKind describes which Scope fields a service's catalog rows carry.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeStorm
	ScopeEnsemble
	ScopeTrack
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeStorm:
		return "storm"
	case ScopeEnsemble:
		return "ensemble"
	case ScopeTrack:
		return "track"
	default:
		return "none"
	}
}

// ServiceInfo is the registry entry for one service.
type ServiceInfo struct {
	ID            ServiceID
	Table         string
	CycleInterval time.Duration
	Scope         ScopeKind

	// TimeStep is the widest spacing between valid times the service
	// publishes within one cycle.
	TimeStep time.Duration

	// StormRequired marks ensemble services whose members are also storm scoped.
	StormRequired bool

	// ZeroHourRainfall is set when the provider reports an empty accumulation
	// at the analysis time, so rainfall selections must skip cycle == valid_time.
	ZeroHourRainfall bool
}

var services = map[ServiceID]ServiceInfo{
	ServiceGFS:        {ID: ServiceGFS, Table: "gfs_ncep", CycleInterval: 6 * time.Hour, TimeStep: 3 * time.Hour},
	ServiceNAM:        {ID: ServiceNAM, Table: "nam_ncep", CycleInterval: 6 * time.Hour, TimeStep: time.Hour, ZeroHourRainfall: true},
	ServiceHWRF:       {ID: ServiceHWRF, Table: "hwrf", CycleInterval: 6 * time.Hour, TimeStep: 3 * time.Hour, Scope: ScopeStorm},
	ServiceCOAMPS:     {ID: ServiceCOAMPS, Table: "coamps_tc", CycleInterval: 6 * time.Hour, TimeStep: time.Hour, Scope: ScopeStorm},
	ServiceCTCX:       {ID: ServiceCTCX, Table: "ctcx", CycleInterval: 6 * time.Hour, TimeStep: time.Hour, Scope: ScopeEnsemble, StormRequired: true},
	ServiceGEFS:       {ID: ServiceGEFS, Table: "gefs_ncep", CycleInterval: 6 * time.Hour, TimeStep: 3 * time.Hour, Scope: ScopeEnsemble},
	ServiceHRRR:       {ID: ServiceHRRR, Table: "hrrr_ncep", CycleInterval: time.Hour, TimeStep: time.Hour},
	ServiceHRRRAlaska: {ID: ServiceHRRRAlaska, Table: "hrrr_alaska_ncep", CycleInterval: 3 * time.Hour, TimeStep: time.Hour},
	ServiceWPC:        {ID: ServiceWPC, Table: "wpc_ncep", CycleInterval: 6 * time.Hour, TimeStep: 6 * time.Hour},
	ServiceNHC:        {ID: ServiceNHC, Table: "nhc_adv", CycleInterval: 6 * time.Hour, TimeStep: 6 * time.Hour, Scope: ScopeTrack},
}

// LookupService returns the registry entry for id or ErrUnknownService.
func LookupService(id ServiceID) (ServiceInfo, error) {
	info, ok := services[id]
	if !ok {
		return ServiceInfo{}, fmt.Errorf("%w: %q", ErrUnknownService, id)
	}
	return info, nil
}

// Services returns every registered service ordered by id.
func Services() []ServiceInfo {
	out := make([]ServiceInfo, 0, len(services))
	for _, info := range services {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
