package domain

import (
	"sort"
	"time"
)

// Scope narrows a catalog query to one storm, ensemble member or advisory
// family. Fields not used by a service's ScopeKind are left empty.
type Scope struct {
	Storm          string `json:"storm,omitempty"`
	Basin          string `json:"basin,omitempty"`
	Advisory       string `json:"advisory,omitempty"`
	StormYear      int    `json:"storm_year,omitempty"`
	EnsembleMember string `json:"ensemble_member,omitempty"`
}

// IsZero reports whether no scope field is set.
func (s Scope) IsZero() bool {
	return s == Scope{}
}

// CatalogRecord is one ingested file.
type CatalogRecord struct {
	// ID is the ingestion order; a larger ID was ingested later.
	ID        int64     `json:"id"`
	Service   ServiceID `json:"service"`
	Cycle     time.Time `json:"cycle"`
	ValidTime time.Time `json:"valid_time"`
	Tau       int       `json:"tau"`
	Filepath  string    `json:"filepath"`
	Scope     Scope     `json:"scope,omitempty"`
	Accessed  time.Time `json:"accessed,omitempty"`
}

// TauBetween returns the lead time in whole hours between a cycle and a valid time.
func TauBetween(cycle, validTime time.Time) int {
	return int(validTime.Sub(cycle) / time.Hour)
}

// IsZeroHour reports whether the record is its cycle's analysis time.
func (r CatalogRecord) IsZeroHour() bool {
	return r.Cycle.Equal(r.ValidTime)
}

// Filter is the predicate a Catalog applies before the latest-per-valid-time
// reduction. A zero Cycle and a nil Tau mean "any".
type Filter struct {
	Service         ServiceID
	Scope           Scope
	Start           time.Time
	End             time.Time
	MinTau          int
	Tau             *int
	Cycle           time.Time
	ExcludeZeroHour bool
}

// Matches reports whether a record satisfies the filter. Catalog
// implementations that cannot push the predicate down use this directly.
func (f Filter) Matches(r CatalogRecord) bool {
	if r.Service != f.Service || r.Scope != f.Scope {
		return false
	}
	if r.ValidTime.Before(f.Start) || r.ValidTime.After(f.End) {
		return false
	}
	if r.Tau < f.MinTau {
		return false
	}
	if f.Tau != nil && r.Tau != *f.Tau {
		return false
	}
	if !f.Cycle.IsZero() && !r.Cycle.Equal(f.Cycle) {
		return false
	}
	if f.ExcludeZeroHour && r.IsZeroHour() {
		return false
	}
	return true
}

// Selection is an ordered file list: strictly increasing valid times, no
// duplicates.
type Selection []CatalogRecord

// ValidTimes returns the valid time of every record in order.
func (s Selection) ValidTimes() []time.Time {
	out := make([]time.Time, len(s))
	for i, r := range s {
		out[i] = r.ValidTime
	}
	return out
}

// Filepaths returns the file locator of every record in order.
func (s Selection) Filepaths() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Filepath
	}
	return out
}

// IDs returns the ingestion id of every record in order.
func (s Selection) IDs() []int64 {
	out := make([]int64, len(s))
	for i, r := range s {
		out[i] = r.ID
	}
	return out
}

// Contains reports whether a record with the given valid time is present.
func (s Selection) Contains(t time.Time) bool {
	i := sort.Search(len(s), func(i int) bool { return !s[i].ValidTime.Before(t) })
	return i < len(s) && s[i].ValidTime.Equal(t)
}
