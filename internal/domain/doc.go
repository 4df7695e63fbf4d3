// Package domain models the MetGet forcing-data catalog and build requests.
//
// # Catalog Conventions
//
// Every upstream model (GFS, NAM, HWRF, COAMPS-TC, CTCX, GEFS, HRRR, WPC,
// NHC) has its own catalog table. Each row is one ingested file:
//
//	cycle       forecast initialization time, e.g. 2024-09-10T06:00Z
//	valid_time  the instant the file describes, never before cycle
//	tau         lead time in whole hours, valid_time - cycle
//	filepath    opaque object-store locator
//	scope       storm / ensemble member / basin / advisory (scoped services only)
//
// Within one service and scope, (cycle, valid_time) is unique. Re-ingesting
// the same key replaces the row with a newer ingestion id, so "latest
// ingested wins" is decided by comparing ids, never timestamps.
//
// # Assembly Policies
//
//	nowcast          tau == 0 only, stitched across cycles
//	single_forecast  one cycle's series from tau_floor on; when tau_floor > 0
//	                 the skipped instants are patched from the multi_forecast series
//	multi_forecast   per valid time, the latest-ingested record with tau >= tau_floor
//
// NAM reports zero accumulated precipitation at the analysis time by
// construction, so rainfall selections from NAM drop cycle == valid_time
// candidates before any policy runs.
//
// # Scopes
//
// Storm services (HWRF, COAMPS-TC) key on a storm identifier such as
// "09l". Ensemble services key on the member name ("gec00", "gep01", ...),
// and CTCX members are additionally storm scoped. NHC advisories are looked
// up by exact year, basin, storm and advisory, outside the temporal policies.
//
// # Domains
//
// A domain descriptor gives either corner coordinates (x_init, y_init,
// x_end, y_end) or an origin plus grid-point counts (x_init, y_init, ni, nj,
// optional rotation), with resolution di (and optionally dj). Named
// predefined domains ("wnat", "gom", "global") expand to fixed corners.
// Validation reports every violated constraint at once.
package domain
