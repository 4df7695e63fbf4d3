package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawMessage is an unprocessed build request from the source topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputFormat names the forcing file format a request asks for.
type OutputFormat string

const (
	FormatOWIASCII  OutputFormat = "owi-ascii"
	FormatOWINetCDF OutputFormat = "owi-netcdf"
	FormatHECNetCDF OutputFormat = "hec-netcdf"
	FormatDelft3D   OutputFormat = "delft3d"
	FormatRaw       OutputFormat = "raw"
)

// Valid reports whether f is a known format.
func (f OutputFormat) Valid() bool {
	switch f {
	case FormatOWIASCII, FormatOWINetCDF, FormatHECNetCDF, FormatDelft3D, FormatRaw:
		return true
	}
	return false
}

const (
	defaultTimeStep = 3600
	defaultFilename = "metget_data"
)

// BuildRequest asks for one forcing dataset over one or more domains.
type BuildRequest struct {
	RequestID         string             `json:"request_id"`
	StartDate         time.Time          `json:"start_date"`
	EndDate           time.Time          `json:"end_date"`
	TimeStep          int                `json:"time_step"`
	Nowcast           bool               `json:"nowcast"`
	MultipleForecasts bool               `json:"multiple_forecasts"`
	Strict            bool               `json:"strict"`
	DryRun            bool               `json:"dry_run"`
	DataType          DataType           `json:"data_type"`
	Format            OutputFormat       `json:"format"`
	Filename          string             `json:"filename"`
	Domains           []DomainDescriptor `json:"domains"`

	// Input is the request body as received, echoed into the manifest.
	Input json.RawMessage `json:"-"`
}

// Policy returns the selection policy implied by the request flags.
func (r BuildRequest) Policy() Policy {
	return PolicyFromFlags(r.Nowcast, r.MultipleForecasts)
}

// ParseBuildRequest decodes a message value and applies defaults. A request
// without an id takes the message key, or a random id when that is empty too,
// so its status can still be reported.
func ParseBuildRequest(raw RawMessage) (BuildRequest, error) {
	var req BuildRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return BuildRequest{}, fmt.Errorf("parse build request: %w", err)
	}

	if req.RequestID == "" {
		req.RequestID = string(raw.Key)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.TimeStep == 0 {
		req.TimeStep = defaultTimeStep
	}
	if req.DataType == "" {
		req.DataType = DataWindPressure
	}
	if req.Format == "" {
		req.Format = FormatOWIASCII
	}
	if req.Filename == "" {
		req.Filename = defaultFilename
	}
	req.Input = append(json.RawMessage(nil), raw.Value...)
	return req, nil
}

// Validate returns every problem with the request-level fields. Domain
// descriptors are checked separately by a Resolver.
func (r BuildRequest) Validate() []string {
	var problems []string
	if r.StartDate.IsZero() {
		problems = append(problems, "start_date is required")
	}
	if r.EndDate.IsZero() {
		problems = append(problems, "end_date is required")
	}
	if !r.StartDate.IsZero() && !r.EndDate.IsZero() && !r.StartDate.Before(r.EndDate) {
		problems = append(problems, "start_date must be before end_date")
	}
	if r.TimeStep <= 0 {
		problems = append(problems, fmt.Sprintf("time_step must be positive, got %d", r.TimeStep))
	}
	if !r.DataType.Valid() {
		problems = append(problems, fmt.Sprintf("unknown data_type %q", r.DataType))
	}
	if !r.Format.Valid() {
		problems = append(problems, fmt.Sprintf("unknown format %q", r.Format))
	}
	if strings.ContainsAny(r.Filename, `/\`) {
		problems = append(problems, "filename must not contain path separators")
	}
	if len(r.Domains) == 0 {
		problems = append(problems, "at least one domain is required")
	}

	seen := make(map[string]bool, len(r.Domains))
	for _, d := range r.Domains {
		if d.Name == "" {
			continue
		}
		if seen[d.Name] {
			problems = append(problems, fmt.Sprintf("domain name %q is used more than once", d.Name))
		}
		seen[d.Name] = true
	}
	return problems
}

// Status is a build request's lifecycle state. The submitter records a
// request as queued when it enqueues it; this service reports from running
// onward.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusRestore   Status = "restore"
)

// Manifest is the filelist.json written next to produced data.
type Manifest struct {
	Input       json.RawMessage     `json:"input"`
	InputFiles  map[string][]string `json:"input_files"`
	OutputFiles []string            `json:"output_files"`
}

// StatusUpdate reports a request's state to the sink topic.
type StatusUpdate struct {
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
	Messages  []string  `json:"messages,omitempty"`
	Manifest  *Manifest `json:"manifest,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStatus stamps a status update with the package clock.
func NewStatus(requestID string, status Status, messages ...string) StatusUpdate {
	return StatusUpdate{
		RequestID: requestID,
		Status:    status,
		Messages:  messages,
		UpdatedAt: Now(),
	}
}
