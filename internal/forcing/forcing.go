// Package forcing is the boundary to the grid interpolation and output
// library that turns selected source files into forcing files.
package forcing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
)

// ManifestName is the file written next to every produced dataset.
const ManifestName = "filelist.json"

// DomainInput is one domain's grid and its ordered local source files.
type DomainInput struct {
	Name    string           `json:"name"`
	Service domain.ServiceID `json:"service"`
	Grid    domain.Grid      `json:"grid"`
	Files   []string         `json:"files"`
	Times   []time.Time      `json:"times"`
}

// Job is everything the output library needs to write one request's files.
type Job struct {
	RequestID string              `json:"request_id"`
	Filename  string              `json:"filename"`
	Format    domain.OutputFormat `json:"format"`
	DataType  domain.DataType     `json:"data_type"`
	Start     time.Time           `json:"start"`
	End       time.Time           `json:"end"`
	TimeStep  int                 `json:"time_step"`
	OutputDir string              `json:"output_dir"`
	Domains   []DomainInput       `json:"domains"`
}

// Interpolator produces the output files for a job and returns their names
// relative to the job's output directory.
type Interpolator interface {
	Interpolate(ctx context.Context, job Job) ([]string, error)
}

// OutputFiles lists the files a job produces, in domain order.
func OutputFiles(job Job) []string {
	switch job.Format {
	case domain.FormatRaw:
		return nil
	case domain.FormatOWINetCDF, domain.FormatHECNetCDF, domain.FormatDelft3D:
		return []string{job.Filename + ".nc"}
	}

	var out []string
	for i := range job.Domains {
		base := fmt.Sprintf("%s_%02d", job.Filename, i+1)
		if job.DataType == domain.DataWindPressure {
			out = append(out, base+".pre", base+".wnd")
			continue
		}
		out = append(out, base+"."+string(job.DataType))
	}
	return out
}

// WriteManifest writes m as filelist.json in dir and returns its path.
func WriteManifest(dir string, m domain.Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	p := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return p, nil
}
