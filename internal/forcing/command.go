package forcing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

const jobFileName = "job.json"

// Command runs an external grid builder executable. The job is written to
// job.json in the output directory and its path passed as the only argument.
// The builder must write every file OutputFiles names.
type Command struct {
	path   string
	logger *slog.Logger
}

// NewCommand creates a Command for the executable at path.
func NewCommand(path string, logger *slog.Logger) *Command {
	return &Command{path: path, logger: logger}
}

func (c *Command) Interpolate(ctx context.Context, job Job) ([]string, error) {
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare output dir: %w", err)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	jobFile := filepath.Join(job.OutputDir, jobFileName)
	if err := os.WriteFile(jobFile, data, 0o644); err != nil {
		return nil, fmt.Errorf("write job: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.path, jobFile)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", filepath.Base(c.path), err, out)
	}
	c.logger.Debug("grid builder finished", "request_id", job.RequestID, "output", string(out))

	files := OutputFiles(job)
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(job.OutputDir, f)); err != nil {
			return nil, fmt.Errorf("grid builder did not produce %s: %w", f, err)
		}
	}
	return files, nil
}

// Planner reports the files a job would produce without running a builder.
// It backs deployments where grids are built downstream from the manifest.
type Planner struct{}

func (Planner) Interpolate(_ context.Context, job Job) ([]string, error) {
	return OutputFiles(job), nil
}
