package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/metget-build-service/internal/domain"
)

// Handler runs a decoded build request to its terminal status.
type Handler interface {
	Handle(ctx context.Context, req domain.BuildRequest) domain.StatusUpdate
}

// BuildTransformer implements Transformer by decoding the message and
// handing it to the build handler. When a progress loader is set, a running
// status goes out as soon as the request decodes, ahead of the build.
type BuildTransformer struct {
	handler  Handler
	progress BatchLoader
	logger   *slog.Logger
}

// NewTransformer creates a BuildTransformer. progress may be nil.
func NewTransformer(handler Handler, progress BatchLoader, logger *slog.Logger) *BuildTransformer {
	return &BuildTransformer{handler: handler, progress: progress, logger: logger}
}

func (t *BuildTransformer) Transform(ctx context.Context, raw domain.RawMessage) (domain.StatusUpdate, error) {
	req, err := domain.ParseBuildRequest(raw)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	t.markRunning(ctx, req.RequestID)
	return t.handler.Handle(ctx, req), nil
}

// markRunning publishes the running status. A failure only costs the
// intermediate status, so the build goes ahead.
func (t *BuildTransformer) markRunning(ctx context.Context, requestID string) {
	if t.progress == nil {
		return
	}
	running := domain.NewStatus(requestID, domain.StatusRunning)
	if err := t.progress.LoadBatch(ctx, []domain.StatusUpdate{running}); err != nil {
		t.logger.Warn("publish running status failed", "request_id", requestID, "error", err)
	}
}
