package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/observability"
)

// restoreDays is how long a restored copy stays in the hot tier.
const restoreDays = 7

// HTTPStore talks to an S3-compatible object gateway over plain HTTP.
type HTTPStore struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewHTTPStore creates a store rooted at baseURL (bucket URL).
func NewHTTPStore(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

func (s *HTTPStore) objectURL(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}

// Status inspects the object's storage class and restore headers.
func (s *HTTPStore) Status(ctx context.Context, key string) (State, error) {
	resp, err := s.do(ctx, http.MethodHead, s.objectURL(key), nil, "status")
	if err != nil {
		return StateMissing, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return StateMissing, nil
	default:
		return StateMissing, fmt.Errorf("storage status %s: unexpected status %d", key, resp.StatusCode)
	}
	return stateFromHeaders(resp.Header), nil
}

// stateFromHeaders reads X-Amz-Storage-Class and X-Amz-Restore.
func stateFromHeaders(h http.Header) State {
	switch strings.ToUpper(h.Get("X-Amz-Storage-Class")) {
	case "GLACIER", "DEEP_ARCHIVE":
	default:
		return StateHot
	}

	restore := h.Get("X-Amz-Restore")
	switch {
	case strings.Contains(restore, `ongoing-request="true"`):
		return StateRestoring
	case strings.Contains(restore, `ongoing-request="false"`):
		return StateHot
	default:
		return StateCold
	}
}

// RequestRestore asks the gateway to bring an archived object back. A
// restore already in progress is not an error.
func (s *HTTPStore) RequestRestore(ctx context.Context, key string) error {
	body := fmt.Sprintf(
		`<RestoreRequest><Days>%d</Days><GlacierJobParameters><Tier>Standard</Tier></GlacierJobParameters></RestoreRequest>`,
		restoreDays)

	resp, err := s.do(ctx, http.MethodPost, s.objectURL(key)+"?restore", strings.NewReader(body), "restore")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusConflict:
		s.logger.Info("restore requested", "key", key, "status", resp.StatusCode)
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("storage restore %s: status %d: %s", key, resp.StatusCode, msg)
	}
}

// Fetch downloads the object into dir under the key's relative path.
func (s *HTTPStore) Fetch(ctx context.Context, key, dir string) (string, error) {
	resp, err := s.do(ctx, http.MethodGet, s.objectURL(key), nil, "fetch")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("storage fetch %s: status %d", key, resp.StatusCode)
	}

	dst := localPath(dir, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("storage fetch %s: %w", key, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("storage fetch %s: %w", key, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("storage fetch %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("storage fetch %s: %w", key, err)
	}
	return dst, nil
}

func (s *HTTPStore) do(ctx context.Context, method, fullURL string, body io.Reader, label string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	s.metrics.StorageAPIDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.StorageRequests.WithLabelValues(label, "error").Inc()
		return nil, fmt.Errorf("storage %s request: %w", label, err)
	}

	outcome := "success"
	if resp.StatusCode >= http.StatusInternalServerError {
		outcome = "error"
	}
	s.metrics.StorageRequests.WithLabelValues(label, outcome).Inc()
	return resp, nil
}
