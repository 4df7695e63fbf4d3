package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gfsKey = "gfs-ncep/2024091000/gfs.t00z.f003.grib2"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// --- Local ---

func TestLocal_StatusTiers(t *testing.T) {
	root, archive := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(root, "hot.grib2"), "hot")
	writeFile(t, filepath.Join(archive, "cold.grib2"), "cold")
	s := NewLocal(root, archive)
	ctx := context.Background()

	for key, want := range map[string]State{
		"hot.grib2":     StateHot,
		"cold.grib2":    StateCold,
		"missing.grib2": StateMissing,
	} {
		got, err := s.Status(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
}

func TestLocal_NoArchiveMeansMissing(t *testing.T) {
	s := NewLocal(t.TempDir(), "")

	got, err := s.Status(context.Background(), gfsKey)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, got)
	assert.Error(t, s.RequestRestore(context.Background(), gfsKey))
}

func TestLocal_RestoreThenFetch(t *testing.T) {
	root, archive, work := t.TempDir(), t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(archive, filepath.FromSlash(gfsKey)), "grib bytes")
	s := NewLocal(root, archive)
	ctx := context.Background()

	require.NoError(t, s.RequestRestore(ctx, gfsKey))
	state, err := s.Status(ctx, gfsKey)
	require.NoError(t, err)
	assert.Equal(t, StateHot, state)

	local, err := s.Fetch(ctx, gfsKey, work)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "gfs-ncep", "2024091000", "gfs.t00z.f003.grib2"), local)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "grib bytes", string(data))
}

func TestLocal_FetchKeepsKeysWithSameBaseNameApart(t *testing.T) {
	root, work := t.TempDir(), t.TempDir()
	first := "gfs-ncep/20240910/gfs.t00z.f000.grib2"
	second := "gfs-ncep/20240911/gfs.t00z.f000.grib2"
	writeFile(t, filepath.Join(root, filepath.FromSlash(first)), "day one")
	writeFile(t, filepath.Join(root, filepath.FromSlash(second)), "day two")
	s := NewLocal(root, "")
	ctx := context.Background()

	a, err := s.Fetch(ctx, first, work)
	require.NoError(t, err)
	b, err := s.Fetch(ctx, second, work)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "day one", string(data))
	data, err = os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "day two", string(data))
}

func TestLocal_KeysCannotEscapeRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	require.NoError(t, os.MkdirAll(root, 0o755))
	writeFile(t, filepath.Join(parent, "secret"), "x")

	state, err := NewLocal(root, "").Status(context.Background(), "../secret")
	require.NoError(t, err)
	assert.Equal(t, StateMissing, state)
}

// --- HTTP ---

func newHTTPStore(t *testing.T, h http.Handler) (*HTTPStore, *observability.Metrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m := observability.NewMetricsForTesting()
	return NewHTTPStore(srv.URL+"/metget", 5*time.Second, m, slog.Default()), m
}

func TestStateFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		class   string
		restore string
		want    State
	}{
		{name: "standard", class: "", want: StateHot},
		{name: "infrequent access", class: "STANDARD_IA", want: StateHot},
		{name: "glacier", class: "GLACIER", want: StateCold},
		{name: "deep archive", class: "DEEP_ARCHIVE", want: StateCold},
		{name: "restoring", class: "GLACIER", restore: `ongoing-request="true"`, want: StateRestoring},
		{name: "restored", class: "GLACIER", restore: `ongoing-request="false", expiry-date="Fri, 21 Dec 2024 00:00:00 GMT"`, want: StateHot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.class != "" {
				h.Set("X-Amz-Storage-Class", tt.class)
			}
			if tt.restore != "" {
				h.Set("X-Amz-Restore", tt.restore)
			}
			assert.Equal(t, tt.want, stateFromHeaders(h))
		})
	}
}

func TestHTTPStore_Status(t *testing.T) {
	s, m := newHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/metget/" + gfsKey:
			w.Header().Set("X-Amz-Storage-Class", "GLACIER")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	state, err := s.Status(ctx, gfsKey)
	require.NoError(t, err)
	assert.Equal(t, StateCold, state)

	state, err = s.Status(ctx, "nam-ncep/missing.grib2")
	require.NoError(t, err)
	assert.Equal(t, StateMissing, state)

	assert.InDelta(t, 2, testutil.ToFloat64(m.StorageRequests.WithLabelValues("status", "success")), 0)
}

func TestHTTPStore_StatusServerError(t *testing.T) {
	s, m := newHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := s.Status(context.Background(), gfsKey)
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StorageRequests.WithLabelValues("status", "error")), 0)
}

func TestHTTPStore_RequestRestore(t *testing.T) {
	var calls atomic.Int32
	s, _ := newHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, ok := r.URL.Query()["restore"]
		assert.True(t, ok)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<Days>7</Days>")

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		// A second request while the first is in flight.
		w.WriteHeader(http.StatusConflict)
	}))
	ctx := context.Background()

	require.NoError(t, s.RequestRestore(ctx, gfsKey))
	require.NoError(t, s.RequestRestore(ctx, gfsKey))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPStore_RequestRestoreRejected(t *testing.T) {
	s, _ := newHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("AccessDenied"))
	}))

	err := s.RequestRestore(context.Background(), gfsKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestHTTPStore_Fetch(t *testing.T) {
	s, _ := newHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metget/"+gfsKey {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("grib bytes"))
	}))
	dir := t.TempDir()

	local, err := s.Fetch(context.Background(), gfsKey, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "grib bytes", string(data))
	assert.Equal(t, filepath.Join(dir, "gfs-ncep", "2024091000", "gfs.t00z.f003.grib2"), local)

	_, err = s.Fetch(context.Background(), "gfs-ncep/other.grib2", dir)
	assert.Error(t, err)
}

// --- Cache ---

type countingStore struct {
	state    State
	calls    int
	fetchErr error
}

func (c *countingStore) Status(context.Context, string) (State, error) {
	c.calls++
	return c.state, nil
}

func (c *countingStore) RequestRestore(context.Context, string) error { return nil }

func (c *countingStore) Fetch(context.Context, string, string) (string, error) {
	return "", c.fetchErr
}

func TestCachedStore_CachesHotOnly(t *testing.T) {
	inner := &countingStore{state: StateHot}
	m := observability.NewMetricsForTesting()
	s := NewCachedStore(inner, 10, 0, nil, m)
	ctx := context.Background()

	for range 3 {
		state, err := s.Status(ctx, gfsKey)
		require.NoError(t, err)
		assert.Equal(t, StateHot, state)
	}
	assert.Equal(t, 1, inner.calls)
	assert.InDelta(t, 2, testutil.ToFloat64(m.StorageCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StorageCache.WithLabelValues("miss")), 0)

	inner.state = StateCold
	for range 2 {
		_, err := s.Status(ctx, "other.grib2")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.calls)
}

func TestCachedStore_HotEntriesExpire(t *testing.T) {
	// The gateway reports STANDARD on the first HEAD and GLACIER afterwards,
	// as if a lifecycle rule archived the object in between.
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && heads.Add(1) > 1 {
			w.Header().Set("x-amz-storage-class", "GLACIER")
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	m := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.September, 10, 0, 0, 0, 0, time.UTC))
	inner := NewHTTPStore(srv.URL+"/metget", 5*time.Second, m, slog.Default())
	s := NewCachedStore(inner, 10, 10*time.Minute, clock, m)
	ctx := context.Background()

	state, err := s.Status(ctx, gfsKey)
	require.NoError(t, err)
	assert.Equal(t, StateHot, state)

	clock.Advance(9 * time.Minute)
	state, err = s.Status(ctx, gfsKey)
	require.NoError(t, err)
	assert.Equal(t, StateHot, state, "still inside the ttl")
	assert.Equal(t, int32(1), heads.Load())

	clock.Advance(time.Minute)
	state, err = s.Status(ctx, gfsKey)
	require.NoError(t, err)
	assert.Equal(t, StateCold, state)
	assert.Equal(t, int32(2), heads.Load())
	assert.Equal(t, 0, s.states.size(), "cold objects are not cached")
}

func TestCachedStore_FetchFailureForgetsState(t *testing.T) {
	inner := &countingStore{state: StateHot}
	s := NewCachedStore(inner, 10, time.Hour, nil, observability.NewMetricsForTesting())
	ctx := context.Background()

	_, err := s.Status(ctx, gfsKey)
	require.NoError(t, err)
	require.Equal(t, 1, s.states.size())

	inner.fetchErr = errors.New("storage fetch: status 403")
	_, err = s.Fetch(ctx, gfsKey, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 0, s.states.size())

	inner.state = StateCold
	state, err := s.Status(ctx, gfsKey)
	require.NoError(t, err)
	assert.Equal(t, StateCold, state)
	assert.Equal(t, 2, inner.calls)
}

func TestStateCache_Eviction(t *testing.T) {
	c := newStateCache(2, 0, clockwork.NewFakeClock())
	c.markHot("a")
	c.markHot("b")
	assert.True(t, c.hot("a")) // a is now most recent
	c.markHot("c")

	assert.False(t, c.hot("b"), "least recently used entry should be evicted")
	assert.True(t, c.hot("a"))
	assert.True(t, c.hot("c"))
	assert.Equal(t, 2, c.size())
}

func TestStateCache_RefreshExtendsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newStateCache(2, time.Minute, clock)
	c.markHot("a")
	clock.Advance(50 * time.Second)
	c.markHot("a")
	clock.Advance(50 * time.Second)

	assert.True(t, c.hot("a"))
	assert.Equal(t, 1, c.size())
}
