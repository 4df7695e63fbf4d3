//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/adapter/kafka"
	"github.com/couchcryptid/metget-build-service/internal/build"
	"github.com/couchcryptid/metget-build-service/internal/catalog"
	"github.com/couchcryptid/metget-build-service/internal/config"
	"github.com/couchcryptid/metget-build-service/internal/domain"
	"github.com/couchcryptid/metget-build-service/internal/forcing"
	"github.com/couchcryptid/metget-build-service/internal/observability"
	"github.com/couchcryptid/metget-build-service/internal/pipeline"
	"github.com/couchcryptid/metget-build-service/internal/selection"
	"github.com/couchcryptid/metget-build-service/internal/storage"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-build-requests"
	testSinkTopic   = "test-request-status"
)

var cycle = time.Date(2024, time.September, 10, 0, 0, 0, 0, time.UTC)

// statusMessage holds a decoded message read from the status topic.
type statusMessage struct {
	Update  domain.StatusUpdate
	Key     string
	Headers map[string]string
}

func readStatus(ctx context.Context, t *testing.T, consumer *kafkago.Reader) statusMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from status topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var update domain.StatusUpdate
	require.NoError(t, json.Unmarshal(msg.Value, &update), "unmarshal status message")
	return statusMessage{Update: update, Key: string(msg.Key), Headers: headers}
}

// readUntilTerminal reads status messages until n requests have a terminal
// status and returns each request's statuses in the order they arrived.
func readUntilTerminal(ctx context.Context, t *testing.T, consumer *kafkago.Reader, n int) map[string][]statusMessage {
	t.Helper()
	byKey := map[string][]statusMessage{}
	done := 0
	for done < n {
		sm := readStatus(ctx, t, consumer)
		byKey[sm.Key] = append(byKey[sm.Key], sm)
		if sm.Update.Status != domain.StatusRunning {
			done++
		}
	}
	return byKey
}

// newBuildHandler wires a handler over an in-memory catalog holding one GFS
// cycle and a local store with its files.
func newBuildHandler(t *testing.T) (*build.Handler, string) {
	t.Helper()
	ctx := context.Background()
	root, out := t.TempDir(), t.TempDir()
	cat := catalog.NewMemory()

	for tau := 0; tau <= 12; tau += 3 {
		key := fmt.Sprintf("gfs-ncep/2024091000/gfs.t00z.f%03d.grib2", tau)
		_, err := cat.Ingest(ctx, domain.CatalogRecord{
			Service:   domain.ServiceGFS,
			Cycle:     cycle,
			ValidTime: cycle.Add(time.Duration(tau) * time.Hour),
			Filepath:  key,
		})
		require.NoError(t, err)
		p := filepath.Join(root, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("grib"), 0o644))
	}

	h := build.NewHandler(build.Deps{
		Resolver:     domain.NewResolver(nil),
		Selector:     selection.NewEngine(cat, discardLogger()),
		Catalog:      cat,
		Store:        storage.NewLocal(root, ""),
		Interpolator: forcing.Planner{},
		WorkDir:      t.TempDir(),
		OutputDir:    out,
		Logger:       discardLogger(),
		Metrics:      observability.NewMetricsForTesting(),
	})
	return h, out
}

func requestPayload(t *testing.T, id string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"request_id": id,
		"start_date": cycle,
		"end_date":   cycle.Add(12 * time.Hour),
		"domains": []map[string]any{
			{"name": "gulf", "service": "gfs-ncep", "predefined_domain": "gom"},
		},
	})
	require.NoError(t, err)
	return payload
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestPipelineEndToEnd runs Reader, BuildTransformer and Writer against a
// real broker and checks the running and completed statuses and the manifest
// on disk.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("req-1"), Value: requestPayload(t, "req-1")},
		kafkago.Message{Key: []byte("req-2"), Value: requestPayload(t, "req-2")},
	))

	handler, out := newBuildHandler(t)
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	tfm := pipeline.NewTransformer(handler, writer, discardLogger())
	p := pipeline.New(reader, tfm, writer, discardLogger(), observability.NewMetricsForTesting(), 10)
	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := readUntilTerminal(ctx, t, consumer, 2)

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, id := range []string{"req-1", "req-2"} {
		statuses := received[id]
		require.Len(t, statuses, 2, id)
		assert.Equal(t, domain.StatusRunning, statuses[0].Update.Status)
		assert.Equal(t, "running", statuses[0].Headers["status"])
		assert.Nil(t, statuses[0].Update.Manifest)

		sm := statuses[1]
		assert.Equal(t, domain.StatusCompleted, sm.Update.Status, sm.Update.Messages)
		assert.Equal(t, "completed", sm.Headers["status"])
		_, err := time.Parse(time.RFC3339, sm.Headers["updated_at"])
		assert.NoError(t, err, "updated_at should be valid RFC3339")

		require.NotNil(t, sm.Update.Manifest)
		assert.Len(t, sm.Update.Manifest.InputFiles["gulf"], 5)
		assert.Equal(t, []string{"metget_data_01.pre", "metget_data_01.wnd"}, sm.Update.Manifest.OutputFiles)

		_, err = os.Stat(filepath.Join(out, id, forcing.ManifestName))
		assert.NoError(t, err)
	}
	assert.NoError(t, p.CheckReadiness(ctx))
}

// TestPipelineUnreadableRequest verifies a message that is not a build
// request is skipped and later requests still get a status.
func TestPipelineUnreadableRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: requestPayload(t, "good")},
	))

	handler, _ := newBuildHandler(t)
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(handler, writer, discardLogger()), writer, discardLogger(), metrics, 10)
	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := readUntilTerminal(ctx, t, consumer, 1)
	require.Len(t, received, 1, "only the readable request gets statuses")
	statuses := received["good"]
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.StatusRunning, statuses[0].Update.Status)
	assert.Equal(t, domain.StatusCompleted, statuses[1].Update.Status)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no status for the unreadable message")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
