package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawMessage(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("req-1"),
		Value:     []byte(`{"request_id":"req-1"}`),
		Topic:     "metget-build-requests",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("api")},
		},
	}

	raw := mapMessageToRawMessage(msg)

	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.JSONEq(t, `{"request_id":"req-1"}`, string(raw.Value))
	assert.Equal(t, "metget-build-requests", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "api", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 9, 10, 15, 10, 0, 0, time.UTC)
	update := domain.StatusUpdate{
		RequestID: "req-1",
		Status:    domain.StatusRestore,
		Messages:  []string{"3 source files are being restored from cold storage"},
		UpdatedAt: now,
	}

	msg, err := serializeToMessage(update)
	require.NoError(t, err)

	assert.Equal(t, []byte("req-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"status":"restore"`)
	assert.NotContains(t, string(msg.Value), `"manifest"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "status", msg.Headers[0].Key)
	assert.Equal(t, []byte("restore"), msg.Headers[0].Value)
	assert.Equal(t, "updated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_Manifest(t *testing.T) {
	update := domain.StatusUpdate{
		RequestID: "req-2",
		Status:    domain.StatusCompleted,
		Manifest: &domain.Manifest{
			InputFiles:  map[string][]string{"gulf": {"gfs.t00z.f003.grib2"}},
			OutputFiles: []string{"forcing_01.pre", "forcing_01.wnd"},
		},
	}

	msg, err := serializeToMessage(update)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"input_files":{"gulf":["gfs.t00z.f003.grib2"]}`)
	assert.Contains(t, string(msg.Value), `"output_files":["forcing_01.pre","forcing_01.wnd"]`)
}
