package monitoring

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_WritesJSONL(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "requests.jsonl")
	tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: logPath})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{
		RequestID:  "req-1",
		Timestamp:  time.Now(),
		Path:       "/chat-completion",
		StatusCode: 200,
		Success:    true,
	})
	tr.RecordRequest(&RequestEvent{
		RequestID:  "req-2",
		Timestamp:  time.Now(),
		Path:       "/deep-research",
		StatusCode: 403,
		ErrorKind:  "quota_exceeded",
	})
	require.NoError(t, tr.Close())

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var events []RequestEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e RequestEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "quota_exceeded", events[1].ErrorKind)
}

func TestTracker_DisabledIsNoop(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "x.jsonl")
	tr, err := NewTracker(TelemetryConfig{Enabled: false, LogPath: logPath})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{RequestID: "req-1"})
	require.NoError(t, tr.Close())

	_, statErr := os.Stat(logPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTracker_RecordInit(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: filepath.Join(dir, "requests.jsonl")})
	require.NoError(t, err)

	tr.RecordInit(&InitEvent{
		Timestamp:  time.Now(),
		Event:      "gateway_init",
		ServerPort: 8080,
		Providers:  []InitProvider{{Name: "openai", Models: []string{"gpt-4o"}, HasAPIKey: true}},
	})

	data, err := os.ReadFile(filepath.Join(dir, "init.jsonl"))
	require.NoError(t, err)
	var e InitEvent
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "gateway_init", e.Event)
	assert.Equal(t, 8080, e.ServerPort)
}
