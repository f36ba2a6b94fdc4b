package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceStatusJSON(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s := SourceStatus{
		SourceID:       id,
		State:          StateOnline,
		FPSCurrent:     9.9634,
		FPSTarget:      10,
		FramesTotal:    42,
		FramesDropped:  3,
		LastFrameAt:    &at,
		UptimeS:        12.3456,
		Error:          "",
		ReconnectCount: 1,
		LatencyMS:      101.77,
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, id.String(), got["source_id"])
	assert.Equal(t, "online", got["state"])
	assert.Equal(t, 10.0, got["fps_current"])
	assert.Equal(t, 12.3, got["uptime_s"])
	assert.Equal(t, 101.8, got["latency_ms"])
	assert.Equal(t, "2026-03-14T09:26:53Z", got["last_frame_at"])
	assert.Nil(t, got["error"])
}

func TestSourceStatusJSONNulls(t *testing.T) {
	s := SourceStatus{
		SourceID: uuid.New(),
		State:    StateError,
		Error:    "connection refused",
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Nil(t, got["last_frame_at"])
	assert.Equal(t, "connection refused", got["error"])
	assert.Equal(t, 0.0, got["fps_current"])
}
