package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// SourceState is the derived health state of a source adapter.
type SourceState string

const (
	StateConnecting SourceState = "connecting"
	StateOnline     SourceState = "online"
	StateDegraded   SourceState = "degraded" // connected but below half the target FPS
	StateOffline    SourceState = "offline"
	StateError      SourceState = "error"
)

// SourceStatus is a point-in-time snapshot of an adapter's health.
type SourceStatus struct {
	SourceID       uuid.UUID
	State          SourceState
	FPSCurrent     float64
	FPSTarget      float64
	FramesTotal    uint64
	FramesDropped  uint64
	LastFrameAt    *time.Time
	UptimeS        float64
	Error          string // empty means no error
	ReconnectCount uint64
	LatencyMS      float64 // time since last frame
}

// MarshalJSON renders the wire projection: floats rounded to one decimal,
// timestamps in RFC3339 UTC, absent values as null.
func (s SourceStatus) MarshalJSON() ([]byte, error) {
	var lastFrame *string
	if s.LastFrameAt != nil {
		v := s.LastFrameAt.UTC().Format(time.RFC3339Nano)
		lastFrame = &v
	}
	var errStr *string
	if s.Error != "" {
		errStr = &s.Error
	}
	return json.Marshal(struct {
		SourceID       string  `json:"source_id"`
		State          string  `json:"state"`
		FPSCurrent     float64 `json:"fps_current"`
		FPSTarget      float64 `json:"fps_target"`
		FramesTotal    uint64  `json:"frames_total"`
		FramesDropped  uint64  `json:"frames_dropped"`
		LastFrameAt    *string `json:"last_frame_at"`
		UptimeS        float64 `json:"uptime_s"`
		Error          *string `json:"error"`
		ReconnectCount uint64  `json:"reconnect_count"`
		LatencyMS      float64 `json:"latency_ms"`
	}{
		SourceID:       s.SourceID.String(),
		State:          string(s.State),
		FPSCurrent:     round1(s.FPSCurrent),
		FPSTarget:      s.FPSTarget,
		FramesTotal:    s.FramesTotal,
		FramesDropped:  s.FramesDropped,
		LastFrameAt:    lastFrame,
		UptimeS:        round1(s.UptimeS),
		Error:          errStr,
		ReconnectCount: s.ReconnectCount,
		LatencyMS:      round1(s.LatencyMS),
	})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
