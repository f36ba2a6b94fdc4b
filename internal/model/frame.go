// Package model holds the value types flowing between the ingest layer and
// its consumers. Downstream code never sees camera protocols, only Frames.
package model

import (
	"time"

	"github.com/google/uuid"
)

// CaptureMeta describes how a frame was captured.
type CaptureMeta struct {
	Protocol      string  // rtsp, mjpeg, usb, file, synthetic
	Codec         string  // optional: h264, mjpeg, rawvideo
	LatencyMS     float64 // wall time spent inside the decoder read
	DroppedFrames uint64  // cumulative drops on the source when this frame was emitted
	FPSMeasured   float64 // rolling-average FPS at emission time
}

// Frame is a single captured image plus metadata. Image is raw BGR, 8-bit,
// laid out row-major with len(Image) == Width*Height*Channels. A Frame is
// never published with a nil image.
type Frame struct {
	SourceID  uuid.UUID
	Sequence  uint64 // per source, starts at 1, continues across reconnects
	Timestamp time.Time
	Image     []byte
	Width     int
	Height    int
	Channels  int
	Meta      CaptureMeta
}
