// Package ingest implements the camera/sensor ingestion layer: protocol
// drivers behind a uniform adapter contract, per-source capture loops, and
// the hot-pluggable source manager feeding the shared frame queue.
package ingest

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/metrics"
	"github.com/Akash9179/Project-Argus/internal/model"
)

// ErrStreamLost signals that the driver's handle is gone; the adapter marks
// itself disconnected and the run loop re-enters the reconnect path.
var ErrStreamLost = errors.New("stream lost")

// ErrEndOfStream signals a terminal end of input (file playback without
// looping). The run loop exits without reconnecting.
var ErrEndOfStream = errors.New("end of stream")

// RawFrame is the driver-level read result: decoded pixels plus geometry.
type RawFrame struct {
	Image    []byte // BGR24, row-major
	Width    int
	Height   int
	Channels int
	Codec    string
}

// Driver is the protocol-specific primitive set every adapter wraps.
// ReadFrame blocks; callers run it from the per-source capture goroutine.
type Driver interface {
	Protocol() string
	Connect(ctx context.Context) error
	ReadFrame(ctx context.Context) (*RawFrame, error)
	Disconnect() error
}

// Config carries the construction parameters shared by all adapters.
type Config struct {
	SourceID          uuid.UUID
	Name              string
	URI               string
	TargetFPS         int
	ReconnectAttempts int // -1 = infinite
	ReconnectDelay    time.Duration
	Timeout           time.Duration
	Username          string
	Password          string
	Width             int
	Height            int
	LoopPlayback      bool // file adapter only
}

func (c *Config) applyDefaults() {
	if c.TargetFPS < 1 {
		c.TargetFPS = 10
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
}

const fpsWindowSize = 30

// Adapter wraps a Driver with the shared capture state machine: counters,
// FPS estimation, status derivation, and the paced run loop with reconnects.
type Adapter struct {
	cfg    Config
	driver Driver
	logger *zap.Logger

	mu             sync.Mutex
	connected      bool
	connecting     bool
	running        bool
	sequence       uint64
	framesTotal    uint64
	framesDropped  uint64
	reconnectCount uint64
	connectTime    time.Time
	lastFrameTime  time.Time
	lastErr        string
	fpsSamples     []float64
}

func newAdapter(cfg Config, driver Driver, logger *zap.Logger) *Adapter {
	cfg.applyDefaults()
	return &Adapter{
		cfg:    cfg,
		driver: driver,
		logger: logger.With(
			zap.String("source", cfg.Name),
			zap.String("protocol", driver.Protocol()),
		),
		fpsSamples: make([]float64, 0, fpsWindowSize),
	}
}

func (a *Adapter) SourceID() uuid.UUID { return a.cfg.SourceID }
func (a *Adapter) Name() string        { return a.cfg.Name }
func (a *Adapter) Protocol() string    { return a.driver.Protocol() }
func (a *Adapter) TargetFPS() int      { return a.cfg.TargetFPS }

// Connect attempts to open the driver session. Failures are recorded, never
// raised; the return value says whether the adapter is now connected.
func (a *Adapter) Connect(ctx context.Context) bool {
	a.mu.Lock()
	a.connecting = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.connecting = false
		a.mu.Unlock()
	}()

	a.logger.Info("connecting", zap.String("uri", redactURI(a.cfg.URI)))

	cctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	err := a.driver.Connect(cctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.connected = false
		a.lastErr = err.Error()
		a.logger.Warn("connect failed", zap.Error(err))
		return false
	}
	a.connected = true
	a.connectTime = time.Now()
	a.lastErr = ""
	a.logger.Info("connected")
	return true
}

// Disconnect tears the session down. Idempotent; driver errors are logged
// and swallowed.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	a.running = false
	a.connected = false
	a.mu.Unlock()

	if err := a.driver.Disconnect(); err != nil {
		a.logger.Warn("disconnect error", zap.Error(err))
		return
	}
	a.logger.Info("disconnected")
}

// Read pulls one frame through the driver. Returns nil on any failure; the
// failure mode is reflected in the adapter's counters and last error.
func (a *Adapter) Read(ctx context.Context) *model.Frame {
	if !a.isConnected() {
		return nil
	}

	t0 := time.Now()
	rctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	raw, err := a.driver.ReadFrame(rctx)
	cancel()

	switch {
	case errors.Is(err, ErrEndOfStream):
		a.mu.Lock()
		a.framesDropped++
		a.connected = false
		a.running = false
		a.mu.Unlock()
		a.countDrop()
		a.logger.Info("end of stream")
		return nil
	case errors.Is(err, ErrStreamLost):
		a.mu.Lock()
		a.framesDropped++
		a.connected = false
		a.lastErr = err.Error()
		a.mu.Unlock()
		a.countDrop()
		a.logger.Warn("stream lost", zap.Error(err))
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		a.mu.Lock()
		a.framesDropped++
		a.lastErr = "read timeout"
		a.mu.Unlock()
		a.countDrop()
		return nil
	case err != nil:
		a.mu.Lock()
		a.lastErr = err.Error()
		a.mu.Unlock()
		a.logger.Warn("read error", zap.Error(err))
		return nil
	case raw == nil || len(raw.Image) == 0:
		a.mu.Lock()
		a.framesDropped++
		a.mu.Unlock()
		a.countDrop()
		return nil
	}

	latency := time.Since(t0)
	now := time.Now()

	a.mu.Lock()
	if !a.lastFrameTime.IsZero() {
		if dt := now.Sub(a.lastFrameTime).Seconds(); dt > 0 {
			a.fpsSamples = append(a.fpsSamples, 1.0/dt)
			if len(a.fpsSamples) > fpsWindowSize {
				a.fpsSamples = a.fpsSamples[1:]
			}
		}
	}
	a.lastFrameTime = now
	a.sequence++
	a.framesTotal++
	seq := a.sequence
	dropped := a.framesDropped
	fps := a.currentFPSLocked()
	a.mu.Unlock()

	metrics.FramesCaptured.WithLabelValues(a.cfg.SourceID.String(), a.Protocol()).Inc()

	channels := raw.Channels
	if channels == 0 {
		channels = 3
	}
	return &model.Frame{
		SourceID:  a.cfg.SourceID,
		Sequence:  seq,
		Timestamp: now.UTC(),
		Image:     raw.Image,
		Width:     raw.Width,
		Height:    raw.Height,
		Channels:  channels,
		Meta: model.CaptureMeta{
			Protocol:      a.Protocol(),
			Codec:         raw.Codec,
			LatencyMS:     float64(latency) / float64(time.Millisecond),
			DroppedFrames: dropped,
			FPSMeasured:   fps,
		},
	}
}

// Run is the capture loop: reconnect when needed, read, enqueue without
// blocking, throttle to the target FPS. It returns when the context is
// cancelled, the adapter is stopped, or reconnect attempts are exhausted.
func (a *Adapter) Run(ctx context.Context, queue chan<- *model.Frame) {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	defer a.Disconnect()

	interval := time.Second / time.Duration(a.cfg.TargetFPS)

	for a.isRunning() && ctx.Err() == nil {
		if !a.isConnected() {
			if !a.reconnect(ctx) {
				return
			}
		}

		start := time.Now()
		frame := a.Read(ctx)

		if frame != nil {
			select {
			case queue <- frame:
			default:
				// Queue full: absorb backpressure here, never block.
				a.mu.Lock()
				a.framesDropped++
				a.mu.Unlock()
				a.countDrop()
			}
		} else if !a.isConnected() {
			continue
		}

		if d := interval - time.Since(start); d > 0 {
			if !sleepCtx(ctx, d) {
				return
			}
		}
	}
}

// reconnect retries Connect until it succeeds, the adapter stops, or the
// configured attempt ceiling is reached. Every attempt counts, including the
// successful one.
func (a *Adapter) reconnect(ctx context.Context) bool {
	attempts := 0
	for a.isRunning() && ctx.Err() == nil {
		if a.cfg.ReconnectAttempts >= 0 && attempts >= a.cfg.ReconnectAttempts {
			a.logger.Error("reconnect attempts exhausted",
				zap.Int("attempts", a.cfg.ReconnectAttempts))
			return false
		}

		attempts++
		a.mu.Lock()
		a.reconnectCount++
		a.mu.Unlock()
		metrics.Reconnects.WithLabelValues(a.cfg.SourceID.String(), a.Protocol()).Inc()
		a.logger.Info("reconnecting", zap.Int("attempt", attempts))

		if a.Connect(ctx) {
			return true
		}
		if !sleepCtx(ctx, a.cfg.ReconnectDelay) {
			return false
		}
	}
	return false
}

// Status derives a point-in-time snapshot from the adapter's counters.
func (a *Adapter) Status() model.SourceStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	fps := a.currentFPSLocked()

	var state model.SourceState
	switch {
	case a.connecting:
		state = model.StateConnecting
	case !a.connected && a.lastErr != "":
		state = model.StateError
	case !a.connected:
		state = model.StateOffline
	case fps < float64(a.cfg.TargetFPS)*0.5:
		state = model.StateDegraded
	default:
		state = model.StateOnline
	}

	var uptime float64
	if !a.connectTime.IsZero() {
		uptime = time.Since(a.connectTime).Seconds()
	}

	var lastFrameAt *time.Time
	var latencyMS float64
	if !a.lastFrameTime.IsZero() {
		t := a.lastFrameTime
		lastFrameAt = &t
		latencyMS = float64(time.Since(a.lastFrameTime)) / float64(time.Millisecond)
	}

	return model.SourceStatus{
		SourceID:       a.cfg.SourceID,
		State:          state,
		FPSCurrent:     fps,
		FPSTarget:      float64(a.cfg.TargetFPS),
		FramesTotal:    a.framesTotal,
		FramesDropped:  a.framesDropped,
		LastFrameAt:    lastFrameAt,
		UptimeS:        uptime,
		Error:          a.lastErr,
		ReconnectCount: a.reconnectCount,
		LatencyMS:      latencyMS,
	}
}

func (a *Adapter) currentFPSLocked() float64 {
	if len(a.fpsSamples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range a.fpsSamples {
		sum += s
	}
	return sum / float64(len(a.fpsSamples))
}

func (a *Adapter) isConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Adapter) isRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Adapter) countDrop() {
	metrics.FramesDropped.WithLabelValues(a.cfg.SourceID.String(), a.Protocol()).Inc()
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// redactURI strips userinfo before a URI reaches a log line.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}
