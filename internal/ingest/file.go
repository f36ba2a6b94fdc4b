package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// fileDriver plays back video files as if they were live feeds. Playback is
// paced by the capture loop at the target FPS, not the file's native rate.
// With looping enabled, end of stream restarts decoding from the first frame
// without touching the adapter's counters.
type fileDriver struct {
	cfg    Config
	logger *zap.Logger
	pipe   *pipeSource

	mu          sync.Mutex
	nativeFPS   float64
	totalFrames int64
}

// NewFile builds an adapter for on-disk video playback.
func NewFile(cfg Config, logger *zap.Logger) *Adapter {
	cfg.applyDefaults()
	d := &fileDriver{
		cfg:    cfg,
		logger: logger.Named("file"),
		pipe:   newPipeSource(cfg.Width, cfg.Height, logger.Named("file")),
	}
	return newAdapter(cfg, d, logger)
}

func (d *fileDriver) Protocol() string { return "file" }

func (d *fileDriver) Connect(ctx context.Context) error {
	if _, err := os.Stat(d.cfg.URI); err != nil {
		return fmt.Errorf("File not found: %s", d.cfg.URI)
	}
	d.probe(ctx)
	return d.pipe.open(ctx, d.decodeArgs())
}

func (d *fileDriver) decodeArgs() []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", d.cfg.URI,
	}
	return append(args, d.pipe.rawOutputArgs()...)
}

// probe collects the file's native frame rate and frame count for metadata.
// Best effort; playback does not depend on it.
func (d *fileDriver) probe(ctx context.Context) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,nb_frames",
		"-of", "json",
		d.cfg.URI,
	).Output()
	if err != nil {
		d.logger.Debug("ffprobe failed", zap.Error(err))
		return
	}

	var info struct {
		Streams []struct {
			AvgFrameRate string `json:"avg_frame_rate"`
			NbFrames     string `json:"nb_frames"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &info); err != nil || len(info.Streams) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nativeFPS = parseFrameRate(info.Streams[0].AvgFrameRate)
	d.totalFrames, _ = strconv.ParseInt(info.Streams[0].NbFrames, 10, 64)
	d.logger.Info("probed file",
		zap.Float64("native_fps", d.nativeFPS),
		zap.Int64("frames", d.totalFrames))
}

// parseFrameRate handles ffprobe's fractional rates like "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	dv, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || dv == 0 {
		return 0
	}
	return n / dv
}

func (d *fileDriver) ReadFrame(ctx context.Context) (*RawFrame, error) {
	buf, err := d.pipe.read(ctx)
	if errors.Is(err, ErrStreamLost) {
		if !d.cfg.LoopPlayback {
			return nil, ErrEndOfStream
		}
		// Loop boundary: restart the decode from the first frame. Counters
		// live in the adapter and keep going.
		_ = d.pipe.close()
		if err := d.pipe.open(ctx, d.decodeArgs()); err != nil {
			return nil, fmt.Errorf("%w: loop restart: %v", ErrStreamLost, err)
		}
		buf, err = d.pipe.read(ctx)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return &RawFrame{Image: buf, Width: d.cfg.Width, Height: d.cfg.Height, Channels: 3}, nil
}

func (d *fileDriver) Disconnect() error {
	return d.pipe.close()
}

// NativeFPS reports the probed native frame rate, 0 when unknown.
func (d *fileDriver) NativeFPS() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nativeFPS
}

// TotalFrames reports the probed frame count, 0 when unknown.
func (d *fileDriver) TotalFrames() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalFrames
}
