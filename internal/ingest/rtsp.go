package ingest

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// rtspDriver decodes RTSP IP camera streams through an ffmpeg pipe with TCP
// transport and low-delay flags. This is the common protocol for Hikvision,
// Dahua, Axis and most other enterprise cameras.
type rtspDriver struct {
	cfg  Config
	pipe *pipeSource
}

// NewRTSP builds an adapter for an rtsp:// source.
func NewRTSP(cfg Config, logger *zap.Logger) *Adapter {
	cfg.applyDefaults()
	d := &rtspDriver{
		cfg:  cfg,
		pipe: newPipeSource(cfg.Width, cfg.Height, logger.Named("rtsp")),
	}
	return newAdapter(cfg, d, logger)
}

func (d *rtspDriver) Protocol() string { return "rtsp" }

// streamURI splices configured credentials into the URI, but only when it
// carries no user:pass component of its own.
func (d *rtspDriver) streamURI() string {
	uri := d.cfg.URI
	if d.cfg.Username == "" || !strings.Contains(uri, "://") || strings.Contains(uri, "@") {
		return uri
	}
	scheme, rest, _ := strings.Cut(uri, "://")
	cred := d.cfg.Username
	if d.cfg.Password != "" {
		cred += ":" + d.cfg.Password
	}
	return scheme + "://" + cred + "@" + rest
}

func (d *rtspDriver) Connect(ctx context.Context) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-i", d.streamURI(),
		"-r", strconv.Itoa(d.cfg.TargetFPS),
	}
	args = append(args, d.pipe.rawOutputArgs()...)
	return d.pipe.open(ctx, args)
}

func (d *rtspDriver) ReadFrame(ctx context.Context) (*RawFrame, error) {
	buf, err := d.pipe.read(ctx)
	if err != nil {
		return nil, err
	}
	return &RawFrame{Image: buf, Width: d.cfg.Width, Height: d.cfg.Height, Channels: 3}, nil
}

func (d *rtspDriver) Disconnect() error {
	return d.pipe.close()
}
