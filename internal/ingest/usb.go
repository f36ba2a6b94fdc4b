package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// usbDriver captures from USB/UVC cameras via a V4L2 ffmpeg pipe. The URI is
// either a device index ("0", "1", …) or a /dev/videoN path.
type usbDriver struct {
	cfg    Config
	device int
	pipe   *pipeSource
}

// NewUSB builds an adapter for a local webcam.
func NewUSB(cfg Config, logger *zap.Logger) *Adapter {
	cfg.applyDefaults()
	d := &usbDriver{
		cfg:    cfg,
		device: parseDeviceIndex(cfg.URI),
		pipe:   newPipeSource(cfg.Width, cfg.Height, logger.Named("usb")),
	}
	return newAdapter(cfg, d, logger)
}

// parseDeviceIndex maps "0", "1" or "/dev/videoN" to a device index,
// defaulting to 0 on anything unparseable.
func parseDeviceIndex(uri string) int {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, "/dev/video"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			return n
		}
		return 0
	}
	if n, err := strconv.Atoi(uri); err == nil {
		return n
	}
	return 0
}

func (d *usbDriver) Protocol() string { return "usb" }

func (d *usbDriver) Connect(ctx context.Context) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height),
		"-framerate", strconv.Itoa(d.cfg.TargetFPS),
		"-i", fmt.Sprintf("/dev/video%d", d.device),
	}
	args = append(args, d.pipe.rawOutputArgs()...)
	return d.pipe.open(ctx, args)
}

func (d *usbDriver) ReadFrame(ctx context.Context) (*RawFrame, error) {
	buf, err := d.pipe.read(ctx)
	if err != nil {
		return nil, err
	}
	return &RawFrame{Image: buf, Width: d.cfg.Width, Height: d.cfg.Height, Channels: 3}, nil
}

func (d *usbDriver) Disconnect() error {
	return d.pipe.close()
}
