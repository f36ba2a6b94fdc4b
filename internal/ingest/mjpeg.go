package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/jpegenc"
)

// mjpegDriver consumes HTTP multipart/x-mixed-replace streams natively:
// budget cameras and phone apps (IP Webcam and friends) expose these. Each
// part is a JPEG which gets decoded to the BGR frame layout.
type mjpegDriver struct {
	cfg    Config
	logger *zap.Logger
	client *http.Client

	mu     sync.Mutex
	resp   *http.Response
	parts  *multipart.Reader
	cancel context.CancelFunc
}

// NewMJPEG builds an adapter for an http(s):// MJPEG stream.
func NewMJPEG(cfg Config, logger *zap.Logger) *Adapter {
	cfg.applyDefaults()
	d := &mjpegDriver{
		cfg:    cfg,
		logger: logger.Named("mjpeg"),
		client: &http.Client{
			// No overall client timeout: the response body is an endless
			// stream. Dial and header deadlines bound the connect instead.
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: cfg.Timeout}).DialContext,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}
	return newAdapter(cfg, d, logger)
}

func (d *mjpegDriver) Protocol() string { return "mjpeg" }

func (d *mjpegDriver) Connect(ctx context.Context) error {
	// The stream outlives the connect call, so it gets its own cancel
	// rather than the connect context's deadline.
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, d.cfg.URI, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("build request: %w", err)
	}
	if d.cfg.Username != "" {
		req.SetBasicAuth(d.cfg.Username, d.cfg.Password)
	}

	// Abort the dial if the connect deadline fires first.
	dialDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-dialDone:
		}
	}()

	resp, err := d.client.Do(req)
	close(dialDone)
	if err != nil {
		cancel()
		return fmt.Errorf("open stream: %w", err)
	}
	// The watchdog may have cancelled the stream in the window between Do
	// returning and dialDone closing. A done connect context means the
	// session is unusable either way, so fail the connect cleanly here
	// instead of surfacing a broken stream to the first read.
	if ctx.Err() != nil {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("open stream: %w", ctx.Err())
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("not an MJPEG stream: content-type %q", resp.Header.Get("Content-Type"))
	}

	d.mu.Lock()
	d.resp = resp
	d.parts = multipart.NewReader(resp.Body, params["boundary"])
	d.cancel = cancel
	d.mu.Unlock()
	return nil
}

func (d *mjpegDriver) ReadFrame(ctx context.Context) (*RawFrame, error) {
	d.mu.Lock()
	parts := d.parts
	cancel := d.cancel
	d.mu.Unlock()
	if parts == nil {
		return nil, ErrStreamLost
	}

	// NextPart only unblocks when the body closes, so a read deadline is
	// honored by tearing the stream down; the adapter then reconnects.
	readDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-readDone:
		}
	}()
	part, err := parts.NextPart()
	close(readDone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamLost, err)
	}

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamLost, err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		// Corrupt part: a single dropped frame, the stream stays up.
		d.logger.Warn("bad jpeg part", zap.Error(err))
		return nil, nil
	}

	bgr, w, h := jpegenc.ImageToBGR(img)
	return &RawFrame{Image: bgr, Width: w, Height: h, Channels: 3, Codec: "mjpeg"}, nil
}

func (d *mjpegDriver) Disconnect() error {
	d.mu.Lock()
	resp := d.resp
	cancel := d.cancel
	d.resp = nil
	d.parts = nil
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if resp != nil {
		return resp.Body.Close()
	}
	return nil
}
