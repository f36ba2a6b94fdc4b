package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// pipeSource runs an ffmpeg decode process emitting fixed-size raw BGR24
// frames on stdout. It backs the rtsp, usb, and file drivers; each of those
// only differs in the argument list it opens the pipe with.
//
// open primes the pipe by waiting for the first decoded frame, so a dead
// host, a missing device, or a broken file fails the connect instead of the
// first read.
type pipeSource struct {
	logger    *zap.Logger
	width     int
	height    int
	frameSize int

	mu         sync.Mutex
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	procCtx    context.Context
	frames     chan []byte
	pending    []byte
	lastStderr string
}

func newPipeSource(width, height int, logger *zap.Logger) *pipeSource {
	return &pipeSource{
		logger:    logger,
		width:     width,
		height:    height,
		frameSize: width * height * 3,
	}
}

// rawOutputArgs is the common tail of every decode pipeline: scale to the
// configured geometry and write packed BGR24 to stdout.
func (p *pipeSource) rawOutputArgs() []string {
	return []string{
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", p.width, p.height),
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-",
	}
}

// open starts ffmpeg with the given arguments and blocks until the first
// frame is decoded or ctx expires.
func (p *pipeSource) open(ctx context.Context, args []string) error {
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	frames := make(chan []byte, 1)
	go p.drainStderr(stderr)
	go p.readLoop(procCtx, stdout, frames)

	select {
	case first, ok := <-frames:
		if !ok {
			cancel()
			_ = cmd.Wait()
			return fmt.Errorf("decoder exited before first frame: %s", p.stderrTail())
		}
		p.mu.Lock()
		p.cmd = cmd
		p.cancel = cancel
		p.procCtx = procCtx
		p.frames = frames
		p.pending = first
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		cancel()
		go func() { _ = cmd.Wait() }()
		return fmt.Errorf("no frame within timeout: %s", p.stderrTail())
	}
}

func (p *pipeSource) readLoop(ctx context.Context, stdout io.Reader, frames chan<- []byte) {
	defer close(frames)
	for {
		buf := make([]byte, p.frameSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			return
		}
		select {
		case frames <- buf:
		case <-ctx.Done():
			return
		}
	}
}

func (p *pipeSource) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.mu.Lock()
		p.lastStderr = line
		p.mu.Unlock()
		p.logger.Debug("ffmpeg", zap.String("line", line))
	}
}

func (p *pipeSource) stderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastStderr == "" {
		return "no decoder output"
	}
	return p.lastStderr
}

// read returns the next decoded frame. A closed pipe reports ErrStreamLost;
// the caller decides whether that means reconnect or end of stream.
func (p *pipeSource) read(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	if p.pending != nil {
		f := p.pending
		p.pending = nil
		p.mu.Unlock()
		return f, nil
	}
	frames := p.frames
	p.mu.Unlock()

	if frames == nil {
		return nil, ErrStreamLost
	}

	select {
	case f, ok := <-frames:
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrStreamLost, p.stderrTail())
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close kills the decode process and releases the pipe. Safe to call twice.
func (p *pipeSource) close() error {
	p.mu.Lock()
	cmd := p.cmd
	cancel := p.cancel
	p.cmd = nil
	p.cancel = nil
	p.procCtx = nil
	p.frames = nil
	p.pending = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cmd != nil {
		_ = cmd.Wait()
	}
	return nil
}
