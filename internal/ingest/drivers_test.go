package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/model"
)

func TestParseDeviceIndex(t *testing.T) {
	cases := []struct {
		uri  string
		want int
	}{
		{"0", 0},
		{"3", 3},
		{"/dev/video0", 0},
		{"/dev/video2", 2},
		{"  1 ", 1},
		{"/dev/videoX", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseDeviceIndex(tc.uri), "uri %q", tc.uri)
	}
}

func TestRTSPStreamURI(t *testing.T) {
	cases := []struct {
		name string
		uri  string
		user string
		pass string
		want string
	}{
		{"no creds", "rtsp://cam/stream", "", "", "rtsp://cam/stream"},
		{"creds spliced", "rtsp://cam/stream", "admin", "pw", "rtsp://admin:pw@cam/stream"},
		{"user only", "rtsp://cam/stream", "admin", "", "rtsp://admin@cam/stream"},
		{"uri already has creds", "rtsp://a:b@cam/stream", "admin", "pw", "rtsp://a:b@cam/stream"},
		{"not a url", "plainpath", "admin", "pw", "plainpath"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &rtspDriver{cfg: Config{URI: tc.uri, Username: tc.user, Password: tc.pass}}
			assert.Equal(t, tc.want, d.streamURI())
		})
	}
}

func TestFileConnectMissingFile(t *testing.T) {
	cfg := testConfig()
	cfg.URI = "/nonexistent/video.mp4"
	a := NewFile(cfg, zap.NewNop())

	ok := a.Connect(context.Background())
	assert.False(t, ok)

	st := a.Status()
	assert.Contains(t, st.Error, "File not found")
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 30.0, parseFrameRate("30"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
}

func TestSyntheticProducesFrames(t *testing.T) {
	cfg := testConfig()
	cfg.Width = 320
	cfg.Height = 240
	drv := &syntheticDriver{cfg: cfg}

	raw, err := drv.ReadFrame(context.Background())
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, 320, raw.Width)
	assert.Equal(t, 240, raw.Height)
	assert.Equal(t, 3, raw.Channels)
	assert.Len(t, raw.Image, 320*240*3)

	// Frame counter advances per read.
	raw2, err := drv.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, raw.Image, raw2.Image)
}

func TestSyntheticAdapterEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.TargetFPS = 30
	a := NewSynthetic(cfg, zap.NewNop())

	queue := make(chan *model.Frame, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx, queue)
	}()

	select {
	case f := <-queue:
		assert.Equal(t, cfg.SourceID, f.SourceID)
		assert.Equal(t, 640, f.Width)
		assert.Equal(t, 480, f.Height)
		assert.Equal(t, "synthetic", f.Meta.Protocol)
		assert.False(t, f.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from synthetic source")
	}

	cancel()
	<-done
}
