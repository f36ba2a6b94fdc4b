package ingest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/metrics"
	"github.com/Akash9179/Project-Argus/internal/model"
)

func TestDetectSourceType(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"rtsp://cam.local/stream1", "rtsp"},
		{"RTSP://CAM/STREAM", "rtsp"},
		{"http://phone:8080/video", "mjpeg"},
		{"https://cam/mjpeg", "mjpeg"},
		{"0", "usb"},
		{"12", "usb"},
		{"/dev/video0", "usb"},
		{"/data/clips/test.mp4", "file"},
		{"demo.MKV", "file"},
		{"recording.webm", "file"},
		{"/some/unknown/path", "file"},
		{"", "file"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectSourceType(tc.uri), "uri %q", tc.uri)
	}
}

func newTestManager(max int) *Manager {
	return NewManager(16, max, 10, zap.NewNop())
}

func TestManagerAddRemove(t *testing.T) {
	m := newTestManager(0)
	defer m.StopAll()

	cfg := testConfig()
	require.NoError(t, m.AddSource("synthetic", cfg))
	assert.Equal(t, 1, m.SourceCount())
	assert.True(t, m.Has(cfg.SourceID))

	st, ok := m.GetStatus(cfg.SourceID)
	require.True(t, ok)
	assert.Equal(t, cfg.SourceID, st.SourceID)

	assert.True(t, m.RemoveSource(cfg.SourceID))
	assert.Equal(t, 0, m.SourceCount())
	assert.False(t, m.RemoveSource(cfg.SourceID))
}

func TestManagerReplacesExistingSource(t *testing.T) {
	m := newTestManager(0)
	defer m.StopAll()

	cfg := testConfig()
	require.NoError(t, m.AddSource("synthetic", cfg))

	cfg.Name = "cam-replaced"
	require.NoError(t, m.AddSource("synthetic", cfg))
	assert.Equal(t, 1, m.SourceCount())
}

func TestManagerEnforcesSourceLimit(t *testing.T) {
	m := newTestManager(2)
	defer m.StopAll()

	for i := 0; i < 2; i++ {
		cfg := testConfig()
		cfg.SourceID = uuid.New()
		require.NoError(t, m.AddSource("synthetic", cfg))
	}

	cfg := testConfig()
	cfg.SourceID = uuid.New()
	err := m.AddSource("synthetic", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source limit")
}

func TestManagerRejectsUnknownType(t *testing.T) {
	m := newTestManager(0)
	err := m.AddSource("carrier-pigeon", testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source type")
}

func TestManagerFramesReachSharedQueue(t *testing.T) {
	m := newTestManager(0)
	defer m.StopAll()

	cfg := testConfig()
	cfg.TargetFPS = 30
	require.NoError(t, m.AddSource("synthetic", cfg))

	select {
	case f := <-m.Queue():
		assert.Equal(t, cfg.SourceID, f.SourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame on shared queue")
	}
}

func TestManagerOnlineCount(t *testing.T) {
	m := newTestManager(0)
	defer m.StopAll()

	cfg := testConfig()
	require.NoError(t, m.AddSource("synthetic", cfg))

	require.Eventually(t, func() bool {
		st, ok := m.GetStatus(cfg.SourceID)
		return ok && (st.State == model.StateOnline || st.State == model.StateDegraded)
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, m.OnlineCount())
}

func TestOnlineCountDoesNotTouchGauge(t *testing.T) {
	m := newTestManager(0)
	defer m.StopAll()

	cfg := testConfig()
	require.NoError(t, m.AddSource("synthetic", cfg))

	metrics.SourcesOnline.Set(42)
	m.OnlineCount()
	assert.Equal(t, 42.0, testutil.ToFloat64(metrics.SourcesOnline))
}

func TestManagerStopAll(t *testing.T) {
	m := newTestManager(0)
	for i := 0; i < 3; i++ {
		cfg := testConfig()
		cfg.SourceID = uuid.New()
		require.NoError(t, m.AddSource("synthetic", cfg))
	}
	require.Equal(t, 3, m.SourceCount())

	m.StopAll()
	assert.Equal(t, 0, m.SourceCount())
	assert.Empty(t, m.GetAllStatus())
}
