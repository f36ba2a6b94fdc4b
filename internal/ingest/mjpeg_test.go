package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{0xFF, 0, 0, 0xFF})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// mjpegTestServer streams n JPEG parts then closes the connection.
func mjpegTestServer(t *testing.T, n int, jpg []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < n; i++ {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpg))
			w.Write(jpg)
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
		}
	}))
}

func TestMJPEGDriverReadsParts(t *testing.T) {
	jpg := encodeTestJPEG(t, 32, 24)
	srv := mjpegTestServer(t, 5, jpg)
	defer srv.Close()

	cfg := testConfig()
	cfg.URI = srv.URL
	d := &mjpegDriver{cfg: cfg, logger: zap.NewNop(), client: srv.Client()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Connect(ctx))
	defer d.Disconnect()

	raw, err := d.ReadFrame(ctx)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, 32, raw.Width)
	assert.Equal(t, 24, raw.Height)
	assert.Equal(t, 3, raw.Channels)
	assert.Len(t, raw.Image, 32*24*3)
	assert.Equal(t, "mjpeg", raw.Codec)
}

func TestMJPEGDriverStreamEndIsStreamLost(t *testing.T) {
	jpg := encodeTestJPEG(t, 16, 16)
	srv := mjpegTestServer(t, 1, jpg)
	defer srv.Close()

	cfg := testConfig()
	cfg.URI = srv.URL
	d := &mjpegDriver{cfg: cfg, logger: zap.NewNop(), client: srv.Client()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Connect(ctx))
	defer d.Disconnect()

	_, err := d.ReadFrame(ctx)
	require.NoError(t, err)

	_, err = d.ReadFrame(ctx)
	assert.ErrorIs(t, err, ErrStreamLost)
}

func TestMJPEGDriverConnectFailsOnDoneContext(t *testing.T) {
	jpg := encodeTestJPEG(t, 16, 16)
	srv := mjpegTestServer(t, 5, jpg)
	defer srv.Close()

	cfg := testConfig()
	cfg.URI = srv.URL
	d := &mjpegDriver{cfg: cfg, logger: zap.NewNop(), client: srv.Client()}

	// A connect deadline that has already fired must fail the connect
	// itself, never hand back a torn-down stream for the first read.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Nil(t, d.parts)
	assert.Nil(t, d.resp)
}

func TestMJPEGDriverRejectsNonMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not a camera</html>")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.URI = srv.URL
	d := &mjpegDriver{cfg: cfg, logger: zap.NewNop(), client: srv.Client()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := d.Connect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an MJPEG stream")
}

func TestMJPEGDriverRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.URI = srv.URL
	d := &mjpegDriver{cfg: cfg, logger: zap.NewNop(), client: srv.Client()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := d.Connect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMJPEGDriverSendsBasicAuth(t *testing.T) {
	jpg := encodeTestJPEG(t, 16, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n")
		w.Write(jpg)
		fmt.Fprint(w, "\r\n")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.URI = srv.URL
	cfg.Username = "admin"
	cfg.Password = "secret"
	d := &mjpegDriver{cfg: cfg, logger: zap.NewNop(), client: srv.Client()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Connect(ctx))
	d.Disconnect()
}
