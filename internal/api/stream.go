package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// streamFPS is the delivery cadence of the HTTP MJPEG endpoint. Capture rates
// above it are downsampled by the latest-frame cache; below it the same frame
// repeats, which keeps clients from timing out on slow sources.
const streamFPS = 15

// handleStream serves multipart/x-mixed-replace JPEG to browsers and VMS
// clients. The stream runs until the client hangs up.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if !s.manager.Has(id) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)

	s.logger.Info("stream client connected",
		zap.String("source_id", id.String()),
		zap.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(time.Second / streamFPS)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("stream client disconnected",
				zap.String("source_id", id.String()),
				zap.String("remote", r.RemoteAddr))
			return
		case <-ticker.C:
			jpg, found := s.cache.Get(id)
			if !found {
				// Source registered but no frame yet; keep the connection.
				continue
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
				return
			}
			if _, err := w.Write(jpg); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
