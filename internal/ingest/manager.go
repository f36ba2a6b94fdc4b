package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/model"
)

// Manager owns every source adapter and its capture goroutine, plus the
// shared bounded frame queue the distributor drains. Sources are
// hot-pluggable: add and remove work while the engine is serving.
type Manager struct {
	logger     *zap.Logger
	maxSources int
	defaultFPS int

	mu       sync.Mutex
	adapters map[uuid.UUID]*Adapter
	tasks    map[uuid.UUID]*captureTask
	queue    chan *model.Frame
}

type captureTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager with a frame queue of the given capacity.
func NewManager(queueSize, maxSources, defaultFPS int, logger *zap.Logger) *Manager {
	if queueSize <= 0 {
		queueSize = 30
	}
	return &Manager{
		logger:     logger,
		maxSources: maxSources,
		defaultFPS: defaultFPS,
		adapters:   make(map[uuid.UUID]*Adapter),
		tasks:      make(map[uuid.UUID]*captureTask),
		queue:      make(chan *model.Frame, queueSize),
	}
}

// Queue is the unified frame stream consumed by the distributor.
func (m *Manager) Queue() <-chan *model.Frame { return m.queue }

// DetectSourceType guesses the adapter kind from a URI. First match wins.
func DetectSourceType(uri string) string {
	u := strings.ToLower(strings.TrimSpace(uri))
	switch {
	case strings.HasPrefix(u, "rtsp://"):
		return "rtsp"
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return "mjpeg"
	case isAllDigits(u), strings.HasPrefix(u, "/dev/video"):
		return "usb"
	}
	for _, ext := range []string{".mp4", ".avi", ".mkv", ".mov", ".webm"} {
		if strings.HasSuffix(u, ext) {
			return "file"
		}
	}
	// Anything else is tried as a file path.
	return "file"
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (m *Manager) newAdapter(sourceType string, cfg Config) (*Adapter, error) {
	switch sourceType {
	case "rtsp", "onvif": // ONVIF discovery wraps RTSP under the hood
		return NewRTSP(cfg, m.logger), nil
	case "mjpeg":
		return NewMJPEG(cfg, m.logger), nil
	case "usb":
		return NewUSB(cfg, m.logger), nil
	case "file":
		return NewFile(cfg, m.logger), nil
	case "synthetic":
		return NewSynthetic(cfg, m.logger), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// AddSource constructs, registers, and starts a source. An existing source
// with the same id is removed first so replacement is deterministic. If
// sourceType is empty it is auto-detected from the URI. Connect errors are
// reported asynchronously through status, not here.
func (m *Manager) AddSource(sourceType string, cfg Config) error {
	if m.has(cfg.SourceID) {
		m.logger.Warn("source already exists, replacing",
			zap.String("source_id", cfg.SourceID.String()))
		m.RemoveSource(cfg.SourceID)
	}

	if sourceType == "" {
		sourceType = DetectSourceType(cfg.URI)
		m.logger.Info("auto-detected source type",
			zap.String("type", sourceType),
			zap.String("uri", redactURI(cfg.URI)))
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = m.defaultFPS
	}

	adapter, err := m.newAdapter(sourceType, cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.maxSources > 0 && len(m.adapters) >= m.maxSources {
		m.mu.Unlock()
		return fmt.Errorf("source limit reached (%d)", m.maxSources)
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &captureTask{cancel: cancel, done: make(chan struct{})}
	m.adapters[cfg.SourceID] = adapter
	m.tasks[cfg.SourceID] = task
	m.mu.Unlock()

	go func() {
		defer close(task.done)
		adapter.Run(ctx, m.queue)
	}()

	m.logger.Info("added source",
		zap.String("source_id", cfg.SourceID.String()),
		zap.String("name", cfg.Name),
		zap.String("type", sourceType),
		zap.String("uri", redactURI(cfg.URI)))
	return nil
}

// RemoveSource stops and unregisters a source, waiting for its capture
// goroutine to finish. Returns false when the id is unknown.
func (m *Manager) RemoveSource(id uuid.UUID) bool {
	m.mu.Lock()
	adapter, ok := m.adapters[id]
	task := m.tasks[id]
	delete(m.adapters, id)
	delete(m.tasks, id)
	m.mu.Unlock()

	if !ok {
		return false
	}

	adapter.Disconnect()
	if task != nil {
		task.cancel()
		<-task.done
	}

	m.logger.Info("removed source",
		zap.String("source_id", id.String()),
		zap.String("name", adapter.Name()))
	return true
}

func (m *Manager) has(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.adapters[id]
	return ok
}

// Has reports whether a source is registered.
func (m *Manager) Has(id uuid.UUID) bool { return m.has(id) }

// GetStatus snapshots one source's health.
func (m *Manager) GetStatus(id uuid.UUID) (model.SourceStatus, bool) {
	m.mu.Lock()
	adapter, ok := m.adapters[id]
	m.mu.Unlock()
	if !ok {
		return model.SourceStatus{}, false
	}
	return adapter.Status(), true
}

// GetAllStatus snapshots every source's health.
func (m *Manager) GetAllStatus() map[uuid.UUID]model.SourceStatus {
	m.mu.Lock()
	adapters := make([]*Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.Unlock()

	out := make(map[uuid.UUID]model.SourceStatus, len(adapters))
	for _, a := range adapters {
		out[a.SourceID()] = a.Status()
	}
	return out
}

// SourceCount is the number of registered sources.
func (m *Manager) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.adapters)
}

// OnlineCount counts sources that are online or degraded.
func (m *Manager) OnlineCount() int {
	n := 0
	for _, s := range m.GetAllStatus() {
		if s.State == model.StateOnline || s.State == model.StateDegraded {
			n++
		}
	}
	return n
}

// StopAll removes every source.
func (m *Manager) StopAll() {
	m.logger.Info("stopping all sources")
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.adapters))
	for id := range m.adapters {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.RemoveSource(id)
	}
	m.logger.Info("all sources stopped")
}
