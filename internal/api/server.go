// Package api exposes the engine over HTTP: source control, status, MJPEG
// streaming, the status WebSocket, and the persistent source catalog.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Akash9179/Project-Argus/internal/catalog"
	"github.com/Akash9179/Project-Argus/internal/distributor"
	"github.com/Akash9179/Project-Argus/internal/ingest"
	"github.com/Akash9179/Project-Argus/internal/model"
)

// Server wires the HTTP boundary to the source manager, the frame cache, and
// the catalog.
type Server struct {
	manager *ingest.Manager
	cache   *distributor.Cache
	store   *catalog.Store
	logger  *zap.Logger
	router  chi.Router
}

func NewServer(manager *ingest.Manager, cache *distributor.Cache, store *catalog.Store, logger *zap.Logger) *Server {
	s := &Server{
		manager: manager,
		cache:   cache,
		store:   store,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/sources/start", s.handleStart)
	r.Post("/sources/{id}/stop", s.handleStop)
	r.Get("/sources/status", s.handleAllStatus)
	r.Get("/sources/{id}/status", s.handleStatus)

	r.Get("/stream/{id}", s.handleStream)
	r.Get("/ws/status", s.handleStatusWS)

	r.Route("/api/sources", func(r chi.Router) {
		r.Get("/", s.handleCatalogList)
		r.Post("/", s.handleCatalogCreate)
		r.Get("/{id}", s.handleCatalogGet)
		r.Patch("/{id}", s.handleCatalogUpdate)
		r.Delete("/{id}", s.handleCatalogDelete)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// startRequest is the body of POST /sources/start. Pointer fields distinguish
// "absent" from meaningful zero values (reconnect_attempts = 0 means never
// reconnect).
type startRequest struct {
	SourceID          string   `json:"source_id"`
	Name              string   `json:"name"`
	URI               string   `json:"uri"`
	SourceType        string   `json:"source_type"`
	TargetFPS         *int     `json:"target_fps"`
	ReconnectAttempts *int     `json:"reconnect_attempts"`
	ReconnectDelayS   *float64 `json:"reconnect_delay_s"`
	TimeoutS          *float64 `json:"timeout_s"`
	Username          string   `json:"username"`
	Password          string   `json:"password"`
	Width             *int     `json:"width"`
	Height            *int     `json:"height"`
	LoopPlayback      *bool    `json:"loop_playback"`
}

func (req *startRequest) toConfig() (ingest.Config, error) {
	id := uuid.New()
	if req.SourceID != "" {
		parsed, err := uuid.Parse(req.SourceID)
		if err != nil {
			return ingest.Config{}, err
		}
		id = parsed
	}

	cfg := ingest.Config{
		SourceID:          id,
		Name:              req.Name,
		URI:               req.URI,
		ReconnectAttempts: -1,
		Username:          req.Username,
		Password:          req.Password,
	}
	if cfg.Name == "" {
		cfg.Name = "source-" + id.String()[:8]
	}
	if req.TargetFPS != nil {
		cfg.TargetFPS = *req.TargetFPS
	}
	if req.ReconnectAttempts != nil {
		cfg.ReconnectAttempts = *req.ReconnectAttempts
	}
	if req.ReconnectDelayS != nil {
		cfg.ReconnectDelay = time.Duration(*req.ReconnectDelayS * float64(time.Second))
	}
	if req.TimeoutS != nil {
		cfg.Timeout = time.Duration(*req.TimeoutS * float64(time.Second))
	}
	if req.Width != nil {
		cfg.Width = *req.Width
	}
	if req.Height != nil {
		cfg.Height = *req.Height
	}
	if req.LoopPlayback != nil {
		cfg.LoopPlayback = *req.LoopPlayback
	}
	return cfg, nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source_id")
		return
	}

	if err := s.manager.AddSource(req.SourceType, cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "started",
		"source_id": cfg.SourceID.String(),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if !s.manager.RemoveSource(id) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	s.cache.Delete(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "stopped",
		"source_id": id.String(),
	})
}

func (s *Server) handleAllStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusSnapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	st, found := s.manager.GetStatus(id)
	if !found {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "argus-perception",
		"sources_total":  s.manager.SourceCount(),
		"sources_online": s.manager.OnlineCount(),
	})
}

// statusSnapshot is the aggregate payload shared by the REST status endpoint
// and the status WebSocket.
func (s *Server) statusSnapshot() map[string]any {
	all := s.manager.GetAllStatus()
	sources := make(map[string]model.SourceStatus, len(all))
	online := 0
	for id, st := range all {
		sources[id.String()] = st
		if st.State == model.StateOnline || st.State == model.StateDegraded {
			online++
		}
	}
	return map[string]any{
		"total":   len(all),
		"online":  online,
		"sources": sources,
	}
}

func (s *Server) handleCatalogList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List()
	if err != nil {
		s.logger.Error("catalog list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	if records == nil {
		records = []*catalog.SourceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCatalogCreate(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source_id")
		return
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = ingest.DetectSourceType(cfg.URI)
	}

	rec := recordFromConfig(cfg, sourceType)
	if err := s.store.Save(rec); err != nil {
		s.logger.Error("catalog save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	if err := s.manager.AddSource(sourceType, cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleCatalogGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(id)
	if err != nil {
		s.logger.Error("catalog get failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// updateRequest is the body of PATCH /api/sources/{id}. Only provided fields
// are updated.
type updateRequest struct {
	Name              *string  `json:"name"`
	URI               *string  `json:"uri"`
	SourceType        *string  `json:"source_type"`
	TargetFPS         *int     `json:"target_fps"`
	ReconnectAttempts *int     `json:"reconnect_attempts"`
	ReconnectDelayS   *float64 `json:"reconnect_delay_s"`
	TimeoutS          *float64 `json:"timeout_s"`
	Username          *string  `json:"username"`
	Password          *string  `json:"password"`
	Width             *int     `json:"width"`
	Height            *int     `json:"height"`
	LoopPlayback      *bool    `json:"loop_playback"`
	Enabled           *bool    `json:"enabled"`
}

func (req *updateRequest) apply(rec *catalog.SourceRecord) {
	if req.Name != nil {
		rec.Name = *req.Name
	}
	if req.URI != nil {
		rec.URI = *req.URI
	}
	if req.SourceType != nil {
		rec.SourceType = *req.SourceType
	}
	if req.TargetFPS != nil {
		rec.TargetFPS = *req.TargetFPS
	}
	if req.ReconnectAttempts != nil {
		rec.ReconnectAttempts = *req.ReconnectAttempts
	}
	if req.ReconnectDelayS != nil {
		rec.ReconnectDelayS = *req.ReconnectDelayS
	}
	if req.TimeoutS != nil {
		rec.TimeoutS = *req.TimeoutS
	}
	if req.Username != nil {
		rec.Username = *req.Username
	}
	if req.Password != nil {
		rec.Password = *req.Password
	}
	if req.Width != nil {
		rec.Width = *req.Width
	}
	if req.Height != nil {
		rec.Height = *req.Height
	}
	if req.LoopPlayback != nil {
		rec.LoopPlayback = *req.LoopPlayback
	}
	if req.Enabled != nil {
		rec.Enabled = *req.Enabled
	}
}

func (s *Server) handleCatalogUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.store.Get(id)
	if err != nil {
		s.logger.Error("catalog get failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	req.apply(rec)
	if err := s.store.Save(rec); err != nil {
		s.logger.Error("catalog save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	// Reconcile the running source with the updated definition: a disabled
	// source stops, an enabled one restarts with the new config.
	if !rec.Enabled {
		if s.manager.RemoveSource(id) {
			s.cache.Delete(id)
		}
	} else if err := s.manager.AddSource(rec.SourceType, rec.IngestConfig()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCatalogDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	existed, err := s.store.Delete(id)
	if err != nil {
		s.logger.Error("catalog delete failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	if s.manager.RemoveSource(id) {
		s.cache.Delete(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func recordFromConfig(cfg ingest.Config, sourceType string) *catalog.SourceRecord {
	return &catalog.SourceRecord{
		ID:                cfg.SourceID,
		Name:              cfg.Name,
		URI:               cfg.URI,
		SourceType:        sourceType,
		TargetFPS:         cfg.TargetFPS,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelayS:   cfg.ReconnectDelay.Seconds(),
		TimeoutS:          cfg.Timeout.Seconds(),
		Username:          cfg.Username,
		Password:          cfg.Password,
		Width:             cfg.Width,
		Height:            cfg.Height,
		LoopPlayback:      cfg.LoopPlayback,
		Enabled:           true,
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
