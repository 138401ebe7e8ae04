// Package api exposes the read side of the pipeline: per-building group
// status, pair faults and confirmed alerts, plus a couple of admin
// endpoints.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sensorfuse/internal/alerting"
	"sensorfuse/internal/alerts"
	"sensorfuse/internal/config"
	"sensorfuse/internal/status"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	Alerter() *alerting.Engine
}

type Server struct {
	cfg      *config.Manager
	statuses *status.Store
	alerts   *alerts.Store
	engine   EngineControl
	logger   *slog.Logger
	version  string
	started  time.Time
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	UptimeSec  int64           `json:"uptime_sec"`
	ConfigPath string          `json:"config_path"`
	Ingest     ingestStatus    `json:"ingest"`
	API        apiStatus       `json:"api"`
	Buildings  []buildingBrief `json:"buildings"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type buildingBrief struct {
	BuildingID int64  `json:"building_id"`
	SystemMode string `json:"system_mode"`
	PairStatus string `json:"pair_status"`
	FaultCount int    `json:"fault_count"`
	Timestamp  string `json:"timestamp"`
}

func Start(ctx context.Context, cfg *config.Manager, statusStore *status.Store, alertsStore *alerts.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		statuses: statusStore,
		alerts:   alertsStore,
		engine:   engine,
		logger:   logger,
		version:  version,
		started:  time.Now().UTC(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/groups", server.handleGroups)
	mux.HandleFunc("/groups/", server.handleGroups)
	mux.HandleFunc("/faults", server.handleFaults)
	mux.HandleFunc("/faults/", server.handleFaults)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/alerts/active", server.handleActiveAlerts)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/restart", server.handleRestart)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	all := s.statuses.GetAll()
	buildings := make([]buildingBrief, 0, len(all))
	for id, snap := range all {
		buildings = append(buildings, buildingBrief{
			BuildingID: id,
			SystemMode: string(snap.SystemMode),
			PairStatus: snap.PairTick.SystemStatus,
			FaultCount: snap.Faults.TotalFaults,
			Timestamp:  snap.Timestamp.Format(time.RFC3339Nano),
		})
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		UptimeSec:  int64(time.Since(s.started).Seconds()),
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		API:       apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Buildings: buildings,
	}
	writeJSON(w, http.StatusOK, resp)
}

// buildingFromPath extracts the trailing building id from /groups/{id}
// style paths. Returns 0 when the path carries no id.
func buildingFromPath(path, prefix string) (int64, bool) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := buildingFromPath(r.URL.Path, "/groups")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if id != 0 {
		snap, updated, ok := s.statuses.Get(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"building_id": id,
			"updated_at":  updated.Format(time.RFC3339Nano),
			"system_mode": snap.SystemMode,
			"groups":      snap.Groups,
		})
		return
	}
	all := s.statuses.GetAll()
	out := make(map[string]any, len(all))
	for bid, snap := range all {
		out[strconv.FormatInt(bid, 10)] = snap.Groups
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": out,
		"count":  len(out),
	})
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := buildingFromPath(r.URL.Path, "/faults")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if id != 0 {
		snap, updated, ok := s.statuses.Get(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"building_id": id,
			"updated_at":  updated.Format(time.RFC3339Nano),
			"pair_tick":   snap.PairTick,
			"faults":      snap.Faults,
		})
		return
	}
	all := s.statuses.GetAll()
	out := make(map[string]any, len(all))
	for bid, snap := range all {
		out[strconv.FormatInt(bid, 10)] = snap.Faults
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"faults": out,
		"count":  len(out),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var buildingID int64
	if v := r.URL.Query().Get("building"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		buildingID = n
	}
	sinceStr := r.URL.Query().Get("since")
	var list []alerting.AlertEvent
	switch {
	case sinceStr != "":
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	case buildingID != 0:
		list = s.alerts.ListBuilding(buildingID, limit)
	default:
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// handleActiveAlerts reports the live confirmation state per fault key,
// as opposed to the emitted event log served by /alerts.
func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	buildingID, err := strconv.ParseInt(r.URL.Query().Get("building"), 10, 64)
	if err != nil || buildingID <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	states := s.engine.Alerter().States(buildingID)
	writeJSON(w, http.StatusOK, map[string]any{
		"building_id": buildingID,
		"states":      states,
		"count":       len(states),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.statuses != nil {
			s.statuses.Clear()
		}
		if s.alerts != nil {
			s.alerts.Clear()
		}
	case "alerts":
		if s.alerts != nil {
			s.alerts.Clear()
		}
	case "status":
		if s.statuses != nil {
			s.statuses.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	if s.statuses != nil {
		s.statuses.Clear()
	}
	if s.alerts != nil {
		s.alerts.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
