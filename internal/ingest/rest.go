package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sensorfuse/internal/config"
	"sensorfuse/internal/model"
)

type RESTServer struct {
	cfg    *config.Manager
	out    chan<- model.ReadingBatch
	dedupe *DedupeCache
	logger *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, dedupe *DedupeCache, out chan<- model.ReadingBatch, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, out: out, dedupe: dedupe, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/readings", server.handleReadings)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := bytesTrim(body)
	if len(trim) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	accepted := 0
	deduped := 0
	failed := 0

	if trim[0] == '[' {
		var list []wireBatch
		if err := json.Unmarshal(trim, &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, wire := range list {
			switch s.processWire(wire) {
			case batchAccepted:
				accepted++
			case batchDeduped:
				deduped++
			default:
				failed++
			}
		}
	} else {
		var wire wireBatch
		if err := json.Unmarshal(trim, &wire); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch s.processWire(wire) {
		case batchAccepted:
			accepted++
		case batchDeduped:
			deduped++
		default:
			failed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": accepted,
		"deduped":  deduped,
		"failed":   failed,
	})
}

type processResult int

const (
	batchFailed processResult = iota
	batchAccepted
	batchDeduped
)

func (s *RESTServer) processWire(wire wireBatch) processResult {
	batch, err := batchFromWire(wire)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest batch rejected", "err", err)
		}
		return batchFailed
	}
	batch.Source = "rest"
	ttl := s.cfg.Get().Ingest.DedupeWindow
	if s.dedupe != nil && s.dedupe.Seen(BatchKey(*batch), time.Now().UTC(), ttl) {
		return batchDeduped
	}
	SendNonBlocking(context.Background(), s.out, *batch, s.logger)
	return batchAccepted
}

func bytesTrim(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}
