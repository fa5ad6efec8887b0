package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const adminTimeout = 2 * time.Second

// NewDebugMux 本地调试接口
// GET  /status      会话状态
// GET  /admin/zoom  当前缩放
// POST /admin/zoom  {"zoom":1.5} 或 {"steps":-1}
// GET  /metrics     Prometheus 指标
// GET  /healthz
func NewDebugMux(s *Session, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *http.ServeMux {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
		defer cancel()
		st, err := s.Status(ctx)
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, st)
	})
	mux.HandleFunc("/admin/zoom", func(w http.ResponseWriter, r *http.Request) {
		handleZoom(w, r, s, log)
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// handleZoom 读取或调整相机缩放
func handleZoom(w http.ResponseWriter, r *http.Request, s *Session, log *zap.SugaredLogger) {
	type zoomBody struct {
		Zoom  *float64 `json:"zoom,omitempty"`
		Steps *int     `json:"steps,omitempty"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var body zoomBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		switch {
		case body.Zoom != nil:
			if *body.Zoom < MinZoom || *body.Zoom > MaxZoom {
				http.Error(w, "zoom out of range", http.StatusBadRequest)
				return
			}
			s.SetZoom(*body.Zoom)
		case body.Steps != nil:
			s.Zoom(*body.Steps)
		default:
			http.Error(w, "zoom or steps required", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.Status(ctx)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		log.Infof("zoom updated: %.2f", st.Camera.Zoom)
	}
	z := st.Camera.Zoom
	writeJSON(w, zoomBody{Zoom: &z})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
