package cli

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ByLCY/textfit/clamp"
)

// clampStatus 是 /clamps 接口返回的单个 clamp 状态。
type clampStatus struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Seq       uint64 `json:"seq"`
	Truncated bool   `json:"truncated"`
	Expanded  bool   `json:"expanded"`
	Probes    int    `json:"probes"`
	Text      string `json:"text"`
	Error     string `json:"error,omitempty"`
}

func statusOf(state clamp.State, snap clamp.Snapshot) clampStatus {
	st := clampStatus{
		ID:        snap.ID,
		State:     state.String(),
		Seq:       snap.Seq,
		Truncated: snap.Result.Truncated,
		Expanded:  snap.Expanded,
		Probes:    snap.Result.Probes,
		Text:      snap.Text(),
	}
	if snap.Err != nil {
		st.Error = snap.Err.Error()
	}
	return st
}

// newStatusHandler 提供 /metrics、/healthz 与 /clamps 接口。
func newStatusHandler(reg *prometheus.Registry, s *session) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/clamps", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.statuses())
	})
	r.Get("/clamps/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, st := range s.statuses() {
			if st.ID == id {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
		http.Error(w, "clamp not found", http.StatusNotFound)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
