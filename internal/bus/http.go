package bus

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusProvider is whatever can describe the current process-wide
// status; package registry's GovernorRegistry implements it.
type StatusProvider interface {
	StatusSummary() map[string]interface{}
}

// Commands is the subset of BusAdapter's command surface exposed over
// HTTP rather than as scalar bus channels: limit and position edits
// carry a structured body ({low, high} / {value}) that doesn't map
// naturally onto a single pub/sub write point (spec.md §4.4/§9).
type Commands interface {
	SetStateDeviceLimit(governor, state, device string, low, high float64) error
	SetDevicePosition(governor, device, position string, value float64) error
}

type limitBody struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type positionBody struct {
	Value float64 `json:"value"`
}

// NewHTTPServer builds the mux.Router backing spec.md's expansion of
// the external-interfaces section: /healthz, /metrics (Prometheus),
// /status (JSON snapshot of every governor), /ws (websocket firehose
// onto the bus), and the limit/position edit endpoints, grounded on the
// teacher's gorilla/mux usage for its HTTP surface. cmds may be nil, in
// which case the edit endpoints answer 503.
func NewHTTPServer(b Bus, status StatusProvider, cmds Commands, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status.StatusSummary())
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		sub, err := NewWebSocketSubscriber(w, r, logger)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		channel := r.URL.Query().Get("channel")
		if channel == "" {
			channel = wildcard
		}
		if err := b.Subscribe(channel, sub); err != nil {
			logger.Warn("websocket subscribe failed", "error", err)
			sub.Close()
			return
		}
		<-sub.Context().Done()
		b.Unsubscribe(channel, sub)
	})

	r.HandleFunc("/governors/{gov}/states/{state}/devices/{device}/limit", func(w http.ResponseWriter, r *http.Request) {
		if cmds == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		vars := mux.Vars(r)
		var body limitBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := cmds.SetStateDeviceLimit(vars["gov"], vars["state"], vars["device"], body.Low, body.High); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	r.HandleFunc("/governors/{gov}/devices/{device}/positions/{position}", func(w http.ResponseWriter, r *http.Request) {
		if cmds == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		vars := mux.Vars(r)
		var body positionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := cmds.SetDevicePosition(vars["gov"], vars["device"], vars["position"], body.Value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	return r
}
