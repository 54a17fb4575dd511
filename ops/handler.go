package ops

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/longportwhale/openapi-go/wsclient"
)

// Probe reports the connection state of one session.
type Probe struct {
	Name  string
	State func() wsclient.State
}

// AlertCounter is satisfied by alerts.Store.
type AlertCounter interface {
	Counts() (total, active int)
}

// Health is the /healthz body.
type Health struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Sessions     map[string]string `json:"sessions"`
	TotalAlerts  int               `json:"total_alerts"`
	ActiveAlerts int               `json:"active_alerts"`
}

// Handler serves /healthz and /logs.
type Handler struct {
	logBuffer *LogBuffer
	logger    *slog.Logger
	version   string
	startTime time.Time
	probes    []Probe
	alerts    AlertCounter

	keepalive time.Duration
}

// New creates a Handler. alerts may be nil.
func New(logBuffer *LogBuffer, logger *slog.Logger, version string, startTime time.Time, alerts AlertCounter, probes ...Probe) *Handler {
	return &Handler{
		logBuffer: logBuffer,
		logger:    logger,
		version:   version,
		startTime: startTime,
		probes:    probes,
		alerts:    alerts,
		keepalive: 15 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /logs", h.logs)
}

// BuildHealth reports "ok" only while every probed session is connected.
func (h *Handler) BuildHealth() Health {
	out := Health{
		Status:   "ok",
		Version:  h.version,
		Uptime:   time.Since(h.startTime).Truncate(time.Second).String(),
		Sessions: make(map[string]string, len(h.probes)),
	}
	for _, p := range h.probes {
		st := p.State()
		out.Sessions[p.Name] = st.String()
		if st != wsclient.StateConnected {
			out.Status = "degraded"
		}
	}
	if h.alerts != nil {
		out.TotalAlerts, out.ActiveAlerts = h.alerts.Counts()
	}
	return out
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	body := h.BuildHealth()
	w.Header().Set("Content-Type", "application/json")
	if body.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write health response", "error", err)
	}
}

// logs returns recent entries as JSON, or streams them as server-sent
// events when the client asks for text/event-stream.
func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	if r.Header.Get("Accept") != "text/event-stream" {
		entries := h.logBuffer.Recent(n)
		if entries == nil {
			entries = []LogEntry{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
		return
	}
	h.stream(w, r, n)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, backfill int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.logBuffer.Listen()
	defer cancel()

	for _, entry := range h.logBuffer.Recent(backfill) {
		writeEvent(w, entry)
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry := <-ch:
			writeEvent(w, entry)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, entry LogEntry) {
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
}
