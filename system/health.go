package system

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthServer provides HTTP endpoints for health checking and monitoring,
// modeled on the teacher scheduler's HealthServer.
type HealthServer struct {
	sys       *System
	server    *http.Server
	startTime time.Time
}

// HealthResponse mirrors the teacher's health response shape, with the
// scheduler-specific fields replaced by charger telemetry.
type HealthResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Version   string       `json:"version,omitempty"`
	Charger   ChargerHealth `json:"charger"`
	System    SystemHealth `json:"system"`
}

// ChargerHealth reports the control-loop state relevant to an operator
// glancing at /health.
type ChargerHealth struct {
	ChargeState string `json:"charge_state"`
	PowerState  string `json:"power_state"`
	BadBatt     bool   `json:"bad_batt"`
	TempLimited bool   `json:"temp_limited"`
	ExtMissing  bool   `json:"ext_missing"`
}

// SystemHealth represents process-level health information.
type SystemHealth struct {
	Uptime string `json:"uptime"`
}

// NewHealthServer constructs a HealthServer bound to port. A non-positive
// port disables it, matching the teacher's nil-server convention — every
// method below is nil-receiver safe.
func NewHealthServer(sys *System, port int) *HealthServer {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	hs := &HealthServer{
		sys:       sys,
		startTime: time.Now(),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readinessHandler)
	mux.HandleFunc("/status", hs.statusHandler)
	mux.HandleFunc("/", hs.rootHandler)

	return hs
}

// Start starts the health check server.
func (hs *HealthServer) Start() error {
	if hs == nil {
		return nil
	}
	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("health server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully stops the health check server.
func (hs *HealthServer) Stop(ctx context.Context) error {
	if hs == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := hs.sys.Status()
	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		Charger: ChargerHealth{
			ChargeState: snap.ChargeState,
			PowerState:  snap.PowerState,
			BadBatt:     snap.BadBatt,
			TempLimited: snap.TempLimited,
			ExtMissing:  snap.ExtMissing,
		},
		System: SystemHealth{
			Uptime: formatUptime(time.Since(hs.startTime)),
		},
	}

	if snap.BadBatt {
		health.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

func (hs *HealthServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := hs.sys.Status()
	ready := map[string]any{
		"ready":     !snap.Timestamp.IsZero(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ready)
}

func (hs *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"snapshot":  hs.sys.Status(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (hs *HealthServer) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"service":     "mppt-charger-fw",
		"version":     "1.0.0",
		"description": "MPPT solar battery charger control firmware host harness",
		"endpoints": map[string]string{
			"health": "Health check endpoint",
			"ready":  "Readiness check endpoint",
			"status": "Detailed telemetry endpoint",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// formatUptime formats a duration with seconds rounded to integer.
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
