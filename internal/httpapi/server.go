// Package httpapi serves the supervisor status, settings, statistics reset,
// recent logs and build version over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/config"
	"github.com/Natclanwy/cc-sfs/internal/hostinfo"
	"github.com/Natclanwy/cc-sfs/internal/models"
	"github.com/Natclanwy/cc-sfs/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// Supervisor is the part of the supervisor the API reads and resets.
type Supervisor interface {
	Snapshot() supervisor.Snapshot
	ResetStats()
}

// SettingsStore holds the editable settings.
type SettingsStore interface {
	Settings() config.Settings
	UpdateSettings(config.Settings) error
}

// LogSource returns recent log entries.
type LogSource interface {
	Entries() []models.LogEntry
}

// HostFacts reports facts about the host.
type HostFacts interface {
	Collect(ctx context.Context) hostinfo.Facts
}

// Build identifies the running binary.
type Build struct {
	Version   string
	BuildDate string
}

// Server is the HTTP API.
type Server struct {
	sup      Supervisor
	settings SettingsStore
	logs     LogSource
	host     HostFacts
	build    Build
	logger   *zap.Logger

	router *mux.Router
	now    func() time.Time
}

// New builds the router. logs and host may be nil.
func New(sup Supervisor, settings SettingsStore, logs LogSource, host HostFacts, build Build, logger *zap.Logger) *Server {
	s := &Server{
		sup:      sup,
		settings: settings,
		logs:     logs,
		host:     host,
		build:    build,
		logger:   logger.Named("http"),
		router:   mux.NewRouter(),
		now:      time.Now,
	}

	s.router.HandleFunc("/sensor_status", s.handleSensorStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/reset_stats", s.handleResetStats).Methods(http.MethodPost)
	s.router.HandleFunc("/get_settings", s.handleGetSettings).Methods(http.MethodGet)
	s.router.HandleFunc("/update_settings", s.handleUpdateSettings).Methods(http.MethodPost)
	s.router.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSensorStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, models.NewSensorStatus(s.sup.Snapshot(), s.now()))
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.sup.ResetStats()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, models.NewSettings(s.settings.Settings()))
}

// handleUpdateSettings applies the posted fields over the current settings.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	doc := models.NewSettings(s.settings.Settings())
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.writeJSON(w, http.StatusBadRequest, models.SettingsUpdate{
			Settings: models.NewSettings(s.settings.Settings()),
			Error:    "invalid payload",
		})
		return
	}

	next := doc.Apply()
	status := http.StatusOK
	resp := models.SettingsUpdate{Success: true}
	switch err := s.settings.UpdateSettings(next); {
	case errors.Is(err, config.ErrInvalidSettings):
		status = http.StatusBadRequest
		resp = models.SettingsUpdate{Error: err.Error()}
	case err != nil:
		s.logger.Error("Failed to save settings", zap.Error(err))
		status = http.StatusInternalServerError
		resp = models.SettingsUpdate{Error: err.Error()}
	default:
		s.logger.Info("Settings updated",
			zap.Bool("enabled", next.Enabled),
			zap.Duration("timeout", next.Timeout),
			zap.Duration("first_layer_timeout", next.FirstLayerTimeout),
			zap.Duration("start_print_timeout", next.StartPrintTimeout),
			zap.Bool("pause_on_runout", next.PauseOnRunout),
			zap.String("printer_address", next.PrinterAddress))
	}
	resp.Settings = models.NewSettings(s.settings.Settings())
	s.writeJSON(w, status, resp)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := []models.LogEntry{}
	if s.logs != nil {
		entries = append(entries, s.logs.Entries()...)
	}
	s.writeJSON(w, http.StatusOK, map[string][]models.LogEntry{"logs": entries})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	v := models.Version{
		FirmwareVersion: s.build.Version,
		BuildDate:       s.build.BuildDate,
	}
	if s.host != nil {
		facts := s.host.Collect(r.Context())
		v.ChipFamily = facts.Arch
		v.Hostname = facts.Hostname
		v.OS = facts.OS
		v.Platform = facts.Platform
		v.UptimeSeconds = facts.UptimeSeconds
		v.MemoryTotal = facts.MemoryTotal
		v.MemoryUsed = facts.MemoryUsed
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}
