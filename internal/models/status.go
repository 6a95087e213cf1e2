// Package models defines the JSON documents served by the status API and
// published as telemetry. Durations are expressed in whole milliseconds.
package models

import (
	"time"

	"github.com/Natclanwy/cc-sfs/internal/config"
	"github.com/Natclanwy/cc-sfs/internal/supervisor"
)

// SensorStatus is the combined filament and printer status.
type SensorStatus struct {
	Timestamp      time.Time      `json:"timestamp"`
	Stopped        bool           `json:"stopped"`
	FilamentRunout bool           `json:"filamentRunout"`
	Elegoo         PrinterStatus  `json:"elegoo"`
	Settings       StatusSettings `json:"settings"`
}

// PrinterStatus is the mirrored printer state plus the tick statistics.
type PrinterStatus struct {
	MainboardID          string  `json:"mainboardID"`
	PrintStatus          int     `json:"printStatus"`
	IsPrinting           bool    `json:"isPrinting"`
	CurrentLayer         int     `json:"currentLayer"`
	TotalLayer           int     `json:"totalLayer"`
	Progress             int     `json:"progress"`
	CurrentTicks         int     `json:"currentTicks"`
	TotalTicks           int     `json:"totalTicks"`
	PrintSpeedPct        int     `json:"PrintSpeedPct"`
	IsWebsocketConnected bool    `json:"isWebsocketConnected"`
	WaitingForAck        bool    `json:"waitingForAck"`
	CurrentZ             float64 `json:"currentZ"`

	AvgTimeBetweenTicks int64 `json:"avgTimeBetweenTicks"`
	MinTickTime         int64 `json:"minTickTime"`
	MaxTickTime         int64 `json:"maxTickTime"`
	TickSampleCount     int   `json:"tickSampleCount"`

	StartAvgTickTime int64 `json:"startAvgTickTime"`
	StartMinTickTime int64 `json:"startMinTickTime"`
	StartMaxTickTime int64 `json:"startMaxTickTime"`
	StartTickCount   int   `json:"startTickCount"`

	FirstLayerAvgTickTime int64 `json:"firstLayerAvgTickTime"`
	FirstLayerMinTickTime int64 `json:"firstLayerMinTickTime"`
	FirstLayerMaxTickTime int64 `json:"firstLayerMaxTickTime"`
	FirstLayerTickCount   int   `json:"firstLayerTickCount"`

	LaterLayersAvgTickTime int64 `json:"laterLayersAvgTickTime"`
	LaterLayersMinTickTime int64 `json:"laterLayersMinTickTime"`
	LaterLayersMaxTickTime int64 `json:"laterLayersMaxTickTime"`
	LaterLayersTickCount   int   `json:"laterLayersTickCount"`
}

// StatusSettings is the subset of settings echoed with the status.
type StatusSettings struct {
	Timeout           int64 `json:"timeout"`
	FirstLayerTimeout int64 `json:"first_layer_timeout"`
	Enabled           bool  `json:"enabled"`
}

// NewSensorStatus builds the status document from a supervisor snapshot.
func NewSensorStatus(snap supervisor.Snapshot, at time.Time) SensorStatus {
	p := snap.Printer
	st := snap.Stats
	return SensorStatus{
		Timestamp:      at.UTC(),
		Stopped:        snap.FilamentStopped,
		FilamentRunout: snap.FilamentRunout,
		Elegoo: PrinterStatus{
			MainboardID:          p.MainboardID,
			PrintStatus:          int(p.PrintStatus),
			IsPrinting:           snap.Printing,
			CurrentLayer:         p.CurrentLayer,
			TotalLayer:           p.TotalLayer,
			Progress:             p.Progress,
			CurrentTicks:         p.CurrentTicks,
			TotalTicks:           p.TotalTicks,
			PrintSpeedPct:        p.PrintSpeedPct,
			IsWebsocketConnected: snap.Connected,
			WaitingForAck:        snap.WaitingForAck,
			CurrentZ:             p.CurrentZ,

			AvgTimeBetweenTicks: ms(st.Overall.Average),
			MinTickTime:         ms(st.Overall.Min),
			MaxTickTime:         ms(st.Overall.Max),
			TickSampleCount:     st.Overall.Count,

			StartAvgTickTime: ms(st.Start.Average),
			StartMinTickTime: ms(st.Start.Min),
			StartMaxTickTime: ms(st.Start.Max),
			StartTickCount:   st.Start.Count,

			FirstLayerAvgTickTime: ms(st.FirstLayer.Average),
			FirstLayerMinTickTime: ms(st.FirstLayer.Min),
			FirstLayerMaxTickTime: ms(st.FirstLayer.Max),
			FirstLayerTickCount:   st.FirstLayer.Count,

			LaterLayersAvgTickTime: ms(st.LaterLayers.Average),
			LaterLayersMinTickTime: ms(st.LaterLayers.Min),
			LaterLayersMaxTickTime: ms(st.LaterLayers.Max),
			LaterLayersTickCount:   st.LaterLayers.Count,
		},
		Settings: StatusSettings{
			Timeout:           ms(snap.Settings.Timeout),
			FirstLayerTimeout: ms(snap.Settings.FirstLayerTimeout),
			Enabled:           snap.Settings.Enabled,
		},
	}
}

// Settings is the editable settings document.
type Settings struct {
	Timeout           int64  `json:"timeout"`
	FirstLayerTimeout int64  `json:"first_layer_timeout"`
	StartPrintTimeout int64  `json:"start_print_timeout"`
	PauseOnRunout     bool   `json:"pause_on_runout"`
	Enabled           bool   `json:"enabled"`
	ElegooIP          string `json:"elegooip"`
}

// NewSettings converts runtime settings to the document form.
func NewSettings(s config.Settings) Settings {
	return Settings{
		Timeout:           ms(s.Timeout),
		FirstLayerTimeout: ms(s.FirstLayerTimeout),
		StartPrintTimeout: ms(s.StartPrintTimeout),
		PauseOnRunout:     s.PauseOnRunout,
		Enabled:           s.Enabled,
		ElegooIP:          s.PrinterAddress,
	}
}

// Apply converts the document back to runtime settings.
func (s Settings) Apply() config.Settings {
	return config.Settings{
		Enabled:           s.Enabled,
		Timeout:           time.Duration(s.Timeout) * time.Millisecond,
		FirstLayerTimeout: time.Duration(s.FirstLayerTimeout) * time.Millisecond,
		StartPrintTimeout: time.Duration(s.StartPrintTimeout) * time.Millisecond,
		PauseOnRunout:     s.PauseOnRunout,
		PrinterAddress:    s.ElegooIP,
	}
}

// SettingsUpdate is the reply to a settings change.
type SettingsUpdate struct {
	Success  bool     `json:"success"`
	Settings Settings `json:"settings"`
	Error    string   `json:"error,omitempty"`
}

// LogEntry is one retained log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Logger    string    `json:"logger,omitempty"`
	Message   string    `json:"message"`
}

// Version describes the running build and its host.
type Version struct {
	FirmwareVersion string `json:"firmware_version"`
	ChipFamily      string `json:"chip_family"`
	BuildDate       string `json:"build_date"`
	Hostname        string `json:"hostname,omitempty"`
	OS              string `json:"os,omitempty"`
	Platform        string `json:"platform,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_seconds,omitempty"`
	MemoryTotal     uint64 `json:"memory_total,omitempty"`
	MemoryUsed      uint64 `json:"memory_used,omitempty"`
}

func ms(d time.Duration) int64 {
	return d.Milliseconds()
}
