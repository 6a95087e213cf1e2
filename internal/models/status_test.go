package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Natclanwy/cc-sfs/internal/config"
	"github.com/Natclanwy/cc-sfs/internal/sdcp"
	"github.com/Natclanwy/cc-sfs/internal/supervisor"
	"github.com/Natclanwy/cc-sfs/internal/tickstats"
)

func TestNewSensorStatus(t *testing.T) {
	snap := supervisor.Snapshot{
		Printer: supervisor.Printer{
			MainboardID:  "mb-1",
			PrintStatus:  sdcp.PrintStatusPrinting,
			CurrentLayer: 3,
			CurrentTicks: 120,
			TotalTicks:   900,
		},
		Printing:        true,
		Connected:       true,
		FilamentStopped: true,
		Stats: tickstats.Snapshot{
			Overall:    tickstats.Summary{Count: 4, Average: 1500 * time.Millisecond, Min: 900 * time.Millisecond, Max: 2 * time.Second},
			FirstLayer: tickstats.Summary{Count: 1, Average: time.Second, Min: time.Second, Max: time.Second},
		},
		Settings: config.Settings{Timeout: 2 * time.Second, FirstLayerTimeout: 4 * time.Second, Enabled: true},
	}

	doc := NewSensorStatus(snap, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["stopped"] != true || got["filamentRunout"] != false {
		t.Errorf("top level = %v", got)
	}

	elegoo := got["elegoo"].(map[string]interface{})
	checks := map[string]interface{}{
		"mainboardID":          "mb-1",
		"printStatus":          float64(13),
		"isPrinting":           true,
		"isWebsocketConnected": true,
		"currentTicks":         float64(120),
		"avgTimeBetweenTicks":  float64(1500),
		"minTickTime":          float64(900),
		"maxTickTime":          float64(2000),
		"tickSampleCount":      float64(4),
		"firstLayerTickCount":  float64(1),
		"startTickCount":       float64(0),
	}
	for key, want := range checks {
		if elegoo[key] != want {
			t.Errorf("elegoo[%q] = %v, want %v", key, elegoo[key], want)
		}
	}

	settings := got["settings"].(map[string]interface{})
	if settings["timeout"] != float64(2000) || settings["first_layer_timeout"] != float64(4000) || settings["enabled"] != true {
		t.Errorf("settings = %v", settings)
	}
}

func TestSettingsDocumentRoundTrip(t *testing.T) {
	in := config.Settings{
		Enabled:           true,
		Timeout:           2500 * time.Millisecond,
		FirstLayerTimeout: 5 * time.Second,
		StartPrintTimeout: 12 * time.Second,
		PauseOnRunout:     false,
		PrinterAddress:    "10.0.0.8",
	}
	doc := NewSettings(in)
	if doc.Timeout != 2500 || doc.StartPrintTimeout != 12000 || doc.ElegooIP != "10.0.0.8" {
		t.Fatalf("document = %+v", doc)
	}
	if out := doc.Apply(); out != in {
		t.Errorf("Apply() = %+v, want %+v", out, in)
	}
}
