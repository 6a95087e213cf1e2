package autostart

import (
	"reflect"
	"testing"
)

func TestServiceArgs(t *testing.T) {
	tests := []struct {
		configPath string
		want       []string
	}{
		{"/etc/cc-sfs/config.yaml", []string{"-config", "/etc/cc-sfs/config.yaml"}},
		{`C:\ProgramData\cc-sfs\config.yaml`, []string{"-config", `C:\ProgramData\cc-sfs\config.yaml`}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := serviceArgs(tt.configPath); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("serviceArgs(%q) = %q, want %q", tt.configPath, got, tt.want)
		}
	}
}
