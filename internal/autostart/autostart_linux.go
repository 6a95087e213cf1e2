//go:build linux

package autostart

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	serviceName = "cc-sfs"
	unitPath    = "/etc/systemd/system/cc-sfs.service"
	dataDir     = "/var/lib/cc-sfs"
)

// unitTemplate is the systemd unit written during installation. The serial
// and GPIO groups give access to the filament sensor devices.
const unitTemplate = `[Unit]
Description={description}
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={execStart}
WorkingDirectory={dataDir}
Restart=always
RestartSec={restartSec}
StandardOutput=journal
StandardError=journal
SyslogIdentifier=cc-sfs
SupplementaryGroups=dialout gpio

NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths={readWritePaths}
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`

type linuxManager struct{}

// New returns a Manager backed by systemd.
func New() Manager {
	return &linuxManager{}
}

func (l *linuxManager) ServiceName() string { return serviceName }

func (l *linuxManager) IsInstalled() (bool, error) {
	_, err := os.Stat(unitPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking unit file: %w", err)
	}
	return true, nil
}

func renderUnit(execPath, configPath string) string {
	execStart := append([]string{execPath}, serviceArgs(configPath)...)
	readWrite := []string{dataDir}
	if configPath != "" {
		readWrite = append(readWrite, filepath.Dir(configPath))
	}
	return strings.NewReplacer(
		"{description}", serviceDescription,
		"{execStart}", strings.Join(execStart, " "),
		"{restartSec}", strconv.Itoa(int(restartDelay.Seconds())),
		"{readWritePaths}", strings.Join(readWrite, " "),
		"{dataDir}", dataDir,
	).Replace(unitTemplate)
}

// Install writes the unit file, then reloads systemd and enables and starts
// the service.
func (l *linuxManager) Install(execPath, configPath string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(renderUnit(execPath, configPath)), 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}

	commands := [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", serviceName},
		{"systemctl", "restart", serviceName},
	}
	for _, args := range commands {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("running %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// Uninstall stops, disables and removes the service. Stop and disable
// failures are ignored when the service is already inactive.
func (l *linuxManager) Uninstall() error {
	_ = exec.Command("systemctl", "stop", serviceName).Run()
	_ = exec.Command("systemctl", "disable", serviceName).Run()

	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing unit file: %w", err)
	}
	_ = exec.Command("systemctl", "daemon-reload").Run()
	return nil
}
