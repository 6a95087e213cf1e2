//go:build !linux && !windows

package autostart

type unsupportedManager struct{}

// New returns a Manager whose operations fail with ErrUnsupported.
func New() Manager {
	return unsupportedManager{}
}

func (unsupportedManager) ServiceName() string { return "cc-sfs" }

func (unsupportedManager) IsInstalled() (bool, error) { return false, ErrUnsupported }

func (unsupportedManager) Install(execPath, configPath string) error { return ErrUnsupported }

func (unsupportedManager) Uninstall() error { return ErrUnsupported }
