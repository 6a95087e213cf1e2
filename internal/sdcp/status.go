// Package sdcp defines the subset of the printer's websocket protocol the
// supervisor speaks: status enumerations, command codes, the outbound
// request envelope and decoding of inbound frames.
package sdcp

import "fmt"

// PrintStatus is the print lifecycle status reported in PrintInfo.Status.
type PrintStatus int

const (
	PrintStatusIdle         PrintStatus = 0
	PrintStatusHoming       PrintStatus = 1
	PrintStatusDropping     PrintStatus = 2
	PrintStatusExposuring   PrintStatus = 3
	PrintStatusLifting      PrintStatus = 4
	PrintStatusPausing      PrintStatus = 5
	PrintStatusPaused       PrintStatus = 6
	PrintStatusStopping     PrintStatus = 7
	PrintStatusStopped      PrintStatus = 8
	PrintStatusComplete     PrintStatus = 9
	PrintStatusFileChecking PrintStatus = 10
	PrintStatusPrinting     PrintStatus = 13
	PrintStatusUnknown15    PrintStatus = 15
	PrintStatusHeating      PrintStatus = 16
	PrintStatusUnknown18    PrintStatus = 18
	PrintStatusUnknown19    PrintStatus = 19
	PrintStatusBedLeveling  PrintStatus = 20
	PrintStatusUnknown21    PrintStatus = 21
)

var printStatusNames = map[PrintStatus]string{
	PrintStatusIdle:         "idle",
	PrintStatusHoming:       "homing",
	PrintStatusDropping:     "dropping",
	PrintStatusExposuring:   "exposuring",
	PrintStatusLifting:      "lifting",
	PrintStatusPausing:      "pausing",
	PrintStatusPaused:       "paused",
	PrintStatusStopping:     "stopping",
	PrintStatusStopped:      "stopped",
	PrintStatusComplete:     "complete",
	PrintStatusFileChecking: "file_checking",
	PrintStatusPrinting:     "printing",
	PrintStatusHeating:      "heating",
	PrintStatusBedLeveling:  "bed_leveling",
}

func (s PrintStatus) String() string {
	if name, ok := printStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// PrintError is the extended error code that accompanies a print status.
type PrintError int

const (
	PrintErrorNone              PrintError = 0
	PrintErrorCheck             PrintError = 1 // file MD5 check failed
	PrintErrorFileIO            PrintError = 2
	PrintErrorInvalidResolution PrintError = 3
	PrintErrorUnknownFormat     PrintError = 4
	PrintErrorUnknownModel      PrintError = 5
)

// MachineStatus is one of the concurrent activity flags the printer reports
// in Status.CurrentStatus.
type MachineStatus int

const (
	MachineStatusIdle MachineStatus = iota
	MachineStatusPrinting
	MachineStatusFileTransferring
	MachineStatusExposureTesting
	MachineStatusDevicesTesting

	machineStatusCount
)

var machineStatusNames = [machineStatusCount]string{
	"idle",
	"printing",
	"file_transferring",
	"exposure_testing",
	"devices_testing",
}

// Valid reports whether s is within the range the printer is known to send.
func (s MachineStatus) Valid() bool {
	return s >= 0 && s < machineStatusCount
}

func (s MachineStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("unknown(%d)", int(s))
	}
	return machineStatusNames[s]
}

// MaxMachineStatuses is how many CurrentStatus entries are considered.
const MaxMachineStatuses = 5

// MachineStatusSet is the set of machine statuses active at once.
type MachineStatusSet [machineStatusCount]bool

// NewMachineStatusSet builds a set from raw status codes. Only the first
// MaxMachineStatuses codes are read; codes outside the known range are dropped.
func NewMachineStatusSet(codes []int) MachineStatusSet {
	var set MachineStatusSet
	if len(codes) > MaxMachineStatuses {
		codes = codes[:MaxMachineStatuses]
	}
	for _, c := range codes {
		if s := MachineStatus(c); s.Valid() {
			set[s] = true
		}
	}
	return set
}

// Has reports whether s is in the set.
func (m MachineStatusSet) Has(s MachineStatus) bool {
	return s.Valid() && m[s]
}

// Statuses returns the members of the set in ascending order.
func (m MachineStatusSet) Statuses() []MachineStatus {
	out := make([]MachineStatus, 0, machineStatusCount)
	for i, on := range m {
		if on {
			out = append(out, MachineStatus(i))
		}
	}
	return out
}
