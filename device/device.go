// Package device describes where graph construction runs.
//
// The host (general-purpose CPU) is always present. Accelerator devices are
// declared by configuration: an identity, a memory budget and a number of
// compute streams. Work is admitted to a device through Resources, which
// grants exclusive, memory-bounded sessions.
package device

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/hupe1980/vecforge/errs"
)

// HostID is the identifier of the host device.
const HostID = -1

// Kind distinguishes general-purpose hardware from accelerators.
type Kind uint8

const (
	Host Kind = iota
	Accelerator
)

func (k Kind) String() string {
	switch k {
	case Host:
		return "cpu"
	case Accelerator:
		return "gpu"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ParseKind accepts "cpu"/"host" and "gpu"/"accelerator".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu", "host":
		return Host, nil
	case "gpu", "accelerator":
		return Accelerator, nil
	default:
		return 0, errs.Configuration("device.parse_kind", "type", "unknown device type %q (want cpu or gpu)", s)
	}
}

// Device is one compute target.
type Device struct {
	ID          int
	Kind        Kind
	Name        string
	MemoryBytes int64 // 0 means unbounded
	Streams     int
	Features    []string
}

func (d Device) String() string {
	return fmt.Sprintf("%s[%d] %s", d.Kind, d.ID, d.Name)
}

// HostDevice describes the machine the process runs on.
func HostDevice() Device {
	return Device{
		ID:       HostID,
		Kind:     Host,
		Name:     "host/" + runtime.GOARCH,
		Streams:  runtime.GOMAXPROCS(0),
		Features: cpuFeatures(),
	}
}

// Environment is the set of devices visible to the process.
type Environment struct {
	host         Device
	accelerators []Device
}

// NewEnvironment validates the declared accelerators. IDs must be unique and
// non-negative; memory and stream counts must be positive.
func NewEnvironment(accelerators ...Device) (*Environment, error) {
	seen := make(map[int]bool, len(accelerators))
	accs := make([]Device, 0, len(accelerators))
	for _, d := range accelerators {
		switch {
		case d.ID < 0:
			return nil, errs.Configuration("device.environment", "id", "accelerator id must be >= 0, got %d", d.ID)
		case seen[d.ID]:
			return nil, errs.Configuration("device.environment", "id", "duplicate accelerator id %d", d.ID)
		case d.MemoryBytes <= 0:
			return nil, errs.Configuration("device.environment", "memory_limit", "accelerator %d needs a positive memory budget", d.ID)
		case d.Streams <= 0:
			return nil, errs.Configuration("device.environment", "streams", "accelerator %d needs at least one stream", d.ID)
		}
		seen[d.ID] = true
		d.Kind = Accelerator
		if d.Name == "" {
			d.Name = fmt.Sprintf("accelerator-%d", d.ID)
		}
		accs = append(accs, d)
	}
	slices.SortFunc(accs, func(a, b Device) int { return a.ID - b.ID })
	return &Environment{host: HostDevice(), accelerators: accs}, nil
}

// Host returns the host device.
func (e *Environment) Host() Device { return e.host }

// Accelerators returns the declared accelerators ordered by ID.
func (e *Environment) Accelerators() []Device { return slices.Clone(e.accelerators) }

// Lookup returns the device with the given ID.
func (e *Environment) Lookup(id int) (Device, error) {
	if id == HostID {
		return e.host, nil
	}
	for _, d := range e.accelerators {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, errs.Configuration("device.lookup", "id", "no device with id %d", id)
}

// Devices returns the host followed by every accelerator.
func (e *Environment) Devices() []Device {
	return append([]Device{e.host}, e.accelerators...)
}
