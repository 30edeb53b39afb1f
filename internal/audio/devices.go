// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"

	"passthru/pkg/bitint"

	"github.com/gordonklaus/portaudio"
)

// Hooks around the PortAudio library so tests can inject failures.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultInputDeviceFunc  = portaudio.DefaultInputDevice
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paDevicesFunc                = paDevices
)

const (
	minBufferFrames = 32
	maxBufferFrames = 4096
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// PortAudio implements DeviceService and Backend on top of PortAudio.
// PortAudio cannot change the system default device, so
// SetDefaultEndpoint always reports ErrUnsupported; buffer size requests
// are remembered and applied when the stream is opened.
type PortAudio struct {
	mu           sync.Mutex
	bufferFrames map[string]int // Requested frames per endpoint ID
}

// NewPortAudio returns a PortAudio platform. Initialize must have been
// called first.
func NewPortAudio() *PortAudio {
	return &PortAudio{bufferFrames: make(map[string]int)}
}

// Endpoints enumerates every PortAudio device that has channels in dir.
func (p *PortAudio) Endpoints(dir Direction) ([]Endpoint, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	ids := deviceIDs(infos)

	endpoints := make([]Endpoint, 0, len(infos))
	for _, info := range infos {
		if channelsFor(info, dir) == 0 {
			continue
		}
		endpoints = append(endpoints, endpointFromInfo(info, dir, ids[info.Index]))
	}
	return endpoints, nil
}

// DefaultEndpoint returns the host's default device for dir.
func (p *PortAudio) DefaultEndpoint(dir Direction) (Endpoint, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return Endpoint{}, err
	}

	var info *portaudio.DeviceInfo
	if dir == Input {
		info, err = paLibDefaultInputDeviceFunc()
	} else {
		info, err = paLibDefaultOutputDeviceFunc()
	}
	if err != nil {
		return Endpoint{}, err
	}
	if info == nil {
		return Endpoint{}, ErrDeviceNotFound
	}

	id, ok := deviceIDs(infos)[info.Index]
	if !ok {
		return Endpoint{}, fmt.Errorf("default %s device %q: %w", dir, info.Name, ErrDeviceNotFound)
	}
	return endpointFromInfo(info, dir, id), nil
}

// SetDefaultEndpoint is not available through PortAudio.
func (p *PortAudio) SetDefaultEndpoint(Endpoint) error {
	return ErrUnsupported
}

// SetBufferFrames records the preferred buffer size for e. The request is
// rounded up to a power of two within [32, 4096].
func (p *PortAudio) SetBufferFrames(e Endpoint, frames int) (int, error) {
	granted := bitint.ClampPowerOfTwo(frames, minBufferFrames, maxBufferFrames)

	p.mu.Lock()
	p.bufferFrames[e.ID] = granted
	p.mu.Unlock()
	return granted, nil
}

func (p *PortAudio) requestedFrames(e Endpoint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferFrames[e.ID]
}

// lookup resolves an endpoint back to its PortAudio device.
func (p *PortAudio) lookup(e Endpoint) (*portaudio.DeviceInfo, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	ids := deviceIDs(infos)
	for _, info := range infos {
		if ids[info.Index] == e.ID && channelsFor(info, e.Direction) > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%s device %q: %w", e.Direction, e.Name, ErrDeviceNotFound)
}

// paDevices returns all available PortAudio devices, never nil on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}

// deviceIDs assigns each device a handle built from its host API and name.
// Duplicate names within one host API get an ordinal suffix.
func deviceIDs(infos []*portaudio.DeviceInfo) map[int]string {
	ids := make(map[int]string, len(infos))
	seen := make(map[string]int, len(infos))
	for _, info := range infos {
		host := ""
		if info.HostApi != nil {
			host = info.HostApi.Name
		}
		base := host + "/" + info.Name
		n := seen[base]
		seen[base] = n + 1
		if n > 0 {
			base = fmt.Sprintf("%s#%d", base, n)
		}
		ids[info.Index] = base
	}
	return ids
}

func channelsFor(info *portaudio.DeviceInfo, dir Direction) int {
	if dir == Input {
		return info.MaxInputChannels
	}
	return info.MaxOutputChannels
}

func endpointFromInfo(info *portaudio.DeviceInfo, dir Direction, id string) Endpoint {
	host := ""
	if info.HostApi != nil {
		host = info.HostApi.Name
	}
	return Classify(Endpoint{
		ID:                id,
		Name:              info.Name,
		Direction:         dir,
		HostAPI:           host,
		MaxChannels:       channelsFor(info, dir),
		DefaultSampleRate: info.DefaultSampleRate,
	})
}

var (
	_ DeviceService = (*PortAudio)(nil)
	_ Backend       = (*PortAudio)(nil)
)
