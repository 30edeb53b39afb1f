// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDeviceInfos() []*portaudio.DeviceInfo {
	host := &portaudio.HostApiInfo{Name: "Core Audio"}
	return []*portaudio.DeviceInfo{
		{Index: 0, Name: "MacBook Pro Microphone", MaxInputChannels: 1, DefaultSampleRate: 48000, HostApi: host},
		{Index: 1, Name: "MacBook Pro Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000, HostApi: host},
		{Index: 2, Name: "USB Audio CODEC", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 44100, HostApi: host},
		{Index: 3, Name: "USB Audio CODEC", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 44100, HostApi: host},
	}
}

// withFakeDevices swaps the PortAudio hooks for the duration of the test.
func withFakeDevices(t *testing.T, infos []*portaudio.DeviceInfo, defIn, defOut int) {
	t.Helper()
	origDevices := paLibDevicesFunc
	origIn := paLibDefaultInputDeviceFunc
	origOut := paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc = origDevices
		paLibDefaultInputDeviceFunc = origIn
		paLibDefaultOutputDeviceFunc = origOut
	})

	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, nil }
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return infos[defIn], nil }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return infos[defOut], nil }
}

func TestEndpoints(t *testing.T) {
	withFakeDevices(t, fakeDeviceInfos(), 0, 1)
	p := NewPortAudio()

	inputs, err := p.Endpoints(Input)
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	assert.Equal(t, "Core Audio/MacBook Pro Microphone", inputs[0].ID)
	assert.Equal(t, "Core Audio/USB Audio CODEC", inputs[1].ID)
	assert.Equal(t, "Core Audio/USB Audio CODEC#1", inputs[2].ID)
	assert.Equal(t, 2, inputs[1].MaxChannels)

	outputs, err := p.Endpoints(Output)
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.True(t, outputs[0].RiskySpeaker, "built-in speakers must be flagged")
	assert.False(t, outputs[1].RiskySpeaker)
	assert.Equal(t, TransportUSB, outputs[1].Transport)
}

func TestEndpoints_paDevicesError(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock error")
	}

	_, err := NewPortAudio().Endpoints(Input)
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestDefaultEndpoint(t *testing.T) {
	withFakeDevices(t, fakeDeviceInfos(), 0, 2)
	p := NewPortAudio()

	in, err := p.DefaultEndpoint(Input)
	require.NoError(t, err)
	assert.Equal(t, "Core Audio/MacBook Pro Microphone", in.ID)
	assert.Equal(t, Input, in.Direction)

	out, err := p.DefaultEndpoint(Output)
	require.NoError(t, err)
	assert.Equal(t, "Core Audio/USB Audio CODEC", out.ID)
	assert.Equal(t, Output, out.Direction)
}

func TestDefaultEndpoint_paDefaultInputDeviceError(t *testing.T) {
	withFakeDevices(t, fakeDeviceInfos(), 0, 1)
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock default input error")
	}

	_, err := NewPortAudio().DefaultEndpoint(Input)
	if err == nil || !strings.Contains(err.Error(), "mock default input error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestDefaultEndpoint_Unknown(t *testing.T) {
	withFakeDevices(t, fakeDeviceInfos(), 0, 1)
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return &portaudio.DeviceInfo{Index: 99, Name: "Ghost", MaxOutputChannels: 2}, nil
	}

	_, err := NewPortAudio().DefaultEndpoint(Output)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSetDefaultEndpointUnsupported(t *testing.T) {
	err := NewPortAudio().SetDefaultEndpoint(Endpoint{ID: "x"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSetBufferFrames(t *testing.T) {
	tests := []struct {
		request int
		want    int
	}{
		{128, 128},
		{200, 256},
		{5, 32},
		{0, 32},
		{100000, 4096},
	}

	p := NewPortAudio()
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.request), func(t *testing.T) {
			got, err := p.SetBufferFrames(Endpoint{ID: "out"}, tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, p.requestedFrames(Endpoint{ID: "out"}))
		})
	}
}

func TestErrorInitialize(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()

	paLibInitialize = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibInitialize = func() error { return fmt.Errorf("mock init error") }
	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("expected mock init error, got %v", err)
	}
}

func TestErrorTerminate(t *testing.T) {
	orig := paLibTerminate
	defer func() { paLibTerminate = orig }()

	paLibTerminate = func() error { return nil }
	if err := Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}

func TestNilDevices(t *testing.T) {
	orig := paLibDevicesFunc
	defer func() { paLibDevicesFunc = orig }()
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, nil
	}

	devices, err := paDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil {
		t.Errorf("expected empty slice, got nil")
	}
}

type fakeHandle struct {
	started, stopped, closed bool
	info                     *portaudio.StreamInfo
}

func (h *fakeHandle) Start() error                 { h.started = true; return nil }
func (h *fakeHandle) Stop() error                  { h.stopped = true; return nil }
func (h *fakeHandle) Close() error                 { h.closed = true; return nil }
func (h *fakeHandle) Info() *portaudio.StreamInfo { return h.info }

func TestOpenStream(t *testing.T) {
	infos := fakeDeviceInfos()
	withFakeDevices(t, infos, 2, 2)

	var gotParams portaudio.StreamParameters
	var gotCallback func(in, out []float32)
	handle := &fakeHandle{info: &portaudio.StreamInfo{SampleRate: 44100, OutputLatency: 5 * time.Millisecond}}

	orig := paLibOpenStream
	t.Cleanup(func() { paLibOpenStream = orig })
	paLibOpenStream = func(p portaudio.StreamParameters, cb func(in, out []float32)) (paStreamHandle, error) {
		gotParams = p
		gotCallback = cb
		return handle, nil
	}

	p := NewPortAudio()
	in, err := p.DefaultEndpoint(Input)
	require.NoError(t, err)
	out, err := p.DefaultEndpoint(Output)
	require.NoError(t, err)
	_, err = p.SetBufferFrames(out, 200)
	require.NoError(t, err)

	var calls int
	stream, err := p.OpenStream(StreamConfig{Input: in, Output: out, Channels: 1}, func(in, out []float32) {
		calls++
		copy(out, in)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, gotParams.Input.Channels)
	assert.Equal(t, 1, gotParams.Output.Channels)
	assert.Equal(t, 256, gotParams.FramesPerBuffer)
	assert.Equal(t, 256, stream.FramesPerBuffer())
	assert.Equal(t, 44100.0, stream.SampleRate())

	src := []float32{0.1, 0.2}
	dst := make([]float32, 2)
	gotCallback(src, dst)
	assert.Equal(t, 1, calls)
	assert.Equal(t, src, dst)

	require.NoError(t, stream.Start())
	require.NoError(t, stream.Stop())
	require.NoError(t, stream.Close())
	assert.True(t, handle.started && handle.stopped && handle.closed)
}

func TestOpenStream_MissingDevice(t *testing.T) {
	withFakeDevices(t, fakeDeviceInfos(), 0, 1)

	_, err := NewPortAudio().OpenStream(StreamConfig{
		Input:  Endpoint{ID: "Core Audio/Gone", Direction: Input},
		Output: Endpoint{ID: "Core Audio/USB Audio CODEC", Direction: Output},
	}, func(in, out []float32) {})
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}
