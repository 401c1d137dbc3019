// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gordonklaus/portaudio"
)

var errMock = errors.New("mock error")

// stubDevices replaces the PortAudio device table for the duration of t.
func stubDevices(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig := paDevicesFunc
	t.Cleanup(func() { paDevicesFunc = orig })
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, err }
}

func testDeviceTable() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{Name: "INMP441", MaxInputChannels: 1, DefaultSampleRate: 44100},
		{Name: "USB Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
	}
}

func TestHostDevicesFromTable(t *testing.T) {
	stubDevices(t, testDeviceTable(), nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("len = %d, want 3", len(devices))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("device %d has ID %d", i, d.ID)
		}
	}
	if devices[1].Name != "INMP441" || devices[1].MaxInputChannels != 1 || devices[1].DefaultSampleRate != 44100 {
		t.Errorf("device 1 = %+v", devices[1])
	}
}

func TestHostDevicesError(t *testing.T) {
	stubDevices(t, nil, errMock)

	if _, err := HostDevices(); !errors.Is(err, errMock) {
		t.Errorf("HostDevices error = %v, want mock error", err)
	}
}

func TestInputDevice(t *testing.T) {
	stubDevices(t, testDeviceTable(), nil)

	tests := []struct {
		name     string
		id       int
		wantName string
		wantErr  string
	}{
		{"input device", 1, "INMP441", ""},
		{"second input", 2, "USB Mic", ""},
		{"output only", 0, "", "does not support input"},
		{"negative", -2, "", "invalid device ID"},
		{"too high", 10, "", "invalid device ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := InputDevice(tt.id)
			if tt.wantErr != "" {
				if !errors.Is(err, ErrNoDevice) || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("InputDevice(%d) error = %v, want ErrNoDevice with %q", tt.id, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("InputDevice(%d) error: %v", tt.id, err)
			}
			if dev.Name != tt.wantName {
				t.Errorf("name = %q, want %q", dev.Name, tt.wantName)
			}
		})
	}
}

func TestInputDeviceDefault(t *testing.T) {
	stubDevices(t, testDeviceTable(), nil)
	orig := paLibDefaultInputDeviceFunc
	t.Cleanup(func() { paLibDefaultInputDeviceFunc = orig })

	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return &portaudio.DeviceInfo{Name: "Default Mic", MaxInputChannels: 1}, nil
	}
	dev, err := InputDevice(-1)
	if err != nil || dev.Name != "Default Mic" {
		t.Errorf("InputDevice(-1) = %v, %v", dev, err)
	}

	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return nil, errMock }
	if _, err := InputDevice(-1); !errors.Is(err, errMock) {
		t.Errorf("InputDevice(-1) error = %v, want mock error", err)
	}
}

func TestInitializeTerminateWrapErrors(t *testing.T) {
	origInit, origTerm := paLibInitialize, paLibTerminate
	t.Cleanup(func() { paLibInitialize, paLibTerminate = origInit, origTerm })

	paLibInitialize = func() error { return nil }
	paLibTerminate = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("Initialize() = %v", err)
	}
	if err := Terminate(); err != nil {
		t.Errorf("Terminate() = %v", err)
	}

	paLibInitialize = func() error { return errMock }
	paLibTerminate = func() error { return errMock }
	if err := Initialize(); !errors.Is(err, errMock) || !strings.Contains(err.Error(), "initialize PortAudio") {
		t.Errorf("Initialize() = %v", err)
	}
	if err := Terminate(); !errors.Is(err, errMock) || !strings.Contains(err.Error(), "terminate PortAudio") {
		t.Errorf("Terminate() = %v", err)
	}
}

func TestPaDevicesNeverNil(t *testing.T) {
	orig := paLibDevicesFunc
	t.Cleanup(func() { paLibDevicesFunc = orig })

	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return nil, nil }
	devices, err := paDevices()
	if err != nil || devices == nil || len(devices) != 0 {
		t.Errorf("paDevices() = %v, %v; want empty non-nil slice", devices, err)
	}

	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return nil, errMock }
	if devices, err := paDevices(); err == nil || devices != nil {
		t.Errorf("paDevices() = %v, %v; want nil and error", devices, err)
	}
}

func TestListDevicesInputsOnly(t *testing.T) {
	stubDevices(t, testDeviceTable(), nil)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Speakers") {
		t.Errorf("output device listed: %q", out)
	}
	for _, want := range []string{"[1] INMP441", "44100 Hz", "[2] USB Mic", "Input channels: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestHostDevicesHardware runs against the real host when PortAudio loads.
func TestHostDevicesHardware(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() { _ = Terminate() })

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	for _, d := range devices {
		if d.Name == "" {
			t.Errorf("device %d has empty name", d.ID)
		}
	}
}
