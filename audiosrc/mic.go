package audiosrc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicSource captures live audio from a local input device and exposes it
// as fixed-size PCM16 chunks. Grounded on nwpulei-cw's audio.go
// AudioCapture, adapted from its float32 callback-push model to a
// blocking ReadChunk pull, and from FormatF32 to FormatS16 (spec §6:
// inputs are 16-bit signed PCM).
type MicSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	sampleRate int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []int16
	closed  bool
}

// NewMicSource opens the named capture device (or the system default, if
// deviceName is empty) at sampleRate.
func NewMicSource(sampleRate int, deviceName string) (*MicSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}

	m := &MicSource{ctx: ctx, sampleRate: sampleRate}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if deviceName != "" {
		if infos, err := ctx.Devices(malgo.Capture); err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(deviceName)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					break
				}
			}
		}
	}

	onRecvFrames := func(_, input []byte, frameCount uint32) {
		if len(input) == 0 {
			return
		}
		samples := make([]int16, frameCount)
		for i := range samples {
			samples[i] = int16(input[2*i]) | int16(input[2*i+1])<<8
		}

		m.mu.Lock()
		m.pending = append(m.pending, samples...)
		m.cond.Signal()
		m.mu.Unlock()
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	return m, nil
}

// ReadChunk blocks until chunkSize samples have accumulated from the
// capture callback and returns them.
func (m *MicSource) ReadChunk(chunkSize int) ([]int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.pending) < chunkSize && !m.closed {
		m.cond.Wait()
	}
	if m.closed && len(m.pending) < chunkSize {
		return nil, fmt.Errorf("mic source closed")
	}

	chunk := m.pending[:chunkSize]
	m.pending = m.pending[chunkSize:]
	return chunk, nil
}

// SampleRate reports the device's configured sample rate.
func (m *MicSource) SampleRate() int {
	return m.sampleRate
}

// Close stops capture and releases the audio device and context.
func (m *MicSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}
