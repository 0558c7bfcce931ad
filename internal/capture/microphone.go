package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/sidenote-app/capture/internal/audio"
	"github.com/sidenote-app/capture/internal/permissions"
)

const (
	micFramesPerBuffer     = 512
	permissionPollInterval = 200 * time.Millisecond
)

// Microphone captures the local microphone through PortAudio, converts
// frames to the canonical format and applies the gain boost before they
// leave the source.
type Microphone struct {
	log    zerolog.Logger
	device string
	gain   float64

	sink  Sink
	state atomic.Int32

	mu     sync.Mutex
	stream *portaudio.Stream
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMicrophone creates a microphone source. An empty device name picks
// the system default input.
func NewMicrophone(log zerolog.Logger, device string, gain float64) *Microphone {
	return &Microphone{
		log:    log.With().Str("source", audio.Microphone.String()).Logger(),
		device: device,
		gain:   gain,
	}
}

func (m *Microphone) Tag() audio.Source { return audio.Microphone }

func (m *Microphone) SetSink(s Sink) { m.sink = s }

func (m *Microphone) State() State { return State(m.state.Load()) }

func (m *Microphone) setState(st State) {
	m.state.Store(int32(st))
	if m.sink != nil {
		m.sink.OnSourceState(audio.Microphone, st)
	}
}

func (m *Microphone) fail(sentinel, cause error) error {
	m.setState(StateFailed)
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %v", sentinel, cause)
	}
	m.log.Error().Err(err).Msg("Microphone capture failed")
	return err
}

func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != StateIdle {
		return fmt.Errorf("microphone not idle (state %s)", m.State())
	}

	m.setState(StateRequestingPermission)
	if err := m.awaitPermission(ctx); err != nil {
		return err
	}

	m.setState(StateNegotiating)
	if err := portaudio.Initialize(); err != nil {
		return m.fail(ErrNoDevice, err)
	}

	device, err := m.findDevice()
	if err != nil {
		portaudio.Terminate()
		return m.fail(ErrNoDevice, err)
	}

	rate := int(device.DefaultSampleRate)
	if rate <= 0 || device.MaxInputChannels == 0 {
		portaudio.Terminate()
		return m.fail(ErrNoDevice,
			fmt.Errorf("invalid native format: rate=%d channels=%d", rate, device.MaxInputChannels))
	}

	// One converter per session: its resample phase must span frames.
	conv, err := audio.NewConverter(rate, 1)
	if err != nil {
		portaudio.Terminate()
		return m.fail(ErrFormatNegotiation, err)
	}

	buffer := make([]float32, micFramesPerBuffer)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		portaudio.Terminate()
		return m.fail(ErrFormatNegotiation, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return m.fail(ErrFormatNegotiation, err)
	}

	m.stream = stream
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	m.setState(StateActive)
	m.log.Info().Str("device", device.Name).Int("native_rate", rate).Msg("Microphone active")

	go m.readLoop(runCtx, stream, buffer, conv)
	return nil
}

// awaitPermission resolves the microphone authorization status. A
// not-yet-determined status triggers the system dialog and polls until
// the user answers; the wait is unbounded unless ctx is cancelled.
func (m *Microphone) awaitPermission(ctx context.Context) error {
	status := permissions.Microphone()
	if status == permissions.NotDetermined {
		m.log.Info().Msg("Requesting microphone permission")
		permissions.RequestMicrophone()
		for status == permissions.NotDetermined {
			select {
			case <-ctx.Done():
				m.setState(StateIdle)
				return ctx.Err()
			case <-time.After(permissionPollInterval):
			}
			status = permissions.Microphone()
		}
	}

	if status != permissions.Authorized {
		return m.fail(ErrPermissionDenied, fmt.Errorf("authorization status %q", status))
	}
	return nil
}

func (m *Microphone) findDevice() (*portaudio.DeviceInfo, error) {
	if m.device == "" {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == m.device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", m.device)
}

func (m *Microphone) readLoop(ctx context.Context, stream *portaudio.Stream, buffer []float32, conv *audio.Converter) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if ctx.Err() == nil {
				m.log.Error().Err(err).Msg("Microphone read error")
			}
			return
		}

		if m.sink == nil {
			continue
		}
		m.sink.OnLevel(audio.Microphone, audio.Level(buffer, audio.DefaultLevelBoost))
		pcm := conv.ConvertFloat32(buffer)
		audio.ApplyGain(pcm, m.gain)
		m.sink.OnCanonicalFrame(audio.Microphone, pcm)
	}
}

func (m *Microphone) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.stream != nil {
		m.stream.Abort()
	}
	if m.done != nil {
		<-m.done
		m.done = nil
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
		portaudio.Terminate()
	}

	m.setState(StateIdle)
}
