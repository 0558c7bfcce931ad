package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/sidenote-app/capture/internal/audio"
)

// SystemAudio captures what the rest of the system is playing (the other
// meeting participants) through a miniaudio loopback device. Native
// frames arrive as float32 and are converted to the canonical format; no
// gain is applied.
type SystemAudio struct {
	log zerolog.Logger

	sink  Sink
	state atomic.Int32

	mu     sync.Mutex
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	conv   *audio.Converter

	// stopping marks a deliberate teardown so onDeviceStopped can tell
	// it apart from a mid-session stream death. Atomic because the stop
	// callback fires on the miniaudio thread while teardown holds mu.
	stopping atomic.Bool
}

// NewSystemAudio creates a system-audio loopback source.
func NewSystemAudio(log zerolog.Logger) *SystemAudio {
	return &SystemAudio{
		log: log.With().Str("source", audio.SystemAudio.String()).Logger(),
	}
}

func (s *SystemAudio) Tag() audio.Source { return audio.SystemAudio }

func (s *SystemAudio) SetSink(sink Sink) { s.sink = sink }

func (s *SystemAudio) State() State { return State(s.state.Load()) }

func (s *SystemAudio) setState(st State) {
	s.state.Store(int32(st))
	if s.sink != nil {
		s.sink.OnSourceState(audio.SystemAudio, st)
	}
}

func (s *SystemAudio) fail(sentinel, cause error) error {
	s.setState(StateFailed)
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %v", sentinel, cause)
	}
	s.log.Error().Err(err).Msg("System audio capture failed")
	return err
}

func (s *SystemAudio) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateIdle {
		return fmt.Errorf("system audio not idle (state %s)", s.State())
	}

	// Loopback needs no user-facing permission prompt; the state still
	// passes through the same shape as the microphone.
	s.setState(StateRequestingPermission)
	if ctx.Err() != nil {
		s.setState(StateIdle)
		return ctx.Err()
	}

	s.setState(StateNegotiating)
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.log.Debug().Str("backend", "miniaudio").Msg(message)
	})
	if err != nil {
		return s.fail(ErrNoDevice, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Loopback)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 0 // device native
	cfg.SampleRate = 0       // device native
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onFrames,
		Stop: s.onDeviceStopped,
	})
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return s.fail(ErrNoDevice, err)
	}

	rate := int(device.SampleRate())
	channels := int(device.CaptureChannels())
	if rate <= 0 || channels == 0 {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return s.fail(ErrFormatNegotiation,
			fmt.Errorf("invalid native format: rate=%d channels=%d", rate, channels))
	}

	conv, err := audio.NewConverter(rate, channels)
	if err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return s.fail(ErrFormatNegotiation, err)
	}
	s.conv = conv

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return s.fail(ErrStreamFatal, err)
	}

	s.mctx = mctx
	s.device = device
	s.stopping.Store(false)

	s.setState(StateActive)
	s.log.Info().Int("native_rate", rate).Int("native_channels", channels).Msg("System audio active")
	return nil
}

// onFrames runs on the miniaudio capture thread. pInput holds framecount
// interleaved float32 frames in the negotiated channel layout.
func (s *SystemAudio) onFrames(_, pInput []byte, framecount uint32) {
	if s.State() != StateActive || s.sink == nil || len(pInput) < 4 {
		return
	}

	samples := make([]float32, len(pInput)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pInput[i*4:]))
	}

	s.sink.OnLevel(audio.SystemAudio, audio.Level(samples, audio.DefaultLevelBoost))
	s.sink.OnCanonicalFrame(audio.SystemAudio, s.conv.ConvertFloat32(samples))
}

// onDeviceStopped fires when the loopback device stops, deliberately or
// not. An unexpected stop is a fatal stream error; the source resets to
// Idle and the coordinator decides whether to retry.
func (s *SystemAudio) onDeviceStopped() {
	if s.stopping.Load() {
		return
	}

	s.log.Error().Err(ErrStreamFatal).Msg("System audio stream terminated")
	s.setState(StateFailed)

	// Teardown cannot run on the miniaudio callback thread.
	go func() {
		s.teardown()
		s.setState(StateIdle)
	}()
}

func (s *SystemAudio) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopping.Store(true)
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		s.mctx.Uninit()
		s.mctx.Free()
		s.mctx = nil
	}
	s.conv = nil
}

func (s *SystemAudio) Stop() {
	// Leaving Active first stops frame emission even while Uninit is
	// still draining the capture thread.
	s.state.Store(int32(StateIdle))
	s.teardown()
	s.setState(StateIdle)
}
