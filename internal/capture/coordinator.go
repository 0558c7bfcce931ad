package capture

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sidenote-app/capture/internal/audio"
	"github.com/sidenote-app/capture/internal/metrics"
)

// Mixer is the synchronizer surface the coordinator feeds.
type Mixer interface {
	Start()
	Stop()
	AppendMicrophoneAudio(pcm []byte)
	AppendSystemAudio(pcm []byte)
}

// Options configures a coordinator. The enable switches are read once at
// Start; a disabled source is never started.
type Options struct {
	Log                zerolog.Logger
	Mixer              Mixer
	Metrics            *metrics.Metrics
	Microphone         Source
	System             Source
	CaptureMicrophone  bool
	CaptureSystemAudio bool
}

// Coordinator starts and stops both capture sources concurrently and
// independently, republishes per-source activity and level state for the
// UI, and routes canonical frames to the synchronizer. A slow or failed
// start on one source never delays the other.
type Coordinator struct {
	log     zerolog.Logger
	mixer   Mixer
	metrics *metrics.Metrics

	mic    Source
	system Source

	captureMic    bool
	captureSystem bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	micActive    atomic.Bool
	systemActive atomic.Bool
	micLevel     atomic.Uint64
	systemLevel  atomic.Uint64
}

// NewCoordinator wires itself as the sink of both sources.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		log:           opts.Log.With().Str("component", "coordinator").Logger(),
		mixer:         opts.Mixer,
		metrics:       opts.Metrics,
		mic:           opts.Microphone,
		system:        opts.System,
		captureMic:    opts.CaptureMicrophone,
		captureSystem: opts.CaptureSystemAudio,
	}
	if c.mic != nil {
		c.mic.SetSink(c)
	}
	if c.system != nil {
		c.system.SetSink(c)
	}
	return c
}

// Start launches every enabled source in its own goroutine and starts
// the synchronizer tick. It returns immediately; source activity shows
// up through the published flags.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.mixer.Start()

	if c.captureMic && c.mic != nil {
		go c.startSource(runCtx, c.mic)
	}
	if c.captureSystem && c.system != nil {
		go c.startSource(runCtx, c.system)
	}
}

func (c *Coordinator) startSource(ctx context.Context, src Source) {
	if err := src.Start(ctx); err != nil {
		c.log.Error().Err(err).Stringer("source", src.Tag()).Msg("Capture source failed")
	}
}

// Stop stops both sources unconditionally, stops the synchronizer and
// zeroes all published state. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.started = false

	// Unblocks a source still waiting on permission before Stop takes
	// its lifecycle lock.
	c.cancel()
	c.cancel = nil

	if c.mic != nil {
		c.mic.Stop()
	}
	if c.system != nil {
		c.system.Stop()
	}
	c.mixer.Stop()

	c.micActive.Store(false)
	c.systemActive.Store(false)
	c.micLevel.Store(0)
	c.systemLevel.Store(0)
	c.metrics.SetSourceActive(audio.Microphone.String(), false)
	c.metrics.SetSourceActive(audio.SystemAudio.String(), false)
	c.metrics.SetSourceLevel(audio.Microphone.String(), 0)
	c.metrics.SetSourceLevel(audio.SystemAudio.String(), 0)
}

// OnCanonicalFrame routes a tagged canonical frame to the matching
// synchronizer buffer. Runs on the source's native audio thread.
func (c *Coordinator) OnCanonicalFrame(src audio.Source, pcm []byte) {
	switch src {
	case audio.Microphone:
		c.mixer.AppendMicrophoneAudio(pcm)
	case audio.SystemAudio:
		c.mixer.AppendSystemAudio(pcm)
	}
}

// OnLevel republishes a source's most recent loudness estimate.
func (c *Coordinator) OnLevel(src audio.Source, level float64) {
	bits := math.Float64bits(level)
	switch src {
	case audio.Microphone:
		c.micLevel.Store(bits)
	case audio.SystemAudio:
		c.systemLevel.Store(bits)
	}
	c.metrics.SetSourceLevel(src.String(), level)
}

// OnSourceState republishes a source's activity flag.
func (c *Coordinator) OnSourceState(src audio.Source, state State) {
	active := state == StateActive
	switch src {
	case audio.Microphone:
		c.micActive.Store(active)
	case audio.SystemAudio:
		c.systemActive.Store(active)
	}
	c.metrics.SetSourceActive(src.String(), active)
	c.log.Debug().Stringer("source", src).Stringer("state", state).Msg("Source state changed")
}

// IsMicActive reports whether the microphone source is emitting frames.
func (c *Coordinator) IsMicActive() bool { return c.micActive.Load() }

// IsSystemAudioActive reports whether the system-audio source is
// emitting frames.
func (c *Coordinator) IsSystemAudioActive() bool { return c.systemActive.Load() }

// MicLevel returns the most recent microphone level in [0, 1].
func (c *Coordinator) MicLevel() float64 { return math.Float64frombits(c.micLevel.Load()) }

// SystemLevel returns the most recent system-audio level in [0, 1].
func (c *Coordinator) SystemLevel() float64 { return math.Float64frombits(c.systemLevel.Load()) }
