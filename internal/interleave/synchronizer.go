package interleave

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sidenote-app/capture/internal/audio"
	"github.com/sidenote-app/capture/internal/metrics"
)

// Timing and sizing contract with the downstream transcription service.
const (
	// TickInterval is the fixed emission cadence.
	TickInterval = 20 * time.Millisecond
	// SamplesPerTick is the number of canonical samples drained per
	// source per tick.
	SamplesPerTick = 320
	// BytesPerTick is one tick's worth of canonical PCM per source.
	BytesPerTick = SamplesPerTick * audio.BytesPerSample
	// FrameSize is the emitted stereo frame size: both channels
	// interleaved, always exact.
	FrameSize = 2 * BytesPerTick
	// BufferCap bounds each per-source buffer to about two seconds.
	// Overflow evicts the oldest bytes, so worst-case drift is bounded
	// and self-corrects toward the most recent audio.
	BufferCap = 64000
)

// Fixed output channel assignment. The transcription service attributes
// transcript text to "you" vs "them" by channel index; changing this
// silently breaks speaker attribution.
const (
	ChannelMicrophone = 0
	ChannelSystem     = 1
)

// Consumer receives the interleaved stereo frames, exactly FrameSize
// bytes every TickInterval while the synchronizer runs. The frame buffer
// is owned by the consumer after the call.
type Consumer interface {
	OnInterleavedFrame(frame []byte)
}

type sourceBuffer struct {
	name        string
	data        []byte
	overflowing bool
}

// Synchronizer buffers tagged canonical frames from both capture sources
// and, on a fixed 20 ms tick driven purely by wall-clock time, drains one
// tick's worth per source (padding with silence), interleaves the two
// mono slices into one stereo frame and emits it.
//
// The tick never waits on either source: a silent or dead source simply
// contributes zero samples. The lock covers append and drain only;
// interleaving and emission run outside it.
type Synchronizer struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	consumer Consumer

	mu      sync.Mutex
	running bool
	mic     sourceBuffer
	sys     sourceBuffer

	stop chan struct{}
	done chan struct{}
}

// New creates a synchronizer emitting to consumer. A nil consumer or nil
// metrics is allowed.
func New(log zerolog.Logger, consumer Consumer, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		log:      log.With().Str("component", "synchronizer").Logger(),
		metrics:  m,
		consumer: consumer,
		mic:      sourceBuffer{name: audio.Microphone.String()},
		sys:      sourceBuffer{name: audio.SystemAudio.String()},
	}
}

// AppendMicrophoneAudio queues canonical microphone PCM for the next
// ticks. Never blocks; over-cap bytes evict the oldest queued audio.
func (s *Synchronizer) AppendMicrophoneAudio(pcm []byte) {
	s.append(&s.mic, pcm)
}

// AppendSystemAudio queues canonical system-audio PCM for the next ticks.
func (s *Synchronizer) AppendSystemAudio(pcm []byte) {
	s.append(&s.sys, pcm)
}

func (s *Synchronizer) append(buf *sourceBuffer, pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	buf.data = append(buf.data, pcm...)
	s.metrics.RecordBytesReceived(buf.name, len(pcm))

	if over := len(buf.data) - BufferCap; over > 0 {
		n := copy(buf.data, buf.data[over:])
		buf.data = buf.data[:n]
		s.metrics.RecordBytesDropped(buf.name, over)
		if !buf.overflowing {
			buf.overflowing = true
			s.log.Warn().Str("source", buf.name).Int("dropped_bytes", over).
				Msg("Buffer overflow, discarding oldest audio")
		}
	} else {
		buf.overflowing = false
	}
}

// Start begins the fixed-cadence tick. Idempotent while running.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.mic.data = make([]byte, 0, BufferCap)
	s.sys.data = make([]byte, 0, BufferCap)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stop, s.done)
	s.log.Info().Dur("tick", TickInterval).Msg("Synchronizer running")
}

// Stop cancels the tick and discards both buffers without draining.
// Idempotent; no frame is emitted after it returns.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	s.mic.data, s.sys.data = nil, nil
	s.mic.overflowing, s.sys.overflowing = false, false
	s.mu.Unlock()
	s.log.Info().Msg("Synchronizer stopped")
}

func (s *Synchronizer) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick drains one tick's worth per source under the lock, then
// interleaves and emits outside it so the emission callback never holds
// up an append.
func (s *Synchronizer) tick() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	micSlice := drain(&s.mic)
	sysSlice := drain(&s.sys)
	s.mu.Unlock()

	frame := interleave(micSlice, sysSlice)
	s.metrics.RecordTick()
	s.metrics.RecordFrameEmitted()

	if s.consumer != nil {
		s.consumer.OnInterleavedFrame(frame)
	}
}

// drain removes up to BytesPerTick from the front of buf and returns a
// full BytesPerTick slice, zero-padded where the buffer ran short.
func drain(buf *sourceBuffer) []byte {
	out := make([]byte, BytesPerTick)
	n := copy(out, buf.data)
	if n > 0 {
		remaining := copy(buf.data, buf.data[n:])
		buf.data = buf.data[:remaining]
	}
	return out
}

// interleave alternates per-sample: output sample 2i is microphone
// sample i, output sample 2i+1 is system sample i.
func interleave(mic, sys []byte) []byte {
	frame := make([]byte, FrameSize)
	for i := 0; i < SamplesPerTick; i++ {
		frame[4*i] = mic[2*i]
		frame[4*i+1] = mic[2*i+1]
		frame[4*i+2] = sys[2*i]
		frame[4*i+3] = sys[2*i+1]
	}
	return frame
}
