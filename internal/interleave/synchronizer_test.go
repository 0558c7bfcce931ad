package interleave

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type frameCollector struct {
	frames chan []byte
}

func newFrameCollector() *frameCollector {
	return &frameCollector{frames: make(chan []byte, 64)}
}

func (c *frameCollector) OnInterleavedFrame(frame []byte) {
	select {
	case c.frames <- frame:
	default:
	}
}

// startWithoutTimer marks the synchronizer running without spawning the
// tick goroutine, so tests can drive ticks deterministically.
func startWithoutTimer(s *Synchronizer) {
	s.mu.Lock()
	s.running = true
	s.mic.data = make([]byte, 0, BufferCap)
	s.sys.data = make([]byte, 0, BufferCap)
	s.mu.Unlock()
}

// deinterleave splits a stereo frame back into its mono channels.
func deinterleave(t *testing.T, frame []byte) (mic, sys []byte) {
	t.Helper()
	if len(frame) != FrameSize {
		t.Fatalf("expected frame of %d bytes, got %d", FrameSize, len(frame))
	}
	mic = make([]byte, BytesPerTick)
	sys = make([]byte, BytesPerTick)
	for i := 0; i < SamplesPerTick; i++ {
		mic[2*i] = frame[4*i]
		mic[2*i+1] = frame[4*i+1]
		sys[2*i] = frame[4*i+2]
		sys[2*i+1] = frame[4*i+3]
	}
	return mic, sys
}

func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i)
		if out[i] == 0 {
			out[i] = seed
		}
	}
	return out
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestTickEmitsExactFrameSizeRegardlessOfFill(t *testing.T) {
	collector := newFrameCollector()
	s := New(zerolog.Nop(), collector, nil)
	startWithoutTimer(s)

	fills := []int{0, 100, BytesPerTick, BytesPerTick + 100, BufferCap}
	for _, fill := range fills {
		s.AppendMicrophoneAudio(pattern(fill, 1))
		s.tick()

		frame := <-collector.frames
		if len(frame) != FrameSize {
			t.Errorf("fill %d: expected %d-byte frame, got %d", fill, FrameSize, len(frame))
		}
	}
}

func TestFullBufferPassesThroughSampleForSample(t *testing.T) {
	collector := newFrameCollector()
	s := New(zerolog.Nop(), collector, nil)
	startWithoutTimer(s)

	in := pattern(BytesPerTick, 7)
	s.AppendMicrophoneAudio(in)
	s.tick()

	mic, sys := deinterleave(t, <-collector.frames)
	for i := range in {
		if mic[i] != in[i] {
			t.Fatalf("mic byte %d: expected %#x, got %#x", i, in[i], mic[i])
		}
	}
	if !allZero(sys) {
		t.Error("empty system channel should be all zero")
	}
}

func TestChannelAssignment(t *testing.T) {
	collector := newFrameCollector()
	s := New(zerolog.Nop(), collector, nil)
	startWithoutTimer(s)

	s.AppendMicrophoneAudio([]byte{0x11, 0x22})
	s.AppendSystemAudio([]byte{0x33, 0x44})
	s.tick()

	frame := <-collector.frames
	// Channel 0 carries the microphone, channel 1 the system audio.
	if frame[0] != 0x11 || frame[1] != 0x22 {
		t.Errorf("channel %d should carry mic sample, got % x", ChannelMicrophone, frame[:2])
	}
	if frame[2] != 0x33 || frame[3] != 0x44 {
		t.Errorf("channel %d should carry system sample, got % x", ChannelSystem, frame[2:4])
	}
}

func TestOverflowEvictsOldestBytes(t *testing.T) {
	s := New(zerolog.Nop(), nil, nil)
	startWithoutTimer(s)

	// 70,000 bytes without a drain: the cap keeps the newest 64,000.
	total := pattern(70000, 3)
	for off := 0; off < len(total); off += 1000 {
		s.AppendMicrophoneAudio(total[off : off+1000])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.mic.data) != BufferCap {
		t.Fatalf("expected buffer capped at %d bytes, got %d", BufferCap, len(s.mic.data))
	}
	want := total[len(total)-BufferCap:]
	for i := range want {
		if s.mic.data[i] != want[i] {
			t.Fatalf("byte %d: expected the most recent audio to survive, got %#x want %#x",
				i, s.mic.data[i], want[i])
		}
	}
}

func TestPartialBufferDrainsThenPads(t *testing.T) {
	collector := newFrameCollector()
	s := New(zerolog.Nop(), collector, nil)
	startWithoutTimer(s)

	in := pattern(960, 5)
	s.AppendMicrophoneAudio(in)

	// Tick 1: a full 640 mic bytes drain, 320 stay queued.
	s.tick()
	mic, sys := deinterleave(t, <-collector.frames)
	for i := 0; i < BytesPerTick; i++ {
		if mic[i] != in[i] {
			t.Fatalf("tick 1 mic byte %d: expected %#x, got %#x", i, in[i], mic[i])
		}
	}
	if !allZero(sys) {
		t.Error("tick 1: system channel should be silence")
	}

	// Tick 2: the remaining 320 mic bytes drain, padded with silence.
	s.tick()
	mic, sys = deinterleave(t, <-collector.frames)
	for i := 0; i < 320; i++ {
		if mic[i] != in[BytesPerTick+i] {
			t.Fatalf("tick 2 mic byte %d: expected %#x, got %#x", i, in[BytesPerTick+i], mic[i])
		}
	}
	if !allZero(mic[320:]) {
		t.Error("tick 2: mic tail should be zero-padded")
	}
	if !allZero(sys) {
		t.Error("tick 2: system channel should be silence")
	}

	// Both buffers are now empty.
	s.mu.Lock()
	micLen, sysLen := len(s.mic.data), len(s.sys.data)
	s.mu.Unlock()
	if micLen != 0 || sysLen != 0 {
		t.Errorf("expected empty buffers after tick 2, got mic=%d sys=%d", micLen, sysLen)
	}
}

func TestRestartLeavesNoResidualAudio(t *testing.T) {
	collector := newFrameCollector()
	s := New(zerolog.Nop(), collector, nil)

	s.Start()
	s.AppendMicrophoneAudio(pattern(BufferCap, 9))
	s.AppendSystemAudio(pattern(BufferCap, 11))
	s.Stop()

	// Discard anything emitted during the first session.
	for {
		select {
		case <-collector.frames:
			continue
		default:
		}
		break
	}

	s.Start()
	defer s.Stop()

	select {
	case frame := <-collector.frames:
		if !allZero(frame) {
			t.Error("first frame after restart should carry no audio from the prior session")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame emitted after restart")
	}
}

func TestAppendWhileStoppedIsDropped(t *testing.T) {
	s := New(zerolog.Nop(), nil, nil)

	s.AppendMicrophoneAudio(pattern(100, 1))

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.mic.data) != 0 {
		t.Error("append while stopped should be discarded")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(zerolog.Nop(), nil, nil)

	s.Stop() // never started
	s.Start()
	s.Stop()
	s.Stop()
}

func TestStopHaltsEmission(t *testing.T) {
	collector := newFrameCollector()
	s := New(zerolog.Nop(), collector, nil)

	s.Start()
	s.Stop()

	drained := 0
	for {
		select {
		case <-collector.frames:
			drained++
			continue
		default:
		}
		break
	}

	time.Sleep(5 * TickInterval)
	if got := len(collector.frames); got != 0 {
		t.Errorf("expected no frames after Stop, got %d (drained %d)", got, drained)
	}
}
