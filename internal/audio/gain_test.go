package audio

import (
	"encoding/binary"
	"testing"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestApplyGainSaturatesPositive(t *testing.T) {
	pcm := pcmOf(20000)

	ApplyGain(pcm, 2.5)

	// 20000 * 2.5 = 50000 must saturate, not wrap negative.
	if got := samplesOf(pcm)[0]; got != 32767 {
		t.Errorf("expected 32767, got %d", got)
	}
}

func TestApplyGainSaturatesNegative(t *testing.T) {
	pcm := pcmOf(-20000)

	ApplyGain(pcm, 2.5)

	if got := samplesOf(pcm)[0]; got != -32768 {
		t.Errorf("expected -32768, got %d", got)
	}
}

func TestApplyGainScalesInRange(t *testing.T) {
	pcm := pcmOf(1000, -2000, 0)

	ApplyGain(pcm, 2.5)

	got := samplesOf(pcm)
	if got[0] != 2500 {
		t.Errorf("expected 2500, got %d", got[0])
	}
	if got[1] != -5000 {
		t.Errorf("expected -5000, got %d", got[1])
	}
	if got[2] != 0 {
		t.Errorf("expected 0, got %d", got[2])
	}
}
