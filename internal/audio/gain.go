package audio

import (
	"encoding/binary"
	"math"
)

// DefaultMicGain boosts microphone samples, which typically arrive much
// quieter than loopback audio.
const DefaultMicGain = 2.5

// ApplyGain multiplies every 16-bit sample in pcm by gain in place,
// saturating at the int16 bounds instead of wrapping.
func ApplyGain(pcm []byte, gain float64) {
	for i := 0; i+1 < len(pcm); i += BytesPerSample {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		v := float64(s) * gain
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(v)))
	}
}
