package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Converter normalizes native-format frames to the canonical format:
// channel downmix, linear resampling and int16 quantization.
//
// The fractional resample position and the tail sample of the previous
// frame persist between calls, so one Converter must serve an entire
// capture session; rebuilding it per frame would glitch at every frame
// boundary.
type Converter struct {
	rate     int
	channels int

	pos     float64
	prev    float32
	hasPrev bool
}

// NewConverter creates a converter for the given native format.
func NewConverter(rate, channels int) (*Converter, error) {
	if rate <= 0 || channels < 1 {
		return nil, fmt.Errorf("unsupported native format: rate=%d channels=%d", rate, channels)
	}
	return &Converter{rate: rate, channels: channels}, nil
}

// ConvertFloat32 converts one native float32 frame (interleaved when
// channels > 1) into canonical PCM bytes. The returned buffer is freshly
// allocated; ownership passes to the caller.
func (c *Converter) ConvertFloat32(samples []float32) []byte {
	return quantize(c.resample(c.downmix(samples)))
}

// ConvertInt16 converts one native int16 frame into canonical PCM bytes.
func (c *Converter) ConvertInt16(samples []int16) []byte {
	f := make([]float32, len(samples))
	for i, s := range samples {
		f[i] = float32(s) / 32768.0
	}
	return c.ConvertFloat32(f)
}

func (c *Converter) downmix(samples []float32) []float32 {
	if c.channels == 1 {
		return samples
	}
	frames := len(samples) / c.channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < c.channels; ch++ {
			sum += samples[i*c.channels+ch]
		}
		mono[i] = sum / float32(c.channels)
	}
	return mono
}

// resample converts from the native rate to CanonicalRate by linear
// interpolation. c.pos is the read position relative to the start of the
// current frame; it goes negative when the next output sample falls
// between the previous frame's last sample (c.prev) and this frame's
// first.
func (c *Converter) resample(in []float32) []float32 {
	if c.rate == CanonicalRate {
		return in
	}
	if len(in) == 0 {
		return nil
	}
	step := float64(c.rate) / float64(CanonicalRate)
	out := make([]float32, 0, int(float64(len(in))/step)+2)
	pos := c.pos
	for pos <= float64(len(in)-1) {
		i := int(math.Floor(pos))
		frac := float32(pos - math.Floor(pos))
		var s float32
		switch {
		case i < 0:
			if c.hasPrev {
				s = c.prev + (in[0]-c.prev)*frac
			} else {
				s = in[0]
			}
		case i >= len(in)-1:
			s = in[len(in)-1]
		default:
			s = in[i] + (in[i+1]-in[i])*frac
		}
		out = append(out, s)
		pos += step
	}
	c.pos = pos - float64(len(in))
	c.prev = in[len(in)-1]
	c.hasPrev = true
	return out
}

// quantize clamps to [-1, 1] and scales to int16, little-endian.
func quantize(mono []float32) []byte {
	out := make([]byte, len(mono)*BytesPerSample)
	for i, s := range mono {
		if s > 1.0 {
			s = 1.0
		}
		if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(v))
	}
	return out
}
