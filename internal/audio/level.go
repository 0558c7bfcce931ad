package audio

import "math"

// DefaultLevelBoost scales the mean amplitude into a range that reads
// well on a UI meter.
const DefaultLevelBoost = 5.0

// Level estimates the loudness of a raw frame as the mean absolute
// amplitude times boost, clamped to [0, 1]. An empty frame is silent.
// Stateless; feeds the UI meter only, never the audio path.
func Level(samples []float32, boost float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	level := sum / float64(len(samples)) * boost
	if level > 1 {
		level = 1
	}
	if level < 0 {
		level = 0
	}
	return level
}
