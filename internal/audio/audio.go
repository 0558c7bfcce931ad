package audio

// Canonical format every stage downstream of conversion works in:
// 16 kHz mono 16-bit little-endian PCM.
const (
	CanonicalRate     = 16000
	CanonicalChannels = 1
	BytesPerSample    = 2
)

// Source tags a canonical frame with the input it came from.
type Source int

const (
	Microphone Source = iota
	SystemAudio
)

func (s Source) String() string {
	switch s {
	case Microphone:
		return "microphone"
	case SystemAudio:
		return "system"
	default:
		return "unknown"
	}
}
