package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/sidenote-app/capture/internal/metrics"
)

// sendQueueDepth bounds in-flight frames. At one frame per 20 ms this is
// just over half a second of slack before frames start dropping.
const sendQueueDepth = 32

// Transcript is one recognition result from the service. Channel follows
// the stream layout: 0 is the local speaker, 1 the other participants.
type Transcript struct {
	Text    string  `json:"text"`
	Channel int     `json:"channel"`
	Final   bool    `json:"final"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
}

// Streamer sends interleaved PCM frames to the transcription service
// over a websocket and surfaces transcripts coming back. It implements
// interleave.Consumer and never blocks the tick: frames queue into a
// bounded channel and drop (counted) when the connection can't keep up.
type Streamer struct {
	log      zerolog.Logger
	endpoint string
	metrics  *metrics.Metrics

	onTranscript func(Transcript)

	mu     sync.Mutex
	conn   *websocket.Conn
	sendQ  chan []byte
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamer creates a streamer for the given ws:// or wss:// endpoint.
func NewStreamer(log zerolog.Logger, endpoint string, m *metrics.Metrics) *Streamer {
	return &Streamer{
		log:      log.With().Str("component", "streamer").Logger(),
		endpoint: endpoint,
		metrics:  m,
	}
}

// OnTranscript registers a callback for incoming transcripts. Must be
// called before Connect.
func (s *Streamer) OnTranscript(fn func(Transcript)) {
	s.onTranscript = fn
}

// Connect dials the service and starts the send and receive loops.
func (s *Streamer) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial transcription service: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.conn = conn
	s.sendQ = make(chan []byte, sendQueueDepth)
	s.cancel = cancel
	sendQ := s.sendQ
	s.mu.Unlock()

	s.wg.Add(2)
	go s.writeLoop(runCtx, conn, sendQ)
	go s.readLoop(runCtx, conn)

	s.log.Info().Str("endpoint", s.endpoint).Msg("Connected to transcription service")
	return nil
}

// OnInterleavedFrame queues one stereo frame for sending. Never blocks.
func (s *Streamer) OnInterleavedFrame(frame []byte) {
	s.mu.Lock()
	sendQ := s.sendQ
	s.mu.Unlock()

	if sendQ == nil {
		return
	}
	select {
	case sendQ <- frame:
	default:
		s.metrics.RecordSendDrop()
	}
}

func (s *Streamer) writeLoop(ctx context.Context, conn *websocket.Conn, sendQ chan []byte) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-sendQ:
			if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				if ctx.Err() == nil {
					s.log.Warn().Err(err).Msg("Frame write failed, dropping stream")
					s.metrics.RecordSendError()
				}
				return
			}
			s.metrics.RecordFrameSent()
		}
	}
}

func (s *Streamer) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("Transcription service read failed")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var t Transcript
		if err := json.Unmarshal(data, &t); err != nil {
			s.log.Warn().Err(err).Msg("Malformed transcript message")
			continue
		}
		if s.onTranscript != nil {
			s.onTranscript(t)
		}
	}
}

// Close stops both loops and closes the connection. Idempotent.
func (s *Streamer) Close() {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.sendQ = nil
	s.cancel = nil
	s.mu.Unlock()

	if conn == nil {
		return
	}
	cancel()
	conn.Close(websocket.StatusNormalClosure, "session ended")
	s.wg.Wait()
}
