package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wireline/transport"
)

// Config controls the faults a Simulator injects. Zero values mean the
// corresponding fault is disabled, so Config{} is a perfectly reliable
// in-memory transport.
type Config struct {
	// ConnectDelay is how long a dial takes before it reports open
	// (or a scripted failure).
	ConnectDelay time.Duration
	// ConnectFailures makes the first N dials fail with an error and
	// an abnormal close, then lets subsequent dials succeed.
	ConnectFailures int
	// DropRate is the probability in [0, 1] that an inbound frame
	// (echoed or injected) is silently discarded before delivery.
	DropRate float64
	// ErrorRate is the probability in [0, 1] that a send triggers a
	// spontaneous transport error followed by an abnormal close. The
	// send itself still succeeds.
	ErrorRate float64
	// Echo reflects every sent frame back as an inbound frame.
	Echo bool
	// EchoDelay is how long an echoed frame is in flight.
	EchoDelay time.Duration
	// EchoFunc, when set, transforms a sent frame into its echo.
	EchoFunc func(sent []byte) []byte
	// Seed seeds the fault dice. Zero seeds from the clock.
	Seed int64
}

// DefaultConfig returns a mildly lossy simulator: instant connects,
// no spontaneous errors, and roughly one in twenty inbound frames lost.
func DefaultConfig() Config {
	return Config{
		DropRate:  0.05,
		EchoDelay: 5 * time.Millisecond,
	}
}

// Stats counts what a Simulator has done so far.
type Stats struct {
	// Dials is the number of Connect calls that started a dial.
	Dials int
	// FramesSent is the number of frames accepted by Send.
	FramesSent int
	// InboundDropped is the number of inbound frames the drop gate ate.
	InboundDropped int
	// Failures is the number of spontaneous error+close sequences emitted.
	Failures int
}

// Simulator is an in-memory transport.Transport with configurable fault
// injection: dial latency, scripted dial failures, inbound frame loss,
// spontaneous connection errors, and echo responses. It honors the same
// event contract as the real transport, so the connection manager and
// client drive it without any branching.
type Simulator struct {
	cfg Config
	log *logrus.Logger

	mu           sync.Mutex
	rng          *rand.Rand
	gen          int
	dialing      bool
	connected    bool
	failuresLeft int
	sent         [][]byte
	stats        Stats
	sendHook     func(data []byte) error

	onOpen    func()
	onMessage func([]byte)
	onError   func(error)
	onClose   func(int, string)
}

// New creates a Simulator with the given fault configuration. Rates
// outside [0, 1] are clamped. A nil logger falls back to the logrus
// standard logger.
func New(cfg Config, log *logrus.Logger) *Simulator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg.DropRate = clampRate(cfg.DropRate)
	cfg.ErrorRate = clampRate(cfg.ErrorRate)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:          cfg,
		log:          log,
		rng:          rand.New(rand.NewSource(seed)),
		failuresLeft: cfg.ConnectFailures,
	}
}

func clampRate(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Connect starts a simulated dial. The outcome arrives after ConnectDelay
// through OnOpen, or through OnError/OnClose while scripted dial failures
// remain.
func (s *Simulator) Connect(_ context.Context) error {
	s.mu.Lock()
	if s.dialing || s.connected {
		s.mu.Unlock()
		return errors.New("simulator: connect while already active")
	}
	s.gen++
	gen := s.gen
	s.dialing = true
	s.stats.Dials++
	s.mu.Unlock()

	time.AfterFunc(s.cfg.ConnectDelay, func() { s.finishDial(gen) })
	return nil
}

func (s *Simulator) finishDial(gen int) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.dialing = false

	if s.failuresLeft > 0 {
		s.failuresLeft--
		onError, onClose := s.onError, s.onClose
		s.mu.Unlock()
		s.log.Debug("simulator dial failed (scripted)")
		err := errors.New("simulator: dial refused")
		if onError != nil {
			onError(err)
		}
		if onClose != nil {
			onClose(transport.CloseAbnormal, err.Error())
		}
		return
	}

	s.connected = true
	onOpen := s.onOpen
	s.mu.Unlock()

	if onOpen != nil {
		onOpen()
	}
}

// Send accepts one outbound frame. The send hook, when set, runs first and
// its error is returned synchronously without recording the frame. A
// successful send may still trip the ErrorRate dice, which tears the
// connection down asynchronously, and schedules an echo when enabled.
func (s *Simulator) Send(data []byte) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return transport.ErrNotConnected
	}
	hook := s.sendHook
	gen := s.gen
	s.mu.Unlock()

	if hook != nil {
		if err := hook(data); err != nil {
			return fmt.Errorf("simulator: send: %w", err)
		}
	}

	frame := append([]byte(nil), data...)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return transport.ErrNotConnected
	}
	s.sent = append(s.sent, frame)
	s.stats.FramesSent++
	blowUp := s.cfg.ErrorRate > 0 && s.rng.Float64() < s.cfg.ErrorRate
	s.mu.Unlock()

	if blowUp {
		go s.failNow(gen, errors.New("simulator: injected connection error"))
		return nil
	}

	if s.cfg.Echo {
		echo := frame
		if s.cfg.EchoFunc != nil {
			echo = s.cfg.EchoFunc(frame)
		}
		time.AfterFunc(s.cfg.EchoDelay, func() { s.deliver(gen, echo) })
	}
	return nil
}

// InjectFrame delivers an inbound frame from the simulated peer, subject
// to the drop gate. Frames injected while disconnected are discarded.
func (s *Simulator) InjectFrame(data []byte) {
	s.deliver(s.generation(), append([]byte(nil), data...))
}

func (s *Simulator) generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// deliver runs the inbound path: stale-generation check, drop gate, then
// the message callback.
func (s *Simulator) deliver(gen int, data []byte) {
	s.mu.Lock()
	if gen != s.gen || !s.connected {
		s.mu.Unlock()
		return
	}
	if s.cfg.DropRate > 0 && s.rng.Float64() < s.cfg.DropRate {
		s.stats.InboundDropped++
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"bytes": len(data),
		}).Debug("simulator dropped inbound frame")
		return
	}
	onMessage := s.onMessage
	s.mu.Unlock()

	if onMessage != nil {
		onMessage(data)
	}
}

// FailWith tears down a live connection with the given error: an error
// event followed by an abnormal close, exactly like a real transport
// fault. It is a no-op while not connected.
func (s *Simulator) FailWith(err error) {
	s.failNow(s.generation(), err)
}

func (s *Simulator) failNow(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || !s.connected {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.connected = false
	s.stats.Failures++
	onError, onClose := s.onError, s.onClose
	s.mu.Unlock()

	s.log.WithError(err).Debug("simulator connection failure")
	if onError != nil {
		onError(err)
	}
	if onClose != nil {
		onClose(transport.CloseAbnormal, err.Error())
	}
}

// CloseWithCode closes a live connection from the peer side with the
// given close code and reason. No error event precedes it, matching a
// clean close frame on the wire.
func (s *Simulator) CloseWithCode(code int, reason string) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.connected = false
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose(code, reason)
	}
}

// Close tears the connection down without emitting events.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.dialing = false
	s.connected = false
	return nil
}

// SetSendHook installs a hook that runs on every Send before the frame is
// recorded. A non-nil error from the hook is returned to the sender and
// the frame does not count as sent. Tests use it to fail specific sends.
func (s *Simulator) SetSendHook(fn func(data []byte) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendHook = fn
}

// SentFrames returns a copy of every frame accepted by Send, oldest first.
func (s *Simulator) SentFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	for i, f := range s.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Stats returns a snapshot of the simulator's counters.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// OnOpen replaces the open callback.
func (s *Simulator) OnOpen(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = fn
}

// OnMessage replaces the inbound frame callback.
func (s *Simulator) OnMessage(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// OnError replaces the error callback.
func (s *Simulator) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// OnClose replaces the close callback.
func (s *Simulator) OnClose(fn func(int, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

var _ transport.Transport = (*Simulator)(nil)
