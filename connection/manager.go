package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wireline/transport"
)

// ErrRetryExhausted is carried by the StateFailed change once the retry
// policy gives up. Only a manual Connect leaves StateFailed.
var ErrRetryExhausted = errors.New("connection: retry attempts exhausted")

// ErrClosed is returned by operations on a manager after Close.
var ErrClosed = errors.New("connection: manager closed")

// event is one unit of ordered delivery to the application callbacks.
type event struct {
	isChange bool
	change   Change
	frame    []byte
}

// Manager owns the physical transport and drives the connection lifecycle:
// dialing, reconnecting with backoff, and giving up when the retry policy
// is exhausted. It is the only component allowed to write to the transport.
//
// All state lives behind one mutex. Callbacks are delivered outside the
// mutex, in order, by whichever goroutine queued the first event; callback
// code may therefore call back into the Manager freely.
//
// Staleness is handled with an epoch counter. Every dial bumps the epoch
// and registers transport callbacks that capture it; Disconnect, Close,
// and a consumed failure bump it again, so events from a superseded
// connection are discarded on arrival. Consuming an error event also
// orphans the close event that follows it, which is what keeps one
// physical failure from counting as two attempts.
type Manager struct {
	tr      transport.Transport
	policy  RetryPolicy
	log     *logrus.Logger
	dialCtx context.Context

	mu          sync.Mutex
	state       State
	attempt     int
	epoch       int
	timer       *time.Timer
	closed      bool
	onChange    ChangeCallback
	onMessage   MessageCallback
	pending     []event
	dispatching bool
}

// NewManager creates a manager for the given transport. A zero MaxAttempts
// or BaseDelay in the policy falls back to the DefaultRetryPolicy value
// for that field. A nil logger falls back to the logrus standard logger.
func NewManager(tr transport.Transport, policy RetryPolicy, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	return &Manager{
		tr:      tr,
		policy:  policy,
		log:     log,
		dialCtx: context.Background(),
		state:   StateDisconnected,
	}
}

// Connect starts connecting. It is a no-op while already Connecting or
// Connected; from any other state it cancels a pending reconnect timer,
// resets the attempt counter, and dials. The context is retained and also
// governs the dials issued by automatic reconnects.
func (m *Manager) Connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.cancelTimerLocked()
	m.attempt = 0
	m.dialCtx = ctx
	m.beginDialLocked()
	m.dispatchEvents()
	return nil
}

// Disconnect closes the connection cleanly and suppresses reconnection.
// A pending reconnect timer is cancelled and in-flight transport events
// are orphaned.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.cancelTimerLocked()
	m.epoch++
	m.attempt = 0
	if m.state != StateDisconnected {
		m.transitionLocked(Change{State: StateDisconnected})
	}
	m.dispatchEvents()
	return m.tr.Close()
}

// Close disconnects and makes the manager permanently unusable.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelTimerLocked()
	m.epoch++
	if m.state != StateDisconnected {
		m.transitionLocked(Change{State: StateDisconnected})
	}
	m.dispatchEvents()
	return m.tr.Close()
}

// Send writes one frame to the live connection. It returns
// transport.ErrNotConnected unless the state is StateConnected.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateConnected {
		m.mu.Unlock()
		return transport.ErrNotConnected
	}
	tr := m.tr
	m.mu.Unlock()

	// The transport serializes writes itself; holding the manager mutex
	// across a blocking write would stall event handling.
	return tr.Send(data)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange replaces the state change callback.
func (m *Manager) OnStateChange(fn ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// OnMessage replaces the inbound frame callback.
func (m *Manager) OnMessage(fn MessageCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// beginDialLocked enters StateConnecting and starts a dial on a fresh
// epoch. The caller holds the mutex.
func (m *Manager) beginDialLocked() {
	m.epoch++
	epoch := m.epoch
	m.transitionLocked(Change{State: StateConnecting})

	m.tr.OnOpen(func() { m.handleOpen(epoch) })
	m.tr.OnMessage(func(data []byte) { m.handleMessage(epoch, data) })
	m.tr.OnError(func(err error) { m.handleError(epoch, err) })
	m.tr.OnClose(func(code int, reason string) { m.handleClose(epoch, code, reason) })

	if err := m.tr.Connect(m.dialCtx); err != nil {
		// Local dial failure: no transport events will follow.
		m.epoch++
		m.failLocked(fmt.Errorf("connection: dial: %w", err))
	}
}

func (m *Manager) handleOpen(epoch int) {
	m.mu.Lock()
	if epoch != m.epoch || m.closed {
		m.mu.Unlock()
		return
	}
	m.attempt = 0
	m.transitionLocked(Change{State: StateConnected})
	m.dispatchEvents()
}

func (m *Manager) handleMessage(epoch int, data []byte) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, event{frame: data})
	m.dispatchEvents()
}

func (m *Manager) handleError(epoch int, err error) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	// Consume this connection: the close event that follows the error
	// belongs to the old epoch and is dropped, so the failure counts once.
	m.epoch++
	m.failLocked(err)
	m.dispatchEvents()
}

func (m *Manager) handleClose(epoch, code int, reason string) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.epoch++

	if code == transport.CloseNormal && m.state == StateConnected {
		m.log.WithFields(logrus.Fields{
			"reason": reason,
		}).Debug("connection closed normally")
		m.cancelTimerLocked()
		m.attempt = 0
		m.transitionLocked(Change{State: StateDisconnected})
		m.dispatchEvents()
		return
	}

	// Abnormal close, or any close before the dial completed.
	m.failLocked(fmt.Errorf("connection: closed: code=%d reason=%q", code, reason))
	m.dispatchEvents()
}

// failLocked records one failed attempt and either schedules a reconnect
// or gives up. The caller holds the mutex.
func (m *Manager) failLocked(cause error) {
	m.attempt++
	n := m.attempt

	if n >= m.policy.MaxAttempts {
		m.log.WithError(cause).WithFields(logrus.Fields{
			"attempts": n,
		}).Warn("connection retry attempts exhausted")
		m.cancelTimerLocked()
		m.transitionLocked(Change{
			State: StateFailed,
			Err:   fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, n, cause),
		})
		return
	}

	delay := m.policy.Delay(n)
	m.log.WithError(cause).WithFields(logrus.Fields{
		"attempt": n,
		"delay":   delay,
	}).Info("connection lost, reconnecting")
	m.transitionLocked(Change{State: StateReconnecting, Attempt: n, Err: cause})
	m.scheduleReconnectLocked(delay)
}

// scheduleReconnectLocked arms the single reconnect timer. The caller
// holds the mutex.
func (m *Manager) scheduleReconnectLocked(delay time.Duration) {
	m.cancelTimerLocked()
	epoch := m.epoch
	m.timer = time.AfterFunc(delay, func() { m.redial(epoch) })
}

func (m *Manager) redial(epoch int) {
	m.mu.Lock()
	if epoch != m.epoch || m.closed || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.beginDialLocked()
	m.dispatchEvents()
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// transitionLocked records a state change for ordered delivery. The
// caller holds the mutex.
func (m *Manager) transitionLocked(change Change) {
	m.state = change.State
	m.log.WithFields(logrus.Fields{
		"state":   change.State,
		"attempt": change.Attempt,
	}).Debug("connection state change")
	m.pending = append(m.pending, event{isChange: true, change: change})
}

// dispatchEvents delivers queued events in FIFO order. It is entered with
// the mutex held and returns with it released. Only one goroutine
// dispatches at a time; anyone else queuing events while a dispatch is
// running just returns, and the running dispatcher picks the new events
// up. Callbacks run without the mutex, so they may re-enter the manager.
func (m *Manager) dispatchEvents() {
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	for len(m.pending) > 0 {
		ev := m.pending[0]
		m.pending = m.pending[1:]
		onChange, onMessage := m.onChange, m.onMessage
		m.mu.Unlock()

		if ev.isChange {
			if onChange != nil {
				onChange(ev.change)
			}
		} else if onMessage != nil {
			onMessage(ev.frame)
		}

		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}
