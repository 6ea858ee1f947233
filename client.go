// Package wireline implements a resilient client for bidirectional
// message-oriented connections.
//
// A Client owns one logical connection: it reconnects with backoff after
// abnormal closes, queues messages submitted while offline, tracks failed
// deliveries for retry, and applies an optional reversible transform to
// every frame on the wire.
//
// Example:
//
//	options := wireline.NewOptions()
//	options.Endpoint = "wss://chat.example.com/socket"
//	options.AuthToken = "s3cret"
//	options.EncryptionKey = "hunter2"
//
//	client, err := wireline.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.OnMessage(func(msg messaging.Message) {
//	    fmt.Printf("<%s> %s\n", msg.ID, msg.Content)
//	})
//
//	client.OnStateChange(func(change connection.Change) {
//	    fmt.Printf("connection: %s\n", change.State)
//	})
//
//	if err := client.Connect(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	id, err := client.Submit("hello out there")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("submitted %s\n", id)
package wireline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wireline/codec"
	"github.com/opd-ai/wireline/connection"
	"github.com/opd-ai/wireline/messaging"
	"github.com/opd-ai/wireline/transport"
)

// ErrClosed is returned by operations on a client after Close.
var ErrClosed = errors.New("wireline: client closed")

// Stats is a point-in-time snapshot of a client's delivery bookkeeping.
type Stats struct {
	State   connection.State
	Queued  int
	Failed  int
	History int
}

// clientEvent is one unit of ordered delivery to application callbacks.
type clientEvent struct {
	kind   uint8
	change connection.Change
	msg    messaging.Message
}

const (
	evtState uint8 = iota
	evtRemote
	evtUpdate
)

// Client is the top-level messaging client: it owns the connection
// manager, the outbound queue, and the failed-message registry, and keeps
// the three consistent. Submitting returns immediately in every
// connection state; delivery progress arrives through the message update
// callback.
//
// All mutations run under one mutex, and callbacks are delivered outside
// it in order, so callback code may call back into the Client.
type Client struct {
	log    *logrus.Logger
	cipher codec.Cipher
	mgr    *connection.Manager

	jitterMin    time.Duration
	jitterMax    time.Duration
	contentLimit int

	mu          sync.Mutex
	rng         *rand.Rand
	queue       *messaging.OutboundQueue
	failed      *messaging.FailedRegistry
	local       map[string]*messaging.Message
	history     []*messaging.Message
	retryTimers map[string]*time.Timer
	closed      bool

	onState   func(connection.Change)
	onMessage func(messaging.Message)
	onUpdate  func(messaging.Message)

	pending     []clientEvent
	dispatching bool
}

// New creates a Client with the given options. A nil opts uses
// NewOptions; an empty Endpoint is an error unless a Transport override
// is supplied.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	tr := opts.Transport
	if tr == nil {
		if opts.Endpoint == "" {
			return nil, errors.New("wireline: endpoint required")
		}
		tr = transport.NewWebSocket(opts.Endpoint, opts.AuthToken, log)
	}

	cipher := opts.Cipher
	if cipher == nil {
		cipher = codec.ForKey(opts.EncryptionKey)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	jitterMin, jitterMax := opts.RetryJitterMin, opts.RetryJitterMax
	if jitterMin < 0 {
		jitterMin = 0
	}
	if jitterMax < jitterMin {
		jitterMax = jitterMin
	}

	c := &Client{
		log:          log,
		cipher:       cipher,
		mgr:          connection.NewManager(tr, opts.Retry, log),
		jitterMin:    jitterMin,
		jitterMax:    jitterMax,
		contentLimit: opts.MaxContentBytes,
		rng:          rng,
		queue:        messaging.NewOutboundQueue(opts.QueueCapacity),
		failed:       messaging.NewFailedRegistry(),
		local:        make(map[string]*messaging.Message),
		retryTimers:  make(map[string]*time.Timer),
	}
	c.mgr.OnStateChange(c.handleChange)
	c.mgr.OnMessage(c.handleFrame)
	return c, nil
}

// Connect starts connecting. See connection.Manager.Connect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()
	return c.mgr.Connect(ctx)
}

// Disconnect closes the connection cleanly. Queued and failed messages
// are kept and picked up again after the next Connect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancelRetryTimersLocked()
	c.mu.Unlock()
	return c.mgr.Disconnect()
}

// Close disconnects and makes the client permanently unusable.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancelRetryTimersLocked()
	c.mu.Unlock()
	return c.mgr.Close()
}

// Submit accepts message content for delivery and returns the assigned
// message id. It never blocks on the network: while connected the message
// is encoded and handed to the transport, otherwise it is queued and
// flushed on the next successful connect. The returned error is non-nil
// only for invalid content, a full queue, or a closed client.
func (c *Client) Submit(content string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if err := messaging.ValidateContent(content, c.contentLimit); err != nil {
		c.mu.Unlock()
		return "", err
	}

	msg := messaging.NewMessage(content, messaging.RoleLocal)

	if c.mgr.State() != connection.StateConnected {
		if err := c.queue.Enqueue(msg); err != nil {
			c.mu.Unlock()
			return "", err
		}
		c.recordLocked(&msg)
		c.queueUpdateLocked(&msg)
		c.dispatchEvents()
		return msg.ID, nil
	}

	msg.DeliveryState = messaging.DeliverySending
	c.recordLocked(&msg)
	c.queueUpdateLocked(&msg)
	c.sendLocked(c.local[msg.ID])
	c.dispatchEvents()
	return msg.ID, nil
}

// Retry re-sends a failed message immediately. It returns
// messaging.ErrNotFound unless the id is in the failed registry. The
// retry count is incremented even if the attempt fails again.
func (c *Client) Retry(id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, err := c.failed.Take(id); err != nil {
		c.mu.Unlock()
		return err
	}
	if timer, ok := c.retryTimers[id]; ok {
		timer.Stop()
		delete(c.retryTimers, id)
	}
	c.retryLocked(c.local[id])
	c.dispatchEvents()
	return nil
}

// History returns every message the client has seen, oldest first:
// locally submitted messages with their current delivery state and
// decoded remote messages.
func (c *Client) History() []messaging.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]messaging.Message, len(c.history))
	for i, m := range c.history {
		out[i] = *m
	}
	return out
}

// Message returns a locally submitted message by id, or
// messaging.ErrNotFound.
func (c *Client) Message(id string) (messaging.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.local[id]
	if !ok {
		return messaging.Message{}, fmt.Errorf("message %q: %w", id, messaging.ErrNotFound)
	}
	return *msg, nil
}

// FailedMessages returns the current contents of the failed-message
// registry in no particular order.
func (c *Client) FailedMessages() []messaging.Message {
	return c.failed.Snapshot()
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	return c.mgr.State()
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:   c.mgr.State(),
		Queued:  c.queue.Len(),
		Failed:  c.failed.Len(),
		History: len(c.history),
	}
}

// OnStateChange replaces the connection state callback.
func (c *Client) OnStateChange(fn func(connection.Change)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnMessage replaces the decoded remote message callback.
func (c *Client) OnMessage(fn func(messaging.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnMessageUpdate replaces the delivery progress callback. It fires for
// every delivery state change of a locally submitted message.
func (c *Client) OnMessageUpdate(fn func(messaging.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// recordLocked indexes a local message and appends it to the history.
func (c *Client) recordLocked(msg *messaging.Message) {
	c.local[msg.ID] = msg
	c.history = append(c.history, msg)
}

// sendLocked encodes and sends a local message that is already marked
// sending, then settles its delivery state from the outcome. A send into
// a connection that just dropped is not a delivery failure: the message
// goes back to the outbound queue and waits for the reconnect.
func (c *Client) sendLocked(msg *messaging.Message) {
	data, err := codec.Encode(codec.Envelope{
		ID:        msg.ID,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt,
	}, c.cipher)
	if err != nil {
		c.failMessageLocked(msg, err)
		return
	}

	err = c.mgr.Send(data)
	switch {
	case err == nil:
		msg.DeliveryState = messaging.DeliverySent
		c.queueUpdateLocked(msg)
	case errors.Is(err, transport.ErrNotConnected):
		msg.DeliveryState = messaging.DeliveryPending
		if qErr := c.queue.Enqueue(*msg); qErr != nil {
			c.failMessageLocked(msg, qErr)
			return
		}
		c.queueUpdateLocked(msg)
	default:
		c.failMessageLocked(msg, err)
	}
}

// failMessageLocked parks a message in the failed registry and announces
// the failure. Recovery is a manual Retry or the automatic sweep on the
// next successful connect.
func (c *Client) failMessageLocked(msg *messaging.Message, cause error) {
	msg.DeliveryState = messaging.DeliveryFailed
	c.failed.Put(*msg)
	c.log.WithError(cause).WithFields(logrus.Fields{
		"message_id": msg.ID,
		"retries":    msg.RetryCount,
	}).Warn("message delivery failed")
	c.queueUpdateLocked(msg)
}

// retryLocked re-sends a message just taken out of the failed registry.
func (c *Client) retryLocked(msg *messaging.Message) {
	msg.RetryCount++
	msg.DeliveryState = messaging.DeliverySending
	c.queueUpdateLocked(msg)
	c.sendLocked(msg)
}

// handleChange receives every connection state change. A successful
// connect flushes the outbound queue in FIFO order and schedules a
// jittered retry for each failed message.
func (c *Client) handleChange(change connection.Change) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, clientEvent{kind: evtState, change: change})

	if change.State == connection.StateConnected {
		c.flushLocked()
		c.sweepLocked()
	}
	c.dispatchEvents()
}

// flushLocked drains the outbound queue into the live connection. If the
// connection drops mid-flush, the unsent remainder is re-queued in the
// original order.
func (c *Client) flushLocked() {
	drained := c.queue.Drain()
	for i, queued := range drained {
		msg, ok := c.local[queued.ID]
		if !ok {
			fresh := queued
			c.recordLocked(&fresh)
			msg = &fresh
		}

		if c.mgr.State() != connection.StateConnected {
			for _, rest := range drained[i:] {
				if err := c.queue.Enqueue(rest); err != nil {
					lost := c.local[rest.ID]
					c.failMessageLocked(lost, err)
				}
			}
			return
		}

		msg.DeliveryState = messaging.DeliverySending
		c.queueUpdateLocked(msg)
		c.sendLocked(msg)
	}
}

// sweepLocked schedules a jittered automatic retry for every failed
// message that does not already have one pending.
func (c *Client) sweepLocked() {
	for _, id := range c.failed.IDs() {
		if _, armed := c.retryTimers[id]; armed {
			continue
		}
		delay := c.jitterLocked()
		c.retryTimers[id] = time.AfterFunc(delay, func() { c.autoRetry(id) })
		c.log.WithFields(logrus.Fields{
			"message_id": id,
			"delay":      delay,
		}).Debug("scheduled automatic retry")
	}
}

// autoRetry is the timer body for one swept message. It backs off
// quietly when the message was retried manually in the meantime or the
// connection is gone again; the next successful connect re-sweeps.
func (c *Client) autoRetry(id string) {
	c.mu.Lock()
	delete(c.retryTimers, id)
	if c.closed || c.mgr.State() != connection.StateConnected {
		c.mu.Unlock()
		return
	}
	if _, err := c.failed.Take(id); err != nil {
		c.mu.Unlock()
		return
	}
	c.retryLocked(c.local[id])
	c.dispatchEvents()
}

// handleFrame receives every raw inbound frame. Frames that fail to
// decode are dropped and logged; they never affect the connection.
func (c *Client) handleFrame(data []byte) {
	env, err := codec.Decode(data, c.cipher)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"bytes": len(data),
		}).Warn("dropping undecodable frame")
		return
	}

	msg := messaging.Message{
		ID:            env.ID,
		Content:       env.Content,
		Role:          messaging.RoleRemote,
		CreatedAt:     env.Timestamp,
		DeliveryState: messaging.DeliverySent,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// Remote messages are history entries only. They are deliberately
	// not indexed by id: an echoing peer reuses our ids, and those must
	// keep resolving to the local message.
	remote := msg
	c.history = append(c.history, &remote)
	c.pending = append(c.pending, clientEvent{kind: evtRemote, msg: msg})
	c.dispatchEvents()
}

func (c *Client) jitterLocked() time.Duration {
	if c.jitterMax <= c.jitterMin {
		return c.jitterMin
	}
	return c.jitterMin + time.Duration(c.rng.Int63n(int64(c.jitterMax-c.jitterMin)))
}

func (c *Client) cancelRetryTimersLocked() {
	for id, timer := range c.retryTimers {
		timer.Stop()
		delete(c.retryTimers, id)
	}
}

// queueUpdateLocked snapshots a local message for ordered delivery.
func (c *Client) queueUpdateLocked(msg *messaging.Message) {
	c.pending = append(c.pending, clientEvent{kind: evtUpdate, msg: *msg})
}

// dispatchEvents delivers queued events in FIFO order. It is entered
// with the mutex held and returns with it released; callbacks run
// without the mutex. Only one goroutine dispatches at a time.
func (c *Client) dispatchEvents() {
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		onState, onMessage, onUpdate := c.onState, c.onMessage, c.onUpdate
		c.mu.Unlock()

		switch ev.kind {
		case evtState:
			if onState != nil {
				onState(ev.change)
			}
		case evtRemote:
			if onMessage != nil {
				onMessage(ev.msg)
			}
		case evtUpdate:
			if onUpdate != nil {
				onUpdate(ev.msg)
			}
		}

		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}
