// Package realtime owns the persistent server connections: dialing,
// heartbeats, abnormal-close detection and reconnection with backoff.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/metrics"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/sched"
	"github.com/matheus3301/rentchat/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by Send when the channel is not OPEN.
	// Nothing is queued.
	ErrNotConnected     = errors.New("not connected")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	errDisconnected     = errors.New("disconnected during dial")
)

// Channel names.
const (
	Messaging = "messaging"
	Presence  = "presence"
)

// Config describes one channel.
type Config struct {
	Channel string
	URL     string

	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long a websocket ping may wait for its pong
	// before the connection is declared dead. Defaults to twice the interval.
	HeartbeatTimeout time.Duration
	// Heartbeat builds the keepalive frame. Defaults to protocol.Ping.
	Heartbeat func(now time.Time) protocol.Command

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects. Zero
	// retries forever.
	MaxReconnectAttempts int
}

func (c *Config) defaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 2 * c.HeartbeatInterval
	}
	if c.Heartbeat == nil {
		c.Heartbeat = func(now time.Time) protocol.Command {
			return protocol.Ping{Timestamp: now.UnixMilli()}
		}
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
}

// Manager is the sole owner of one channel's transport.
type Manager struct {
	cfg     Config
	dialer  Dialer
	clock   clock.Clock
	sched   *sched.Scheduler
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu            sync.Mutex
	transport     Transport
	cancel        context.CancelFunc
	gen           uint64
	onMessage     func([]byte)
	lastHeartbeat time.Time
	attempts      int
	backoff       *backoff.ExponentialBackOff
	closing       bool
}

// NewManager creates a manager in the CLOSED state.
func NewManager(cfg Config, d Dialer, c clock.Clock, s *sched.Scheduler, b *bus.Bus, logger *zap.Logger) *Manager {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReconnectInitial
	bo.MaxInterval = cfg.ReconnectMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Manager{
		cfg:     cfg,
		dialer:  d,
		clock:   c,
		sched:   s,
		machine: status.NewMachine(cfg.Channel, b),
		bus:     b,
		logger:  logger.With(zap.String("channel", cfg.Channel)),
		backoff: bo,
	}
}

// Channel returns the channel name.
func (m *Manager) Channel() string { return m.cfg.Channel }

// State returns the current connection state.
func (m *Manager) State() status.State { return m.machine.Current() }

// Attempts returns the number of consecutive reconnect attempts.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastHeartbeat returns when the server was last heard from.
func (m *Manager) LastHeartbeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeartbeat
}

// OnMessage registers the handler that receives every inbound frame, in
// arrival order, from the connection's read goroutine.
func (m *Manager) OnMessage(fn func(frame []byte)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// Connect dials the server once. It returns nil if the channel is already
// CONNECTING or OPEN. A failed dial leaves the channel CLOSED and does not
// schedule a retry; use Start for that.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.machine.Current() {
	case status.Connecting, status.Open:
		m.mu.Unlock()
		return nil
	}
	m.closing = false
	m.mu.Unlock()

	return m.dial(ctx)
}

// Start connects and keeps reconnecting in the background if the first
// dial fails.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Connect(ctx); err != nil {
		m.logger.Warn("initial connect failed", zap.Error(err))
		m.scheduleReconnect()
	}
}

func (m *Manager) dial(ctx context.Context) error {
	if err := m.machine.Transition(status.Connecting); err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	t, err := m.dialer.Dial(dctx, m.cfg.URL)
	cancel()
	if err != nil {
		_ = m.machine.Transition(status.Closed)
		return fmt.Errorf("%s: %w", m.cfg.Channel, err)
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = t.Close("client disconnect")
		_ = m.machine.Transition(status.Closed)
		return errDisconnected
	}
	connCtx, connCancel := context.WithCancel(context.Background())
	m.gen++
	gen := m.gen
	m.transport = t
	m.cancel = connCancel
	m.lastHeartbeat = m.clock.Now()
	m.attempts = 0
	m.backoff.Reset()
	m.mu.Unlock()

	_ = m.machine.Transition(status.Open)
	m.logger.Info("connected", zap.String("url", m.cfg.URL))

	m.armHeartbeat(gen)
	go m.readLoop(connCtx, t, gen)
	return nil
}

func (m *Manager) readLoop(ctx context.Context, t Transport, gen uint64) {
	for {
		frame, err := t.Read(ctx)
		if err != nil {
			m.lost(gen, err)
			return
		}
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.lastHeartbeat = m.clock.Now()
		handler := m.onMessage
		m.mu.Unlock()

		if handler != nil {
			handler(frame)
		}
	}
}

func (m *Manager) heartbeatKey() sched.Key {
	return sched.Key{Feature: sched.RealtimeHeartbeat, ID: m.cfg.Channel}
}

func (m *Manager) redialKey() sched.Key {
	return sched.Key{Feature: sched.RealtimeRedial, ID: m.cfg.Channel}
}

func (m *Manager) armHeartbeat(gen uint64) {
	m.sched.Schedule(m.heartbeatKey(), m.cfg.HeartbeatInterval, func() { m.beat(gen) })
}

// beat starts a liveness check for connection gen. The check blocks on the
// network, so it runs on its own goroutine and re-arms the timer when done.
func (m *Manager) beat(gen uint64) {
	m.mu.Lock()
	t := m.transport
	if gen != m.gen || t == nil {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	go m.checkAlive(gen, t)
}

// checkAlive pings the peer at the websocket level, which every server
// answers whether or not it has application traffic, then sends the
// channel's keepalive frame.
func (m *Manager) checkAlive(gen uint64, t Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HeartbeatTimeout)
	err := t.Ping(ctx)
	cancel()
	if err != nil {
		metrics.HeartbeatTimeouts.WithLabelValues(m.cfg.Channel).Inc()
		m.lost(gen, fmt.Errorf("%w: %w", ErrHeartbeatTimeout, err))
		return
	}

	if err := m.Send(m.cfg.Heartbeat(m.clock.Now())); err != nil {
		m.logger.Debug("heartbeat send failed", zap.Error(err))
	}

	// Re-armed under the lock so a concurrent Disconnect cannot miss it.
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.lastHeartbeat = m.clock.Now()
	m.armHeartbeat(gen)
}

// lost handles an abnormal close of connection gen: OPEN -> CLOSED, then
// reconnect per policy.
func (m *Manager) lost(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.transport == nil {
		m.mu.Unlock()
		return
	}
	t := m.transport
	m.transport = nil
	m.cancel()
	m.mu.Unlock()

	m.sched.Cancel(m.heartbeatKey())
	// The close handshake on a dead socket can stall until its own timeout.
	go func() { _ = t.Close("connection lost") }()
	_ = m.machine.Transition(status.Closed)
	m.logger.Warn("connection lost", zap.Error(cause))
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	if m.cfg.MaxReconnectAttempts > 0 && m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Error("giving up reconnecting", zap.Int("attempts", attempts))
		m.bus.Publish(bus.Event{
			Kind:    bus.ConnGaveUp,
			Payload: GaveUp{Channel: m.cfg.Channel, Attempts: attempts},
		})
		return
	}
	m.attempts++
	attempt := m.attempts
	delay := m.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = m.cfg.ReconnectMax
	}
	m.mu.Unlock()

	metrics.ReconnectAttempts.WithLabelValues(m.cfg.Channel).Inc()
	m.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	// Dialing blocks, so it runs off the scheduler's executor.
	m.sched.Schedule(m.redialKey(), delay, func() { go m.redial() })
}

func (m *Manager) redial() {
	m.mu.Lock()
	closing := m.closing
	m.mu.Unlock()
	if closing || m.machine.Current() != status.Closed {
		return
	}
	if err := m.dial(context.Background()); err != nil {
		if errors.Is(err, errDisconnected) {
			return
		}
		m.logger.Warn("reconnect failed", zap.Error(err))
		m.scheduleReconnect()
	}
}

// Send writes cmd synchronously. It fails fast with ErrNotConnected unless
// the channel is OPEN.
func (m *Manager) Send(cmd protocol.Command) error {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil || m.machine.Current() != status.Open {
		return ErrNotConnected
	}

	frame, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	if err := t.Write(ctx, frame); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Type(), err)
	}
	return nil
}

// Disconnect closes the channel gracefully and cancels every timer it owns.
// No reconnect follows.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.closing = true
	t := m.transport
	m.transport = nil
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.sched.Cancel(m.heartbeatKey())
	m.sched.Cancel(m.redialKey())
	if t == nil {
		return nil
	}

	_ = m.machine.Transition(status.Closing)
	err := t.Close("client disconnect")
	_ = m.machine.Transition(status.Closed)
	m.logger.Info("disconnected")
	return err
}

// GaveUp is the payload of conn.gave_up events.
type GaveUp struct {
	Channel  string
	Attempts int
}
