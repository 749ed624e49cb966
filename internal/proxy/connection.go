package proxy

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// State is one node of the per-connection state machine described in
// SPEC_FULL.md §4.5.
type State int32

const (
	StateNew State = iota
	StateAwaitingFirstFrame
	StateAuthGating
	StateReady
	StateConnectingUpstream
	StateRelaying
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateAwaitingFirstFrame:
		return "AWAITING_FIRST_FRAME"
	case StateAuthGating:
		return "AUTH_GATING"
	case StateReady:
		return "READY"
	case StateConnectingUpstream:
		return "CONNECTING_UPSTREAM"
	case StateRelaying:
		return "RELAYING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// idleWatchdog closes a connection that has sat with no traffic for longer
// than timeout, adapted from the teacher's IdleTimer (internal/server/idle.go)
// from "count of active environments" to "activity on one connection":
// Touch plays the role of EnvironmentCreated/Destroyed resetting the
// countdown, and there is always exactly one watched thing rather than a
// population of them.
type idleWatchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	once    sync.Once
	fired   chan struct{}
	onFire  func()
}

func newIdleWatchdog(timeout time.Duration, onFire func()) *idleWatchdog {
	w := &idleWatchdog{timeout: timeout, onFire: onFire, fired: make(chan struct{})}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, w.fire)
	}
	return w
}

func (w *idleWatchdog) fire() {
	w.once.Do(func() {
		close(w.fired)
		if w.onFire != nil {
			w.onFire()
		}
	})
}

// Touch resets the countdown; called whenever a frame crosses the
// connection in either direction.
func (w *idleWatchdog) Touch() {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

// Stop cancels the countdown permanently, called when the connection closes
// for any other reason so a late timer fire can't race a reused struct.
func (w *idleWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Connection is one downstream socket plus its associated upstream socket
// (once CONNECTING_UPSTREAM resolves), the per-connection response orderer,
// and the bookkeeping the idle watchdog and telemetry need.
type Connection struct {
	ClusterID  string
	Downstream net.Conn
	Upstream   net.Conn // nil until CONNECTING_UPSTREAM completes

	openedAt     time.Time
	lastActivity atomic.Int64 // unix nanos
	state        atomic.Int32

	Orderer *ResponseOrderer

	idle *idleWatchdog
}

// NewConnection wraps an accepted downstream socket. onIdle is invoked at
// most once, from the watchdog's own timer goroutine, when the connection
// has been idle longer than idleTimeout; the caller is responsible for
// actually tearing the connection down from that callback.
func NewConnection(clusterID string, downstream net.Conn, idleTimeout time.Duration, onIdle func()) *Connection {
	c := &Connection{
		ClusterID:  clusterID,
		Downstream: downstream,
		openedAt:   time.Now(),
		Orderer:    NewResponseOrderer(),
	}
	c.state.Store(int32(StateNew))
	c.idle = newIdleWatchdog(idleTimeout, onIdle)
	c.Touch()
	return c
}

// Touch records activity, resetting the idle watchdog's countdown.
func (c *Connection) Touch() {
	c.lastActivity.Store(time.Now().UnixNano())
	c.idle.Touch()
}

func (c *Connection) State() State      { return State(c.state.Load()) }
func (c *Connection) SetState(s State)  { c.state.Store(int32(s)) }
func (c *Connection) OpenedAt() time.Time {
	return c.openedAt
}
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Close tears down both sockets and stops the idle watchdog. Safe to call
// more than once; every call closes both sockets again and returns the
// first error those closes report, so a repeated call reports the
// already-closed error.
func (c *Connection) Close() error {
	c.idle.Stop()
	c.SetState(StateClosing)
	var err error
	if c.Upstream != nil {
		if e := c.Upstream.Close(); e != nil {
			err = e
		}
	}
	if e := c.Downstream.Close(); e != nil && err == nil {
		err = e
	}
	c.SetState(StateClosed)
	return err
}
