// Package connection supervises the dual-channel broker link: the REST
// session and the push stream. It owns login, liveness monitoring and
// reconnection with exponential backoff.
package connection

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ig-gateway/internal/events"
	"ig-gateway/pkg/ig"
	"ig-gateway/pkg/stream"
)

// State is the link lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "DISCONNECTED"
	}
}

// Authenticator establishes and tears down the REST session.
type Authenticator interface {
	Login(ctx context.Context) (*ig.Session, error)
	Logout(ctx context.Context) error
}

// PushLink is the slice of the stream client the manager supervises.
type PushLink interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	Subscribe(topic string) error
	SetTokens(cst, securityToken string)
}

// Config wires a Manager.
type Config struct {
	Auth            Authenticator
	Link            PushLink
	Bus             *events.Bus
	AccountID       string
	MonitorInterval time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration

	// ReplayMarkets re-registers every market topic after a reconnect.
	ReplayMarkets func(link PushLink) error
}

// Manager drives the link state machine. Connect and Disconnect are
// idempotent; a background monitor detects transport loss and reconnects
// with exponential backoff, replaying the subscription set on success.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	session *ig.Session
	wg      sync.WaitGroup
}

// NewManager builds a manager in the Disconnected state.
func NewManager(cfg Config) *Manager {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = time.Minute
	}
	return &Manager{cfg: cfg}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the active REST session, nil when disconnected.
func (m *Manager) Session() *ig.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect logs in, opens the push stream and starts the monitor.
// Calling Connect on a live link is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	if err := m.establish(ctx); err != nil {
		m.setState(StateDisconnected)
		return err
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.state = StateConnected
	m.mu.Unlock()

	m.publish(events.EventConnectionUp, nil)

	m.wg.Add(1)
	go m.monitor(monitorCtx)
	return nil
}

// Disconnect stops the monitor and closes the push stream. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.cancel = nil
	m.state = StateDisconnected
	m.session = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := m.cfg.Link.Close(); err != nil {
		log.Printf("connection: close push link: %v", err)
	}

	ctx, cancelLogout := context.WithTimeout(context.Background(), 10*time.Second)
	if err := m.cfg.Auth.Logout(ctx); err != nil {
		log.Printf("connection: logout: %v", err)
	}
	cancelLogout()

	m.wg.Wait()
}

// establish performs one full link bring-up: REST login, stream dial and
// subscription of the account-scoped topics plus all market topics.
func (m *Manager) establish(ctx context.Context) error {
	session, err := m.cfg.Auth.Login(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.cfg.Link.SetTokens(session.CST, session.SecurityToken)
	return m.attachStream(ctx)
}

// attachStream dials the push stream with whatever tokens the link
// holds and re-registers the full topic set.
func (m *Manager) attachStream(ctx context.Context) error {
	if err := m.cfg.Link.Connect(ctx); err != nil {
		return err
	}
	if err := m.cfg.Link.Subscribe(stream.TradeTopic(m.cfg.AccountID)); err != nil {
		return err
	}
	if err := m.cfg.Link.Subscribe(stream.AccountTopic(m.cfg.AccountID)); err != nil {
		return err
	}
	if m.cfg.ReplayMarkets != nil {
		return m.cfg.ReplayMarkets(m.cfg.Link)
	}
	return nil
}

// monitor watches the push link and runs the reconnect loop on loss.
func (m *Manager) monitor(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.cfg.Link.Connected() {
				continue
			}
			m.setState(StateReconnecting)
			log.Printf("connection: push link lost, reconnecting")
			m.publish(events.EventConnectionLost, nil)
			if !m.reconnect(ctx) {
				return
			}
		}
	}
}

// reconnect retries with exponential backoff until the link is back,
// the monitor context ends, or the broker rejects the credentials. The
// session tokens in hand are tried first; a full re-login only happens
// when the stream will not accept them.
func (m *Manager) reconnect(ctx context.Context) bool {
	backoff := m.cfg.BackoffBase
	for attempt := 1; ; attempt++ {
		err := m.attachStream(ctx)
		if err != nil {
			err = m.establish(ctx)
		}
		if err == nil {
			m.setState(StateConnected)
			log.Printf("connection: reestablished after %d attempt(s)", attempt)
			m.publish(events.EventReconnected, attempt)
			return true
		}
		if errors.Is(err, ig.ErrAuthentication) {
			log.Printf("connection: credentials rejected during reconnect, giving up: %v", err)
			m.mu.Lock()
			m.state = StateDisconnected
			m.session = nil
			m.mu.Unlock()
			m.publish(events.EventReconnectFailed, err)
			return false
		}

		log.Printf("connection: reconnect attempt %d failed: %v", attempt, err)
		m.publish(events.EventReconnectFailed, err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > m.cfg.BackoffMax {
			backoff = m.cfg.BackoffMax
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) publish(e events.Event, payload any) {
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(e, payload)
	}
}
