// Package session owns the connection lifecycle of the client: lazy
// connect, login with or without credentials, pacing between requests and
// reconnect after fatal transport errors.
package session

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"digital.vasic.ftpfetch/pkg/faults"
	"digital.vasic.ftpfetch/pkg/resilience"
	"digital.vasic.ftpfetch/pkg/transport"
)

// Dialer opens a control connection to a host.
type Dialer func(host string, timeout time.Duration) (transport.ControlConn, error)

// Credentials for authenticated logins; anonymous when absent.
type Credentials struct {
	Username string
	Password string
}

// defaultBootstrapWait is the coarse grace period before the second
// connect attempt when the server looks like it is still starting up.
const defaultBootstrapWait = 60 * time.Second

// Config contains the session configuration.
type Config struct {
	// Host is "host" or "host:port".
	Host string
	// RootPath is the working directory entered after every login.
	RootPath string
	// Credentials may be nil for anonymous access.
	Credentials *Credentials
	// Policy bounds every login attempt.
	Policy resilience.Policy
	// Timeout is the deadline per network action (0 = none).
	Timeout time.Duration
	// Cooldown is the minimum spacing between network actions.
	Cooldown time.Duration
	// Dialer defaults to transport.Dial.
	Dialer Dialer
}

// Manager owns a single control connection and its pacing state. It is
// not safe for concurrent use; each client instance owns its own manager.
type Manager struct {
	host     string
	rootPath string
	creds    *Credentials
	policy   resilience.Policy
	timeout  time.Duration

	dial  Dialer
	conn  transport.ControlConn
	pacer *Pacer

	bootstrapWait time.Duration
	sleep         func(time.Duration)
	logger        *zap.Logger
}

// NewManager creates a session manager. No network activity happens until
// the first operation.
func NewManager(config *Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := config.Dialer
	if dial == nil {
		dial = transport.Dial
	}
	return &Manager{
		host:          config.Host,
		rootPath:      config.RootPath,
		creds:         config.Credentials,
		policy:        config.Policy,
		timeout:       config.Timeout,
		dial:          dial,
		pacer:         NewPacer(config.Cooldown),
		bootstrapWait: defaultBootstrapWait,
		sleep:         time.Sleep,
		logger:        logger,
	}
}

// Pacer exposes the shared pacing slot so the client can pace its own
// data-channel actions against the same timestamp.
func (m *Manager) Pacer() *Pacer {
	return m.pacer
}

// Conn returns the live connection handle, or nil.
func (m *Manager) Conn() transport.ControlConn {
	return m.conn
}

// Connected reports whether a live handle exists.
func (m *Manager) Connected() bool {
	return m.conn != nil
}

// EnsureConnected is a no-op while a live handle exists; otherwise it
// establishes one. A low-level connectivity fault gets one generous
// wait-then-retry on top of the usual policy: the server may simply not
// be up yet.
func (m *Manager) EnsureConnected() error {
	if m.conn != nil {
		return nil
	}
	err := m.Login()
	if err == nil || !faults.IsSessionFatal(err) {
		return err
	}
	m.logger.Warn("connect failed, waiting before one more attempt",
		zap.String("host", m.host),
		zap.Duration("wait", m.bootstrapWait),
		zap.Error(err))
	m.sleep(m.bootstrapWait)
	return m.Login()
}

// Login discards any previous connection and establishes a fresh,
// authenticated one, entering the configured root path. The cooldown
// stamp is refreshed after every attempt whether or not it succeeded.
func (m *Manager) Login() error {
	m.Close()
	attempt := func() error {
		defer m.pacer.Stamp()
		m.pacer.Wait()
		// The pacing sleep stays outside the deadline; only network time
		// counts against it. There is no abort hook here: until the dial
		// returns there is no socket to close.
		return resilience.WithDeadline(m.timeout, nil, m.loginOnce)
	}
	return resilience.Do(m.policy, m.logger, attempt)
}

func (m *Manager) loginOnce() error {
	conn, err := m.dial(m.host, m.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", m.host, err)
	}
	if m.creds != nil {
		m.logger.Debug("logging in with credentials",
			zap.String("host", m.host), zap.String("username", m.creds.Username))
		err = conn.Login(m.creds.Username, m.creds.Password)
	} else {
		m.logger.Debug("logging in anonymously", zap.String("host", m.host))
		err = conn.Login(transport.AnonymousUser, transport.AnonymousPassword)
	}
	if err != nil {
		_ = conn.Close()
		if faults.IsAuth(err) {
			return fmt.Errorf("login to %s rejected, missing or wrong credentials: %w", m.host, err)
		}
		return fmt.Errorf("failed to login to %s: %w", m.host, err)
	}
	if m.rootPath != "" && m.rootPath != "/" {
		if err := conn.ChangeDir(m.rootPath); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to change to root path %s: %w", m.rootPath, err)
		}
	}
	if system, err := conn.System(); err == nil {
		m.logger.Info("logged in",
			zap.String("host", m.host), zap.String("system", system))
	} else {
		m.logger.Info("logged in", zap.String("host", m.host))
	}
	m.conn = conn
	return nil
}

// Abort force-closes the live connection so a blocked transfer unwinds.
// Used as the deadline hook.
func (m *Manager) Abort() {
	if m.conn == nil {
		return
	}
	m.logger.Warn("aborting connection", zap.String("host", m.host))
	_ = m.conn.Close()
	m.conn = nil
}

// Close tears the connection down politely, then hard. Each step is
// guarded on its own; teardown problems are logged, never surfaced.
func (m *Manager) Close() {
	if m.conn == nil {
		return
	}
	var errs *multierror.Error
	if err := m.conn.Quit(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("quit: %w", err))
	}
	if err := m.conn.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close: %w", err))
	}
	if err := errs.ErrorOrNil(); err != nil {
		m.logger.Warn("connection teardown was not clean",
			zap.String("host", m.host), zap.Error(err))
	}
	m.conn = nil
}
