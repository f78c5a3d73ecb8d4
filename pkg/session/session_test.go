package session

import (
	"errors"
	"io"
	"net"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.ftpfetch/pkg/resilience"
	"digital.vasic.ftpfetch/pkg/transport"
)

// scriptConn records the calls the manager makes against it.
type scriptConn struct {
	loginErr  error
	cwdErr    error
	quitErr   error
	closeErr  error
	logins    [][2]string
	changedTo []string
	quits     int
	closes    int
}

func (c *scriptConn) Login(username, password string) error {
	c.logins = append(c.logins, [2]string{username, password})
	return c.loginErr
}

func (c *scriptConn) ChangeDir(path string) error {
	c.changedTo = append(c.changedTo, path)
	return c.cwdErr
}

func (c *scriptConn) CurrentDir() (string, error) { return "/", nil }

func (c *scriptConn) ListLines(path string) ([]string, error) { return nil, nil }

func (c *scriptConn) Retrieve(remotePath string, w io.Writer) (int64, error) { return 0, nil }

func (c *scriptConn) System() (string, error) { return "UNIX Type: L8", nil }

func (c *scriptConn) Quit() error {
	c.quits++
	return c.quitErr
}

func (c *scriptConn) Close() error {
	c.closes++
	return c.closeErr
}

// scriptDialer hands out conns (or errors) in order, repeating the last.
type scriptDialer struct {
	conns []*scriptConn
	errs  []error
	calls int
}

func (d *scriptDialer) dial(host string, timeout time.Duration) (transport.ControlConn, error) {
	i := d.calls
	d.calls++
	if i >= len(d.conns) {
		i = len(d.conns) - 1
	}
	if d.errs != nil && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	return d.conns[i], nil
}

func newTestManager(t *testing.T, dialer *scriptDialer, config *Config) *Manager {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	if config.Host == "" {
		config.Host = "ftp.example.com"
	}
	config.Dialer = dialer.dial
	m := NewManager(config, nil)
	m.bootstrapWait = time.Millisecond
	m.sleep = func(time.Duration) {}
	return m
}

func TestManager_EnsureConnectedIsIdempotent(t *testing.T) {
	dialer := &scriptDialer{conns: []*scriptConn{{}}}
	m := newTestManager(t, dialer, nil)

	require.NoError(t, m.EnsureConnected())
	require.NoError(t, m.EnsureConnected())
	assert.Equal(t, 1, dialer.calls)
	assert.True(t, m.Connected())
}

func TestManager_LoginAnonymous(t *testing.T) {
	conn := &scriptConn{}
	m := newTestManager(t, &scriptDialer{conns: []*scriptConn{conn}}, nil)

	require.NoError(t, m.Login())
	require.Len(t, conn.logins, 1)
	assert.Equal(t, transport.AnonymousUser, conn.logins[0][0])
	assert.Equal(t, transport.AnonymousPassword, conn.logins[0][1])
}

func TestManager_LoginWithCredentials(t *testing.T) {
	conn := &scriptConn{}
	m := newTestManager(t, &scriptDialer{conns: []*scriptConn{conn}}, &Config{
		Credentials: &Credentials{Username: "alice", Password: "s3cret"},
	})

	require.NoError(t, m.Login())
	require.Len(t, conn.logins, 1)
	assert.Equal(t, [2]string{"alice", "s3cret"}, conn.logins[0])
}

func TestManager_LoginEntersRootPath(t *testing.T) {
	conn := &scriptConn{}
	m := newTestManager(t, &scriptDialer{conns: []*scriptConn{conn}}, &Config{
		RootPath: "/pub/data",
	})

	require.NoError(t, m.Login())
	assert.Equal(t, []string{"/pub/data"}, conn.changedTo)
}

func TestManager_LoginReplacesPreviousConnection(t *testing.T) {
	first := &scriptConn{}
	second := &scriptConn{}
	dialer := &scriptDialer{conns: []*scriptConn{first, second}}
	m := newTestManager(t, dialer, nil)

	require.NoError(t, m.Login())
	require.NoError(t, m.Login())
	assert.Equal(t, 2, dialer.calls)
	assert.Equal(t, 1, first.quits)
	assert.Same(t, second, m.Conn())
}

func TestManager_LoginAuthFailureNotRetried(t *testing.T) {
	conn := &scriptConn{loginErr: &textproto.Error{Code: 530, Msg: "Login incorrect"}}
	dialer := &scriptDialer{conns: []*scriptConn{conn}}
	m := newTestManager(t, dialer, &Config{
		Policy: resilience.Policy{MaxAttempts: 4},
	})

	err := m.Login()
	require.Error(t, err)
	assert.Equal(t, 1, dialer.calls)
	assert.Equal(t, 1, conn.closes)
	assert.False(t, m.Connected())
}

func TestManager_EnsureConnectedBootstrapRetry(t *testing.T) {
	conn := &scriptConn{}
	connectivity := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	dialer := &scriptDialer{
		conns: []*scriptConn{nil, conn},
		errs:  []error{connectivity, nil},
	}
	m := newTestManager(t, dialer, nil)
	var waited time.Duration
	m.sleep = func(d time.Duration) { waited = d }

	require.NoError(t, m.EnsureConnected())
	assert.Equal(t, 2, dialer.calls)
	assert.Equal(t, m.bootstrapWait, waited)
	assert.True(t, m.Connected())
}

func TestManager_EnsureConnectedNoBootstrapForAuthFault(t *testing.T) {
	conn := &scriptConn{loginErr: &textproto.Error{Code: 530, Msg: "Login incorrect"}}
	dialer := &scriptDialer{conns: []*scriptConn{conn}}
	m := newTestManager(t, dialer, nil)

	err := m.EnsureConnected()
	require.Error(t, err)
	assert.Equal(t, 1, dialer.calls)
}

func TestManager_CooldownStampedOnFailedLogin(t *testing.T) {
	conn := &scriptConn{loginErr: &textproto.Error{Code: 530, Msg: "Login incorrect"}}
	m := newTestManager(t, &scriptDialer{conns: []*scriptConn{conn}}, &Config{
		Cooldown: time.Minute,
	})

	require.Error(t, m.Login())
	assert.False(t, m.pacer.last.IsZero())
}

func TestManager_CloseSwallowsTeardownErrors(t *testing.T) {
	conn := &scriptConn{
		quitErr:  errors.New("broken pipe"),
		closeErr: errors.New("already closed"),
	}
	m := newTestManager(t, &scriptDialer{conns: []*scriptConn{conn}}, nil)
	require.NoError(t, m.Login())

	m.Close()
	assert.False(t, m.Connected())
	assert.Equal(t, 1, conn.quits)
	assert.Equal(t, 1, conn.closes)
}

func TestManager_CloseWithoutConnection(t *testing.T) {
	m := newTestManager(t, &scriptDialer{conns: []*scriptConn{{}}}, nil)
	m.Close()
	assert.False(t, m.Connected())
}

func TestManager_Abort(t *testing.T) {
	conn := &scriptConn{}
	m := newTestManager(t, &scriptDialer{conns: []*scriptConn{conn}}, nil)
	require.NoError(t, m.Login())

	m.Abort()
	assert.False(t, m.Connected())
	assert.Equal(t, 1, conn.closes)
}
