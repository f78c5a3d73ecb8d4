package ftpclient

import (
	"errors"
	"io"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"digital.vasic.ftpfetch/pkg/session"
	"digital.vasic.ftpfetch/pkg/transport"
)

// fakeConn simulates a control connection with a small directory tree.
type fakeConn struct {
	cwd   string
	lines map[string][]string

	retrPayload string
	retrErr     error
	retrBlock   chan struct{} // Retrieve blocks on it until closed
	retrCalls   int

	listErr   error
	listErrs  int // how many times listErr fires before clearing
	listCalls int

	changedTo []string
	quits     int
	closes    int
}

func (c *fakeConn) Login(username, password string) error { return nil }

func (c *fakeConn) ChangeDir(p string) error {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(c.cwd, p)
	}
	c.cwd = p
	c.changedTo = append(c.changedTo, p)
	return nil
}

func (c *fakeConn) CurrentDir() (string, error) { return c.cwd, nil }

func (c *fakeConn) ListLines(string) ([]string, error) {
	c.listCalls++
	if c.listErr != nil && (c.listErrs == 0 || c.listCalls <= c.listErrs) {
		return nil, c.listErr
	}
	return c.lines[c.cwd], nil
}

func (c *fakeConn) Retrieve(remotePath string, w io.Writer) (int64, error) {
	c.retrCalls++
	if c.retrBlock != nil {
		<-c.retrBlock
	}
	if c.retrErr != nil {
		return 0, c.retrErr
	}
	n, err := io.Copy(w, strings.NewReader(c.retrPayload))
	return n, err
}

func (c *fakeConn) System() (string, error) { return "UNIX Type: L8", nil }
func (c *fakeConn) Quit() error             { c.quits++; return nil }
func (c *fakeConn) Close() error            { c.closes++; return nil }

// fakeDialer hands out conns in order, repeating the last one.
type fakeDialer struct {
	conns []*fakeConn
	calls int
}

func (d *fakeDialer) dial(host string, timeout time.Duration) (transport.ControlConn, error) {
	i := d.calls
	d.calls++
	if i >= len(d.conns) {
		i = len(d.conns) - 1
	}
	conn := d.conns[i]
	conn.cwd = "/"
	return conn, nil
}

// fakeOpener stands in for the URL-fetch transport.
type fakeOpener struct {
	payload string
	err     error
	opened  []string
}

func (o *fakeOpener) Open(rawURL string) (io.ReadCloser, error) {
	o.opened = append(o.opened, rawURL)
	if o.err != nil {
		return nil, o.err
	}
	return io.NopCloser(strings.NewReader(o.payload)), nil
}

var errFallbackDown = errors.New("fallback host unreachable")

// newTestClient wires a client against fake transports. The fallback
// opener starts out failing so session-transport tests are not shadowed
// by it.
func newTestClient(t *testing.T, conns ...*fakeConn) (*Client, *fakeDialer, *fakeOpener) {
	t.Helper()
	if len(conns) == 0 {
		conns = []*fakeConn{{}}
	}
	c, err := New(&Config{Address: "ftp://ftp.example.com/pub"}, zap.NewNop())
	require.NoError(t, err)

	dialer := &fakeDialer{conns: conns}
	c.session = session.NewManager(&session.Config{
		Host:     c.host,
		RootPath: c.rootPath,
		Policy:   c.policy,
		Dialer:   dialer.dial,
	}, zap.NewNop())

	opener := &fakeOpener{err: errFallbackDown}
	c.fallback = transport.URLFetcher{Opener: opener}
	c.sleep = func(time.Duration) {}
	return c, dialer, opener
}
