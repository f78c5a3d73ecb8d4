// Package transport provides the two byte-fetch strategies of the client:
// a stateful control+data channel session and a stateless URL fetch.
package transport

import (
	"fmt"
	"io"
	"net"
	"time"

	goftp "github.com/gonzalop/ftp"
)

// ControlConn is the control+data channel capability the session layer
// drives: login, directory navigation, binary retrieve and line-oriented
// listing.
type ControlConn interface {
	Login(username, password string) error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	ListLines(path string) ([]string, error)
	Retrieve(remotePath string, w io.Writer) (int64, error)
	System() (string, error)
	Quit() error
	Close() error
}

// DefaultPort is used when the host carries no explicit port.
const DefaultPort = "21"

// Anonymous credentials, used whenever none are configured.
const (
	AnonymousUser     = "anonymous"
	AnonymousPassword = "anonymous"
)

// Dial opens a control connection to host, which may be "host" or
// "host:port".
func Dial(host string, timeout time.Duration) (ControlConn, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, DefaultPort)
	}
	var opts []goftp.Option
	if timeout > 0 {
		opts = append(opts, goftp.WithTimeout(timeout))
	}
	conn, err := goftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &ftpConn{ftp: conn}, nil
}

// ftpConn adapts *goftp.Client to ControlConn.
type ftpConn struct {
	ftp    *goftp.Client
	closed bool
}

func (c *ftpConn) Login(username, password string) error {
	return c.ftp.Login(username, password)
}

func (c *ftpConn) ChangeDir(path string) error {
	return c.ftp.ChangeDir(path)
}

func (c *ftpConn) CurrentDir() (string, error) {
	return c.ftp.CurrentDir()
}

// ListLines issues LIST for path (the working directory when empty) and
// returns the raw listing lines in receipt order.
func (c *ftpConn) ListLines(path string) ([]string, error) {
	entries, err := c.ftp.List(path)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Raw)
	}
	return lines, nil
}

func (c *ftpConn) Retrieve(remotePath string, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := c.ftp.Retrieve(remotePath, cw)
	return cw.n, err
}

func (c *ftpConn) System() (string, error) {
	return c.ftp.Syst()
}

// Quit is the polite shutdown: QUIT on the control channel, then the
// socket close folded in by the underlying client.
func (c *ftpConn) Quit() error {
	if c.closed {
		return nil
	}
	err := c.ftp.Quit()
	if err == nil {
		c.closed = true
	}
	return err
}

// Close is the hard teardown after a failed polite one. The underlying
// client folds the socket close into Quit, so a second Quit is the
// strongest close available.
func (c *ftpConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ftp.Quit()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
