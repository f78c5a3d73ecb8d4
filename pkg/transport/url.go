package transport

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	jftp "github.com/jlaffaye/ftp"
)

// Scheme is the only URL scheme the fallback transport speaks.
const Scheme = "ftp"

// BuildURL resolves remote into a fully qualified ftp:// URL. Three
// address forms are accepted, in this precedence order: already
// scheme-prefixed, absolute on the host, and relative to rootPath.
// Credentials are embedded in the URL's authority when both are present.
func BuildURL(host, rootPath, remote, username, password string) string {
	u := &url.URL{Scheme: Scheme, Host: host}
	switch {
	case strings.HasPrefix(remote, Scheme+"://"):
		trimmed := strings.TrimPrefix(remote, Scheme+"://")
		if i := strings.Index(trimmed, "/"); i >= 0 {
			u.Host = trimmed[:i]
			u.Path = trimmed[i:]
		} else {
			u.Host = trimmed
			u.Path = "/"
		}
	case strings.HasPrefix(remote, "/"):
		u.Path = remote
	default:
		u.Path = path.Join(rootPath, remote)
	}
	if username != "" && password != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String()
}

// Opener opens a byte stream for a fully qualified URL.
type Opener interface {
	Open(rawURL string) (io.ReadCloser, error)
}

// FTPOpener opens ftp:// URLs over a short-lived, single-purpose
// connection, independent of any session state the client holds.
type FTPOpener struct {
	Timeout time.Duration
}

const defaultOpenTimeout = 30 * time.Second

func (o FTPOpener) Open(rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, rawURL)
	}
	addr := u.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	conn, err := jftp.Dial(addr, jftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	username, password := AnonymousUser, AnonymousPassword
	if u.User != nil {
		username = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			password = pass
		}
	}
	if err := conn.Login(username, password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to login to %s: %w", addr, err)
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to retrieve %s: %w", u.Path, err)
	}
	return &urlStream{resp: resp, conn: conn}, nil
}

// urlStream ties the data stream and its one-shot connection together so
// a single Close releases both.
type urlStream struct {
	resp *jftp.Response
	conn *jftp.ServerConn
}

func (s *urlStream) Read(p []byte) (int, error) {
	return s.resp.Read(p)
}

func (s *urlStream) Close() error {
	err := s.resp.Close()
	if qerr := s.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}

// URLFetcher is the fallback transport: it opens a byte stream for a URL
// and copies it into an open temp file, closing both streams on every
// exit path.
type URLFetcher struct {
	// Opener defaults to FTPOpener.
	Opener Opener
}

// Fetch copies the stream behind rawURL into dst and reports the bytes
// written.
func (f URLFetcher) Fetch(rawURL string, dst *os.File) (int64, error) {
	opener := f.Opener
	if opener == nil {
		opener = FTPOpener{}
	}
	src, err := opener.Open(rawURL)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", rawURL, err)
	}
	return n, nil
}
