// Package faults defines the error taxonomy shared by the transport,
// session and client layers, together with the classification helpers
// that decide between reconnect, retry and immediate surfacing.
package faults

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"syscall"

	goftp "github.com/gonzalop/ftp"
)

var (
	// ErrDeadlineExceeded reports that an operation did not finish within
	// its configured deadline.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrNotFound reports that a listing lookup matched no entry.
	ErrNotFound = errors.New("entry not found")

	// ErrNotAFile reports that a listing lookup matched an entry which is
	// not a regular file.
	ErrNotAFile = errors.New("entry is not a file")
)

// RetryExhaustedError is returned once an operation's attempt budget is
// spent. It wraps the last underlying failure.
type RetryExhaustedError struct {
	Attempts uint
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed %d time(s): %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// ParseError reports a directory listing line the parser could not handle.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable listing line %q: %s", e.Line, e.Reason)
}

// replyCodeNotLoggedIn is the FTP reply for rejected or missing credentials.
const replyCodeNotLoggedIn = 530

// IsSessionFatal reports whether err indicates the current connection is
// unusable. Such faults must not be retried on the same session: the
// caller has to re-establish it before another attempt is useful.
func IsSessionFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.EPIPE,
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.ETIMEDOUT,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsAuth reports whether err is the server rejecting our credentials.
// Authentication faults are surfaced immediately, never retried.
func IsAuth(err error) bool {
	code, ok := replyCode(err)
	return ok && code == replyCodeNotLoggedIn
}

// replyCode extracts the FTP reply code from either transport's protocol
// error type.
func replyCode(err error) (int, bool) {
	var protoErr *goftp.ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Code, true
	}
	var replyErr *textproto.Error
	if errors.As(err, &replyErr) {
		return replyErr.Code, true
	}
	return 0, false
}
