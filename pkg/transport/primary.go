package transport

import (
	"fmt"
	"os"
)

// SessionFetcher is the primary transport: a binary retrieve over the
// active session's data channel, streamed straight into an open temp
// file. Socket-level faults bubble up unclassified; pkg/faults decides
// whether they are session-fatal.
type SessionFetcher struct{}

// Fetch retrieves remotePath into dst and reports the bytes written.
func (SessionFetcher) Fetch(conn ControlConn, remotePath string, dst *os.File) (int64, error) {
	n, err := conn.Retrieve(remotePath, dst)
	if err != nil {
		return n, fmt.Errorf("failed to retrieve %s: %w", remotePath, err)
	}
	return n, nil
}
