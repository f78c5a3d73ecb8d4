package ftpclient

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"digital.vasic.ftpfetch/pkg/faults"
	"digital.vasic.ftpfetch/pkg/resilience"
	"digital.vasic.ftpfetch/pkg/transport"
)

// tmpSuffix marks the transfer scratch file next to the destination.
const tmpSuffix = ".tmp"

// maxSessionRecoveries bounds the re-login loop after session-fatal
// transfer faults.
const maxSessionRecoveries = 3

// fallbackReconnectWait is used for the pre-reconnect sleep when no
// timeout is configured.
const fallbackReconnectWait = 5 * time.Second

// Download fetches remote into dest and reports success as a boolean. It
// never raises for ordinary network flakiness: the retry, fallback and
// reconnect budget is spent first, and a definitive false comes back once
// everything is.
//
// A destination that already exists with the remote's exact size is left
// alone; no transfer happens. The remote size is only consulted in that
// case. Data lands in "<dest>.tmp" and is renamed over dest only after
// verification, so dest is either absent or complete.
func (c *Client) Download(remote, dest string, timeout time.Duration) bool {
	if timeout == 0 {
		timeout = c.config.Timeout
	}

	if info, err := os.Stat(dest); err == nil {
		if size, serr := c.GetFileSize(remote); serr == nil && size > 0 && uint64(info.Size()) == size {
			c.logger.Info("destination already matches remote size, skipping",
				zap.String("dest", dest), zap.Uint64("size", size))
			return true
		}
	}

	tmp := dest + tmpSuffix

	for recovery := 0; ; recovery++ {
		written, err := c.fetchFallback(remote, tmp, timeout)
		if err == nil {
			if c.promote(tmp, dest, written) {
				return true
			}
		} else {
			c.logger.Warn("fallback transport failed, trying the session transport",
				zap.String("remote", remote), zap.Error(err))
		}

		written, err = c.fetchPrimary(remote, tmp, timeout)
		if err == nil {
			if c.promote(tmp, dest, written) {
				return true
			}
			break
		}
		if !faults.IsSessionFatal(err) {
			c.logger.Error("session transport failed",
				zap.String("remote", remote), zap.Error(err))
			break
		}
		if recovery+1 >= maxSessionRecoveries {
			c.logger.Error("giving up after repeated session losses",
				zap.String("remote", remote), zap.Int("recoveries", recovery+1))
			break
		}
		wait := timeout * 5
		if wait <= 0 {
			wait = fallbackReconnectWait
		}
		c.logger.Warn("session lost mid-transfer, reconnecting",
			zap.String("remote", remote), zap.Duration("wait", wait), zap.Error(err))
		c.sleep(wait)
		if lerr := c.session.Login(); lerr != nil {
			c.logger.Error("re-login failed", zap.Error(lerr))
			break
		}
	}

	c.removeTemp(tmp)
	c.logger.Error("download failed permanently",
		zap.String("remote", remote), zap.String("dest", dest))
	return false
}

// fetchFallback pulls remote through the stateless URL transport, which
// is independent of the FTP session state.
func (c *Client) fetchFallback(remote, tmp string, timeout time.Duration) (int64, error) {
	url := transport.BuildURL(c.host, c.rootPath, remote, c.config.Username, c.config.Password)
	var written int64
	attempt := func() error {
		defer c.session.Pacer().Stamp()
		c.session.Pacer().Wait()
		// No abort hook: the one-shot connection lives inside Fetch and
		// is released together with its stream.
		n, err := resilience.WithDeadlineValue(timeout, nil, func() (int64, error) {
			dst, err := c.openTemp(tmp)
			if err != nil {
				return 0, err
			}
			defer dst.Close()
			return c.fallback.Fetch(url, dst)
		})
		if err != nil {
			return err
		}
		written = n
		return nil
	}
	if err := resilience.Do(c.policy, c.logger, attempt); err != nil {
		return 0, err
	}
	return written, nil
}

// fetchPrimary pulls remote over the active session's data channel.
func (c *Client) fetchPrimary(remote, tmp string, timeout time.Duration) (int64, error) {
	rp := remotePath(remote)
	var written int64
	attempt := func() error {
		// A spent deadline on the previous attempt aborts the
		// connection, so every attempt ensures its own handle.
		if err := c.session.EnsureConnected(); err != nil {
			return err
		}
		conn := c.session.Conn()
		defer c.session.Pacer().Stamp()
		c.session.Pacer().Wait()
		n, err := resilience.WithDeadlineValue(timeout, c.session.Abort, func() (int64, error) {
			dst, err := c.openTemp(tmp)
			if err != nil {
				return 0, err
			}
			defer dst.Close()
			return c.primary.Fetch(conn, rp, dst)
		})
		if err != nil {
			return err
		}
		written = n
		return nil
	}
	if err := resilience.Do(c.policy, c.logger, attempt); err != nil {
		return 0, err
	}
	return written, nil
}

// openTemp creates the transfer scratch file, dropping whatever a
// previous attempt left behind.
func (c *Client) openTemp(tmp string) (*os.File, error) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale temp file %s: %w", tmp, err)
	}
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file %s: %w", tmp, err)
	}
	return f, nil
}

// promote verifies the temp file and renames it over dest: it must exist,
// be non-empty and hold exactly the bytes the transport reported.
func (c *Client) promote(tmp, dest string, written int64) bool {
	info, err := os.Stat(tmp)
	if err != nil {
		c.logger.Warn("temp file missing after transfer",
			zap.String("tmp", tmp), zap.Error(err))
		return false
	}
	if info.Size() == 0 {
		c.logger.Warn("temp file is empty", zap.String("tmp", tmp))
		c.removeTemp(tmp)
		return false
	}
	if info.Size() != written {
		c.logger.Warn("temp file size does not match bytes transferred",
			zap.String("tmp", tmp),
			zap.Int64("size", info.Size()),
			zap.Int64("written", written))
		c.removeTemp(tmp)
		return false
	}
	if err := os.Rename(tmp, dest); err != nil {
		c.logger.Error("failed to promote temp file",
			zap.String("tmp", tmp), zap.String("dest", dest), zap.Error(err))
		return false
	}
	c.logger.Info("file saved",
		zap.String("dest", dest), zap.Int64("size", info.Size()))
	return true
}

func (c *Client) removeTemp(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove temp file",
			zap.String("tmp", tmp), zap.Error(err))
	}
}
