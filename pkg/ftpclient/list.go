package ftpclient

import (
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"digital.vasic.ftpfetch/pkg/faults"
	"digital.vasic.ftpfetch/pkg/listing"
	"digital.vasic.ftpfetch/pkg/resilience"
)

// ListContents lists dir (the root path when empty) and returns the raw
// listing lines in receipt order, plus the directory they describe. A
// session-fatal fault triggers one explicit re-login and exactly one more
// attempt, on top of the configured retry policy.
func (c *Client) ListContents(dir string, timeout time.Duration) ([]string, string, error) {
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	lines, effective, err := c.listOnce(dir, timeout)
	if err != nil && faults.IsSessionFatal(err) {
		c.logger.Warn("listing failed on a dead session, logging in again", zap.Error(err))
		if lerr := c.session.Login(); lerr != nil {
			return nil, "", fmt.Errorf("failed to re-login: %w", lerr)
		}
		lines, effective, err = c.listOnce(dir, timeout)
	}
	return lines, effective, err
}

func (c *Client) listOnce(dir string, timeout time.Duration) ([]string, string, error) {
	effective := c.effectivePath(dir)
	var lines []string
	attempt := func() error {
		// A spent deadline on the previous attempt aborts the
		// connection, so every attempt ensures its own handle.
		if err := c.session.EnsureConnected(); err != nil {
			return err
		}
		defer c.session.Pacer().Stamp()
		c.session.Pacer().Wait()
		collected, err := resilience.WithDeadlineValue(timeout, c.session.Abort, func() ([]string, error) {
			return c.collectLines(dir)
		})
		if err != nil {
			return err
		}
		lines = collected
		return nil
	}
	if err := resilience.Do(c.policy, c.logger, attempt); err != nil {
		return nil, "", err
	}
	return lines, effective, nil
}

// collectLines changes into dir when given, records the previous working
// directory and restores it in a deferred step, listing in between.
func (c *Client) collectLines(dir string) ([]string, error) {
	conn := c.session.Conn()
	if dir != "" {
		prev, err := conn.CurrentDir()
		if err != nil {
			return nil, fmt.Errorf("failed to read working directory: %w", err)
		}
		if err := conn.ChangeDir(dir); err != nil {
			return nil, fmt.Errorf("failed to change directory to %s: %w", dir, err)
		}
		defer func() {
			if err := conn.ChangeDir(prev); err != nil {
				c.logger.Warn("failed to restore working directory",
					zap.String("dir", prev), zap.Error(err))
			}
		}()
	}
	lines, err := conn.ListLines("")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.effectivePath(dir), err)
	}
	return lines, nil
}

// effectivePath resolves dir against the root path the way the session's
// working directory does.
func (c *Client) effectivePath(dir string) string {
	switch {
	case dir == "":
		return c.rootPath
	case strings.HasPrefix(dir, "/"):
		return dir
	default:
		return path.Join(c.rootPath, dir)
	}
}

// GetEntries lists dir and parses each line, skipping lines the parser
// cannot handle and entries of no interest.
func (c *Client) GetEntries(dir string) ([]listing.Entry, error) {
	lines, effective, err := c.ListContents(dir, 0)
	if err != nil {
		return nil, err
	}
	return listing.ParseAll(lines, effective), nil
}

// GetDirectoryNames returns the joined remote paths of the directories in dir.
func (c *Client) GetDirectoryNames(dir string) ([]string, error) {
	return c.names(dir, listing.TypeDirectory)
}

// GetFileNames returns the joined remote paths of the regular files in dir.
func (c *Client) GetFileNames(dir string) ([]string, error) {
	return c.names(dir, listing.TypeFile)
}

// GetLinkNames returns the joined remote paths of the links in dir.
func (c *Client) GetLinkNames(dir string) ([]string, error) {
	return c.names(dir, listing.TypeLink)
}

func (c *Client) names(dir string, t listing.Type) ([]string, error) {
	entries, err := c.GetEntries(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == t {
			names = append(names, entry.Path())
		}
	}
	return names, nil
}

// GetFileSize looks remote up in its parent directory's listing. It fails
// with faults.ErrNotAFile when the match is not a regular file and with
// faults.ErrNotFound when nothing matches.
func (c *Client) GetFileSize(remote string) (uint64, error) {
	rp := remotePath(remote)
	dir, base := path.Split(rp)
	dir = strings.TrimSuffix(dir, "/")
	entries, err := c.GetEntries(dir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.Name != base {
			continue
		}
		if entry.Type != listing.TypeFile {
			return 0, fmt.Errorf("%s: %w", remote, faults.ErrNotAFile)
		}
		return entry.Size, nil
	}
	return 0, fmt.Errorf("%s: %w", remote, faults.ErrNotFound)
}
