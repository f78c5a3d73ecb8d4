// Package ftpclient is the public surface of the resilient FTP client:
// directory listing and file download over unreliable links, with a
// native control+data channel transport, a URL-fetch fallback and
// configurable retry, timeout and cooldown policies.
package ftpclient

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"digital.vasic.ftpfetch/pkg/resilience"
	"digital.vasic.ftpfetch/pkg/session"
	"digital.vasic.ftpfetch/pkg/transport"
)

// defaultBackoffBase scales the sleep between retry attempts when the
// configuration does not say otherwise.
const defaultBackoffBase = time.Second

// Config contains the client configuration.
type Config struct {
	// Address is the remote root, "[ftp://]host[/path]".
	Address string `json:"address"`
	// Username and Password are both-or-neither; empty means anonymous.
	Username string `json:"username"`
	Password string `json:"password"`
	// Retries is the attempt budget per network operation (0 = one try).
	Retries uint `json:"retries"`
	// Timeout bounds each network operation (0 = no deadline).
	Timeout time.Duration `json:"timeout"`
	// Cooldown is the minimum spacing between network actions.
	Cooldown time.Duration `json:"cooldown"`
	// BackoffBase scales the sleep between retry attempts.
	BackoffBase time.Duration `json:"backoff_base"`
}

// Client is the connection facade. One instance owns one session and one
// in-flight network operation at a time; instances are independent.
type Client struct {
	config   *Config
	host     string
	rootPath string
	policy   resilience.Policy

	session  *session.Manager
	primary  transport.SessionFetcher
	fallback transport.URLFetcher
	sleep    func(time.Duration)
	logger   *zap.Logger
}

// New creates a client for the given address. The connection itself is
// established lazily, on the first operation.
func New(config *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if (config.Username == "") != (config.Password == "") {
		return nil, fmt.Errorf("username and password must be supplied together")
	}
	host, rootPath := SplitHostAndPath(config.Address)
	if host == "" {
		return nil, fmt.Errorf("address %q has no host", config.Address)
	}
	var creds *session.Credentials
	if config.Username != "" {
		creds = &session.Credentials{
			Username: config.Username,
			Password: config.Password,
		}
	}
	backoffBase := config.BackoffBase
	if backoffBase == 0 {
		backoffBase = defaultBackoffBase
	}
	policy := resilience.Policy{MaxAttempts: config.Retries, BackoffBase: backoffBase}
	return &Client{
		config:   config,
		host:     host,
		rootPath: rootPath,
		policy:   policy,
		session: session.NewManager(&session.Config{
			Host:        host,
			RootPath:    rootPath,
			Credentials: creds,
			Policy:      policy,
			Timeout:     config.Timeout,
			Cooldown:    config.Cooldown,
		}, logger),
		fallback: transport.URLFetcher{Opener: transport.FTPOpener{Timeout: config.Timeout}},
		sleep:    time.Sleep,
		logger:   logger,
	}, nil
}

// Host returns the remote host the client talks to.
func (c *Client) Host() string {
	return c.host
}

// RootPath returns the absolute root path on the remote host.
func (c *Client) RootPath() string {
	return c.rootPath
}

// Close releases the session. Safe on every path; callers defer it right
// after New.
func (c *Client) Close() {
	c.session.Close()
}
