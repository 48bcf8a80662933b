// Package ssh runs commands on and copies files to deployment hosts over SSH.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gravitational/trace"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	sshconfig "github.com/kevinburke/ssh_config"
)

const defaultDialTimeout = 10 * time.Second

var defaultKeyNames = []string{"id_rsa", "id_ecdsa", "id_ed25519"}

// Options configure a Client.
type Options struct {
	// HomeDir locates ~/.ssh. Defaults to the current user's home.
	HomeDir string
	// Endpoints override ~/.ssh/config per ssh alias.
	Endpoints   map[string]Endpoint
	DialTimeout time.Duration
	Logger      logrus.FieldLogger
}

// Client implements Runner over SSH. A new connection is opened for every
// call, so calls for different hosts may run concurrently.
type Client struct {
	opts      Options
	sshConfig *sshconfig.Config
	hostKeys  ssh.HostKeyCallback
	agentSock string
	log       logrus.FieldLogger
}

// NewClient reads ~/.ssh/config and ~/.ssh/known_hosts once and returns a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		opts.HomeDir = home
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	sshDir := filepath.Join(opts.HomeDir, ".ssh")
	cfg, err := loadSSHConfig(filepath.Join(sshDir, "config"))
	if err != nil {
		return nil, err
	}

	hostKeys, err := knownhosts.New(filepath.Join(sshDir, "known_hosts"))
	if err != nil {
		log.WithError(err).Warn("Host key verification disabled: known_hosts is not readable")
		hostKeys = ssh.InsecureIgnoreHostKey() //nolint:gosec // no known_hosts to verify against
	}

	return &Client{
		opts:      opts,
		sshConfig: cfg,
		hostKeys:  hostKeys,
		// Read once: a local install job may overlay the process environment later.
		agentSock: os.Getenv("SSH_AUTH_SOCK"),
		log:       log,
	}, nil
}

// connect opens an SSH connection to alias as user.
func (c *Client) connect(ctx context.Context, user, alias string) (*ssh.Client, error) {
	t := resolve(c.sshConfig, alias, c.opts.Endpoints[alias], c.opts.HomeDir)
	log := c.log.WithFields(logrus.Fields{"host": alias, "addr": t.addr})

	var authMethods []ssh.AuthMethod

	keyFiles := t.identityFiles
	if len(keyFiles) == 0 {
		for _, name := range defaultKeyNames {
			keyFiles = append(keyFiles, filepath.Join(c.opts.HomeDir, ".ssh", name))
		}
	}
	var signers []ssh.Signer
	for _, path := range keyFiles {
		key, err := os.ReadFile(path)
		if err != nil {
			log.WithError(err).Debugf("Skipping SSH key %s", path)
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			log.WithError(err).Debugf("Failed to parse SSH key %s", path)
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		authMethods = append(authMethods, ssh.PublicKeys(signers...))
	}

	if c.agentSock != "" {
		if conn, err := net.Dial("unix", c.agentSock); err == nil {
			defer conn.Close()
			authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			log.WithError(err).Debug("Failed to connect to SSH agent")
		}
	}

	if len(authMethods) == 0 {
		return nil, trace.AccessDenied("no SSH authentication methods available for %s", alias)
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: c.hostKeys,
		Timeout:         c.opts.DialTimeout,
	}

	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "failed to dial %s", t.addr)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, trace.ConnectionProblem(err, "SSH handshake with %s failed", t.addr)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Run executes req on the remote host and returns its combined output.
func (c *Client) Run(ctx context.Context, req Request) (Result, error) {
	client, err := c.connect(ctx, req.User, req.Host)
	if err != nil {
		return Result{ExitStatus: -1}, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return Result{ExitStatus: -1}, trace.ConnectionProblem(err, "failed to create SSH session on %s", req.Host)
	}
	defer func() { _ = session.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	output, err := session.CombinedOutput(req.CommandLine())
	status, err := classify(err)
	res := Result{ExitStatus: status, Output: string(output)}
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("command %q failed on %s: %w", req.Command, req.Host, err)
	}
	return res, nil
}

// classify maps a session error to an exit status.
func classify(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), err
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) || errors.Is(err, io.EOF) {
		return DisconnectStatus, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return -1, err
}

// Upload copies t.Source to t.Destination over SFTP. A relative destination
// is resolved against the user's home directory.
func (c *Client) Upload(ctx context.Context, t Transfer) error {
	client, err := c.connect(ctx, t.User, t.Host)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to start SFTP on %s: %w", t.Host, err)
	}
	defer sftpClient.Close()

	srcFile, err := os.Open(t.Source)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := sftpClient.Create(t.Destination)
	if err != nil {
		return fmt.Errorf("failed to create %s on %s: %w", t.Destination, t.Host, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", t.Source, t.Host, err)
	}

	if t.Mode != 0 {
		if err := sftpClient.Chmod(t.Destination, t.Mode); err != nil {
			return fmt.Errorf("failed to chmod %s on %s: %w", t.Destination, t.Host, err)
		}
	}
	return nil
}
