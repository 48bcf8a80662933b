package ssh

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/eniac111/oodeploy/internal/envmap"
)

// DisconnectStatus is the exit status reported when the connection dropped
// before the remote command returned one, which is what a reboot looks like
// from the client side.
const DisconnectStatus = 255

// ErrDisconnected is wrapped by Run errors whose status is DisconnectStatus.
var ErrDisconnected = errors.New("connection closed before the command exited")

// Request describes one command to run on a host.
type Request struct {
	User string
	// Host is the ssh alias from the deployment file.
	Host     string
	Elevated bool
	Command  string
	Env      envmap.Map
}

// Result is the outcome of a Request.
type Result struct {
	ExitStatus int
	Output     string
}

// Transfer copies a local file to a host.
type Transfer struct {
	User        string
	Host        string
	Source      string
	Destination string
	Mode        fs.FileMode
}

// Runner is the capability to run commands on, and copy files to, a host.
// Run returns a non-nil error whenever the command did not exit with status 0.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
	Upload(ctx context.Context, t Transfer) error
}

// CommandLine renders req as a single shell command line. Environment values
// are single-quoted so they reach the command verbatim.
func (req Request) CommandLine() string {
	var b strings.Builder
	if req.Elevated {
		b.WriteString("sudo ")
	}
	if len(req.Env) > 0 {
		b.WriteString("env")
		for _, k := range req.Env.Keys() {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(Quote(req.Env[k]))
		}
		b.WriteString(" ")
	}
	b.WriteString(req.Command)
	return b.String()
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
