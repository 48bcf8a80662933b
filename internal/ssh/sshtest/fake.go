// Package sshtest provides a scriptable ssh.Runner for tests.
package sshtest

import (
	"context"
	"sync"

	"github.com/eniac111/oodeploy/internal/ssh"
)

// Fake records every call and answers with RunFunc/UploadFunc. With nil
// funcs every call succeeds.
type Fake struct {
	RunFunc    func(req ssh.Request) (ssh.Result, error)
	UploadFunc func(t ssh.Transfer) error

	mu      sync.Mutex
	runs    []ssh.Request
	uploads []ssh.Transfer
}

var _ ssh.Runner = (*Fake)(nil)

// Run implements ssh.Runner.
func (f *Fake) Run(_ context.Context, req ssh.Request) (ssh.Result, error) {
	f.mu.Lock()
	f.runs = append(f.runs, req)
	fn := f.RunFunc
	f.mu.Unlock()

	if fn == nil {
		return ssh.Result{}, nil
	}
	return fn(req)
}

// Upload implements ssh.Runner.
func (f *Fake) Upload(_ context.Context, t ssh.Transfer) error {
	f.mu.Lock()
	f.uploads = append(f.uploads, t)
	fn := f.UploadFunc
	f.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(t)
}

// Runs returns a copy of the recorded requests.
func (f *Fake) Runs() []ssh.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ssh.Request(nil), f.runs...)
}

// Uploads returns a copy of the recorded transfers.
func (f *Fake) Uploads() []ssh.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ssh.Transfer(nil), f.uploads...)
}

// RunsFor returns the recorded requests for host in call order.
func (f *Fake) RunsFor(host string) []ssh.Request {
	var out []ssh.Request
	for _, r := range f.Runs() {
		if r.Host == host {
			out = append(out, r)
		}
	}
	return out
}
