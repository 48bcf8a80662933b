// Package main is the entry point for the oodeploy CLI.
//
// oodeploy installs a multi-role platform (broker, name service, message
// queue, datastore, nodes) across the hosts listed in a deployment file.
// Hosts are installed in parallel and rebooted one at a time in dependency
// order.
//
// Commands: deploy, plan, version.
//
// Exit status is 0 on success, 1 on configuration or other errors and 2 when
// a host could not be rebooted and needs a manual reboot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eniac111/oodeploy/cmd/oodeploy/commands"
	"github.com/eniac111/oodeploy/cmd/oodeploy/handlers"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(handlers.ExitCode(err))
}
