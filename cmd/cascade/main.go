// Command cascade is a demonstration CLI over the scheduling core: it
// boots a simulated machine and runs one of a small set of workloads
// against it, in the spirit of runsc's own "do" subcommand for exercising
// a sandbox without a full container pipeline.
package main

import (
	"context"
	"os"

	"github.com/google/subcommands"

	"github.com/cascadekernel/core/internal/klog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&bootCommand{}, "")
	subcommands.Register(&benchMutexCommand{}, "")

	klog.SetOutput(os.Stderr)
	os.Exit(int(subcommands.Execute(context.Background())))
}
