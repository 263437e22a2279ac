package main

import (
	"fmt"
	"os"

	"github.com/marmos91/rserved/cmd/rserved/commands"
	"github.com/marmos91/rserved/internal/wire/byteorder"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitSelfCheckFailed is returned when the endianness self-check fails.
// There is no separate exit code for evaluator initialization failure:
// the embedded evaluator (internal/eval.New) has no fallible
// initialization step, so that path has no real trigger to attach
// to without inventing one.
const exitSelfCheckFailed = -100

func main() {
	if err := byteorder.SelfCheck(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(exitSelfCheckFailed)
	}

	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
