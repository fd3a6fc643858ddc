// Command startpage is the main entry point for the CLI binary.
// It dispatches to subcommands like server and passwd.
package main

import (
	"fmt"
	"os"

	"github.com/ctrlcmdshft/excalith-start-page/internal/cmd/passwd"
	"github.com/ctrlcmdshft/excalith-start-page/internal/cmd/server"
	"github.com/ctrlcmdshft/excalith-start-page/internal/version"
)

// main is the process entry point and forwards to run for testable logic.
func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run parses argv and invokes the matching subcommand handler.
// It returns an error for missing or unknown subcommands.
func run(argv []string) error {
	if len(argv) < 2 {
		usage()
		return fmt.Errorf("missing subcommand")
	}

	switch argv[1] {
	case "server":
		return server.Run(argv[2:])
	case "passwd":
		return passwd.Run(argv[2:])
	case "version", "-version", "--version":
		fmt.Printf("startpage %s\n", version.Version)
		return nil
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown subcommand: %s", argv[1])
	}
}

// usage prints the canonical CLI syntax to stderr.
func usage() {
	fmt.Fprintln(os.Stderr, "startpage <server|passwd|version> [flags]")
}
