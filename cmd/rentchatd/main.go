package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/rentchat/internal/daemon"
	"github.com/matheus3301/rentchat/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	debug := flag.Bool("debug", false, "log frames and state transitions at debug level")
	quiet := flag.Bool("quiet", false, "log to the session log file only")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		fx.NopLogger,
		daemon.Module(daemon.Params{SessionName: sessionName, Debug: *debug, Quiet: *quiet}),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app.Run()
}
