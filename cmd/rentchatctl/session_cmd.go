package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/lock"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/spf13/cobra"
)

var (
	initServer      config.Server
	initMetricsAddr string
	initDefault     bool
	initForce       bool
)

func init() {
	sessionInitCmd.Flags().StringVar(&initServer.MessagingURL, "messaging-url", "", "messaging websocket URL (ws:// or wss://)")
	sessionInitCmd.Flags().StringVar(&initServer.PresenceURL, "presence-url", "", "presence websocket URL")
	sessionInitCmd.Flags().StringVar(&initServer.RESTURL, "rest-url", "", "REST API base URL")
	sessionInitCmd.Flags().StringVar(&initServer.Token, "token", "", "bearer token")
	sessionInitCmd.Flags().StringVar(&initServer.TokenParam, "token-param", "", "also send the token as this query parameter")
	sessionInitCmd.Flags().StringVar(&initServer.UserID, "user-id", "", "id of the signed-in user")
	sessionInitCmd.Flags().StringVar(&initMetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	sessionInitCmd.Flags().BoolVar(&initDefault, "default", false, "make this the default session")
	sessionInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing settings")

	sessionCmd.AddCommand(sessionInitCmd, sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the settings of the selected session",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := resolveSession()
		if err != nil {
			return err
		}
		path := session.SettingsPath(name)
		if !initForce {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("session %q already has settings at %s (use --force)", name, path)
			}
		}

		s := &config.Session{Server: initServer, Daemon: config.Daemon{MetricsAddr: initMetricsAddr}}
		s.ApplyDefaults()
		if err := s.Validate(); err != nil {
			return err
		}
		if err := session.EnsureDir(name); err != nil {
			return err
		}
		if err := config.SaveSession(path, s); err != nil {
			return err
		}

		if initDefault {
			if err := config.SetDefaultSession(session.ConfigPath(), name); err != nil {
				return err
			}
		}
		fmt.Printf("Session %q written to %s\n", name, path)
		return nil
	},
}

type sessionEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := session.List()
		if err != nil {
			return err
		}
		entries := make([]sessionEntry, 0, len(names))
		for _, n := range names {
			e := sessionEntry{Name: n, Path: session.Dir(n), Running: lock.Held(session.Dir(n))}
			if e.Running {
				if h, err := lock.ReadHolder(session.Dir(n)); err == nil {
					e.PID = h.PID
				}
			}
			entries = append(entries, e)
		}

		if jsonOutput {
			outputJSON(entries)
			return nil
		}
		if len(entries) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, e := range entries {
			state := "stopped"
			if e.Running {
				state = fmt.Sprintf("running, pid %d", e.PID)
			}
			fmt.Printf("%-20s %s (%s)\n", e.Name, e.Path, state)
		}
		return nil
	},
}
