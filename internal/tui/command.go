package tui

import (
	"sort"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// commands are the names runCommand understands.
var commands = []string{"quit", "help", "open", "search", "presence", "fallback", "read"}

var aliases = map[string]string{
	"q":  "quit",
	"h":  "help",
	"o":  "open",
	"fb": "fallback",
}

// ParseCommand parses a command string (without the leading ':'). Short
// aliases resolve to their full names.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// CompleteCommand returns the command names starting with prefix, sorted.
func CompleteCommand(prefix string) []string {
	prefix = strings.ToLower(prefix)
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, prefix) && c != prefix {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
