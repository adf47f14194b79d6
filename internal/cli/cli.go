// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - command-line parsing and help text for plume.

package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdServe
	CmdSetup
	CmdSessions
	CmdConfig
	CmdContext
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet bool
	JSON  bool
	Turbo bool
	Model string

	// Command-specific
	Query     string
	Assistant string
	Image     string
	Render    bool

	// Raw args remaining after command selection, handed to ArgParser by
	// the individual command handlers.
	Raw []string
}

const usageText = `plume - conversational AI companion for the terminal

Plume is a chat client with named assistants, a standing user context,
typewriter playback, and a local gateway that fronts OpenAI, Gemini, and
Stability upstreams.

Usage:
  plume                      Start TUI (default)
  plume ask "question"       Ask a single question
  plume chat                 Interactive chat REPL
  plume serve                Run the provider gateway
  plume setup                First-run wizard (API keys)
  plume sessions [subcmd]    Saved conversation management
  plume config [show|set]    Configuration
  plume context [show|set]   Standing user context
  plume version              Show version
  plume help                 Show this help

Global flags:
  -m, --model NAME    Use a specific model for this invocation
  -t, --turbo         Fast typewriter playback
  -q, --quiet         Minimal output
  --json              Machine-readable output where supported

Ask flags:
  -a, --assistant ID  Send as the named assistant session
  -i, --image PATH    Attach an image file
  --render            Render the answer as markdown (no live playback)

Sessions subcommands:
  list                List saved conversations
  show ID             Print one saved conversation
  export ID [--out F] Export a conversation as markdown
  rename ID NAME      Rename a saved conversation
  pin ID / unpin ID   Pin or unpin a conversation
  delete ID           Delete a conversation
  clear --confirm     Delete all saved conversations

Config subcommands:
  show                Print the active configuration
  path                Print the config file location
  set KEY VALUE       Set a value (default_model, gateway.base_url,
                      typing.turbo, server.port)

Context subcommands:
  show                Print the standing context
  set TEXT            Replace the standing facts
  apply-all on|off    Toggle injection for every assistant
  allow ID            Add an assistant to the allow-list
  clear               Remove the standing facts

Examples:
  plume ask "what does errgroup do?"
  plume ask -a coach "plan my taper week"
  plume ask -i chart.png "what is this graph showing?"
  plume chat --turbo
  plume sessions export mem_1234 --out taper.md

Environment:
  OPENAI_API_KEY, GEMINI_API_KEY, STABILITY_API_KEY override stored keys.
`

// Usage prints the top-level help text.
func Usage() {
	fmt.Print(usageText)
}

// PrintVersion prints version details.
func PrintVersion() {
	fmt.Printf("plume %s (%s, %s, %s/%s)\n",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

// Parse reads os.Args and returns the command plus parsed arguments.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

func parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, args
	}

	first := remaining[0]
	cmd := strings.ToLower(first)
	remaining = remaining[1:]
	args.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, args

	case "ask":
		parseAskArgs(&args, remaining)
		return CmdAsk, args

	case "chat":
		parseAskArgs(&args, remaining)
		return CmdChat, args

	case "serve", "server", "gateway":
		return CmdServe, args

	case "setup":
		return CmdSetup, args

	case "session", "sessions":
		return CmdSessions, args

	case "config":
		return CmdConfig, args

	case "context", "facts":
		return CmdContext, args

	case "version", "-v", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		// Bare text is treated as an ask: `plume "why is the sky blue"`.
		args.Query = strings.Join(append([]string{first}, remaining...), " ")
		return CmdAsk, args
	}
}

// parseGlobalFlags extracts global flags and returns the remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	i := 0
	for i < len(argv) {
		arg := argv[i]

		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "-t", "--turbo":
			args.Turbo = true
		case "--json":
			args.JSON = true
		case "-m", "--model":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		default:
			if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
			} else {
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, args
}

// parseAskArgs parses ask/chat specific flags; everything left over is the
// query text.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-a", "--assistant":
			if i+1 < len(remaining) {
				i++
				args.Assistant = remaining[i]
			}
		case "-i", "--image":
			if i+1 < len(remaining) {
				i++
				args.Image = remaining[i]
			}
		case "--render":
			args.Render = true
		default:
			switch {
			case strings.HasPrefix(arg, "--assistant="):
				args.Assistant = strings.TrimPrefix(arg, "--assistant=")
			case strings.HasPrefix(arg, "--image="):
				args.Image = strings.TrimPrefix(arg, "--image=")
			default:
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}
