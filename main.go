// plume - a conversational AI companion for the terminal.
//
// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/plumeforge/plume-tui/internal/cli"
	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/dispatch"
	"github.com/plumeforge/plume-tui/internal/memory"
	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/provider"
	"github.com/plumeforge/plume-tui/internal/store"
	"github.com/plumeforge/plume-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		os.Exit(runTUI(args))
	case cli.CmdAsk:
		os.Exit(cli.RunAsk(args))
	case cli.CmdChat:
		os.Exit(cli.RunChat(args))
	case cli.CmdServe:
		os.Exit(cli.RunServe(args))
	case cli.CmdSetup:
		os.Exit(cli.RunSetup(args))
	case cli.CmdSessions:
		os.Exit(cli.RunSessions(args))
	case cli.CmdConfig:
		os.Exit(cli.RunConfig(args))
	case cli.CmdContext:
		os.Exit(cli.RunContext(args))
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.Usage()
	}
}

// runTUI wires the store, sender, and memory layer together and runs the
// Bubble Tea program.
func runTUI(args cli.Args) int {
	// The TUI owns the terminal; route library logging to a file.
	if dir, err := config.ConfigDir(); err == nil {
		logPath := filepath.Join(dir, "plume.log")
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			log.SetOutput(f)
			defer f.Close()
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "plume: %v\n", err)
		return 1
	}
	if args.Model != "" {
		cfg.DefaultModel = args.Model
	}

	// Memory database; a failure degrades to an unpersisted session.
	var memories *memory.SQLiteStore
	if path, err := memory.DefaultPath(); err == nil {
		if db, err := memory.Open(path); err == nil {
			memories = db
			defer memories.Close()
		} else {
			log.Printf("MAIN: memory database unavailable: %v", err)
		}
	}

	var persistence store.Persistence
	if memories != nil {
		persistence = memories
	}

	st := store.New(cfg, persistence)
	if memories != nil {
		st.SetOnFinalized(func(sessionID string, messages []model.Message) {
			if err := memories.SaveSession(sessionID, messages); err != nil {
				log.Printf("MAIN: save session %s: %v", sessionID, err)
			}
		})
	}
	client := provider.NewClientWithConfig(&provider.ClientConfig{
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: cfg.GatewayTimeout(),
	})
	sender := dispatch.New(cfg, st, client)
	sender.SetTurbo(args.Turbo || cfg.Typing.Turbo)

	app := chat.New(cfg, st, sender)

	// Live config reload keeps the running session in sync with edits to
	// the config file.
	if path, err := config.ConfigPath(); err == nil {
		watcher, err := config.NewWatcher(path, func(next *config.Config) {
			st.SetConfig(next)
			sender.SetConfig(next)
			app.SetConfig(next)
		})
		if err == nil {
			if err := watcher.Watch(); err != nil {
				log.Printf("MAIN: config watcher: %v", err)
			}
			defer watcher.Close()
		}
	}

	// Background titling for unnamed saved conversations.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if memories != nil {
		namer := memory.NewNamer(memories, client)
		go namer.Run(ctx)
	}

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "plume: %v\n", err)
		return 1
	}
	return 0
}
