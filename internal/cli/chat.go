// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - interactive chat REPL.
//
// Command: chat
//
// Examples:
//   plume chat                     Chat in the main session
//   plume chat -a coach            Chat with a configured assistant
//   plume chat --turbo             Fast typewriter playback
//
// Interactive commands:
//   /help, /h           Show available commands
//   /clear              Clear the visible conversation
//   /session [ID]       Show or switch the active session
//   /assistants         List configured assistants
//   /test TEXT          Enter test mode with draft instructions
//   /endtest            Leave test mode
//   /turbo              Toggle fast playback
//   /image PATH TEXT    Send an image with optional text
//   /quit, /q           Exit (also Ctrl+D)

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/dispatch"
	"github.com/plumeforge/plume-tui/internal/model"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the REPL.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history stored under the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	var historyFile string
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}

	cli := &ChatCLI{line: line, historyFile: historyFile}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads one line with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with restrictive permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// RunChat executes the interactive chat command.
func RunChat(args Args) int {
	rt, err := newChatRuntime(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("chat: "+err.Error()))
		return 1
	}
	defer rt.Close()

	if err := rt.selectSession(args.Assistant); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("chat: "+err.Error()))
		return 2
	}

	rt.sender.SetOnEmit(func(_, text string) {
		fmt.Print(text)
	})

	input := NewChatCLI()
	defer input.Close()

	turbo := args.Turbo || rt.cfg.Typing.Turbo

	if !args.Quiet {
		fmt.Println(TitleStyle.Render("plume chat"))
		fmt.Println(InfoStyle.Render(fmt.Sprintf("session: %s  model: %s  (/help for commands)",
			rt.store.ActiveSessionID(), rt.cfg.DefaultModel)))
		fmt.Println()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		line, err := input.ReadInput(PromptStyle.Render("you> "))
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Println(InfoStyle.Render("(aborted; /quit to exit)"))
				continue
			}
			// Ctrl+D or closed stdin.
			fmt.Println()
			return 0
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runChatCommand(rt, line, &turbo); quit {
				return 0
			}
			continue
		}

		sendAndPrint(ctx, rt, dispatch.Input{Text: line})
		if ctx.Err() != nil {
			return 0
		}
	}
}

// sendAndPrint runs one turn and prints failures the settled message
// suffix does not already cover.
func sendAndPrint(ctx context.Context, rt *chatRuntime, in dispatch.Input) {
	_, err := rt.sender.Send(ctx, in)
	fmt.Println()
	if err == nil {
		fmt.Println()
		return
	}
	switch {
	case errors.Is(err, dispatch.ErrSendInFlight):
		fmt.Println(WarnStyle.Render("a send is still in flight"))
	case errors.Is(err, dispatch.ErrEmptySend):
		// Blank line, nothing to do.
	default:
		fmt.Println(ErrorStyle.Render(err.Error()))
	}
	fmt.Println()
}

// runChatCommand handles slash commands; it reports whether to exit.
func runChatCommand(rt *chatRuntime, line string, turbo *bool) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch cmd {
	case "/quit", "/q", "/exit":
		return true

	case "/help", "/h":
		fmt.Println(InfoStyle.Render(`/clear            clear the conversation
/session [ID]     show or switch session ("main" or an assistant ID)
/assistants       list configured assistants
/test TEXT        enter test mode with draft instructions
/endtest          leave test mode
/turbo            toggle fast playback
/image PATH TEXT  send an image
/quit             exit`))

	case "/clear":
		rt.store.Clear()
		fmt.Println(SuccessStyle.Render("conversation cleared"))

	case "/session":
		if rest == "" {
			fmt.Println(InfoStyle.Render("session: " + rt.store.ActiveSessionID()))
			break
		}
		if rest == model.MainSessionID {
			rt.store.SetActiveSession(model.MainSessionID)
			fmt.Println(SuccessStyle.Render("switched to main"))
			break
		}
		if err := rt.selectSession(rest); err != nil {
			fmt.Println(ErrorStyle.Render(err.Error()))
			break
		}
		fmt.Println(SuccessStyle.Render("switched to " + rest))

	case "/assistants":
		ids := make([]string, 0, len(rt.cfg.Assistants))
		for id := range rt.cfg.Assistants {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) == 0 {
			fmt.Println(InfoStyle.Render("no assistants configured"))
		}
		for _, id := range ids {
			a := rt.cfg.Assistants[id]
			fmt.Printf("%s %s\n", LabelStyle.Render(id), a.Name)
		}

	case "/test":
		if rest == "" {
			fmt.Println(WarnStyle.Render("usage: /test INSTRUCTIONS"))
			break
		}
		rt.store.EnterTestMode(model.TestConfig{Instructions: rest})
		fmt.Println(SuccessStyle.Render("test mode on (messages are not saved)"))

	case "/endtest":
		rt.store.ExitTestMode()
		fmt.Println(SuccessStyle.Render("test mode off"))

	case "/turbo":
		*turbo = !*turbo
		rt.sender.SetTurbo(*turbo)
		if *turbo {
			fmt.Println(SuccessStyle.Render("turbo on"))
		} else {
			fmt.Println(SuccessStyle.Render("turbo off"))
		}

	case "/image":
		args := strings.SplitN(rest, " ", 2)
		if len(args) == 0 || args[0] == "" {
			fmt.Println(WarnStyle.Render("usage: /image PATH [TEXT]"))
			break
		}
		dataURL, err := imageDataURL(args[0])
		if err != nil {
			fmt.Println(ErrorStyle.Render(err.Error()))
			break
		}
		in := dispatch.Input{ImageDataURL: dataURL}
		if len(args) == 2 {
			in.Text = args[1]
		}
		sendAndPrint(context.Background(), rt, in)

	default:
		fmt.Println(WarnStyle.Render("unknown command " + cmd + " (/help for commands)"))
	}
	return false
}
