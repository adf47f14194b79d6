// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - one-shot question command.
//
// Command: ask
//
// Examples:
//   plume ask "what does errgroup do?"
//   plume ask -a coach "plan my taper week"
//   plume ask -i chart.png "describe this graph"
//   plume ask --render "compare TOML and YAML"
//
// The answer plays back through the typewriter scheduler as it streams
// from the gateway. With --render the live playback is suppressed and the
// finished answer is rendered as markdown instead.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/glamour"

	"github.com/plumeforge/plume-tui/internal/dispatch"
)

// markdownRenderer is the shared glamour renderer for CLI output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text output.
		markdownRenderer = nil
	}
}

// renderMarkdown renders content as terminal markdown, falling back to the
// raw text when the renderer is unavailable or fails.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	out, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

// RunAsk executes the ask command and returns a process exit code.
func RunAsk(args Args) int {
	if args.Query == "" && args.Image == "" {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("ask: nothing to send (try: plume ask \"question\")"))
		return 2
	}

	rt, err := newChatRuntime(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("ask: "+err.Error()))
		return 1
	}
	defer rt.Close()

	if err := rt.selectSession(args.Assistant); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("ask: "+err.Error()))
		return 2
	}

	in := dispatch.Input{Text: args.Query}
	if args.Image != "" {
		dataURL, err := imageDataURL(args.Image)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("ask: "+err.Error()))
			return 2
		}
		in.ImageDataURL = dataURL
	}

	// Live playback writes each typewriter emission straight to stdout.
	live := !args.Render && !args.JSON
	if live {
		rt.sender.SetOnEmit(func(_, text string) {
			fmt.Print(text)
		})
	}
	if args.Render || args.JSON {
		// No point pacing output nobody is watching.
		rt.sender.SetTurbo(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := rt.sender.Send(ctx, in)
	if live {
		fmt.Println()
	}
	if err != nil {
		if errors.Is(err, dispatch.ErrEmptySend) {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("ask: nothing to send"))
			return 2
		}
		// A partial answer may already be on screen; report the failure
		// and let the suffix on the settled message tell the story.
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("ask: "+err.Error()))
		return 1
	}

	switch {
	case args.JSON:
		out, _ := json.Marshal(map[string]string{"response": res.AIResponse})
		fmt.Println(string(out))
	case args.Render:
		fmt.Print(renderMarkdown(res.AIResponse))
	}
	return 0
}
