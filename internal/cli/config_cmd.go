// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - configuration and standing-context commands.
//
// Commands: config, context
//
// Examples:
//   plume config show
//   plume config set default_model gpt-4o
//   plume config set typing.turbo true
//   plume context set "I run trails and prefer metric units"
//   plume context apply-all on

package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/secret"
)

// RunConfig executes the config command.
func RunConfig(args Args) int {
	p := NewArgParser(args.Raw)

	switch p.Subcommand() {
	case "", "show":
		return showConfig()
	case "path":
		path, err := config.ConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: "+err.Error()))
			return 1
		}
		fmt.Println(path)
		return 0
	case "set":
		return setConfig(p.Positional(1), p.Rest(2))
	default:
		fmt.Fprintln(os.Stderr, WarnStyle.Render("config: unknown subcommand "+p.Subcommand()))
		return 2
	}
}

func showConfig() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: "+err.Error()))
		return 1
	}

	fmt.Println(TitleStyle.Render("plume configuration"))
	fmt.Printf("%s %s\n", LabelStyle.Render("default model"), cfg.DefaultModel)
	fmt.Printf("%s %s\n", LabelStyle.Render("gateway"), cfg.Gateway.BaseURL)
	fmt.Printf("%s %d\n", LabelStyle.Render("server port"), cfg.Server.Port)
	fmt.Printf("%s %v (divisor %d)\n", LabelStyle.Render("turbo"), cfg.Typing.Turbo, cfg.Typing.TurboDivisor)

	fmt.Printf("%s %s\n", LabelStyle.Render("openai key"), keyStatus(cfg.Server.OpenAIKey, "OPENAI_API_KEY"))
	fmt.Printf("%s %s\n", LabelStyle.Render("gemini key"), keyStatus(cfg.Server.GeminiKey, "GEMINI_API_KEY"))
	fmt.Printf("%s %s\n", LabelStyle.Render("stability key"), keyStatus(cfg.Server.StabilityKey, "STABILITY_API_KEY"))

	if len(cfg.Assistants) > 0 {
		fmt.Println()
		fmt.Println(InfoStyle.Render("assistants:"))
		ids := make([]string, 0, len(cfg.Assistants))
		for id := range cfg.Assistants {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			a := cfg.Assistants[id]
			model := a.Model
			if model == "" {
				model = cfg.DefaultModel + " (default)"
			}
			fmt.Printf("%s %s  %s\n", LabelStyle.Render(id), a.Name, InfoStyle.Render(model))
		}
	}
	return 0
}

// keyStatus describes where a provider key comes from without printing it.
func keyStatus(stored, envVar string) string {
	if os.Getenv(envVar) != "" {
		return "set via " + envVar
	}
	if stored == "" {
		return "not configured"
	}
	if secret.IsEncrypted(stored) {
		return "configured (encrypted)"
	}
	return "configured (plaintext)"
}

func setConfig(key, value string) int {
	if key == "" || value == "" {
		fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume config set KEY VALUE"))
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: "+err.Error()))
		return 1
	}

	switch strings.ToLower(key) {
	case "default_model", "model":
		cfg.DefaultModel = value
	case "gateway.base_url":
		cfg.Gateway.BaseURL = value
	case "gateway.timeout_secs":
		n, err := strconv.Atoi(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: timeout_secs must be an integer"))
			return 2
		}
		cfg.Gateway.TimeoutSecs = n
	case "server.port":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 65535 {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: port must be 1-65535"))
			return 2
		}
		cfg.Server.Port = n
	case "typing.turbo":
		on, err := strconv.ParseBool(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: typing.turbo must be true or false"))
			return 2
		}
		cfg.Typing.Turbo = on
	default:
		fmt.Fprintln(os.Stderr, WarnStyle.Render("config: unknown key "+key))
		return 2
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: "+err.Error()))
		return 2
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("config: save: "+err.Error()))
		return 1
	}
	fmt.Println(SuccessStyle.Render(key + " updated"))
	return 0
}

// RunContext executes the context command.
func RunContext(args Args) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("context: "+err.Error()))
		return 1
	}

	p := NewArgParser(args.Raw)
	switch p.Subcommand() {
	case "", "show":
		if cfg.Context.Facts == "" {
			fmt.Println(InfoStyle.Render("no standing context set"))
			return 0
		}
		fmt.Println(TitleStyle.Render("standing context"))
		fmt.Println(cfg.Context.Facts)
		fmt.Println()
		if cfg.Context.ApplyToAll {
			fmt.Println(InfoStyle.Render("applies to: all assistants"))
		} else if len(cfg.Context.Assistants) > 0 {
			fmt.Println(InfoStyle.Render("applies to: " + strings.Join(cfg.Context.Assistants, ", ")))
		} else {
			fmt.Println(InfoStyle.Render("applies to: nobody (allow-list empty)"))
		}
		return 0

	case "set":
		facts := p.Rest(1)
		if facts == "" {
			fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume context set TEXT"))
			return 2
		}
		cfg.Context.Facts = facts

	case "clear":
		cfg.Context.Facts = ""

	case "apply-all":
		switch p.Positional(1) {
		case "on", "true":
			cfg.Context.ApplyToAll = true
		case "off", "false":
			cfg.Context.ApplyToAll = false
		default:
			fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume context apply-all on|off"))
			return 2
		}

	case "allow":
		id := p.Positional(1)
		if id == "" {
			fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume context allow ASSISTANT"))
			return 2
		}
		if _, ok := cfg.Assistant(id); !ok {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("context: unknown assistant "+id))
			return 2
		}
		for _, existing := range cfg.Context.Assistants {
			if existing == id {
				fmt.Println(InfoStyle.Render(id + " already allowed"))
				return 0
			}
		}
		cfg.Context.Assistants = append(cfg.Context.Assistants, id)

	default:
		fmt.Fprintln(os.Stderr, WarnStyle.Render("context: unknown subcommand "+p.Subcommand()))
		return 2
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("context: save: "+err.Error()))
		return 1
	}
	fmt.Println(SuccessStyle.Render("context updated"))
	return 0
}
