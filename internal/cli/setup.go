// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - first-run wizard.
//
// Command: setup
//
// Collects provider API keys without echoing them, encrypts each through
// the keychain, and writes the result into the config file. Keys left
// blank are skipped; existing keys are kept unless replaced.

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/secret"
)

// RunSetup executes the setup command.
func RunSetup(args Args) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("setup: "+err.Error()))
		return 1
	}

	keychain, err := secret.OpenDefault()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("setup: keychain: "+err.Error()))
		return 1
	}

	fmt.Println(TitleStyle.Render("plume setup"))
	fmt.Println(InfoStyle.Render("Keys are encrypted at rest; press Enter to skip a provider."))
	fmt.Println()

	prompts := []struct {
		label string
		slot  *string
	}{
		{"OpenAI API key", &cfg.Server.OpenAIKey},
		{"Gemini API key", &cfg.Server.GeminiKey},
		{"Stability API key", &cfg.Server.StabilityKey},
	}

	for _, p := range prompts {
		current := ""
		if *p.slot != "" {
			current = " [configured]"
		}
		key, err := readSecret(p.label + current + ": ")
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("setup: "+err.Error()))
			return 1
		}
		if key == "" {
			continue
		}
		enc, err := keychain.EncryptString(key)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("setup: encrypt: "+err.Error()))
			return 1
		}
		*p.slot = enc
	}

	model, err := readLine(fmt.Sprintf("Default model [%s]: ", cfg.DefaultModel))
	if err == nil && model != "" {
		cfg.DefaultModel = model
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("setup: save: "+err.Error()))
		return 1
	}

	path, _ := config.ConfigPath()
	fmt.Println()
	fmt.Println(SuccessStyle.Render("Configuration written to " + path))
	fmt.Println(InfoStyle.Render("Run `plume serve` to start the gateway, then `plume` for the TUI."))
	return 0
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return readRaw()
}

// readLine reads a plain line of input.
func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	return readRaw()
}

func readRaw() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
