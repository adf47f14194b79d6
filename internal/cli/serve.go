// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - gateway server command.
//
// Command: serve
//
// Runs the provider gateway on 127.0.0.1 and blocks until SIGINT or
// SIGTERM, then drains in-flight requests before exiting. Keys written by
// `plume setup` are decrypted through the keychain before the server sees
// them; environment variables still take precedence inside the server.

package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/secret"
	"github.com/plumeforge/plume-tui/internal/server"
)

// shutdownGrace bounds how long a draining server may hold the process.
const shutdownGrace = 10 * time.Second

// RunServe executes the serve command.
func RunServe(args Args) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("serve: "+err.Error()))
		return 1
	}

	if err := decryptServerKeys(&cfg.Server); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("serve: "+err.Error()))
		return 1
	}

	srv := server.New(&cfg.Server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if !args.Quiet {
		fmt.Println(SuccessStyle.Render(fmt.Sprintf("plume gateway listening on 127.0.0.1:%d", cfg.Server.Port)))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("serve: "+err.Error()))
			return 1
		}
		return 0
	case sig := <-sigCh:
		log.Printf("SERVE: received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("serve: shutdown: "+err.Error()))
		return 1
	}
	return 0
}

// decryptServerKeys unwraps ENC:-stored API keys in place. A missing
// keychain only matters when an encrypted key is actually present.
func decryptServerKeys(sc *config.ServerConfig) error {
	slots := []*string{&sc.OpenAIKey, &sc.GeminiKey, &sc.StabilityKey}

	any := false
	for _, s := range slots {
		if secret.IsEncrypted(*s) {
			any = true
		}
	}
	if !any {
		return nil
	}

	keychain, err := secret.OpenDefault()
	if err != nil {
		return fmt.Errorf("keychain: %w", err)
	}
	for _, s := range slots {
		plain, err := keychain.DecryptString(*s)
		if err != nil {
			return fmt.Errorf("decrypt stored key: %w", err)
		}
		*s = plain
	}
	return nil
}
