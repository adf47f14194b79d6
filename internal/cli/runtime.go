// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - shared wiring for the ask and chat commands.

package cli

import (
	"fmt"
	"log"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/dispatch"
	"github.com/plumeforge/plume-tui/internal/memory"
	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/provider"
	"github.com/plumeforge/plume-tui/internal/store"
	"github.com/plumeforge/plume-tui/internal/util"
)

// chatRuntime bundles the pieces a conversational command needs.
type chatRuntime struct {
	cfg      *config.Config
	store    *store.Store
	sender   *dispatch.Sender
	memories *memory.SQLiteStore // nil when the database could not open
}

// newChatRuntime loads configuration, opens the memory database, and wires
// a store and sender against the gateway. A broken memory database degrades
// to an unpersisted session rather than failing the command.
func newChatRuntime(args Args) (*chatRuntime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if args.Model != "" {
		cfg.DefaultModel = args.Model
	}

	var memories *memory.SQLiteStore
	if path, err := memory.DefaultPath(); err == nil {
		if db, err := memory.Open(path); err == nil {
			memories = db
		} else {
			log.Printf("CLI: memory database unavailable: %v", err)
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
				log.Printf("CLI: save session %s: %v", sessionID, err)
			}
		})
	}
	client := provider.NewClientWithConfig(&provider.ClientConfig{
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: cfg.GatewayTimeout(),
	})
	sender := dispatch.New(cfg, st, client)
	sender.SetTurbo(args.Turbo || cfg.Typing.Turbo)

	return &chatRuntime{cfg: cfg, store: st, sender: sender, memories: memories}, nil
}

// Close releases the memory database.
func (r *chatRuntime) Close() {
	if r.memories != nil {
		if err := r.memories.Close(); err != nil {
			log.Printf("CLI: close memory database: %v", err)
		}
	}
}

// selectSession switches the store to the requested assistant, validating
// the ID against the configuration.
func (r *chatRuntime) selectSession(assistantID string) error {
	if assistantID == "" {
		return nil
	}
	if _, ok := r.cfg.Assistant(assistantID); !ok {
		return fmt.Errorf("unknown assistant %q", assistantID)
	}
	r.store.SetActiveSession(assistantID)
	return nil
}

// imageDataURL reads an image file and encodes it as a data URL for
// dispatch.
func imageDataURL(path string) (string, error) {
	return util.ImageDataURL(path)
}
