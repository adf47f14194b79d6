// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/provider"
	"github.com/plumeforge/plume-tui/internal/util"
)

// Titler is the gateway surface the namer needs.
type Titler interface {
	GenerateTitle(ctx context.Context, req *provider.TitleRequest) (*provider.TitleResponse, error)
}

// Namer assigns display titles to unnamed memory records in the background.
type Namer struct {
	store  *SQLiteStore
	titler Titler

	// Interval between sweeps of the unnamed set.
	Interval time.Duration
}

// NewNamer creates a namer over a store and a title source.
func NewNamer(store *SQLiteStore, titler Titler) *Namer {
	return &Namer{store: store, titler: titler, Interval: 30 * time.Second}
}

// Run sweeps for unnamed records until ctx is cancelled. Failures are logged
// and retried on the next sweep; titling is a nicety, never a blocker.
func (n *Namer) Run(ctx context.Context) {
	ticker := time.NewTicker(n.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sweep(ctx)
		}
	}
}

func (n *Namer) sweep(ctx context.Context) {
	pending, err := n.store.Unnamed()
	if err != nil {
		log.Printf("NAMER: list unnamed failed: %v", err)
		return
	}
	for _, mem := range pending {
		if err := n.NameOne(ctx, mem); err != nil {
			log.Printf("NAMER: title for %s failed: %v", mem.ID, err)
		}
	}
}

// NameOne titles a single record. The gateway result is preferred; when it
// is unusable the first user turn becomes a truncated fallback title.
func (n *Namer) NameOne(ctx context.Context, mem *model.Memory) error {
	req := &provider.TitleRequest{MemoryID: mem.ID}
	for _, msg := range mem.Messages {
		req.Messages = append(req.Messages, provider.ChatMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}

	title := ""
	if resp, err := n.titler.GenerateTitle(ctx, req); err == nil && resp.Error == "" {
		title = strings.TrimSpace(resp.Title)
	}
	if title == "" {
		title = fallbackTitle(mem.Messages)
	}
	if title == "" {
		// Nothing to derive a name from yet; leave it for a later sweep.
		return nil
	}
	return n.store.SetName(mem.ID, title)
}

func fallbackTitle(messages []model.Message) string {
	for _, msg := range messages {
		if msg.Role != model.RoleUser {
			continue
		}
		line := strings.TrimSpace(util.FirstLine(msg.Content))
		if line != "" {
			return util.TruncateRunes(line, 48)
		}
	}
	return ""
}
