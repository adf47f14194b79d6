// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"strings"

	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/provider"
	"github.com/plumeforge/plume-tui/internal/util"
)

// ImagePlaceholder marks an image-bearing turn in the formatted history.
// The binary itself travels out-of-band through the dispatch payload.
const ImagePlaceholder = "[Image attached] "

// HistoryOptions controls formatted-history assembly.
type HistoryOptions struct {
	// ExcludeLast drops the most recently appended entry from the
	// processed set, for callers that supply that entry's content
	// themselves.
	ExcludeLast bool

	// ContextMessages is the caller-held message list used in test mode,
	// where the store keeps no history. Required whenever test mode is
	// active; ignored otherwise.
	ContextMessages []model.Message
}

// FormattedHistory produces the ordered provider-ready message list.
//
// System content comes from the test configuration's instructions while test
// mode is active, else from the active assistant session's stored
// instructions. User and assistant turns are included only when non-blank
// after trimming; image-bearing turns gain the textual placeholder prefix.
// Two calls without intervening mutation yield identical output.
func (s *Store) FormattedHistory(opts HistoryOptions) []provider.ChatMessage {
	s.mu.Lock()

	var instructions string
	var source []model.Message

	if s.testMode != nil {
		instructions = s.testMode.Instructions
		source = append(source, opts.ContextMessages...)
	} else {
		session := s.sessionLocked()
		if !session.IsMain() {
			instructions = session.Instructions
		}
		source = s.snapshotLocked()
	}
	s.mu.Unlock()

	if opts.ExcludeLast && len(source) > 0 {
		source = source[:len(source)-1]
	}

	out := make([]provider.ChatMessage, 0, len(source)+1)

	if trimmed := strings.TrimSpace(instructions); trimmed != "" {
		out = append(out, provider.ChatMessage{
			Role:    model.RoleSystem.String(),
			Content: trimmed,
		})
	}

	for _, msg := range source {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(util.NormalizeText(msg.Content))
		if content == "" {
			continue
		}
		if msg.ImagePreviewURL != "" {
			content = ImagePlaceholder + content
		}
		out = append(out, provider.ChatMessage{
			Role:    msg.Role.String(),
			Content: content,
		})
	}

	return out
}
