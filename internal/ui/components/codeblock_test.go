// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
)

func TestParseCodeBlocksLeavesProseAlone(t *testing.T) {
	in := "first line\nsecond line"
	if got := ParseCodeBlocks(in, 80); got != in {
		t.Errorf("prose should pass through unchanged, got:\n%s", got)
	}
}

func TestParseCodeBlocksRendersFence(t *testing.T) {
	in := "before\n```go\nfmt.Println(\"hi\")\n```\nafter"
	out := ParseCodeBlocks(in, 80)

	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Errorf("surrounding prose missing:\n%s", out)
	}
	if !strings.Contains(out, "Println") {
		t.Errorf("code content missing:\n%s", out)
	}
	if strings.Contains(out, "```") {
		t.Errorf("fence markers should be consumed:\n%s", out)
	}
}

func TestParseCodeBlocksUnclosedFence(t *testing.T) {
	in := "```python\nprint(1)"
	out := ParseCodeBlocks(in, 80)
	if !strings.Contains(out, "print") {
		t.Errorf("mid-stream fence should still render:\n%s", out)
	}
}

func TestHighlightFallsBackToPlainText(t *testing.T) {
	code := "not really code at all"
	out := Highlight(code, "nosuchlanguage")
	if out == "" {
		t.Error("highlight should never return empty output")
	}
}
