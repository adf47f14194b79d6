// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - saved conversation management.
//
// Command: sessions
//
// Examples:
//   plume sessions list
//   plume sessions show mem_1234
//   plume sessions export mem_1234 --out taper.md
//   plume sessions rename mem_1234 Marathon taper
//   plume sessions pin mem_1234
//   plume sessions delete mem_1234
//   plume sessions clear --confirm

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/plumeforge/plume-tui/internal/memory"
	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/util"
)

// RunSessions executes the sessions command.
func RunSessions(args Args) int {
	path, err := memory.DefaultPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("sessions: "+err.Error()))
		return 1
	}
	db, err := memory.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("sessions: "+err.Error()))
		return 1
	}
	defer db.Close()

	p := NewArgParser(args.Raw)
	switch p.Subcommand() {
	case "", "list", "ls":
		return listSessions(db, args.JSON)
	case "show":
		return showSession(db, p.Positional(1))
	case "export":
		return exportSession(db, p.Positional(1), p.Flag("out"))
	case "rename":
		return renameSession(db, p.Positional(1), p.Rest(2))
	case "pin":
		return pinSession(db, p.Positional(1), true)
	case "unpin":
		return pinSession(db, p.Positional(1), false)
	case "delete", "rm":
		return deleteSession(db, p.Positional(1))
	case "clear":
		return clearSessions(db, p.BoolFlag("confirm"))
	default:
		fmt.Fprintln(os.Stderr, WarnStyle.Render("sessions: unknown subcommand "+p.Subcommand()))
		return 2
	}
}

func listSessions(db *memory.SQLiteStore, asJSON bool) int {
	memories, err := db.GetAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("sessions: "+err.Error()))
		return 1
	}

	if asJSON {
		out, _ := json.MarshalIndent(memories, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	if len(memories) == 0 {
		fmt.Println(InfoStyle.Render("no saved conversations"))
		return 0
	}

	fmt.Println(TitleStyle.Render("saved conversations"))
	for _, mem := range memories {
		pin := "  "
		if mem.IsPinned {
			pin = PinStyle.Render("* ")
		}
		name := mem.Name
		if name == "" {
			name = util.TruncateRunes(util.FirstLine(mem.Preview()), 48)
		}
		if name == "" {
			name = "(empty)"
		}
		fmt.Printf("%s%s  %s  %s  %d messages\n",
			pin,
			mem.ID,
			mem.Timestamp.Format("2006-01-02 15:04"),
			name,
			mem.MessageCount())
	}
	return 0
}

func showSession(db *memory.SQLiteStore, id string) int {
	mem, code := fetchSession(db, id)
	if mem == nil {
		return code
	}
	fmt.Print(renderMarkdown(sessionMarkdown(mem)))
	return 0
}

func exportSession(db *memory.SQLiteStore, id, out string) int {
	mem, code := fetchSession(db, id)
	if mem == nil {
		return code
	}

	md := sessionMarkdown(mem)
	if out == "" {
		fmt.Print(md)
		return 0
	}
	if err := util.AtomicWriteFile(out, []byte(md), 0644); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("sessions: "+err.Error()))
		return 1
	}
	fmt.Println(SuccessStyle.Render("exported to " + out))
	return 0
}

func renameSession(db *memory.SQLiteStore, id, name string) int {
	if id == "" || name == "" {
		fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume sessions rename ID NAME"))
		return 2
	}
	if err := db.SetName(id, name); err != nil {
		return sessionErr(err)
	}
	fmt.Println(SuccessStyle.Render("renamed " + id))
	return 0
}

func pinSession(db *memory.SQLiteStore, id string, pinned bool) int {
	if id == "" {
		fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume sessions pin|unpin ID"))
		return 2
	}
	if err := db.SetPinned(id, pinned); err != nil {
		return sessionErr(err)
	}
	if pinned {
		fmt.Println(SuccessStyle.Render("pinned " + id))
	} else {
		fmt.Println(SuccessStyle.Render("unpinned " + id))
	}
	return 0
}

func deleteSession(db *memory.SQLiteStore, id string) int {
	if id == "" {
		fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume sessions delete ID"))
		return 2
	}
	if err := db.Delete(id); err != nil {
		return sessionErr(err)
	}
	fmt.Println(SuccessStyle.Render("deleted " + id))
	return 0
}

func clearSessions(db *memory.SQLiteStore, confirmed bool) int {
	if !confirmed {
		fmt.Fprintln(os.Stderr, WarnStyle.Render("this deletes every saved conversation; rerun with --confirm"))
		return 2
	}
	if err := db.Clear(); err != nil {
		return sessionErr(err)
	}
	fmt.Println(SuccessStyle.Render("all conversations deleted"))
	return 0
}

func fetchSession(db *memory.SQLiteStore, id string) (*model.Memory, int) {
	if id == "" {
		fmt.Fprintln(os.Stderr, WarnStyle.Render("usage: plume sessions show|export ID"))
		return nil, 2
	}
	mem, err := db.Get(id)
	if err != nil {
		return nil, sessionErr(err)
	}
	return mem, 0
}

func sessionErr(err error) int {
	if errors.Is(err, memory.ErrNotFound) {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("sessions: no such conversation"))
		return 2
	}
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("sessions: "+err.Error()))
	return 1
}

// sessionMarkdown renders a saved conversation as a markdown transcript.
func sessionMarkdown(mem *model.Memory) string {
	var b strings.Builder

	title := mem.Name
	if title == "" {
		title = mem.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Session: %s  \nSaved: %s\n\n", mem.SessionID, mem.Timestamp.Format("2006-01-02 15:04"))

	for _, msg := range mem.Messages {
		fmt.Fprintf(&b, "**%s**\n\n%s\n\n", msg.Role.DisplayName(), msg.Content)
	}
	return b.String()
}
