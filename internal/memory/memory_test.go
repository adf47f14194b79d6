// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/provider"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memories.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMessages() []model.Message {
	return []model.Message{
		{ID: "m1", Role: model.RoleUser, Content: "hello", Timestamp: time.Now()},
		{ID: "m2", Role: model.RoleAssistant, Content: "hi!", Timestamp: time.Now()},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	mem := model.NewMemory("main", sampleMessages())
	mem.Name = "Greetings"
	if err := s.Put(mem); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(mem.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "main" || got.Name != "Greetings" || len(got.Messages) != 2 {
		t.Fatalf("got = %+v", got)
	}
	if got.Messages[1].Role != model.RoleAssistant || got.Messages[1].Content != "hi!" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("mem_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetAllOrdersPinnedFirst(t *testing.T) {
	s := openTestStore(t)

	old := model.NewMemory("main", sampleMessages())
	old.Timestamp = time.Now().Add(-time.Hour)
	recent := model.NewMemory("main", sampleMessages())
	pinned := model.NewMemory("coach", sampleMessages())
	pinned.Timestamp = time.Now().Add(-2 * time.Hour)
	pinned.IsPinned = true

	for _, m := range []*model.Memory{old, recent, pinned} {
		if err := s.Put(m); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("count = %d", len(all))
	}
	if all[0].ID != pinned.ID {
		t.Errorf("first = %s, want pinned %s", all[0].ID, pinned.ID)
	}
	if all[1].ID != recent.ID {
		t.Errorf("second = %s, want most recent %s", all[1].ID, recent.ID)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := openTestStore(t)

	mem := model.NewMemory("main", sampleMessages())
	if err := s.Put(mem); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(mem.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(mem.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}

	if err := s.Put(model.NewMemory("main", sampleMessages())); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("records after clear = %d", len(all))
	}
}

func TestSetPinned(t *testing.T) {
	s := openTestStore(t)

	mem := model.NewMemory("main", sampleMessages())
	if err := s.Put(mem); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPinned(mem.ID, true); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(mem.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsPinned {
		t.Error("record not pinned")
	}
	if err := s.SetPinned("mem_missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("pin missing err = %v", err)
	}
}

func TestSaveSessionRollsOneRecord(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSession("coach", sampleMessages()); err != nil {
		t.Fatal(err)
	}
	longer := append(sampleMessages(), model.Message{
		ID: "m3", Role: model.RoleUser, Content: "more", Timestamp: time.Now(),
	})
	if err := s.SaveSession("coach", longer); err != nil {
		t.Fatal(err)
	}

	all, err := s.FindBySession("coach")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("records = %d, want 1 rolling record", len(all))
	}
	if len(all[0].Messages) != 3 {
		t.Errorf("snapshot size = %d, want 3", len(all[0].Messages))
	}

	mem, ok, err := s.LatestForSession("coach")
	if err != nil || !ok {
		t.Fatalf("LatestForSession = %v, %v", ok, err)
	}
	if len(mem.Messages) != 3 {
		t.Errorf("latest snapshot size = %d", len(mem.Messages))
	}

	if _, ok, err := s.LatestForSession("nobody"); err != nil || ok {
		t.Errorf("missing session = %v, %v", ok, err)
	}
}

// fakeTitler serves canned titles.
type fakeTitler struct {
	title string
	err   error
}

func (f *fakeTitler) GenerateTitle(ctx context.Context, req *provider.TitleRequest) (*provider.TitleResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.TitleResponse{Title: f.title, MemoryID: req.MemoryID}, nil
}

func TestNamerUsesGatewayTitle(t *testing.T) {
	s := openTestStore(t)
	mem := model.NewMemory("main", sampleMessages())
	if err := s.Put(mem); err != nil {
		t.Fatal(err)
	}

	n := NewNamer(s, &fakeTitler{title: "Friendly Hellos"})
	if err := n.NameOne(context.Background(), mem); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(mem.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Friendly Hellos" {
		t.Errorf("name = %q", got.Name)
	}

	unnamed, err := s.Unnamed()
	if err != nil {
		t.Fatal(err)
	}
	if len(unnamed) != 0 {
		t.Errorf("unnamed after titling = %d", len(unnamed))
	}
}

func TestNamerFallsBackToFirstUserLine(t *testing.T) {
	s := openTestStore(t)
	mem := model.NewMemory("main", []model.Message{
		{ID: "m1", Role: model.RoleUser, Content: "Plan my marathon taper\nweek by week", Timestamp: time.Now()},
	})
	if err := s.Put(mem); err != nil {
		t.Fatal(err)
	}

	n := NewNamer(s, &fakeTitler{err: errors.New("gateway down")})
	if err := n.NameOne(context.Background(), mem); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(mem.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Plan my marathon taper" {
		t.Errorf("fallback name = %q", got.Name)
	}
}
