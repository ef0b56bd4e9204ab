package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testWorkspace(id string) Workspace {
	now := time.Now().UTC().Truncate(time.Second)
	return Workspace{
		ID:          id,
		Name:        "Test Workspace",
		Description: "for tests",
		Components:  `{"nodes":[],"edges":[]}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestWorkspaceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	w := testWorkspace("ws1")
	if err := s.SaveWorkspace(w); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}

	got, err := s.GetWorkspace("ws1")
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Name != w.Name || got.Components != w.Components {
		t.Errorf("got %+v, want %+v", got, w)
	}
}

func TestGetWorkspace_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetWorkspace("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateWorkspace(t *testing.T) {
	s := openTestStore(t)
	w := testWorkspace("ws1")
	if err := s.SaveWorkspace(w); err != nil {
		t.Fatal(err)
	}

	w.Name = "Renamed"
	w.Components = `{"nodes":[{"id":"n1","type":"output"}],"edges":[]}`
	if err := s.UpdateWorkspace(w); err != nil {
		t.Fatalf("UpdateWorkspace: %v", err)
	}

	got, _ := s.GetWorkspace("ws1")
	if got.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", got.Name)
	}
	if got.Components != w.Components {
		t.Errorf("components not updated: %s", got.Components)
	}

	if err := s.UpdateWorkspace(testWorkspace("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating missing workspace: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteWorkspace_CascadesRows(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveWorkspace(testWorkspace("ws1")); err != nil {
		t.Fatal(err)
	}
	doc := Document{ID: "d1", WorkspaceID: "ws1", Filename: "report.pdf", CreatedAt: time.Now()}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatal(err)
	}
	conv := Conversation{ID: "c1", WorkspaceID: "ws1", Query: "q", Response: "r", CreatedAt: time.Now()}
	if err := s.SaveConversation(conv); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteWorkspace("ws1"); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}

	if _, err := s.GetWorkspace("ws1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("workspace still present after delete")
	}
	docs, _ := s.ListDocuments("ws1")
	if len(docs) != 0 {
		t.Errorf("documents remain after workspace delete: %d", len(docs))
	}
	convs, _ := s.ListConversations("ws1", 10)
	if len(convs) != 0 {
		t.Errorf("conversations remain after workspace delete: %d", len(convs))
	}
}

func TestListDocumentNames(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()
	for i, name := range []string{"first.pdf", "second.txt"} {
		doc := Document{
			ID:          name,
			WorkspaceID: "ws1",
			Filename:    name,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveDocument(doc); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveDocument(Document{ID: "other", WorkspaceID: "ws2", Filename: "other.pdf", CreatedAt: base}); err != nil {
		t.Fatal(err)
	}

	names, err := s.ListDocumentNames(context.Background(), "ws1")
	if err != nil {
		t.Fatalf("ListDocumentNames: %v", err)
	}
	if len(names) != 2 || names[0] != "first.pdf" || names[1] != "second.txt" {
		t.Errorf("names = %v, want [first.pdf second.txt]", names)
	}
}

func TestClearDocuments(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	s.SaveDocument(Document{ID: "d1", WorkspaceID: "ws1", Filename: "a.pdf", CreatedAt: now})
	s.SaveDocument(Document{ID: "d2", WorkspaceID: "ws1", Filename: "b.pdf", CreatedAt: now})
	s.SaveDocument(Document{ID: "d3", WorkspaceID: "ws2", Filename: "c.pdf", CreatedAt: now})

	n, err := s.ClearDocuments("ws1")
	if err != nil {
		t.Fatalf("ClearDocuments: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d documents, want 2", n)
	}

	remaining, _ := s.ListDocuments("ws2")
	if len(remaining) != 1 {
		t.Errorf("ws2 documents affected by ws1 clear")
	}
}

func TestConversations_OrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		c := Conversation{
			ID:          string(rune('a' + i)),
			WorkspaceID: "ws1",
			Query:       "q",
			Response:    "r",
			Provider:    "openai",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveConversation(c); err != nil {
			t.Fatal(err)
		}
	}

	convs, err := s.ListConversations("ws1", 3)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("got %d conversations, want 3", len(convs))
	}
	if convs[0].ID != "e" {
		t.Errorf("newest first: got %s, want e", convs[0].ID)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := openTestStore(t)
	// Running migrate again must be a no-op.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
