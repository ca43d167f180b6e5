package storage

import (
	"os"
	"testing"
	"time"

	"aitester/config"
)

func TestHistoryStoredInDataDir(t *testing.T) {
	dir := t.TempDir()
	hs, err := NewHistoryStorage(dir)
	if err != nil {
		t.Fatalf("NewHistoryStorage: %v", err)
	}
	defer hs.Close()

	if _, err := os.Stat(config.HistoryPath(dir)); err != nil {
		t.Errorf("history database not at %s: %v", config.HistoryPath(dir), err)
	}
}

func TestHistoryRecordAndRecent(t *testing.T) {
	hs, err := NewHistoryStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewHistoryStorage: %v", err)
	}
	defer hs.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, resp := range []string{"one", "two", "three"} {
		g := &Generation{
			BatchID:          "batch-1",
			Document:         "/tmp/notes.md",
			BlockIndex:       1,
			Provider:         "ollama",
			Model:            "llama3",
			Prompt:           "count",
			Response:         resp,
			PromptTokens:     4,
			CompletionTokens: i + 1,
			Duration:         1500 * time.Millisecond,
			CreatedAt:        base.Add(time.Duration(i) * time.Second),
		}
		if err := hs.Record(g); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if g.ID == "" {
			t.Error("Record should assign an id")
		}
	}

	gens, err := hs.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("got %d generations, want 2", len(gens))
	}
	if gens[0].Response != "three" || gens[1].Response != "two" {
		t.Errorf("order = %q, %q", gens[0].Response, gens[1].Response)
	}
	if gens[0].Duration != 1500*time.Millisecond || gens[0].CompletionTokens != 3 || gens[0].BlockIndex != 1 {
		t.Errorf("fields not preserved: %+v", gens[0])
	}
}

func TestHistoryForDocument(t *testing.T) {
	dir := t.TempDir()
	hs, err := NewHistoryStorage(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, doc := range []string{"a.md", "b.md", "a.md"} {
		if err := hs.Record(&Generation{BatchID: "b", Document: doc, Provider: "openai", Model: "m"}); err != nil {
			t.Fatal(err)
		}
	}

	gens, err := hs.ForDocument("a.md", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 2 {
		t.Errorf("got %d generations for a.md, want 2", len(gens))
	}
	hs.Close()

	// Reopening runs the schema migration against an existing database.
	hs, err = NewHistoryStorage(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer hs.Close()
	gens, err = hs.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 3 {
		t.Errorf("got %d generations after reopen, want 3", len(gens))
	}
}
