package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aitester/block"
)

const sample = "# Notes\n" +
	"\n" +
	"```ai-tester\n" +
	"---\n" +
	"temperature: 1.2\n" +
	"---\n" +
	"First prompt\n" +
	"```\n" +
	"\n" +
	"````markdown\n" +
	"```ai-tester\n" +
	"not a block\n" +
	"```\n" +
	"````\n" +
	"\n" +
	"```go\n" +
	"fmt.Println(1)\n" +
	"```\n" +
	"\n" +
	"~~~ai-tester\n" +
	"Second prompt\n" +
	"~~~\n"

func TestBlocks(t *testing.T) {
	doc := Parse(sample, "")
	blocks := doc.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2: %+v", len(blocks), blocks)
	}

	first := blocks[0]
	if first.Index != 0 || first.LineStart != 2 || first.LineEnd != 7 {
		t.Errorf("first block = %+v", first)
	}
	s := first.Settings()
	if s.Prompt != "First prompt" || s.Config.Temperature != 1.2 {
		t.Errorf("first settings = %+v", s)
	}

	second := blocks[1]
	if second.Index != 1 || second.Source != "Second prompt" {
		t.Errorf("second block = %+v", second)
	}
}

func TestBlocksCustomLanguage(t *testing.T) {
	doc := Parse("```prompt\nhi\n```\n```ai-tester\nno\n```\n", "prompt")
	blocks := doc.Blocks()
	if len(blocks) != 1 || blocks[0].Source != "hi" {
		t.Errorf("blocks = %+v", blocks)
	}
}

func TestUnclosedBlockIgnored(t *testing.T) {
	doc := Parse("text\n```ai-tester\nnever closed\n", "")
	if blocks := doc.Blocks(); len(blocks) != 0 {
		t.Errorf("blocks = %+v, want none", blocks)
	}
}

func TestBlockOutOfRange(t *testing.T) {
	doc := Parse(sample, "")
	if _, err := doc.Block(5); err == nil {
		t.Error("expected error for missing block")
	}
}

func TestUpdateBlock(t *testing.T) {
	doc := Parse(sample, "")

	cfg := block.DefaultConfig()
	cfg.NumResponses = 3
	if err := doc.UpdateBlock(1, block.Settings{Config: cfg, Prompt: "Second prompt, edited"}); err != nil {
		t.Fatal(err)
	}
	if err := doc.UpdateBlock(0, block.Settings{Config: block.DefaultConfig(), Prompt: "First prompt"}); err != nil {
		t.Fatal(err)
	}

	want := strings.Replace(sample,
		"---\ntemperature: 1.2\n---\nFirst prompt\n",
		"First prompt\n", 1)
	want = strings.Replace(want,
		"~~~ai-tester\nSecond prompt\n~~~\n",
		"~~~ai-tester\n---\nnum_responses: 3\n---\nSecond prompt, edited\n~~~\n", 1)
	if got := doc.String(); got != want {
		t.Errorf("document =\n%s\nwant\n%s", got, want)
	}

	blocks := doc.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks after update", len(blocks))
	}
	if s := blocks[1].Settings(); s.Config.NumResponses != 3 || s.Prompt != "Second prompt, edited" {
		t.Errorf("re-parsed settings = %+v", s)
	}
}

func TestReplaceInvalidRange(t *testing.T) {
	doc := Parse("a\nb\n", "")
	tests := []struct{ start, end int }{{-1, 1}, {1, 1}, {0, 9}}
	for _, tt := range tests {
		if err := doc.Replace(tt.start, tt.end, "x"); err == nil {
			t.Errorf("Replace(%d, %d) should fail", tt.start, tt.end)
		}
	}
}

func TestCRLFPreserved(t *testing.T) {
	doc := Parse("```ai-tester\r\nold\r\n```\r\n", "")
	if err := doc.UpdateBlock(0, block.Settings{Config: block.DefaultConfig(), Prompt: "new"}); err != nil {
		t.Fatal(err)
	}
	if got := doc.String(); got != "```ai-tester\r\nnew\r\n```\r\n" {
		t.Errorf("document = %q", got)
	}
}

func TestOpenSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.UpdateBlock(1, block.Settings{Config: block.DefaultConfig(), Prompt: "saved"}); err != nil {
		t.Fatal(err)
	}
	if err := doc.Save(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "~~~ai-tester\nsaved\n~~~\n") {
		t.Errorf("saved file =\n%s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := Parse("x", "").Save(); err == nil {
		t.Error("expected error")
	}
}
