// Package document locates prompt blocks inside a markdown file and
// rewrites them in place.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aitester/block"
	"aitester/config"
)

// Block is one fenced code block whose info string names the block
// language. LineStart and LineEnd are the zero-based lines of the opening
// and closing fences; Source is the text between them.
type Block struct {
	Index     int
	LineStart int
	LineEnd   int
	Source    string
}

// Settings parses the block body.
func (b Block) Settings() block.Settings {
	return block.Parse(b.Source)
}

// Document is an in-memory markdown file.
type Document struct {
	path     string
	language string
	lines    []string
	crlf     bool
	mode     os.FileMode
}

// Open reads a markdown file. An empty language selects the default block
// language.
func Open(path, language string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}

	doc := Parse(string(data), language)
	doc.path = path
	doc.mode = info.Mode().Perm()
	return doc, nil
}

// Parse builds a document from text that is not backed by a file.
func Parse(text, language string) *Document {
	if language == "" {
		language = config.DefaultBlockLanguage
	}
	crlf := strings.Contains(text, "\r\n")
	if crlf {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	return &Document{
		language: language,
		lines:    strings.Split(text, "\n"),
		crlf:     crlf,
		mode:     0o644,
	}
}

func (d *Document) Path() string     { return d.path }
func (d *Document) Language() string { return d.language }

// String returns the document text with its original line endings.
func (d *Document) String() string {
	text := strings.Join(d.lines, "\n")
	if d.crlf {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	return text
}

// Blocks returns every block in document order.
func (d *Document) Blocks() []Block {
	candidates := scanFences(d.lines, d.language)
	return confirmBlocks(strings.Join(d.lines, "\n"), d.language, candidates)
}

// Block returns the block with the given index.
func (d *Document) Block(index int) (Block, error) {
	blocks := d.Blocks()
	if index < 0 || index >= len(blocks) {
		return Block{}, fmt.Errorf("block %d not found (document has %d)", index, len(blocks))
	}
	return blocks[index], nil
}

// Replace swaps the lines strictly between start and end for text.
func (d *Document) Replace(start, end int, text string) error {
	if start < 0 || end >= len(d.lines) || end <= start {
		return fmt.Errorf("invalid line range %d-%d", start, end)
	}

	var body []string
	if text != "" {
		body = strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	}

	lines := make([]string, 0, len(d.lines)-(end-start-1)+len(body))
	lines = append(lines, d.lines[:start+1]...)
	lines = append(lines, body...)
	lines = append(lines, d.lines[end:]...)
	d.lines = lines
	return nil
}

// UpdateBlock rewrites the body of block index with the given settings.
// Block positions are looked up again so earlier edits that shifted lines
// do not matter.
func (d *Document) UpdateBlock(index int, s block.Settings) error {
	b, err := d.Block(index)
	if err != nil {
		return err
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("updating block %d (lines %d-%d)", index, b.LineStart, b.LineEnd)
	}
	return d.Replace(b.LineStart, b.LineEnd, s.Text())
}

// Save writes the document back to its file through a temporary file in
// the same directory.
func (d *Document) Save() error {
	if d.path == "" {
		return fmt.Errorf("document has no file path")
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(d.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Chmod(tmpName, d.mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}
