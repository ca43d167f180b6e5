package document

import (
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

type fence struct {
	char   byte
	length int
}

// openFence reports whether line opens a fenced code block, returning the
// fence and its info string.
func openFence(line string) (fence, string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 || len(trimmed) < 3 {
		return fence{}, "", false
	}
	c := trimmed[0]
	if c != '`' && c != '~' {
		return fence{}, "", false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}
	if n < 3 {
		return fence{}, "", false
	}
	info := strings.TrimSpace(trimmed[n:])
	if c == '`' && strings.Contains(info, "`") {
		return fence{}, "", false
	}
	return fence{char: c, length: n}, info, true
}

func (f fence) closes(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == f.char {
		n++
	}
	return n >= f.length && strings.TrimSpace(trimmed[n:]) == ""
}

func infoLanguage(info string) string {
	if fields := strings.Fields(info); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// scanFences walks the lines and returns every closed fenced block tagged
// with language. Fences of other languages are tracked so their contents
// are never mistaken for blocks. An unclosed block is dropped.
func scanFences(lines []string, language string) []Block {
	var blocks []Block
	for i := 0; i < len(lines); i++ {
		f, info, ok := openFence(lines[i])
		if !ok {
			continue
		}
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if f.closes(lines[j]) {
				end = j
				break
			}
		}
		if end < 0 {
			break
		}
		if infoLanguage(info) == language {
			blocks = append(blocks, Block{
				LineStart: i,
				LineEnd:   end,
				Source:    strings.Join(lines[i+1:end], "\n"),
			})
		}
		i = end
	}
	return blocks
}

// confirmBlocks keeps only the candidates the markdown parser also sees as
// fenced code blocks of the language (a fence inside an HTML block, for
// instance, is not one), and numbers them.
func confirmBlocks(text, language string, candidates []Block) []Block {
	if len(candidates) == 0 {
		return nil
	}

	seen := make(map[string]int)
	p := parser.NewWithExtensions(parser.CommonExtensions)
	root := p.Parse([]byte(text))
	ast.WalkFunc(root, func(node ast.Node, entering bool) ast.WalkStatus {
		cb, ok := node.(*ast.CodeBlock)
		if !ok || !entering || !cb.IsFenced {
			return ast.GoToNext
		}
		if infoLanguage(string(cb.Info)) == language {
			seen[blockKey(string(cb.Literal))]++
		}
		return ast.GoToNext
	})

	blocks := make([]Block, 0, len(candidates))
	for _, b := range candidates {
		key := blockKey(b.Source)
		if seen[key] == 0 {
			continue
		}
		seen[key]--
		b.Index = len(blocks)
		blocks = append(blocks, b)
	}
	return blocks
}

func blockKey(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}
