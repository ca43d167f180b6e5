package ui

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mattn/go-runewidth"

	"aitester/config"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
)

const codeRule = "┃"

func newBuilder() *strings.Builder {
	return &strings.Builder{}
}

// refreshPanels redraws every response panel into the viewport. The
// viewport follows the output while a batch streams.
func (v *BlockView) refreshPanels() {
	if len(v.panels) == 0 {
		v.viewport.SetContent(DimStyle.Render(fmt.Sprintf("Press %s to generate.", v.kb.DisplayActionKey("generate"))))
		return
	}

	var content strings.Builder
	for i := range v.panels {
		if i > 0 {
			content.WriteString("\n")
		}
		content.WriteString(v.renderPanel(i))
	}
	v.viewport.SetContent(content.String())
	if v.generating {
		v.viewport.GotoBottom()
	}
}

func (v *BlockView) renderPanel(i int) string {
	p := v.panels[i]

	label := fmt.Sprintf("Response %d/%d", i+1, len(v.panels))
	headerStyle := BorderStyle
	if i == v.focusedPanel && len(v.panels) > 1 {
		label = "▶ " + label
		headerStyle = HighlightStyle
	}

	var state string
	switch p.state {
	case panelWaiting:
		state = DimStyle.Render("waiting")
	case panelStreaming:
		state = v.spinner.View()
	case panelDone:
		state = DimStyle.Render(p.stats)
	case panelFailed:
		state = ErrorStyle.Render("failed")
	case panelCancelled:
		state = WarningStyle.Render("cancelled")
	}

	rule := max(v.width-runewidth.StringWidth(label)-runewidth.StringWidth(stripANSI(state))-6, 2)
	header := headerStyle.Render("── "+label+" "+strings.Repeat("─", rule)) + " " + state

	var body string
	switch {
	case p.rendered != "":
		body = p.rendered
	case p.state == panelFailed:
		if p.text.Len() > 0 {
			body = ResponseStyle.Render(p.text.String()) + "\n"
		}
		body += ErrorStyle.Render(p.err)
	case p.text.Len() > 0:
		body = ResponseStyle.Render(p.text.String())
		if p.state == panelStreaming {
			body += "▋"
		}
	case p.state == panelCancelled:
		body = DimStyle.Render("Cancelled before any output.")
	}

	return header + "\n" + body + "\n"
}

func renderMarkdownAsync(batch, index int, content string, width int) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		content = preprocessLinks(content)

		// Autolink off keeps URLs plain so the terminal can detect them.
		ext := markdown.Extensions() &^ parser.Autolink
		p := parser.NewWithExtensions(ext)
		r := markdown.NewRenderer(max(width-4, 20), 0)
		doc := p.Parse([]byte(content))
		rendered := postProcessMarkdown(string(gomarkdown.Render(doc, r)), width)

		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] response %d of batch %d rendered in %v", index+1, batch, time.Since(start))
		}
		return markdownRenderedMsg{batch: batch, index: index, rendered: rendered}
	}
}

func postProcessMarkdown(rendered string, width int) string {
	rendered = fixInlineCode(rendered)
	rendered = colorURLs(rendered)
	return frameCodeBlocks(rendered, width)
}

// preprocessLinks reduces [text](url) to the bare url.
func preprocessLinks(content string) string {
	return mdLinkRegex.ReplaceAllString(content, "$2")
}

// fixInlineCode turns the renderer's blue-background inline code into red text.
func fixInlineCode(s string) string {
	return inlineCodeRegex.ReplaceAllString(s, "\x1b[31m$1\x1b[0m")
}

func colorURLs(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeRule) {
			lines[i] = urlRegex.ReplaceAllString(line, "\x1b[31m$1\x1b[0m")
		}
	}
	return strings.Join(lines, "\n")
}

// frameCodeBlocks replaces the renderer's left rule on code lines with a
// horizontal frame above and below each block.
func frameCodeBlocks(s string, width int) string {
	const darkGray, reset = "\x1b[90m", "\x1b[0m"
	ruleWidth := max(width-4, 10)

	var result, block []string
	inBlock := false
	closeBlock := func() {
		result = append(result, block...)
		result = append(result, "", darkGray+strings.Repeat("━", ruleWidth)+reset, "")
		block = nil
		inBlock = false
	}

	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, codeRule) {
			if !inBlock {
				inBlock = true
				label := "[code]"
				left := (ruleWidth - len(label)) / 2
				right := ruleWidth - len(label) - left
				result = append(result, "",
					darkGray+strings.Repeat("━", left)+reset+label+darkGray+strings.Repeat("━", right)+reset,
					"")
			}
			block = append(block, stripCodeBlockPrefix(line))
			continue
		}
		if inBlock {
			closeBlock()
		}
		result = append(result, line)
	}
	if inBlock {
		closeBlock()
	}

	return strings.Join(result, "\n")
}

func stripCodeBlockPrefix(line string) string {
	idx := strings.Index(line, codeRule)
	if idx < 0 {
		return line
	}
	after := idx + len(codeRule)
	if after < len(line) && line[after] == ' ' {
		after++
	}
	return line[after:]
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// truncate cuts a possibly styled line to width display cells. Styled
// lines that overflow lose their styling.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(stripANSI(s)) <= width {
		return s
	}
	return runewidth.Truncate(stripANSI(s), width, "…")
}

// formatNumber prints a float the way it appears in a block header.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
