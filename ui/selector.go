package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"aitester/model"
)

// categoryRank orders selector groups: recommended models first, then the
// rest, then uncategorised local models.
func categoryRank(category string) int {
	switch category {
	case model.CategoryRecommended:
		return 0
	case model.CategoryOthers:
		return 1
	default:
		return 2
	}
}

// filterModels fuzzy-matches models against filter and keeps them grouped
// by category. Within a group, matches keep their best-first fuzzy order;
// with an empty filter the provider's order is kept.
func filterModels(models []model.ModelInfo, filter string) []model.ModelInfo {
	var out []model.ModelInfo
	if strings.TrimSpace(filter) == "" {
		out = slices.Clone(models)
	} else {
		targets := make([]string, len(models))
		for i, m := range models {
			targets[i] = m.ID + " " + m.Name
		}
		for _, match := range fuzzy.Find(filter, targets) {
			out = append(out, models[match.Index])
		}
	}

	slices.SortStableFunc(out, func(a, b model.ModelInfo) int {
		return categoryRank(a.Category) - categoryRank(b.Category)
	})
	return out
}

func renderModelSelector(items []model.ModelInfo, selectedIdx int, currentModel string, filter textinput.Model, providerName string, loading bool, width, height int) string {
	modalWidth := min(width-10, 80)
	modalHeight := height - 6

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render("Select Model - " + providerName)

	headerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Width(modalWidth).
		BorderTop(true).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(filter.View())

	var lines []string
	maxLines := modalHeight - 8 // title, borders, header, footer

	switch {
	case loading && len(items) == 0:
		lines = append(lines, centeredNote("Loading models...", modalWidth))
	case len(items) == 0 && filter.Value() != "":
		lines = append(lines, centeredNote("No matches found", modalWidth))
	case len(items) == 0:
		lines = append(lines, centeredNote("No models available", modalWidth))
	default:
		start, end := 0, len(items)
		if len(items) > maxLines && maxLines > 0 {
			switch {
			case selectedIdx < maxLines/2:
				end = maxLines
			case selectedIdx >= len(items)-maxLines/2:
				start = len(items) - maxLines
			default:
				start = selectedIdx - maxLines/2
				end = start + maxLines
			}
		}

		lastCategory := ""
		for i := start; i < end; i++ {
			m := items[i]
			if m.Category != "" && m.Category != lastCategory {
				lines = append(lines, DimStyle.Render("  "+m.Category))
				lastCategory = m.Category
			}
			lines = append(lines, selectorLine(m, i == selectedIdx, m.ID == currentModel, modalWidth))
		}
	}

	empty := strings.Repeat(" ", modalWidth)
	lines = append([]string{empty}, lines...)
	lines = append(lines, empty)

	footerSection := lipgloss.NewStyle().
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(FormatFooter("Type", "to filter", "↑/↓", "Navigate", "Enter", "Select", "Esc", "Cancel"))

	sections := []string{titleSection, headerSection}
	sections = append(sections, lines...)
	sections = append(sections, footerSection)

	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(sections, "\n"))
}

func selectorLine(m model.ModelInfo, selected, current bool, width int) string {
	indicator := "  "
	if selected {
		indicator = "▶ "
	}

	label := m.ID
	if m.Name != "" && m.Name != m.ID {
		label = fmt.Sprintf("%s (%s)", m.Name, m.ID)
	}
	if m.Details != "" {
		label += "  " + m.Details
	}
	marker := ""
	if current {
		marker = " (current)"
	}

	room := width - runewidth.StringWidth(indicator) - runewidth.StringWidth(marker) - 2
	label = runewidth.Truncate(label, max(room, 4), "...")

	style := lipgloss.NewStyle()
	if selected {
		style = style.Foreground(successColor).Bold(true)
	} else if current {
		style = style.Foreground(accentColor).Bold(true)
	}

	return lipgloss.NewStyle().
		Width(width).
		Render(style.Render(indicator + label + marker))
}

func centeredNote(text string, width int) string {
	return lipgloss.NewStyle().
		Foreground(dimColor).
		Italic(true).
		Align(lipgloss.Center).
		Width(width).
		Render(text)
}
