package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (v BlockView) renderHelpModal(width, height int) string {
	kb := v.kb

	green := lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)

	title := green.Render("aitester - Keyboard Shortcuts")

	blue := lipgloss.NewStyle().Foreground(accentColor)
	row := func(action, desc string) string {
		return fmt.Sprintf("• %-13s %s", kb.DisplayActionKey(action), desc)
	}

	blockActions := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Block"),
		row("generate", "Generate / stop"),
		row("newline", "New line in prompt"),
		row("cycle_provider", "Next provider"),
		row("model_selector", "Select model"),
		row("refresh_models", "Reload models"),
		row("reload_config", "Reload config"),
		row("responses_up", "More responses"),
		row("responses_down", "Fewer responses"),
		row("toggle_config", "Edit / apply header"),
		row("clear_input", "Clear prompt"),
		row("save_block", "Save document"),
	)

	documentActions := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Document"),
		row("next_block", "Next block"),
		row("prev_block", "Previous block"),
		row("help", "Toggle this help"),
		row("quit", "Save and quit"),
	)

	responseActions := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Responses"),
		row("next_panel", "Next response"),
		row("prev_panel", "Previous response"),
		row("yank_response", "Copy response"),
		row("yank_prompt", "Copy prompt"),
		row("scroll_down", "Page down"),
		row("scroll_up", "Page up"),
		row("scroll_to_top", "Jump to top"),
		row("scroll_to_end", "Jump to bottom"),
	)

	column1 := lipgloss.JoinVertical(
		lipgloss.Left,
		blockActions,
		"",
		documentActions,
	)

	columnStyle := lipgloss.NewStyle().Width(42).PaddingLeft(4)

	twoColumns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		columnStyle.Render(column1),
		"  ",
		columnStyle.Render(responseActions),
	)

	footer := lipgloss.NewStyle().
		Foreground(dimColor).
		Render(fmt.Sprintf("Press %s or Esc to close this help", kb.DisplayActionKey("help")))

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		title,
		"",
		twoColumns,
		"",
		footer,
	)

	helpBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2).
		Width(min(96, max(width-4, 40)))

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		helpBox.Render(content),
	)
}
