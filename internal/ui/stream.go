package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abelbrown/livefeed/internal/controller"
	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/transport"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// cardHeight is the number of lines one listing occupies.
const cardHeight = 2

// RenderStream renders the listing cards that fit in height lines, scrolled
// so the cursor stays visible. isNew reports highlighted ids.
func RenderStream(items []feed.Item, isNew func(id string) bool, cursor, width, height int) string {
	if len(items) == 0 {
		return HelpStyle.Render("No listings yet. Waiting for the feed...")
	}

	visible := height / cardHeight
	if visible < 1 {
		visible = 1
	}
	offset := calcScrollOffset(cursor, len(items), visible)

	var b strings.Builder
	for i := offset; i < len(items) && i < offset+visible; i++ {
		it := items[i]
		b.WriteString(renderTitleLine(it, isNew(it.ID), i == cursor, width))
		b.WriteString("\n")
		b.WriteString(MetaItem.Render(truncateRunes(metaLine(it), max(width-4, 10))))
		b.WriteString("\n")
	}
	return b.String()
}

// calcScrollOffset returns the first visible index keeping cursor on screen.
func calcScrollOffset(cursor, total, visible int) int {
	if total == 0 || cursor < 0 {
		return 0
	}
	if cursor >= total {
		cursor = total - 1
	}
	if cursor >= visible {
		return cursor - visible + 1
	}
	return 0
}

// renderTitleLine renders badge, title and right-aligned price.
func renderTitleLine(it feed.Item, isNew, selected bool, width int) string {
	badge := ""
	if isNew {
		badge = NewBadge.Render("NEW") + " "
	}
	price := formatPrice(it.PriceEUR)
	priceStyled := PriceStyle.Render(price)
	if it.PriceEUR <= 0 {
		priceStyled = PriceOnRequest.Render(price)
	}

	titleWidth := width - lipgloss.Width(badge) - utf8.RuneCountInString(price) - 4
	if titleWidth < 20 {
		titleWidth = 20
	}
	title := it.Title
	if title == "" {
		title = it.ID
	}
	title = truncateRunes(title, titleWidth)

	var style lipgloss.Style
	switch {
	case selected:
		style = SelectedItem
	case isNew:
		style = NewItem
	default:
		style = NormalItem
	}

	left := badge + style.Render(title)
	pad := width - lipgloss.Width(left) - lipgloss.Width(priceStyled) - 1
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + priceStyled
}

// metaLine joins specs with " · " and place/seller/drive facts with " • ".
func metaLine(it feed.Item) string {
	var specs []string
	if it.Year > 0 {
		specs = append(specs, fmt.Sprint(it.Year))
	}
	if it.Km > 0 {
		specs = append(specs, humanize.Comma(int64(it.Km))+" km")
	}
	switch {
	case it.PS > 0 && it.KW > 0:
		specs = append(specs, fmt.Sprintf("%d PS (%d kW)", it.PS, it.KW))
	case it.PS > 0:
		specs = append(specs, fmt.Sprintf("%d PS", it.PS))
	case it.KW > 0:
		specs = append(specs, fmt.Sprintf("%d kW", it.KW))
	}
	if it.Picker != "" {
		specs = append(specs, it.Picker)
	}

	var facts []string
	for _, f := range []string{it.Location, it.SellerType, it.Fuel, it.Transmission} {
		if f != "" {
			facts = append(facts, f)
		}
	}

	parts := make([]string, 0, 2)
	if len(specs) > 0 {
		parts = append(parts, strings.Join(specs, " · "))
	}
	if len(facts) > 0 {
		parts = append(parts, strings.Join(facts, " • "))
	}
	return strings.Join(parts, " · ")
}

// formatPrice renders a euro amount, or "on request" when missing.
func formatPrice(eur float64) string {
	if eur <= 0 {
		return "on request"
	}
	return "€ " + humanize.Comma(int64(eur+0.5))
}

// truncateRunes shortens s to n runes with a trailing ellipsis.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// stateLabel renders the connection state, with spin shown while busy.
func stateLabel(v controller.View, spin string) string {
	st := v.State
	label := st.String()
	switch {
	case st.Busy():
		return StateBusy.Render(spin + " " + label)
	case st == transport.StateConnected || st == transport.StateIdle:
		return StateOK.Render("● " + label)
	default:
		return StateBad.Render("● " + label)
	}
}

// RenderStatusBar renders the bottom bar: state, counts and key hints.
func RenderStatusBar(v controller.View, cursor int, spin, notice string, width int) string {
	left := " " + stateLabel(v, spin)
	if n := len(v.Items); n > 0 {
		left += StatusBarText.Render(fmt.Sprintf("  %d/%d", cursor+1, n))
	}
	if n := v.NewCount(); n > 0 {
		left += StateOK.Render(fmt.Sprintf("  +%d new", n))
	}
	if v.Source != "" {
		left += StatusBarText.Render("  " + truncateRunes(v.Source, 40))
	}
	if notice != "" {
		left += "  " + notice
	} else if v.LastErr != nil && v.Err == nil {
		left += StateBad.Render("  ! " + truncateRunes(v.LastErr.Error(), 40))
	}

	keys := []string{
		StatusBarKey.Render("j/k") + StatusBarText.Render(":nav"),
		StatusBarKey.Render("y") + StatusBarText.Render(":copy url"),
		StatusBarKey.Render("/") + StatusBarText.Render(":source"),
		StatusBarKey.Render("r") + StatusBarText.Render(":refresh"),
		StatusBarKey.Render("c") + StatusBarText.Render(":reconnect"),
		StatusBarKey.Render("D") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(left) - lipgloss.Width(keyHints) - 2
	if padding < 1 {
		// narrow terminal: drop the hints
		return StatusBar.Width(width).Render(left)
	}
	return StatusBar.Width(width).Render(left + strings.Repeat(" ", padding) + keyHints)
}
