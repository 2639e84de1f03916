package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// truncateText shortens text to width display cells.
func truncateText(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= len(ellipsis) {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, ellipsis)
}

// truncateLeft keeps the tail of text, which is the useful part of a path.
func truncateLeft(text string, width int) string {
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= len(ellipsis) {
		return truncateText(text, width)
	}
	r := []rune(text)
	for i := range r {
		tail := string(r[i:])
		if runewidth.StringWidth(tail)+len(ellipsis) <= width {
			return ellipsis + tail
		}
	}
	return ellipsis
}

// indentName prefixes name with two spaces per depth level and fits it
// into width cells.
func indentName(name string, depth, width int) string {
	if depth < 0 {
		depth = 0
	}
	return truncateText(strings.Repeat("  ", depth)+name, width)
}

// wrapText wraps text into at most maxLines lines of width cells. The last
// line is truncated with an ellipsis when text does not fit.
func wrapText(text string, width, maxLines int) []string {
	if width <= 0 || maxLines <= 0 {
		return []string{""}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if runewidth.StringWidth(line+" "+word) <= width {
			line += " " + word
			continue
		}
		lines = append(lines, line)
		line = word
	}
	lines = append(lines, line)

	if len(lines) > maxLines {
		rest := strings.Join(lines[maxLines-1:], " ")
		lines = append(lines[:maxLines-1], rest)
	}
	for i := range lines {
		lines[i] = truncateText(lines[i], width)
	}
	return lines
}

// padLines pads lines with empty strings up to n entries.
func padLines(lines []string, n int) []string {
	for len(lines) < n {
		lines = append(lines, "")
	}
	return lines
}
