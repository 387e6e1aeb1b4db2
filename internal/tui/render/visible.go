// Package render measures and fits terminal text for column layouts.
package render

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

const ellipsis = "…"

// VisibleLength returns the number of cells value occupies, excluding ANSI
// escape sequences and counting wide runes twice.
func VisibleLength(value string) int {
	return ansi.StringWidth(value)
}

// PadRightVisible appends spaces until the string reaches width visible cells.
func PadRightVisible(value string, width int) string {
	padding := width - VisibleLength(value)
	if padding <= 0 {
		return value
	}

	return value + strings.Repeat(" ", padding)
}

// Fit flattens value to one line, drops escape sequences, and truncates it
// to width cells with a trailing ellipsis.
func Fit(value string, width int) string {
	line := strings.Join(strings.Fields(ansi.Strip(value)), " ")
	if width <= 0 {
		return ""
	}

	return runewidth.Truncate(line, width, ellipsis)
}
