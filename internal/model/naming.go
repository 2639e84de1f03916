package model

import (
	"fmt"
	"strings"
)

// ExportExtension is the default extension for exported geometry.
const ExportExtension = ".stp"

// invalidFileChars are replaced when a title becomes a file name.
const invalidFileChars = `<>:"/\|?*`

// SanitizeFileName replaces characters that are invalid in file names with
// underscores and trims surrounding spaces and dots. An empty result yields
// "exchange".
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(invalidFileChars, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), " .")
	if out == "" {
		return "exchange"
	}
	return out
}

// ShortID returns the first 8 characters of id.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ExportFileName names exported geometry after the sanitized exchange title
// and the first 8 characters of the exchange id. ext may be ".stp" or
// ".step"; anything else falls back to ".stp".
func ExportFileName(e Exchange, ext string) string {
	ext = strings.ToLower(ext)
	if ext != ".stp" && ext != ".step" {
		ext = ExportExtension
	}
	return fmt.Sprintf("%s_%s%s", SanitizeFileName(e.Title), ShortID(e.Identifier().ExchangeID), ext)
}

// IsStepFile reports whether path has a STEP extension.
func IsStepFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".stp") || strings.HasSuffix(lower, ".step")
}
