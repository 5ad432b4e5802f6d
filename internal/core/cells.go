package core

import "strings"

// SanitizeCell trims surrounding space and prefixes text a spreadsheet would
// evaluate as a formula with a quote.
func SanitizeCell(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}
