// Package util provides common utility functions used across the codebase.
package util

import "strings"

// ShellQuote wraps a string in single quotes, escaping any existing single quotes.
// This is safe for use in shell commands where the string should be treated literally.
func ShellQuote(s string) string {
	// Replace ' with '\'' (end quote, escaped quote, start quote)
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// ShellJoin quotes each argument that needs it and joins them with spaces.
// Plain words made only of safe characters are left bare so remote command
// lines stay readable in logs.
func ShellJoin(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a != "" && isShellSafe(a) {
			parts[i] = a
		} else {
			parts[i] = ShellQuote(a)
		}
	}
	return strings.Join(parts, " ")
}

func isShellSafe(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.ContainsRune("-_./=:,+@%", c):
		default:
			return false
		}
	}
	return true
}
