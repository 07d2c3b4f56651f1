// Package ui renders pb's console output: one status line per host as
// results arrive, and a summary once collection is done.
//
// Styling uses Lip Gloss with ANSI colors. Output that is not a terminal
// (pipes, buffers in tests) is rendered without escape codes.
//
// # Symbols
//
//	SymbolSuccess  (checkmark)  - host results written
//	SymbolFail     (X)          - host failed
//	SymbolProgress (half-fill)  - host running
package ui
