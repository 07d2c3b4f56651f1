package ui

// Unicode symbols for per-host status lines.
const (
	SymbolSuccess  = "✓" // Host finished and results were written
	SymbolFail     = "✗" // Host failed
	SymbolPending  = "○" // Host not yet started
	SymbolProgress = "◐" // Host running
	SymbolComplete = "●" // Phase done
	SymbolSkipped  = "⊘" // Host skipped (duplicate, cancelled)
)
