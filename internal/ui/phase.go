package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// DividerWidth is the default width for divider lines.
const DividerWidth = 64

// PhaseDisplay renders one status line per host as results arrive.
// Lines are written whole, never overwritten, because several hosts
// complete in arbitrary order.
type PhaseDisplay struct {
	mu sync.Mutex
	w  io.Writer

	success lipgloss.Style
	fail    lipgloss.Style
	pending lipgloss.Style
	muted   lipgloss.Style
}

// NewPhaseDisplay creates a phase display writing to w. Colors are only
// emitted when w is a terminal.
func NewPhaseDisplay(w io.Writer) *PhaseDisplay {
	r := lipgloss.NewRenderer(w)
	if !IsTerminal(w) {
		r.SetColorProfile(termenv.Ascii)
	}
	return &PhaseDisplay{
		w:       w,
		success: r.NewStyle().Foreground(ColorSuccess),
		fail:    r.NewStyle().Foreground(ColorError),
		pending: r.NewStyle().Foreground(ColorSecondary),
		muted:   r.NewStyle().Foreground(ColorMuted),
	}
}

// RenderProgress renders a phase that has started.
// Shows: ◐ alpha: staging 1.2 MB...
func (pd *PhaseDisplay) RenderProgress(name string) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	fmt.Fprintf(pd.w, "%s %s...\n", pd.pending.Render(SymbolProgress), name)
}

// HostDone renders a host whose results were written.
// Shows: ✓ alpha  Intel(R) Xeon(R) Gold 6230 (41.2s)
func (pd *PhaseDisplay) HostDone(host, detail string, duration time.Duration) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	line := pd.success.Render(SymbolSuccess) + " " + host
	if detail != "" {
		line += "  " + detail
	}
	fmt.Fprintf(pd.w, "%s %s\n", line, pd.muted.Render("("+formatDuration(duration)+")"))
}

// HostFailed renders a host that produced no results.
// Shows: ✗ beta  Benchmark exited with code 1 (3.0s)
func (pd *PhaseDisplay) HostFailed(host string, err error, duration time.Duration) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	line := pd.fail.Render(SymbolFail) + " " + host
	if err != nil {
		line += "  " + firstLine(err)
	}
	fmt.Fprintf(pd.w, "%s %s\n", line, pd.muted.Render("("+formatDuration(duration)+")"))
}

// Divider renders a horizontal line between the per-host lines and the summary.
func (pd *PhaseDisplay) Divider() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	fmt.Fprintf(pd.w, "%s\n", pd.muted.Render(strings.Repeat("━", DividerWidth)))
}

// firstLine returns the first non-empty line of err's text without the
// leading failure symbol structured errors carry.
func firstLine(err error) string {
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), SymbolFail))
		if line != "" {
			return line
		}
	}
	return ""
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
