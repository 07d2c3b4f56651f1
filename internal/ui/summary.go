package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rileyhilliard/pb/internal/util"
)

// RunSummary holds the counts shown after collection finishes.
type RunSummary struct {
	Succeeded []string
	Failed    []string
	OutDir    string
	Duration  time.Duration
}

// RenderRunSummary writes the end-of-run summary to w.
//
//	✓ 3 hosts collected into out/ (42.1s)
//	✗ 1 host failed: gamma
func RenderRunSummary(w io.Writer, s RunSummary) {
	r := lipgloss.NewRenderer(w)
	if !IsTerminal(w) {
		r.SetColorProfile(termenv.Ascii)
	}
	success := r.NewStyle().Foreground(ColorSuccess)
	fail := r.NewStyle().Foreground(ColorError)
	muted := r.NewStyle().Foreground(ColorMuted)

	fmt.Fprintf(w, "%s %d %s collected into %s %s\n",
		success.Render(SymbolSuccess),
		len(s.Succeeded),
		util.Pluralize(len(s.Succeeded), "host", "hosts"),
		s.OutDir+"/",
		muted.Render("("+formatDuration(s.Duration)+")"),
	)
	if len(s.Failed) > 0 {
		fmt.Fprintf(w, "%s %d %s failed: %s\n",
			fail.Render(SymbolFail),
			len(s.Failed),
			util.Pluralize(len(s.Failed), "host", "hosts"),
			util.JoinOrNone(s.Failed),
		)
	}
}
