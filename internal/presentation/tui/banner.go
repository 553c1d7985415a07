package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the mintline banner with the given version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"            _       _   _ _", "#34d399"},
		{"  _ __ ___ (_)_ __ | |_| (_)_ __   ___", "#2dd4bf"},
		{" | '_ ` _ \\| | '_ \\| __| | | '_ \\ / _ \\", "#22d3ee"},
		{" | | | | | | | | | | |_| | | | | |  __/", "#38bdf8"},
		{" |_| |_| |_|_|_| |_|\\__|_|_|_| |_|\\___|", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  token issuance orchestrator "+version).Faint())
	fmt.Fprintln(w)
}
