package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the cairn ASCII art banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"                _            ", "#94a3b8"},
		{"   ___ __ _ (_)_ __ _ __  ", "#a8a29e"},
		{"  / __/ _` || | '__| '_ \\ ", "#a3a3a3"},
		{" | (_| (_| || | |  | | | |", "#78716c"},
		{"  \\___\\__,_||_|_|  |_| |_|", "#57534e"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
