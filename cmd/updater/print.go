package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"updater/internal/updater"
)

const defaultWidth = 100

// terminalWidth returns the width of stdout, or defaultWidth when it is not
// a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// printFiles lists files as status, pending action and name, shortening
// names from the left to fit the terminal.
func printFiles(w io.Writer, files []*updater.FileRecord) {
	printFilesWidth(w, files, terminalWidth())
}

func printFilesWidth(w io.Writer, files []*updater.FileRecord, width int) {
	const statusWidth, actionWidth = 20, 10
	nameWidth := width - statusWidth - actionWidth - 2
	for _, f := range files {
		action := ""
		if f.Action() != updater.ActionNone {
			action = f.Action().String()
		}
		fmt.Fprintf(w, "%-*s %-*s %s\n", statusWidth, f.Status(), actionWidth, action, shorten(f.Filename, nameWidth))
	}
}

func shorten(name string, width int) string {
	r := []rune(name)
	if width < 4 || len(r) <= width {
		return name
	}
	return "..." + string(r[len(r)-width+3:])
}
