package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/kalambet/askcards/internal/bookmark"
	"github.com/kalambet/askcards/internal/card"
	"github.com/kalambet/askcards/internal/conversation"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

// stderr receives status lines; tests replace it.
var stderr io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorCyan, "→ "+msg))
}

// printMessage writes one log message. Assistant cards are numbered from 1
// and starred when bookmarked.
func printMessage(w io.Writer, m conversation.Message, bookmarks *bookmark.Store, showSites bool) {
	switch m.Role {
	case conversation.RoleUser:
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "you:"), m.Content)
	default:
		fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, "answer:"), m.Content)
		printCards(w, m.Cards, bookmarks, showSites)
	}
}

func printCards(w io.Writer, cards []card.Card, bookmarks *bookmark.Store, showSites bool) {
	for i, c := range cards {
		mark := " "
		if bookmarks != nil && bookmarks.IsBookmarked(c) {
			mark = colorize(colorYellow, "★")
		}
		fmt.Fprintf(w, "  %s %d. %s\n", mark, i+1, c.Summary)
		src := c.Source
		if site := card.Site(c.Source); showSites && site != "" {
			src = site + " · " + c.Source
		}
		fmt.Fprintf(w, "       %s\n", colorize(colorDim, src))
	}
}

func printGroups(w io.Writer, groups []bookmark.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No bookmarks yet.")
		return
	}
	n := 0
	for _, g := range groups {
		fmt.Fprintln(w, colorize(colorBold, g.Question))
		for _, e := range g.Entries {
			n++
			fmt.Fprintf(w, "  %d. %s\n", n, e.Summary)
			fmt.Fprintf(w, "     %s  %s\n", colorize(colorDim, e.Source), colorize(colorDim, e.Timestamp.Local().Format("2006-01-02 15:04")))
		}
	}
}

// renderMarkdown renders md for the terminal.
func renderMarkdown(md string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if noColor {
		opts = append(opts, glamour.WithStylePath("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	return r.Render(md)
}
