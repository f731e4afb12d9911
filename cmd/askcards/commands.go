package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/askcards/internal/bookmark"
	"github.com/kalambet/askcards/internal/card"
	"github.com/kalambet/askcards/internal/config"
	"github.com/kalambet/askcards/internal/verified"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer with its cards",
	Long: `Ask a single question in a fresh conversation.

Examples:
  askcards ask "what is kimchi?"
  askcards ask "what is kimchi?" --bookmark`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bookmarkAll, _ := cmd.Flags().GetBool("bookmark")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if bookmarkAll {
			if err := ensureNotServing(cmd.Context(), a.cfg); err != nil {
				return err
			}
		}
		return runAsk(cmd.Context(), a, cmd.OutOrStdout(), strings.Join(args, " "), bookmarkAll)
	},
}

func init() {
	askCmd.Flags().Bool("bookmark", false, "bookmark every card of the answer")
}

func runAsk(ctx context.Context, a *app, w io.Writer, question string, bookmarkAll bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	answer, ok := a.chat.Submit(ctx, question)
	if !ok {
		return fmt.Errorf("question is required")
	}

	if bookmarkAll {
		for _, c := range card.Dedup(answer.Cards) {
			if a.bookmarks.IsBookmarked(c) {
				continue
			}
			if _, err := a.bookmarks.Toggle(c); err != nil {
				return fmt.Errorf("bookmarking %q: %w", c.Summary, err)
			}
		}
	}
	printMessage(w, answer, a.bookmarks, a.cfg.Chat.ShowSites)
	return nil
}

// --- bookmarks ---

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "List and manage bookmarked cards",
}

var bookmarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks grouped by the question that produced them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		printGroups(cmd.OutOrStdout(), a.bookmarks.Groups())
		return nil
	},
}

var bookmarksToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Bookmark a card, or remove it if it is already bookmarked",
	Long: `Bookmark a card, or remove it if it is already bookmarked.

Cards bookmarked outside a chat have no originating question and are
listed under "uncategorized".

Examples:
  askcards bookmarks toggle --summary "Kimchi is fermented cabbage" --source https://en.wikipedia.org/wiki/Kimchi`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, _ := cmd.Flags().GetString("summary")
		source, _ := cmd.Flags().GetString("source")
		if summary == "" || source == "" {
			return fmt.Errorf("--summary and --source are required")
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := ensureNotServing(cmd.Context(), a.cfg); err != nil {
			return err
		}

		added, err := a.bookmarks.Toggle(card.Card{Summary: summary, Source: source})
		if err != nil {
			return err
		}
		if added {
			printSuccess("Bookmarked: %s", summary)
		} else {
			printSuccess("Removed bookmark: %s", summary)
		}
		return nil
	},
}

var bookmarksRemoveCmd = &cobra.Command{
	Use:   "remove <n>",
	Short: "Remove bookmark number n as shown by 'bookmarks list'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid bookmark number %q", args[0])
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := ensureNotServing(cmd.Context(), a.cfg); err != nil {
			return err
		}

		e, err := removeBookmark(a.bookmarks, n)
		if err != nil {
			return err
		}
		printSuccess("Removed bookmark: %s", e.Summary)
		return nil
	},
}

func init() {
	bookmarksToggleCmd.Flags().String("summary", "", "card summary")
	bookmarksToggleCmd.Flags().String("source", "", "card source URL")
	bookmarksCmd.AddCommand(bookmarksListCmd)
	bookmarksCmd.AddCommand(bookmarksToggleCmd)
	bookmarksCmd.AddCommand(bookmarksRemoveCmd)
}

// listedEntries flattens groups in display order, matching printGroups numbering.
func listedEntries(groups []bookmark.Group) []bookmark.Entry {
	var out []bookmark.Entry
	for _, g := range groups {
		out = append(out, g.Entries...)
	}
	return out
}

func removeBookmark(s *bookmark.Store, n int) (bookmark.Entry, error) {
	entries := listedEntries(s.Groups())
	if n < 1 || n > len(entries) {
		return bookmark.Entry{}, fmt.Errorf("no bookmark number %d (have %d)", n, len(entries))
	}
	e := entries[n-1]
	if _, err := s.Toggle(e.Card); err != nil {
		return e, err
	}
	return e, nil
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List, show, export and delete saved conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		listConversations(cmd.OutOrStdout(), a)
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return showConversation(cmd.OutOrStdout(), a, args[0], raw)
	},
}

var conversationsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a saved conversation to a file",
	Long: `Export a saved conversation to a file named after its title.

Examples:
  askcards conversations export <id>
  askcards conversations export <id> --format html --output ~/Documents
  askcards conversations export <id> --output -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		format, err := verified.ParseFormat(formatName)
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := exportConversation(cmd.OutOrStdout(), a, args[0], format, output)
		if err != nil {
			return err
		}
		if path != "" {
			printSuccess("Exported to %s", path)
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := ensureNotServing(cmd.Context(), a.cfg); err != nil {
			return err
		}

		if _, err := a.conversations.Get(args[0]); errors.Is(err, verified.ErrNotFound) {
			printWarning("no conversation %s", args[0])
			return nil
		}
		if err := a.conversations.Delete(args[0]); err != nil {
			return err
		}
		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

func init() {
	conversationsShowCmd.Flags().Bool("raw", false, "print the markdown export without rendering")
	conversationsExportCmd.Flags().String("format", "md", "export format: md or html")
	conversationsExportCmd.Flags().StringP("output", "o", "", "output file or directory, - for stdout (default: current directory)")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsExportCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

func listConversations(w io.Writer, a *app) {
	convs := a.conversations.List()
	if len(convs) == 0 {
		fmt.Fprintln(w, "No saved conversations.")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%s  %s  %s\n",
			colorize(colorDim, c.ID),
			c.Timestamp.In(a.exporter.Location).Format("2006-01-02 15:04"),
			colorize(colorBold, c.Title))
	}
}

func showConversation(w io.Writer, a *app, id string, raw bool) error {
	c, err := a.conversations.Get(id)
	if err != nil {
		return fmt.Errorf("conversation %s: %w", id, err)
	}
	md := a.exporter.ExportMarkdown(c)
	if raw {
		_, err := io.WriteString(w, md)
		return err
	}
	out, err := renderMarkdown(md, 80)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// exportConversation writes conversation id to output and returns the path
// written, or "" when output is "-" and the document went to w.
func exportConversation(w io.Writer, a *app, id string, format verified.Format, output string) (string, error) {
	c, err := a.conversations.Get(id)
	if err != nil {
		return "", fmt.Errorf("conversation %s: %w", id, err)
	}
	body, err := a.exporter.Export(c, format)
	if err != nil {
		return "", err
	}

	if output == "-" {
		_, err := io.WriteString(w, body)
		return "", err
	}

	path := output
	if path == "" {
		path = verified.Filename(c, string(format))
	} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, verified.Filename(c, string(format)))
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
