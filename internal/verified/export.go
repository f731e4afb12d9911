package verified

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/kalambet/askcards/internal/conversation"
)

// Supported export locales.
const (
	LocaleEnglish = "en"
	LocaleKorean  = "ko"
)

// Format is an export file format, named by its file extension.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "md", "markdown" and "html". Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want md or html)", s)
	}
}

// ContentType returns the MIME type of exported documents.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Exporter renders conversations. Output depends only on the conversation,
// the locale and the location, so the same input always yields the same text.
type Exporter struct {
	Locale   string
	Location *time.Location
}

// NewExporter returns an Exporter; unknown locales fall back to English and
// a nil location to UTC.
func NewExporter(locale string, loc *time.Location) Exporter {
	if locale != LocaleKorean {
		locale = LocaleEnglish
	}
	if loc == nil {
		loc = time.UTC
	}
	return Exporter{Locale: locale, Location: loc}
}

// SavedLine returns the localized save-date line.
func (e Exporter) SavedLine(t time.Time) string {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	if e.Locale == LocaleKorean {
		period, hour := "오전", t.Hour()
		if hour >= 12 {
			period = "오후"
		}
		if hour = hour % 12; hour == 0 {
			hour = 12
		}
		return fmt.Sprintf("저장일: %d. %d. %d. %s %d:%02d:%02d",
			t.Year(), int(t.Month()), t.Day(), period, hour, t.Minute(), t.Second())
	}
	return "Saved: " + t.Format("1/2/2006, 3:04:05 PM")
}

// ExportMarkdown renders c as markdown: the title as a level-1 heading, the
// save date, then each message under a "Question" or "Answer" heading.
// Answers with cards get a numbered "Related snippets" list.
func (e Exporter) ExportMarkdown(c Conversation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	fmt.Fprintf(&b, "%s\n", e.SavedLine(c.Timestamp))

	for _, m := range c.Messages {
		switch m.Role {
		case conversation.RoleUser:
			fmt.Fprintf(&b, "\n## Question\n\n%s\n", m.Content)
		case conversation.RoleAssistant:
			fmt.Fprintf(&b, "\n## Answer\n\n%s\n", m.Content)
			if len(m.Cards) == 0 {
				continue
			}
			b.WriteString("\n### Related snippets\n\n")
			for i, cd := range m.Cards {
				fmt.Fprintf(&b, "%d. %s [%s](%s)\n", i+1, cd.Summary, cd.Source, cd.Source)
			}
		}
	}
	return b.String()
}

// ExportHTML renders the markdown export as a standalone HTML document.
func (e Exporter) ExportHTML(c Conversation) (string, error) {
	var body bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(e.ExportMarkdown(c)), &body); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}

	lang := e.Locale
	if lang == "" {
		lang = LocaleEnglish
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="%s">
<head>
<meta charset="UTF-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`, lang, html.EscapeString(c.Title), body.String()), nil
}

// Export renders c in format f.
func (e Exporter) Export(c Conversation, f Format) (string, error) {
	switch f {
	case FormatMarkdown:
		return e.ExportMarkdown(c), nil
	case FormatHTML:
		return e.ExportHTML(c)
	default:
		return "", fmt.Errorf("unsupported export format %q", f)
	}
}

// Filename derives a download file name from the conversation title.
// ext is given without the leading dot.
func Filename(c Conversation, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, c.Title)
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" {
		name = "conversation"
	}
	return name + "." + ext
}
