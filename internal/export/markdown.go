// Package export renders sessions as markdown documents.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/sai-itkc2020/ai-notetaker/internal/store"
)

// Timestamp formats an offset in seconds as [MM:SS], growing to [H:MM:SS]
// past the first hour.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	min, sec := total/60, total%60
	if h := min / 60; h > 0 {
		return fmt.Sprintf("[%d:%02d:%02d]", h, min%60, sec)
	}
	return fmt.Sprintf("[%02d:%02d]", min, sec)
}

// Filename builds a filesystem-friendly name for an exported session.
func Filename(sess store.Session) string {
	slug := Slug(sess.Title)
	if slug == "" {
		slug = "session"
	}
	return fmt.Sprintf("%s-%s.md", sess.StartedAt.Format("2006-01-02"), slug)
}

// Slug lowercases a title and squeezes everything but letters and digits
// into single dashes.
func Slug(title string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		case !lastDash:
			sb.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(sb.String(), "-")
}

// Render produces the full markdown document for a session: header,
// metadata, transcript, then any summaries.
func Render(sess store.Session, entries []store.Entry, summaries []store.Summary) string {
	var sb strings.Builder

	title := sess.Title
	if title == "" {
		title = "Untitled session"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "- **Started:** %s\n", sess.StartedAt.Format("2006-01-02 15:04"))
	if sess.EndedAt != nil {
		fmt.Fprintf(&sb, "- **Ended:** %s\n", sess.EndedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(&sb, "- **Duration:** %s\n", formatDuration(sess.EndedAt.Sub(sess.StartedAt)))
	}
	if sess.Device != "" {
		fmt.Fprintf(&sb, "- **Device:** %s\n", sess.Device)
	}
	fmt.Fprintf(&sb, "- **Status:** %s\n", sess.Status)

	sb.WriteString("\n## Transcript\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No transcript._\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&sb, "**%s** %s\n\n", Timestamp(e.StartTime), e.Text)
	}

	for _, sum := range summaries {
		fmt.Fprintf(&sb, "## Summary (%s)\n\n", sum.SummaryType)
		sb.WriteString(strings.TrimSpace(sum.Content))
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "_Generated by %s on %s._\n\n", sum.ModelID, sum.CreatedAt.Format("2006-01-02 15:04"))
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
