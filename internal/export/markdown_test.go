package export

import (
	"strings"
	"testing"
	"time"

	"github.com/sai-itkc2020/ai-notetaker/internal/store"
)

func TestTimestamp(t *testing.T) {
	cases := []struct {
		sec  float64
		want string
	}{
		{0, "[00:00]"},
		{7.9, "[00:07]"},
		{60, "[01:00]"},
		{605, "[10:05]"},
		{3600, "[1:00:00]"},
		{3725, "[1:02:05]"},
		{-3, "[00:00]"},
	}
	for _, c := range cases {
		if got := Timestamp(c.sec); got != c.want {
			t.Errorf("Timestamp(%v) = %q, want %q", c.sec, got, c.want)
		}
	}
}

func TestSlug(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Meeting 2026-08-25 14:03", "meeting-2026-08-25-14-03"},
		{"Q3 Planning / Budget!!", "q3-planning-budget"},
		{"   ", ""},
		{"---", ""},
	}
	for _, c := range cases {
		if got := Slug(c.title); got != c.want {
			t.Errorf("Slug(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestFilename(t *testing.T) {
	sess := store.Session{
		Title:     "Weekly Sync",
		StartedAt: time.Date(2026, 8, 25, 14, 3, 0, 0, time.UTC),
	}
	if got := Filename(sess); got != "2026-08-25-weekly-sync.md" {
		t.Fatalf("filename = %q", got)
	}

	sess.Title = "??"
	if got := Filename(sess); got != "2026-08-25-session.md" {
		t.Fatalf("fallback filename = %q", got)
	}
}

func TestRenderTranscript(t *testing.T) {
	started := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	ended := started.Add(2*time.Minute + 10*time.Second)
	sess := store.Session{
		ID:        "sess-1",
		Title:     "Weekly Sync",
		Device:    "default",
		StartedAt: started,
		EndedAt:   &ended,
		Status:    "completed",
	}
	entries := []store.Entry{
		{StartTime: 0, Text: "Hello everyone."},
		{StartTime: 60, Text: "Let's review the launch."},
	}

	doc := Render(sess, entries, nil)

	for _, want := range []string{
		"# Weekly Sync",
		"- **Started:** 2026-08-25 14:00",
		"- **Duration:** 2m10s",
		"- **Device:** default",
		"## Transcript",
		"**[00:00]** Hello everyone.",
		"**[01:00]** Let's review the launch.",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "## Summary") {
		t.Error("document has summary section without summaries")
	}
}

func TestRenderWithSummary(t *testing.T) {
	started := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	sess := store.Session{ID: "sess-1", Title: "Weekly Sync", StartedAt: started, Status: "completed"}
	summaries := []store.Summary{
		{
			SummaryType: "meeting",
			Content:     "## Key Points\n- Launch slipped a week.",
			ModelID:     "gpt-4o-mini",
			CreatedAt:   started.Add(time.Hour),
		},
	}

	doc := Render(sess, nil, summaries)

	for _, want := range []string{
		"_No transcript._",
		"## Summary (meeting)",
		"- Launch slipped a week.",
		"_Generated by gpt-4o-mini on 2026-08-25 15:00._",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestRenderEndsWithSingleNewline(t *testing.T) {
	sess := store.Session{Title: "T", StartedAt: time.Now(), Status: "completed"}
	doc := Render(sess, nil, nil)
	if !strings.HasSuffix(doc, "\n") || strings.HasSuffix(doc, "\n\n") {
		t.Fatalf("document ends with %q", doc[len(doc)-4:])
	}
}
