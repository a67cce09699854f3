// Package main runs the notetaker MCP server: read-only access to saved
// meeting sessions over stdio, for wiring transcripts into AI assistants.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sai-itkc2020/ai-notetaker/internal/config"
	"github.com/sai-itkc2020/ai-notetaker/internal/export"
	"github.com/sai-itkc2020/ai-notetaker/internal/store"
)

func main() {
	st, err := store.OpenReadOnly(config.DefaultDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "notetaker-mcp: open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	s := server.NewMCPServer("notetaker", "0.1.0", server.WithToolCapabilities(false))

	s.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List saved meeting sessions, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return (default 20).")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sessions, err := st.Sessions()
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			limit := req.GetInt("limit", 20)
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}
			if len(sessions) == 0 {
				return mcp.NewToolResultText("No sessions recorded yet."), nil
			}

			var b strings.Builder
			for _, sess := range sessions {
				fmt.Fprintf(&b, "%s  %s  %s (%s)\n",
					sess.ID, sess.StartedAt.Format("2006-01-02 15:04"), sess.Title, sess.Status)
			}
			return mcp.NewToolResultText(b.String()), nil
		},
	)

	s.AddTool(
		mcp.NewTool("get_transcript",
			mcp.WithDescription("Get the timestamped transcript of a session."),
			mcp.WithString("session_id", mcp.Description("Session ID; omit for the most recent session.")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sess, errResult := resolveSession(st, req.GetString("session_id", ""))
			if errResult != nil {
				return errResult, nil
			}
			entries, err := st.EntriesForSession(sess.ID)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(entries) == 0 {
				return mcp.NewToolResultText(fmt.Sprintf("%s: no transcript.", sess.Title)), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%s (%s)\n\n", sess.Title, sess.StartedAt.Format("2006-01-02 15:04"))
			for _, en := range entries {
				fmt.Fprintf(&b, "%s %s\n", export.Timestamp(en.StartTime), en.Text)
			}
			return mcp.NewToolResultText(b.String()), nil
		},
	)

	s.AddTool(
		mcp.NewTool("get_summary",
			mcp.WithDescription("Get the latest AI summary of a session."),
			mcp.WithString("session_id", mcp.Description("Session ID; omit for the most recent session.")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sess, errResult := resolveSession(st, req.GetString("session_id", ""))
			if errResult != nil {
				return errResult, nil
			}
			summaries, err := st.SummariesForSession(sess.ID)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(summaries) == 0 {
				return mcp.NewToolResultText(fmt.Sprintf("%s: no summary yet.", sess.Title)), nil
			}
			sum := summaries[0]
			text := fmt.Sprintf("%s — %s summary (%s)\n\n%s",
				sess.Title, sum.SummaryType, sum.ModelID, sum.Content)
			return mcp.NewToolResultText(text), nil
		},
	)

	s.AddTool(
		mcp.NewTool("export_markdown",
			mcp.WithDescription("Render a session as a markdown document with transcript and summaries."),
			mcp.WithString("session_id", mcp.Description("Session ID; omit for the most recent session.")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sess, errResult := resolveSession(st, req.GetString("session_id", ""))
			if errResult != nil {
				return errResult, nil
			}
			entries, err := st.EntriesForSession(sess.ID)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			summaries, err := st.SummariesForSession(sess.ID)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(export.Render(*sess, entries, summaries)), nil
		},
	)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "notetaker-mcp: %v\n", err)
		os.Exit(1)
	}
}

// resolveSession looks up a session by ID, or the latest one when id is
// empty. The second return value is a ready-made error result.
func resolveSession(st *store.Store, id string) (*store.Session, *mcp.CallToolResult) {
	var (
		sess *store.Session
		err  error
	)
	if id == "" {
		sess, err = st.LatestSession()
	} else {
		sess, err = st.SessionByID(id)
	}
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	if sess == nil {
		if id == "" {
			return nil, mcp.NewToolResultError("no sessions recorded yet")
		}
		return nil, mcp.NewToolResultError("session not found: " + id)
	}
	return sess, nil
}
