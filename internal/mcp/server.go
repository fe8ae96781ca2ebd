package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sharenotes/internal/notes"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server exposing read-only catalog tools
func NewServer(svc *notes.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"ShareNotes",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Tool: list_notes - Browse the catalog
	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List study notes ordered by average rating (best first), newest first among equals. Supports pagination."),
			mcp.WithNumber("page",
				mcp.Description("Page number, starting at 1 (default: 1)"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Notes per page (default: 12, max: 100)"),
			),
		),
		handleListNotes(svc),
	)

	// Tool: search_notes - Filtered catalog search
	s.AddTool(
		mcp.NewTool("search_notes",
			mcp.WithDescription("Search study notes. The free-text query matches subject or faculty; subject and faculty filters narrow their own field. All matching is case-insensitive substring."),
			mcp.WithString("query",
				mcp.Description("Free-text query matched against subject and faculty"),
			),
			mcp.WithString("subject",
				mcp.Description("Filter by subject (substring match)"),
			),
			mcp.WithString("faculty",
				mcp.Description("Filter by faculty (substring match)"),
			),
			mcp.WithNumber("page",
				mcp.Description("Page number, starting at 1 (default: 1)"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Notes per page (default: 12, max: 100)"),
			),
		),
		handleSearchNotes(svc),
	)

	// Tool: get_note - Get a specific note by ID
	s.AddTool(
		mcp.NewTool("get_note",
			mcp.WithDescription("Get a specific note by its ID, including its ratings and download count."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("The note ID"),
			),
		),
		handleGetNote(svc),
	)

	return s
}

// NoteResult represents a note in tool responses
type NoteResult struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Year      string    `json:"year,omitempty"`
	Section   string    `json:"section,omitempty"`
	Faculty   string    `json:"faculty,omitempty"`
	IsPaid    bool      `json:"isPaid"`
	Price     float64   `json:"price"`
	AvgRating float64   `json:"avgRating"`
	Ratings   int       `json:"ratings"`
	Downloads int64     `json:"downloads"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListToolResult pairs one page of notes with the total match count
type ListToolResult struct {
	Notes []NoteResult `json:"notes"`
	Total int64        `json:"total"`
}

func handleListNotes(svc *notes.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := svc.List(ctx, notes.ListQuery{
			Page:  req.GetInt("page", 1),
			Limit: req.GetInt("limit", 12),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list notes: %v", err)), nil
		}

		data, _ := json.MarshalIndent(toListResult(result), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	}
}

func handleSearchNotes(svc *notes.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := svc.List(ctx, notes.ListQuery{
			Query:   req.GetString("query", ""),
			Subject: req.GetString("subject", ""),
			Faculty: req.GetString("faculty", ""),
			Page:    req.GetInt("page", 1),
			Limit:   req.GetInt("limit", 12),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to search notes: %v", err)), nil
		}

		data, _ := json.MarshalIndent(toListResult(result), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	}
}

func handleGetNote(svc *notes.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		note, err := svc.GetByID(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get note: %v", err)), nil
		}

		data, _ := json.MarshalIndent(toResult(note), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	}
}

// Helper functions

func toResult(note *notes.Note) NoteResult {
	return NoteResult{
		ID:        note.ID,
		Subject:   note.Subject,
		Year:      note.Year,
		Section:   note.Section,
		Faculty:   note.Faculty,
		IsPaid:    note.IsPaid,
		Price:     note.Price,
		AvgRating: note.AvgRating,
		Ratings:   len(note.Ratings),
		Downloads: note.Downloads,
		CreatedAt: note.CreatedAt,
	}
}

func toListResult(result *notes.ListResult) ListToolResult {
	out := ListToolResult{
		Notes: make([]NoteResult, len(result.Items)),
		Total: result.Total,
	}
	for i, note := range result.Items {
		out.Notes[i] = toResult(note)
	}
	return out
}
