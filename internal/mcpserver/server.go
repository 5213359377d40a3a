// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Almanac memos to LLM clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/almanac/internal/autosave"
	"github.com/starford/almanac/internal/memoservice"
)

// FormatURI is the resource URI of the memo format contract.
const FormatURI = "almanac://memo-format"

// Server wraps the MCP server with Almanac tools.
type Server struct {
	mcp *server.MCPServer
	svc *memoservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *memoservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Almanac",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_windows",
		mcp.WithDescription("List memo windows (categories) in display order. "+
			"The first entry is the synthetic All window."),
	), s.listWindows)

	s.mcp.AddTool(mcp.NewTool("read_memo",
		mcp.WithDescription("Read the memo body of one window for a year."),
		mcp.WithNumber("year", mcp.Required(), mcp.Description("Calendar year, e.g. 2025")),
		mcp.WithString("window_id", mcp.Required(), mcp.Description("Window id from list_windows")),
	), s.readMemo)

	s.mcp.AddTool(mcp.NewTool("write_memo",
		mcp.WithDescription("Replace the memo body of one window for a year. "+
			"A blank body deletes the memo."),
		mcp.WithNumber("year", mcp.Required(), mcp.Description("Calendar year, e.g. 2025")),
		mcp.WithString("window_id", mcp.Required(), mcp.Description("Window id from list_windows")),
		mcp.WithString("body", mcp.Required(), mcp.Description("New memo body")),
	), s.writeMemo)

	s.mcp.AddTool(mcp.NewTool("read_combined_memo",
		mcp.WithDescription("Read every window's memo for a year as one combined document "+
			"with [Title] header lines. See get_memo_contract."),
		mcp.WithNumber("year", mcp.Required(), mcp.Description("Calendar year, e.g. 2025")),
	), s.readCombined)

	s.mcp.AddTool(mcp.NewTool("write_combined_memo",
		mcp.WithDescription("Write a combined memo document. It is split by [Title] headers "+
			"and every window is saved; windows without a section are cleared. "+
			"Read the contract first via get_memo_contract or the "+FormatURI+" resource."),
		mcp.WithNumber("year", mcp.Required(), mcp.Description("Calendar year, e.g. 2025")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Combined memo document")),
	), s.writeCombined)

	s.mcp.AddTool(mcp.NewTool("get_memo_contract",
		mcp.WithDescription("Returns the combined memo format contract. "+
			"Call this before writing combined memos."),
	), s.getMemoContract)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Memo Format Contract",
			mcp.WithResourceDescription("Combined memo document format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listWindows(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := s.svc.Windows(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(ws, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readMemo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	year, windowID, errRes := yearAndWindow(req)
	if errRes != nil {
		return errRes, nil
	}
	body, err := s.svc.GetBody(ctx, windowID, year)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(body), nil
}

func (s *Server) writeMemo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	year, windowID, errRes := yearAndWindow(req)
	if errRes != nil {
		return errRes, nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.known(ctx, windowID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SetBody(ctx, windowID, year, body); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s/%d", windowID, year)), nil
}

func (s *Server) readCombined(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	year, err := req.RequireInt("year")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.svc.Combined(ctx, year)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) writeCombined(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	year, err := req.RequireInt("year")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SaveCombined(ctx, year, text); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s/%d", autosave.CombinedID, year)), nil
}

func (s *Server) getMemoContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MemoFormatContract), nil
}

func (s *Server) readFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     MemoFormatContract,
		},
	}, nil
}

func yearAndWindow(req mcp.CallToolRequest) (int, string, *mcp.CallToolResult) {
	year, err := req.RequireInt("year")
	if err != nil {
		return 0, "", mcp.NewToolResultError(err.Error())
	}
	windowID, err := req.RequireString("window_id")
	if err != nil {
		return 0, "", mcp.NewToolResultError(err.Error())
	}
	return year, windowID, nil
}

// known rejects writes to window ids that do not exist.
func (s *Server) known(ctx context.Context, windowID string) error {
	ws, err := s.svc.Windows(ctx)
	if err != nil {
		return err
	}
	for _, w := range ws {
		if w.ID == windowID {
			return nil
		}
	}
	if windowID == autosave.CombinedID {
		return nil
	}
	return fmt.Errorf("unknown window %q; call list_windows", windowID)
}
