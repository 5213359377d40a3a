package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/almanac/internal/memoservice"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/testutil"
)

func testServer(t *testing.T) (*Server, *memoservice.Service) {
	t.Helper()
	svc := memoservice.New(testutil.TestVault(t))
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_windows":        srv.listWindows,
		"read_memo":           srv.readMemo,
		"write_memo":          srv.writeMemo,
		"read_combined_memo":  srv.readCombined,
		"write_combined_memo": srv.writeCombined,
		"get_memo_contract":   srv.getMemoContract,
	}
	h, ok := handlers[name]
	require.True(t, ok, "unknown tool %s", name)

	result, err := h(context.Background(), req)
	require.NoError(t, err)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListWindows(t *testing.T) {
	srv, svc := testServer(t)
	_, err := svc.CreateWindow(context.Background(), "Work", "")
	require.NoError(t, err)

	r := callTool(t, srv, "list_windows", nil)
	require.False(t, r.IsError)
	var ws []models.Window
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &ws))
	require.Len(t, ws, 2)
	assert.Equal(t, models.AllWindowID, ws[0].ID)
	assert.Equal(t, "Work", ws[1].Title)
}

func TestWriteAndReadMemo(t *testing.T) {
	srv, svc := testServer(t)
	w, _ := svc.CreateWindow(context.Background(), "Work", "")

	r := callTool(t, srv, "write_memo", map[string]any{"year": 2025, "window_id": w.ID, "body": "hello"})
	require.False(t, r.IsError, resultText(r))

	r = callTool(t, srv, "read_memo", map[string]any{"year": 2025, "window_id": w.ID})
	assert.Equal(t, "hello", resultText(r))
}

func TestWriteMemo_UnknownWindow(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "write_memo", map[string]any{"year": 2025, "window_id": "nope", "body": "x"})
	assert.True(t, r.IsError)
}

func TestReadMemo_MissingArgs(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_memo", map[string]any{"window_id": "w"})
	assert.True(t, r.IsError)
}

func TestCombinedMemo(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	work, _ := svc.CreateWindow(ctx, "Work", "")
	home, _ := svc.CreateWindow(ctx, "Home", "")

	r := callTool(t, srv, "write_combined_memo", map[string]any{"year": 2025, "text": "[Work]\nBuy milk\n[Home]"})
	require.False(t, r.IsError, resultText(r))

	body, _ := svc.GetBody(ctx, work.ID, 2025)
	assert.Equal(t, "Buy milk", body)
	body, _ = svc.GetBody(ctx, home.ID, 2025)
	assert.Equal(t, "", body)

	r = callTool(t, srv, "read_combined_memo", map[string]any{"year": 2025})
	assert.Equal(t, "[Work]\nBuy milk\n\n[Home]", resultText(r))
}

func TestGetMemoContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_memo_contract", nil)
	assert.Equal(t, MemoFormatContract, resultText(r))
	assert.Contains(t, resultText(r), "[Title]")
}

func TestFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, FormatURI, tc.URI)
}
