// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the editing workspace to LLM agents via stdio transport.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shepelt/davmark/internal/apperr"
	"github.com/shepelt/davmark/internal/remote"
	"github.com/shepelt/davmark/internal/session"
	"github.com/shepelt/davmark/internal/tree"
)

// Server wraps the MCP server with workspace tools. Reads go straight to
// the remote so agents always see the authoritative copy; writes route
// through the session controller so the cache and tree mirror stay
// consistent with what the editor shows.
type Server struct {
	mcp    *server.MCPServer
	remote remote.Client
	svc    *session.Controller
}

// New creates a new MCP server with all workspace tools registered.
func New(rc remote.Client, svc *session.Controller) *Server {
	s := &Server{remote: rc, svc: svc}

	s.mcp = server.NewMCPServer(
		"Davmark",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the full Markdown content of a file from the WebDAV workspace."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Rooted path to the file (e.g. /Notes/draft.md)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("save_file",
		mcp.WithDescription("Replace the content of an existing file. Image references use "+
			"workspace-relative paths (e.g. ./img.png); never reference proxy URLs."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Rooted path to the file")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full replacement Markdown content")),
	), s.saveFile)

	s.mcp.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List the files and subdirectories of a workspace directory."),
		mcp.WithString("dir", mcp.Description("Rooted directory path (defaults to /)")),
	), s.listDirectory)

	s.mcp.AddTool(mcp.NewTool("create_file",
		mcp.WithDescription("Create a new Markdown file at the specified path. Fails when the path exists."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Rooted path for the new file (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Initial Markdown content")),
	), s.createFile)

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

func rootedPath(req mcp.CallToolRequest) (string, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, nil
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := rootedPath(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.remote.Read(ctx, p, remote.Conditional{})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", p)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(res.Content)), nil
}

func (s *Server) saveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := rootedPath(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.remote.Read(ctx, p, remote.Conditional{}); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s (use create_file)", p)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Save(ctx, p, content, 0, 0); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", p)), nil
}

func (s *Server) listDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := "/"
	if d, err := req.RequireString("dir"); err == nil && d != "" {
		if !strings.HasPrefix(d, "/") {
			d = "/" + d
		}
		dir = d
	}

	nodes, err := s.svc.ListDir(ctx, dir, true)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", dir)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, n := range nodes {
		suffix := ""
		if n.Type == tree.Directory {
			suffix = "/"
		}
		lines = append(lines, n.Filename+suffix)
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("(empty)"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := rootedPath(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.CreateFile(ctx, p, content); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("already exists: %s", p)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", p)), nil
}
