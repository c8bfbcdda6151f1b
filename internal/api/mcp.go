package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/wterm/internal/settings"
)

// ConfigStore is the part of the settings store exposed over MCP.
type ConfigStore interface {
	Get(key string) (any, bool)
	Set(key, raw string, localOnly bool) error
	Reset()
	List() map[string]settings.Entry
	Keys() []string
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Settings ConfigStore
	Version  string
}

// NewMCPServer creates an MCP server with the terminal settings tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"wterm",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("wterm: read and change the terminal's settings. Global settings are confirmed by the remote server and may be reverted."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("config_get",
			mcp.WithDescription("Return the current value of a terminal setting."),
			mcp.WithString("key", mcp.Description("Setting key, e.g. sqlMaxResults"), mcp.Required()),
		),
		mcpConfigGet(deps),
	)

	s.AddTool(
		mcp.NewTool("config_set",
			mcp.WithDescription("Change a terminal setting. Global settings are sent to the server for confirmation unless local is true."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Raw value as typed in the terminal"), mcp.Required()),
			mcp.WithBoolean("local", mcp.Description("Apply locally without asking the server (default false)")),
		),
		mcpConfigSet(deps),
	)

	s.AddTool(
		mcp.NewTool("config_list",
			mcp.WithDescription("List every terminal setting with its value and whether it is global."),
		),
		mcpConfigList(deps),
	)

	s.AddTool(
		mcp.NewTool("config_reset",
			mcp.WithDescription("Reset all local settings to their defaults. Global settings keep their value."),
		),
		mcpConfigReset(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"config://settings",
			"Terminal Settings",
			mcp.WithResourceDescription("Current terminal settings as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSettings(deps),
	)

	return s
}

func mcpConfigGet(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		v, ok := deps.Settings.Get(key)
		if !ok {
			return mcpError(fmt.Sprintf("unknown setting %q", key)), nil
		}

		b, err := json.Marshal(v)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal value: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpConfigSet(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}
		local := req.GetBool("local", false)

		if err := deps.Settings.Set(key, value, local); err != nil {
			if errors.Is(err, settings.ErrUnknownKey) || errors.Is(err, settings.ErrInvalidValue) {
				return mcpError(err.Error()), nil
			}
			return mcpError(fmt.Sprintf("failed to set %s: %v", key, err)), nil
		}

		v, _ := deps.Settings.Get(key)
		return mcpText(fmt.Sprintf("Set %s = %v", key, v)), nil
	}
}

func mcpConfigList(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Settings.List())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal settings: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpConfigReset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Settings.Reset()
		return mcpText("Local settings reset to defaults"), nil
	}
}

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Settings.List())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
