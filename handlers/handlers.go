package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PyTables/datasette-core/databases"
	"github.com/PyTables/datasette-core/types"
)

// inspectResult is the payload returned by the inspect_schema tool.
type inspectResult struct {
	Tables map[string]*types.TableMetadata `json:"tables"`
	Views  []string                        `json:"views"`
}

// executeResult is the payload returned by the execute_sql tool. When
// label resolution was requested the resolved labels ride along.
type executeResult struct {
	Columns     []string          `json:"columns"`
	Rows        []map[string]any  `json:"rows"`
	Truncated   bool              `json:"truncated"`
	RawLabels   map[string]string `json:"raw_labels,omitempty"`
	Labels      []resolvedLabel   `json:"labels,omitempty"`
	LabelsTable string            `json:"labels_table,omitempty"`
}

// resolvedLabel flattens one labeled foreign key entry for JSON.
type resolvedLabel struct {
	Column     string `json:"column"`
	Value      string `json:"value"`
	OtherTable string `json:"other_table"`
	Label      string `json:"label"`
}

// InspectHandler creates a handler for the inspect_schema tool.
func InspectHandler(connector databases.Connector) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, views, err := connector.Inspect(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Inspect failed: %v", err)), nil
		}

		return marshalResult(inspectResult{Tables: tables, Views: views})
	}
}

// ExecuteHandler creates a handler for the execute_sql tool.
func ExecuteHandler(connector databases.Connector) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing query parameter: %v", err)), nil
		}

		opts := databases.ExecuteOptions{}
		var labelTable string

		if args, ok := request.Params.Arguments.(map[string]any); ok {
			if raw, exists := args["params"]; exists {
				if s, ok := raw.(string); ok && s != "" {
					var params []any
					if err := json.Unmarshal([]byte(s), &params); err != nil {
						return mcp.NewToolResultError(fmt.Sprintf("Invalid params JSON: %v", err)), nil
					}
					opts.Params = params
				}
			}
			if truncate, ok := args["truncate"].(bool); ok {
				opts.Truncate = truncate
			}
			if ms, ok := args["time_limit_ms"].(float64); ok && ms > 0 {
				opts.TimeLimit = time.Duration(ms) * time.Millisecond
			}
			if table, ok := args["label_table"].(string); ok {
				labelTable = table
			}
		}

		res, err := connector.Execute(ctx, query, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Query failed: %v", err)), nil
		}

		out := executeResult{
			Columns:   res.Columns,
			Rows:      res.Rows,
			Truncated: res.Truncated,
		}

		if labelTable != "" {
			raw, labeled, err := connector.ResolveForeignKeys(ctx, labelTable, res.Rows)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Label resolution failed: %v", err)), nil
			}
			out.RawLabels = raw
			out.LabelsTable = labelTable
			for key, label := range labeled {
				out.Labels = append(out.Labels, resolvedLabel{
					Column:     key.Column,
					Value:      key.Value,
					OtherTable: label.OtherTable,
					Label:      label.Label,
				})
			}
		}

		return marshalResult(out)
	}
}

// DefinitionHandler creates a handler for the table_definition tool.
func DefinitionHandler(connector databases.Connector) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing name parameter: %v", err)), nil
		}

		kind := "table"
		if args, ok := request.Params.Arguments.(map[string]any); ok {
			if k, ok := args["kind"].(string); ok && k != "" {
				kind = k
			}
		}

		definition, ok, err := connector.Definition(ctx, name, kind)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Definition lookup failed: %v", err)), nil
		}
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("No %s named %s", kind, name)), nil
		}

		return mcp.NewToolResultText(definition), nil
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
