package mcp

import (
	goMCP "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/PyTables/datasette-core/databases"
	"github.com/PyTables/datasette-core/handlers"
)

func RegisterTools(s *server.MCPServer, connector databases.Connector) {
	// Schema inspection tool
	inspectTool := goMCP.NewTool("inspect_schema",
		goMCP.WithDescription("Inspect the database schema: tables, columns, primary keys, row counts, foreign keys and views"),
	)

	// Query tool
	executeTool := goMCP.NewTool("execute_sql",
		goMCP.WithDescription("Execute a single read-only SQL statement under a time limit"),
		goMCP.WithString("query",
			goMCP.Required(),
			goMCP.Description("SQL statement to execute"),
		),
		goMCP.WithString("params",
			goMCP.Description("JSON array of positional parameter values"),
		),
		goMCP.WithBoolean("truncate",
			goMCP.Description("Cap the result at the configured maximum row count"),
		),
		goMCP.WithNumber("time_limit_ms",
			goMCP.Description("Wall-clock budget for the statement in milliseconds"),
		),
		goMCP.WithString("label_table",
			goMCP.Description("Resolve foreign key labels for rows of this table"),
		),
	)

	// Definition tool
	definitionTool := goMCP.NewTool("table_definition",
		goMCP.WithDescription("Return the stored SQL definition of a catalog object"),
		goMCP.WithString("name",
			goMCP.Required(),
			goMCP.Description("Name of the catalog object"),
		),
		goMCP.WithString("kind",
			goMCP.Description("Object kind: table, view or index (default: table)"),
		),
	)

	s.AddTool(inspectTool, handlers.InspectHandler(connector))
	s.AddTool(executeTool, handlers.ExecuteHandler(connector))
	s.AddTool(definitionTool, handlers.DefinitionHandler(connector))
}
