package mcp

import (
	"context"
	"fmt"
	"strings"

	"SmartIMS/app/llm"
	"SmartIMS/app/models"
)

// getQueryTools returns tool definitions for SQL execution and translation
func getQueryTools() []Tool {
	return []Tool{
		{
			Name:        "execute_sql_query",
			Description: "Execute a SQL query on the inventory database. Returns rows as objects, or the affected row count for statements without results.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"sql": map[string]interface{}{
						"type":        "string",
						"description": "The SQL statement to execute",
					},
				},
				"required": []string{"sql"},
			},
		},
		{
			Name:        "text_to_sql",
			Description: "Translate a natural-language request into a single SQL statement using the local LLM. Returns an SQL comment starting with -- when translation fails.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{
						"type":        "string",
						"description": "The request in plain language",
					},
				},
				"required": []string{"text"},
			},
		},
	}
}

// executeQueryTool executes a query-related tool
func executeQueryTool(ctx context.Context, svc QueryServiceInterface, translator llm.Translator, name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case "execute_sql_query":
		if svc == nil {
			return nil, fmt.Errorf("query %w", errUnavailable)
		}
		statement, err := requireString(args, "sql")
		if err != nil {
			return nil, err
		}
		return svc.ExecuteSQL(ctx, statement)

	case "text_to_sql":
		if translator == nil {
			return nil, fmt.Errorf("text-to-SQL %w", errUnavailable)
		}
		text, err := requireString(args, "text")
		if err != nil {
			return nil, err
		}
		return translator.TextToSQL(ctx, text), nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s is required", models.ErrInvalidArgument, key)
	}
	return v, nil
}
