package mcp

import (
	"fmt"

	"SmartIMS/app/models"
)

func getSchemaTools() []Tool {
	return []Tool{
		{
			Name:        "get_database_schema",
			Description: "Get the database schema description used to write accurate SQL",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// executeSchemaTool never touches the database, so its output does not
// depend on the stored data
func executeSchemaTool(name string) (interface{}, error) {
	if name != "get_database_schema" {
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
	return models.DescribeSchema(), nil
}
