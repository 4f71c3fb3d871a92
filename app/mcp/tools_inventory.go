package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"SmartIMS/app/models"

	"github.com/spf13/cast"
)

// getInventoryTools returns tool definitions for inventory operations
func getInventoryTools() []Tool {
	return []Tool{
		{
			Name:        "get_low_stock_items",
			Description: "Get products whose stock is at or below their reorder level, largest shortfall first",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"warehouse_id": map[string]interface{}{
						"type":        "integer",
						"description": "Optional warehouse ID to filter by",
					},
				},
			},
		},
		{
			Name:        "get_inventory_summary",
			Description: "Get every inventory row with its stock status (LOW STOCK, WARNING, OK) and total value",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "add_inventory",
			Description: "Add stock for a product at a warehouse. Creates the inventory row if needed, otherwise increases its quantity.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product_id": map[string]interface{}{
						"type":        "integer",
						"description": "ID of the product",
					},
					"warehouse_id": map[string]interface{}{
						"type":        "integer",
						"description": "ID of the warehouse",
					},
					"quantity": map[string]interface{}{
						"type":        "integer",
						"description": "Quantity to add (must not be negative)",
						"minimum":     0,
					},
				},
				"required": []string{"product_id", "warehouse_id", "quantity"},
			},
		},
	}
}

// executeInventoryTool executes an inventory-related tool
func executeInventoryTool(ctx context.Context, svc InventoryServiceInterface, events EventPublisher, name string, args map[string]interface{}) (interface{}, error) {
	if svc == nil {
		return nil, fmt.Errorf("inventory %w", errUnavailable)
	}

	switch name {
	case "get_low_stock_items":
		var warehouseID *uint
		if v, ok := args["warehouse_id"]; ok && v != nil {
			id, err := cast.ToUintE(plainNumber(v))
			if err != nil {
				return nil, fmt.Errorf("%w: warehouse_id must be a non-negative integer", models.ErrInvalidArgument)
			}
			// 0 means no filter
			if id > 0 {
				warehouseID = &id
			}
		}
		return svc.LowStock(ctx, warehouseID)

	case "get_inventory_summary":
		return svc.Summary(ctx)

	case "add_inventory":
		productID, err := requireUint(args, "product_id")
		if err != nil {
			return nil, err
		}
		warehouseID, err := requireUint(args, "warehouse_id")
		if err != nil {
			return nil, err
		}
		quantity, err := requireInt(args, "quantity")
		if err != nil {
			return nil, err
		}

		level, err := svc.AddInventory(ctx, productID, warehouseID, quantity)
		if err != nil {
			return nil, err
		}
		if events != nil {
			events.PublishInventoryChange(*level)
		}
		return level, nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

func requireUint(args map[string]interface{}, key string) (uint, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", models.ErrInvalidArgument, key)
	}
	if _, isBool := v.(bool); isBool {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidArgument, key)
	}
	n, err := cast.ToUintE(plainNumber(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a positive integer", models.ErrInvalidArgument, key)
	}
	return n, nil
}

func requireInt(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", models.ErrInvalidArgument, key)
	}
	if _, isBool := v.(bool); isBool {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidArgument, key)
	}
	n, err := cast.ToIntE(plainNumber(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidArgument, key)
	}
	return n, nil
}

// plainNumber turns json.Number into its string form, which cast parses
func plainNumber(v interface{}) interface{} {
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return v
}
