package models

// Stock status labels used by the inventory summary
const (
	StockStatusLow     = "LOW STOCK"
	StockStatusWarning = "WARNING"
	StockStatusOK      = "OK"
)

// WarningFactor is the multiple of the reorder level under which stock is flagged WARNING
const WarningFactor = 1.5

// LowStockItem is one (product, warehouse) pair at or below its reorder level
type LowStockItem struct {
	ProductID    uint    `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Category     string  `json:"category"`
	ReorderLevel int     `json:"reorder_level"`
	CurrentStock int     `json:"current_stock"`
	WarehouseID  uint    `json:"warehouse_id"`
	Warehouse    string  `json:"warehouse"`
	Price        float64 `json:"price"`
}

// InventorySummaryRow is one inventory row classified by stock status
type InventorySummaryRow struct {
	ProductID    uint    `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Category     string  `json:"category"`
	WarehouseID  uint    `json:"warehouse_id"`
	Warehouse    string  `json:"warehouse"`
	Quantity     int     `json:"quantity"`
	ReorderLevel int     `json:"reorder_level"`
	StockStatus  string  `json:"stock_status"`
	Price        float64 `json:"price"`
	TotalValue   float64 `json:"total_value"`
}

// ClassifyStock returns the stock status for a quantity against a reorder level
func ClassifyStock(quantity, reorderLevel int) string {
	switch {
	case quantity <= reorderLevel:
		return StockStatusLow
	case float64(quantity) <= float64(reorderLevel)*WarningFactor:
		return StockStatusWarning
	default:
		return StockStatusOK
	}
}

// InventoryLevel is the stock of one pair after an inventory change
type InventoryLevel struct {
	ProductID    uint   `json:"product_id"`
	ProductName  string `json:"product_name"`
	WarehouseID  uint   `json:"warehouse_id"`
	Warehouse    string `json:"warehouse"`
	Added        int    `json:"added"`
	Quantity     int    `json:"quantity"`
	ReorderLevel int    `json:"reorder_level"`
	StockStatus  string `json:"stock_status"`
}
