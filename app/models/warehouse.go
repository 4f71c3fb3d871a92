package models

// Warehouse represents a stock location
type Warehouse struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Location  string      `gorm:"not null" json:"location"`
	Inventory []Inventory `json:"inventory,omitempty"`
}

func (Warehouse) TableName() string { return "warehouses" }

// Inventory holds the stock level of one product at one warehouse.
// The composite primary key keeps at most one row per pair.
type Inventory struct {
	ProductID   uint       `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	WarehouseID uint       `gorm:"primaryKey;autoIncrement:false;index" json:"warehouse_id"`
	Quantity    int        `gorm:"not null;check:chk_inventory_quantity,quantity >= 0" json:"quantity"`
	Product     *Product   `json:"product,omitempty"`
	Warehouse   *Warehouse `json:"warehouse,omitempty"`
}

func (Inventory) TableName() string { return "inventory" }
