package models

// Category represents a product category
type Category struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Name     string    `gorm:"not null" json:"name"`
	Products []Product `json:"products,omitempty"`
}

// TableName pins the table name used by the hand-written tool queries
func (Category) TableName() string { return "categories" }

// Product represents a stocked product with its reorder threshold
type Product struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Name         string      `gorm:"not null" json:"name"`
	CategoryID   *uint       `gorm:"index" json:"category_id"`
	Category     *Category   `json:"category,omitempty"`
	Price        float64     `gorm:"not null;check:chk_products_price,price >= 0" json:"price"`
	ReorderLevel int         `gorm:"not null;check:chk_products_reorder_level,reorder_level >= 0" json:"reorder_level"`
	Inventory    []Inventory `json:"inventory,omitempty"`
}

func (Product) TableName() string { return "products" }
