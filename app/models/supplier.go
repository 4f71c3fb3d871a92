package models

// Supplier represents a vendor. Suppliers are not linked to products.
type Supplier struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"not null" json:"name"`
	Contact string `json:"contact"`
}

func (Supplier) TableName() string { return "suppliers" }
