package database

import (
	"SmartIMS/app/models"
	"fmt"

	"gorm.io/gorm"
)

// SeedSummary reports how many rows the seeding routine created
type SeedSummary struct {
	Categories int  `json:"categories"`
	Warehouses int  `json:"warehouses"`
	Suppliers  int  `json:"suppliers"`
	Products   int  `json:"products"`
	Inventory  int  `json:"inventory"`
	Skipped    bool `json:"skipped"`
}

type seedProduct struct {
	name         string
	category     string
	price        float64
	reorderLevel int
}

type seedStock struct {
	product   string
	warehouse string
	quantity  int
}

var seedCategories = []string{"Electronics", "Clothing", "Home & Garden", "Sports & Outdoors", "Books"}

var seedWarehouses = []string{"Main Warehouse - Downtown", "North Branch", "South Distribution Center"}

var seedSuppliers = []models.Supplier{
	{Name: "TechSupply Co", Contact: "tech@supply.com"},
	{Name: "Fashion Distributors", Contact: "orders@fashion.com"},
	{Name: "HomeGoods Inc", Contact: "wholesale@homegoods.com"},
	{Name: "SportWorld", Contact: "sales@sportworld.com"},
	{Name: "BookSource", Contact: "orders@booksource.com"},
}

var seedProducts = []seedProduct{
	{"Laptop", "Electronics", 999.99, 10},
	{"Smartphone", "Electronics", 699.99, 15},
	{"Tablet", "Electronics", 399.99, 12},
	{"Headphones", "Electronics", 149.99, 25},
	{"T-Shirt", "Clothing", 19.99, 50},
	{"Jeans", "Clothing", 79.99, 30},
	{"Sneakers", "Clothing", 129.99, 20},
	{"Coffee Maker", "Home & Garden", 89.99, 15},
	{"Garden Hose", "Home & Garden", 24.99, 20},
	{"Dining Chair", "Home & Garden", 159.99, 8},
	{"Basketball", "Sports & Outdoors", 29.99, 30},
	{"Tent", "Sports & Outdoors", 249.99, 5},
	{"Hiking Boots", "Sports & Outdoors", 179.99, 12},
	{"Programming Guide", "Books", 49.99, 25},
	{"Fiction Novel", "Books", 14.99, 40},
}

// Several rows sit at or below their reorder level so low-stock reports have data.
var seedInventory = []seedStock{
	{"Laptop", "Main Warehouse - Downtown", 15},
	{"Smartphone", "Main Warehouse - Downtown", 8},
	{"Tablet", "Main Warehouse - Downtown", 20},
	{"Headphones", "Main Warehouse - Downtown", 35},
	{"T-Shirt", "Main Warehouse - Downtown", 45},
	{"Jeans", "Main Warehouse - Downtown", 25},
	{"Sneakers", "Main Warehouse - Downtown", 22},
	{"Coffee Maker", "Main Warehouse - Downtown", 18},

	{"Laptop", "North Branch", 5},
	{"Smartphone", "North Branch", 12},
	{"Garden Hose", "North Branch", 25},
	{"Dining Chair", "North Branch", 6},
	{"Basketball", "North Branch", 28},
	{"Tent", "North Branch", 3},

	{"Tablet", "South Distribution Center", 8},
	{"Headphones", "South Distribution Center", 40},
	{"Hiking Boots", "South Distribution Center", 10},
	{"Programming Guide", "South Distribution Center", 30},
	{"Fiction Novel", "South Distribution Center", 35},
}

// Seed populates the database with sample data. With reset it clears every
// table first; otherwise it does nothing when products already exist.
func Seed(conn *gorm.DB, reset bool) (*SeedSummary, error) {
	summary := &SeedSummary{}

	err := conn.Transaction(func(tx *gorm.DB) error {
		if reset {
			if err := clearAll(tx); err != nil {
				return err
			}
		} else {
			var count int64
			if err := tx.Model(&models.Product{}).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to count products: %w", err)
			}
			if count > 0 {
				summary.Skipped = true
				return nil
			}
		}

		categoryIDs := make(map[string]uint, len(seedCategories))
		for _, name := range seedCategories {
			cat := models.Category{Name: name}
			if err := tx.Create(&cat).Error; err != nil {
				return fmt.Errorf("failed to create category %q: %w", name, err)
			}
			categoryIDs[name] = cat.ID
		}
		summary.Categories = len(categoryIDs)

		warehouseIDs := make(map[string]uint, len(seedWarehouses))
		for _, location := range seedWarehouses {
			wh := models.Warehouse{Location: location}
			if err := tx.Create(&wh).Error; err != nil {
				return fmt.Errorf("failed to create warehouse %q: %w", location, err)
			}
			warehouseIDs[location] = wh.ID
		}
		summary.Warehouses = len(warehouseIDs)

		suppliers := make([]models.Supplier, len(seedSuppliers))
		copy(suppliers, seedSuppliers)
		if err := tx.Create(&suppliers).Error; err != nil {
			return fmt.Errorf("failed to create suppliers: %w", err)
		}
		summary.Suppliers = len(suppliers)

		productIDs := make(map[string]uint, len(seedProducts))
		for _, p := range seedProducts {
			categoryID := categoryIDs[p.category]
			product := models.Product{
				Name:         p.name,
				CategoryID:   &categoryID,
				Price:        p.price,
				ReorderLevel: p.reorderLevel,
			}
			if err := tx.Create(&product).Error; err != nil {
				return fmt.Errorf("failed to create product %q: %w", p.name, err)
			}
			productIDs[p.name] = product.ID
		}
		summary.Products = len(productIDs)

		rows := make([]models.Inventory, 0, len(seedInventory))
		for _, s := range seedInventory {
			rows = append(rows, models.Inventory{
				ProductID:   productIDs[s.product],
				WarehouseID: warehouseIDs[s.warehouse],
				Quantity:    s.quantity,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to create inventory: %w", err)
		}
		summary.Inventory = len(rows)

		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// clearAll deletes rows child tables first so foreign keys hold
func clearAll(tx *gorm.DB) error {
	for _, model := range []interface{}{
		&models.Inventory{},
		&models.Product{},
		&models.Category{},
		&models.Warehouse{},
		&models.Supplier{},
	} {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", model, err)
		}
	}
	return nil
}
