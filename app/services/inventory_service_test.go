package services

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"gorm.io/gorm"

	"SmartIMS/app/database"
	"SmartIMS/app/models"
)

// newSeededDB returns an in-memory database holding the sample data
func newSeededDB(c *qt.C) *gorm.DB {
	c.Helper()
	conn, err := database.OpenSQLite(":memory:", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(database.RunMigrations(conn), qt.IsNil)
	_, err = database.Seed(conn, true)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func productID(c *qt.C, conn *gorm.DB, name string) uint {
	c.Helper()
	var p models.Product
	c.Assert(conn.Where("name = ?", name).First(&p).Error, qt.IsNil)
	return p.ID
}

func warehouseID(c *qt.C, conn *gorm.DB, location string) uint {
	c.Helper()
	var w models.Warehouse
	c.Assert(conn.Where("location = ?", location).First(&w).Error, qt.IsNil)
	return w.ID
}

func TestLowStock(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	svc := NewInventoryService(conn, nil)

	items, err := svc.LowStock(context.Background(), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(items, qt.HasLen, 11)

	for _, item := range items {
		c.Assert(item.CurrentStock <= item.ReorderLevel, qt.IsTrue, qt.Commentf("%+v", item))
	}

	// Smartphone at the main warehouse has the largest shortfall (15 - 8)
	first := items[0]
	c.Assert(first.ProductName, qt.Equals, "Smartphone")
	c.Assert(first.Warehouse, qt.Equals, "Main Warehouse - Downtown")
	c.Assert(first.CurrentStock, qt.Equals, 8)
	c.Assert(first.ReorderLevel, qt.Equals, 15)
	c.Assert(first.Category, qt.Equals, "Electronics")
	c.Assert(first.Price, qt.Equals, 699.99)
}

func TestLowStockByWarehouse(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	svc := NewInventoryService(conn, nil)

	north := warehouseID(c, conn, "North Branch")
	items, err := svc.LowStock(context.Background(), &north)
	c.Assert(err, qt.IsNil)
	c.Assert(items, qt.HasLen, 5)
	for _, item := range items {
		c.Assert(item.WarehouseID, qt.Equals, north)
	}

	missing := uint(999)
	items, err = svc.LowStock(context.Background(), &missing)
	c.Assert(err, qt.IsNil)
	c.Assert(items, qt.HasLen, 0)
}

func TestSummary(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	svc := NewInventoryService(conn, nil)

	rows, err := svc.Summary(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 19)

	counts := map[string]int{}
	for _, row := range rows {
		counts[row.StockStatus]++
		c.Assert(row.StockStatus, qt.Equals, models.ClassifyStock(row.Quantity, row.ReorderLevel))
		c.Assert(row.TotalValue, qt.Equals, float64(row.Quantity)*row.Price)
	}
	c.Assert(counts, qt.DeepEquals, map[string]int{
		models.StockStatusLow:     11,
		models.StockStatusWarning: 6,
		models.StockStatusOK:      2,
	})
}

func TestAddInventoryAccumulates(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	svc := NewInventoryService(conn, nil)
	ctx := context.Background()

	laptop := productID(c, conn, "Laptop")
	south := warehouseID(c, conn, "South Distribution Center")

	level, err := svc.AddInventory(ctx, laptop, south, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(level.Quantity, qt.Equals, 5)
	c.Assert(level.Added, qt.Equals, 5)
	c.Assert(level.StockStatus, qt.Equals, models.StockStatusLow)

	level, err = svc.AddInventory(ctx, laptop, south, 7)
	c.Assert(err, qt.IsNil)
	c.Assert(level.Quantity, qt.Equals, 12)
	c.Assert(level.StockStatus, qt.Equals, models.StockStatusWarning)

	var count int64
	c.Assert(conn.Model(&models.Inventory{}).
		Where("product_id = ? AND warehouse_id = ?", laptop, south).
		Count(&count).Error, qt.IsNil)
	c.Assert(count, qt.Equals, int64(1))
}

func TestAddInventoryExistingRow(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	svc := NewInventoryService(conn, nil)

	phone := productID(c, conn, "Smartphone")
	main := warehouseID(c, conn, "Main Warehouse - Downtown")

	level, err := svc.AddInventory(context.Background(), phone, main, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(level.Quantity, qt.Equals, 18)
	c.Assert(level.ProductName, qt.Equals, "Smartphone")
	c.Assert(level.Warehouse, qt.Equals, "Main Warehouse - Downtown")

	items, err := svc.LowStock(context.Background(), &main)
	c.Assert(err, qt.IsNil)
	for _, item := range items {
		c.Assert(item.ProductName, qt.Not(qt.Equals), "Smartphone")
	}
}

func TestAddInventoryRejects(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	svc := NewInventoryService(conn, nil)
	ctx := context.Background()

	laptop := productID(c, conn, "Laptop")
	main := warehouseID(c, conn, "Main Warehouse - Downtown")

	tests := []struct {
		name        string
		productID   uint
		warehouseID uint
		quantity    int
		expected    error
	}{
		{"negative quantity", laptop, main, -1, ErrInvalidArgument},
		{"missing product id", 0, main, 1, ErrInvalidArgument},
		{"unknown product", 9999, main, 1, ErrNotFound},
		{"unknown warehouse", laptop, 9999, 1, ErrNotFound},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			_, err := svc.AddInventory(ctx, tt.productID, tt.warehouseID, tt.quantity)
			c.Assert(err, qt.ErrorIs, tt.expected)
		})
	}

	// rejected calls leave the row untouched
	var row models.Inventory
	c.Assert(conn.Where("product_id = ? AND warehouse_id = ?", laptop, main).First(&row).Error, qt.IsNil)
	c.Assert(row.Quantity, qt.Equals, 15)
}

func TestProduct(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	svc := NewInventoryService(conn, nil)

	p, err := svc.Product(context.Background(), productID(c, conn, "Tent"))
	c.Assert(err, qt.IsNil)
	c.Assert(p.Name, qt.Equals, "Tent")
	c.Assert(p.Category, qt.IsNotNil)
	c.Assert(p.Category.Name, qt.Equals, "Sports & Outdoors")

	_, err = svc.Product(context.Background(), 4242)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}
