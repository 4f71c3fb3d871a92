package services

import (
	"SmartIMS/app/metrics"
	"SmartIMS/app/models"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const lowStockQuery = `
SELECT p.id AS product_id, p.name AS product_name, COALESCE(c.name, '') AS category,
       p.reorder_level, i.quantity AS current_stock, w.id AS warehouse_id,
       w.location AS warehouse, p.price
FROM products p
JOIN inventory i ON p.id = i.product_id
JOIN warehouses w ON i.warehouse_id = w.id
LEFT JOIN categories c ON p.category_id = c.id
WHERE i.quantity <= p.reorder_level`

const lowStockOrder = `
ORDER BY (p.reorder_level - i.quantity) DESC, p.name, w.location`

const summaryQuery = `
SELECT p.id AS product_id, p.name AS product_name, COALESCE(c.name, '') AS category,
       w.id AS warehouse_id, w.location AS warehouse, i.quantity, p.reorder_level,
       CASE
           WHEN i.quantity <= p.reorder_level THEN 'LOW STOCK'
           WHEN i.quantity <= p.reorder_level * 1.5 THEN 'WARNING'
           ELSE 'OK'
       END AS stock_status,
       p.price, i.quantity * p.price AS total_value
FROM products p
JOIN inventory i ON p.id = i.product_id
JOIN warehouses w ON i.warehouse_id = w.id
LEFT JOIN categories c ON p.category_id = c.id
ORDER BY stock_status DESC, p.name, w.location`

// The conflict target is the composite primary key, so repeated adds accumulate.
const upsertInventory = `
INSERT INTO inventory (product_id, warehouse_id, quantity)
VALUES (?, ?, ?)
ON CONFLICT (product_id, warehouse_id)
DO UPDATE SET quantity = inventory.quantity + excluded.quantity`

// InventoryService implements the stock reports and the inventory upsert
type InventoryService struct {
	*BaseService
	log *logrus.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(conn *gorm.DB, log *logrus.Logger) *InventoryService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &InventoryService{
		BaseService: NewBaseService(conn),
		log:         log,
	}
}

// LowStock returns every (product, warehouse) pair whose quantity is at or
// below the reorder level, largest shortfall first. A non-nil warehouseID
// restricts the result to that warehouse.
func (s *InventoryService) LowStock(ctx context.Context, warehouseID *uint) ([]models.LowStockItem, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}

	query := lowStockQuery
	var args []interface{}
	if warehouseID != nil {
		query += "\n  AND w.id = ?"
		args = append(args, *warehouseID)
	}
	query += lowStockOrder

	items := []models.LowStockItem{}
	if err := s.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to query low stock items: %w", err)
	}
	return items, nil
}

// Summary returns every inventory row with its stock status and value
func (s *InventoryService) Summary(ctx context.Context) ([]models.InventorySummaryRow, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}

	rows := []models.InventorySummaryRow{}
	if err := s.WithContext(ctx).Raw(summaryQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query inventory summary: %w", err)
	}
	return rows, nil
}

// AddInventory adds quantity units of a product to a warehouse, creating the
// inventory row when the pair has none yet
func (s *InventoryService) AddInventory(ctx context.Context, productID, warehouseID uint, quantity int) (*models.InventoryLevel, error) {
	if productID == 0 || warehouseID == 0 {
		return nil, fmt.Errorf("%w: product_id and warehouse_id are required", ErrInvalidArgument)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative, got %d", ErrInvalidArgument, quantity)
	}

	var level *models.InventoryLevel
	err := s.WithTransaction(ctx, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", ErrNotFound, productID)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		var warehouse models.Warehouse
		if err := tx.First(&warehouse, warehouseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: warehouse %d", ErrNotFound, warehouseID)
			}
			return fmt.Errorf("failed to load warehouse: %w", err)
		}

		if err := tx.Exec(upsertInventory, productID, warehouseID, quantity).Error; err != nil {
			return fmt.Errorf("failed to add inventory: %w", mapDBError(err))
		}

		var row models.Inventory
		if err := tx.Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to reload inventory: %w", err)
		}

		level = &models.InventoryLevel{
			ProductID:    product.ID,
			ProductName:  product.Name,
			WarehouseID:  warehouse.ID,
			Warehouse:    warehouse.Location,
			Added:        quantity,
			Quantity:     row.Quantity,
			ReorderLevel: product.ReorderLevel,
			StockStatus:  models.ClassifyStock(row.Quantity, product.ReorderLevel),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordInventoryAdded(quantity)
	s.log.WithFields(logrus.Fields{
		"product_id":   productID,
		"warehouse_id": warehouseID,
		"added":        quantity,
		"quantity":     level.Quantity,
	}).Info("Inventory updated")

	return level, nil
}

// Product loads a product with its category, or returns ErrNotFound
func (s *InventoryService) Product(ctx context.Context, productID uint) (*models.Product, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}
	var product models.Product
	if err := s.WithContext(ctx).Preload("Category").First(&product, productID).Error; err != nil {
		return nil, mapDBError(err)
	}
	return &product, nil
}
