package models

// TableDescription describes one table for the LLM and API consumers
type TableDescription struct {
	Columns     []string `json:"columns"`
	Description string   `json:"description"`
}

// SchemaDescription is the static description returned by get_database_schema
type SchemaDescription struct {
	Tables        map[string]TableDescription `json:"tables"`
	CommonQueries []string                    `json:"common_queries"`
}

// DescribeSchema returns the schema description. It never reads the database.
func DescribeSchema() SchemaDescription {
	return SchemaDescription{
		Tables: map[string]TableDescription{
			"categories": {
				Columns:     []string{"id (INTEGER, PRIMARY KEY)", "name (VARCHAR)"},
				Description: "Product categories like Electronics, Clothing, etc.",
			},
			"products": {
				Columns: []string{
					"id (INTEGER, PRIMARY KEY)",
					"name (VARCHAR)",
					"category_id (INTEGER, FOREIGN KEY to categories.id)",
					"price (FLOAT)",
					"reorder_level (INTEGER)",
				},
				Description: "Products with their details and reorder thresholds",
			},
			"warehouses": {
				Columns:     []string{"id (INTEGER, PRIMARY KEY)", "location (VARCHAR)"},
				Description: "Warehouse locations",
			},
			"inventory": {
				Columns: []string{
					"product_id (INTEGER, FOREIGN KEY to products.id)",
					"warehouse_id (INTEGER, FOREIGN KEY to warehouses.id)",
					"quantity (INTEGER)",
				},
				Description: "Current stock levels for each product at each warehouse",
			},
			"suppliers": {
				Columns:     []string{"id (INTEGER, PRIMARY KEY)", "name (VARCHAR)", "contact (VARCHAR)"},
				Description: "Supplier information",
			},
		},
		CommonQueries: []string{
			"Find low stock items: JOIN products, inventory, warehouses WHERE inventory.quantity <= products.reorder_level",
			"Add inventory: INSERT INTO inventory or UPDATE inventory SET quantity = quantity + ?",
			"Get product info: SELECT from products JOIN categories",
			"Inventory summary: JOIN all tables for comprehensive view",
		},
	}
}
