package sqlcheck_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"SmartIMS/app/sqlcheck"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		sql         string
		allowWrites bool
		expected    error
	}{
		{
			name:     "simple select",
			sql:      "SELECT * FROM products;",
			expected: nil,
		},
		{
			name:     "select with join and trailing whitespace",
			sql:      "SELECT p.name FROM products p JOIN inventory i ON p.id = i.product_id ;  \n",
			expected: nil,
		},
		{
			name:     "cte read",
			sql:      "WITH low AS (SELECT * FROM inventory WHERE quantity < 5) SELECT * FROM low",
			expected: nil,
		},
		{
			name:     "blank",
			sql:      "  ;  ",
			expected: sqlcheck.ErrEmpty,
		},
		{
			name:     "comment only",
			sql:      "-- Error: Ollama service not available",
			expected: sqlcheck.ErrEmpty,
		},
		{
			name:     "stacked statements",
			sql:      "SELECT 1; DROP TABLE products;",
			expected: sqlcheck.ErrMultipleStatements,
		},
		{
			name:        "stacked statements even when writes allowed",
			sql:         "SELECT 1; SELECT 2",
			allowWrites: true,
			expected:    sqlcheck.ErrMultipleStatements,
		},
		{
			name:     "semicolon inside literal",
			sql:      "SELECT * FROM suppliers WHERE contact = 'a;b'",
			expected: nil,
		},
		{
			name:     "insert rejected by default",
			sql:      "INSERT INTO inventory (product_id, warehouse_id, quantity) VALUES (1, 1, 5);",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:        "insert allowed when writes enabled",
			sql:         "INSERT INTO inventory (product_id, warehouse_id, quantity) VALUES (1, 1, 5);",
			allowWrites: true,
			expected:    nil,
		},
		{
			name:     "data-modifying cte",
			sql:      "WITH d AS (DELETE FROM inventory RETURNING *) SELECT * FROM d",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:     "select into creates a table",
			sql:      "SELECT * INTO backup FROM products",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:     "write keyword inside literal is ignored",
			sql:      "SELECT * FROM products WHERE name = 'DROP TABLE'",
			expected: nil,
		},
		{
			name:     "write keyword inside comment is ignored",
			sql:      "SELECT 1 /* delete later */",
			expected: nil,
		},
		{
			name:     "hash is the xor operator, not a comment",
			sql:      "WITH a AS (SELECT 1 # 1 AS x), d AS (DELETE FROM inventory RETURNING *) SELECT * FROM d",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:     "xor read",
			sql:      "SELECT 5 # 3 AS x",
			expected: nil,
		},
		{
			name:     "quote inside dollar-quoted literal",
			sql:      "SELECT $$it's$$ AS note",
			expected: nil,
		},
		{
			name:     "tagged dollar quote cannot hide a second statement",
			sql:      "SELECT $tag$ x' $tag$ AS a, 1; UPDATE products SET price = 0 --'",
			expected: sqlcheck.ErrMultipleStatements,
		},
		{
			name:     "positional parameter",
			sql:      "SELECT * FROM products WHERE id = $1",
			expected: nil,
		},
		{
			name:     "backslash escape in escape string",
			sql:      "SELECT E'\\'' AS q; DELETE FROM inventory; --'",
			expected: sqlcheck.ErrMultipleStatements,
		},
		{
			name:     "nested block comment",
			sql:      "SELECT 1 /* outer /* inner */ ' */ ; DELETE FROM inventory; -- '",
			expected: sqlcheck.ErrMultipleStatements,
		},
		{
			name:     "bracket identifier on sqlite",
			sql:      "SELECT [a'] FROM products; DELETE FROM inventory; --'",
			expected: sqlcheck.ErrMultipleStatements,
		},
		{
			name:     "replace function is a read",
			sql:      "SELECT REPLACE(name,'a','b') FROM products",
			expected: nil,
		},
		{
			name:     "replace function with space before arguments",
			sql:      "SELECT REPLACE (name, 'a', 'b') FROM products",
			expected: nil,
		},
		{
			name:     "keyword-like column names",
			sql:      "SELECT p.name AS comment, w.location AS lock FROM products p LEFT JOIN inventory i ON i.product_id = p.id JOIN warehouses w ON w.id = i.warehouse_id",
			expected: nil,
		},
		{
			name:     "replace into after cte",
			sql:      "WITH s AS (SELECT 1) REPLACE INTO categories (id, name) SELECT 1, 'x' FROM s",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:     "sequence function",
			sql:      "SELECT setval('products_id_seq', 1)",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:     "explain analyze runs the write",
			sql:      "EXPLAIN ANALYZE DELETE FROM inventory",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:     "explain analyze create table as",
			sql:      "EXPLAIN ANALYZE CREATE TABLE t AS SELECT 1",
			expected: sqlcheck.ErrWriteStatement,
		},
		{
			name:     "pragma setter",
			sql:      "PRAGMA foreign_keys = OFF",
			expected: sqlcheck.ErrWriteStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			err := sqlcheck.Check(tt.sql, tt.allowWrites)
			if tt.expected == nil {
				c.Assert(err, qt.IsNil)
				return
			}
			c.Assert(err, qt.ErrorIs, tt.expected)
		})
	}
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		sql      string
		expected bool
	}{
		{"SELECT COUNT(*) FROM products;", true},
		{"  select 1", true},
		{"EXPLAIN SELECT 1", true},
		{"UPDATE inventory SET quantity = 1", false},
		{"INSERT INTO suppliers (name) VALUES ('x') RETURNING id", true},
		{"DELETE FROM suppliers", false},
		{"WITH s AS (SELECT 1) INSERT INTO categories (name) SELECT 'x' FROM s", false},
		{"WITH d AS (DELETE FROM suppliers RETURNING id) SELECT * FROM d", true},
		{"SELECT * INTO backup FROM products", false},
		{"SELECT REPLACE(name, 'a', 'b') FROM products", true},
		{"PRAGMA table_info(products)", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(sqlcheck.ReturnsRows(tt.sql), qt.Equals, tt.expected)
		})
	}
}

func TestFirstKeywordAndStatements(t *testing.T) {
	c := qt.New(t)

	c.Assert(sqlcheck.FirstKeyword("-- note\n  select 1"), qt.Equals, "SELECT")
	c.Assert(sqlcheck.FirstKeyword(""), qt.Equals, "")
	c.Assert(sqlcheck.Statements("SELECT 1;;SELECT 2;"), qt.Equals, 2)
	c.Assert(sqlcheck.Statements("SELECT ';'"), qt.Equals, 1)
	c.Assert(sqlcheck.IsReadOnly("SHOW search_path"), qt.IsTrue)
	c.Assert(sqlcheck.IsReadOnly("TRUNCATE inventory"), qt.IsFalse)
	c.Assert(sqlcheck.IsReadOnly("PRAGMA foreign_keys = OFF"), qt.IsFalse)
	c.Assert(sqlcheck.Statements("SELECT [x;y] FROM t"), qt.Equals, 2)
}
