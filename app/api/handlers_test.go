package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"SmartIMS/app/config"
	"SmartIMS/app/database"
	"SmartIMS/app/mcp"
	"SmartIMS/app/models"
	"SmartIMS/app/services"
)

type stubTranslator struct {
	sql       string
	available bool
}

func (s *stubTranslator) TextToSQL(ctx context.Context, text string) string { return s.sql }

func (s *stubTranslator) IsAvailable(ctx context.Context) bool { return s.available }

type recordingEvents struct {
	levels []models.InventoryLevel
}

func (r *recordingEvents) PublishInventoryChange(level models.InventoryLevel) {
	r.levels = append(r.levels, level)
}

type fixture struct {
	conn       *gorm.DB
	server     *Server
	translator *stubTranslator
	events     *recordingEvents
}

func newFixture(c *qt.C, mutate func(cfg *config.AppConfig, deps *Dependencies)) *fixture {
	c.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

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

	inventory := services.NewInventoryService(conn, log)
	translator := &stubTranslator{sql: "SELECT name FROM products WHERE reorder_level >= 30 ORDER BY name;", available: true}
	tools := mcp.NewMCPServer(config.MCPConfig{}, &mcp.ServiceDependencies{
		Inventory:  inventory,
		Query:      services.NewQueryService(conn, log),
		Translator: translator,
	}, log)

	cfg := &config.AppConfig{
		Server: config.ServerConfig{CORSOrigins: "*"},
		Query:  config.QueryConfig{RateLimit: 0, Burst: 5},
	}
	events := &recordingEvents{}
	deps := Dependencies{
		Tools:         mcp.NewInProcessClient(tools),
		Translator:    translator,
		Products:      inventory,
		Ping:          func(ctx context.Context) error { return database.Ping(conn) },
		Events:        events,
		PublishEvents: true,
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}

	return &fixture{
		conn:       conn,
		server:     NewServer(cfg, deps, log),
		translator: translator,
		events:     events,
	}
}

func (f *fixture) do(c *qt.C, method, path, body string) *httptest.ResponseRecorder {
	c.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) id(c *qt.C, table, column, value string) uint {
	c.Helper()
	var id uint
	c.Assert(f.conn.Table(table).Select("id").Where(column+" = ?", value).Scan(&id).Error, qt.IsNil)
	c.Assert(id, qt.Not(qt.Equals), uint(0))
	return id
}

func decodeJSON(c *qt.C, rec *httptest.ResponseRecorder, v interface{}) {
	c.Helper()
	c.Assert(json.Unmarshal(rec.Body.Bytes(), v), qt.IsNil, qt.Commentf("%s", rec.Body.String()))
}

func TestRootAndHealth(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodGet, "/", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var banner map[string]string
	decodeJSON(c, rec, &banner)
	c.Assert(banner["version"], qt.Equals, Version)
	c.Assert(rec.Header().Get("X-Request-ID"), qt.Not(qt.Equals), "")

	rec = f.do(c, http.MethodGet, "/health", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var health map[string]string
	decodeJSON(c, rec, &health)
	c.Assert(health, qt.DeepEquals, map[string]string{
		"status":   "healthy",
		"database": "connected",
		"llm":      "available",
	})
}

func TestHealthDatabaseDown(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, func(cfg *config.AppConfig, deps *Dependencies) {
		deps.Ping = func(ctx context.Context) error { return errors.New("connection refused") }
	})
	f.translator.available = false

	rec := f.do(c, http.MethodGet, "/health", "")
	c.Assert(rec.Code, qt.Equals, http.StatusServiceUnavailable)
	var health map[string]string
	decodeJSON(c, rec, &health)
	c.Assert(health["database"], qt.Equals, "disconnected")
	c.Assert(health["llm"], qt.Equals, "unavailable")
}

func TestLowStockEndpoint(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodGet, "/api/inventory/low-stock", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var items []models.LowStockItem
	decodeJSON(c, rec, &items)
	c.Assert(items, qt.HasLen, 11)
	c.Assert(items[0].ProductName, qt.Equals, "Smartphone")
	c.Assert(items[0].CurrentStock, qt.Equals, 8)

	north := f.id(c, "warehouses", "location", "North Branch")
	rec = f.do(c, http.MethodGet, "/api/inventory/low-stock?warehouse_id="+jsonNumber(north), "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	decodeJSON(c, rec, &items)
	c.Assert(items, qt.HasLen, 5)

	rec = f.do(c, http.MethodGet, "/api/inventory/low-stock?warehouse_id=north", "")
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestSummaryAndSchemaEndpoints(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodGet, "/api/inventory/summary", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var rows []models.InventorySummaryRow
	decodeJSON(c, rec, &rows)
	c.Assert(rows, qt.HasLen, 19)

	rec = f.do(c, http.MethodGet, "/api/schema", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var schema models.SchemaDescription
	decodeJSON(c, rec, &schema)
	c.Assert(schema, qt.DeepEquals, models.DescribeSchema())
}

func TestAddInventoryEndpoint(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	laptop := f.id(c, "products", "name", "Laptop")
	south := f.id(c, "warehouses", "location", "South Distribution Center")
	body := func(qty int) string {
		return `{"product_id": ` + jsonNumber(laptop) + `, "warehouse_id": ` + jsonNumber(south) + `, "quantity": ` + jsonNumber(uint(qty)) + `}`
	}

	rec := f.do(c, http.MethodPost, "/api/inventory/add", body(5))
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body.String()))
	var level models.InventoryLevel
	decodeJSON(c, rec, &level)
	c.Assert(level.Quantity, qt.Equals, 5)
	c.Assert(level.StockStatus, qt.Equals, models.StockStatusLow)

	rec = f.do(c, http.MethodPost, "/api/inventory/add", body(7))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	decodeJSON(c, rec, &level)
	c.Assert(level.Quantity, qt.Equals, 12)
	c.Assert(level.StockStatus, qt.Equals, models.StockStatusWarning)

	c.Assert(f.events.levels, qt.HasLen, 2)
	c.Assert(f.events.levels[1].Quantity, qt.Equals, 12)
}

func TestAddInventoryErrors(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	tests := []struct {
		about  string
		body   string
		status int
	}{{
		about:  "malformed body",
		body:   `{"product_id":`,
		status: http.StatusBadRequest,
	}, {
		about:  "missing quantity",
		body:   `{"product_id": 1, "warehouse_id": 1}`,
		status: http.StatusBadRequest,
	}, {
		about:  "negative quantity",
		body:   `{"product_id": 1, "warehouse_id": 1, "quantity": -3}`,
		status: http.StatusBadRequest,
	}, {
		about:  "unknown product",
		body:   `{"product_id": 9999, "warehouse_id": 1, "quantity": 3}`,
		status: http.StatusNotFound,
	}}

	for _, test := range tests {
		c.Run(test.about, func(c *qt.C) {
			rec := f.do(c, http.MethodPost, "/api/inventory/add", test.body)
			c.Assert(rec.Code, qt.Equals, test.status, qt.Commentf("%s", rec.Body.String()))
			var body map[string]string
			decodeJSON(c, rec, &body)
			c.Assert(body["detail"], qt.Not(qt.Equals), "")
		})
	}
	c.Assert(f.events.levels, qt.HasLen, 0)
}

func TestQueryEndpoint(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodPost, "/api/query", `{"question": "which products have a high reorder level?"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body.String()))

	var got struct {
		Question string              `json:"question"`
		SQL      string              `json:"sql"`
		Results  []map[string]string `json:"results"`
	}
	decodeJSON(c, rec, &got)
	c.Assert(got.SQL, qt.Equals, f.translator.sql)
	c.Assert(got.Results, qt.DeepEquals, []map[string]string{
		{"name": "Basketball"},
		{"name": "Fiction Novel"},
		{"name": "Jeans"},
		{"name": "T-Shirt"},
	})

	rec = f.do(c, http.MethodPost, "/api/query", `{"question": "  "}`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestQueryEndpointLLMUnavailable(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	f.translator.sql = "-- Error: Ollama service not available\n-- Original request: delete everything"

	rec := f.do(c, http.MethodPost, "/api/query", `{"question": "delete everything"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusServiceUnavailable)
	var body map[string]string
	decodeJSON(c, rec, &body)
	c.Assert(body["detail"], qt.Equals, "Error: Ollama service not available")
	c.Assert(strings.HasPrefix(body["sql"], "--"), qt.IsTrue)

	var count int64
	c.Assert(f.conn.Table("inventory").Count(&count).Error, qt.IsNil)
	c.Assert(count, qt.Equals, int64(19))
}

func TestQueryEndpointRejectsGeneratedWrites(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	f.translator.sql = "DELETE FROM inventory;"

	rec := f.do(c, http.MethodPost, "/api/query", `{"question": "clear the stock"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusUnprocessableEntity)

	var count int64
	c.Assert(f.conn.Table("inventory").Count(&count).Error, qt.IsNil)
	c.Assert(count, qt.Equals, int64(19))
}

func TestQueryEndpointAllowWrites(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, func(cfg *config.AppConfig, deps *Dependencies) {
		cfg.Query.AllowWrites = true
	})
	f.translator.sql = "UPDATE inventory SET quantity = quantity + 1 WHERE quantity < 10;"

	rec := f.do(c, http.MethodPost, "/api/query", `{"question": "bump the smallest stocks"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body.String()))
	var got struct {
		Results []map[string]interface{} `json:"results"`
	}
	decodeJSON(c, rec, &got)
	c.Assert(got.Results[0]["affected_rows"], qt.Equals, float64(5))
}

func TestQueryRateLimit(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, func(cfg *config.AppConfig, deps *Dependencies) {
		cfg.Query.RateLimit = 0.001
		cfg.Query.Burst = 1
	})

	rec := f.do(c, http.MethodPost, "/api/query", `{"question": "first"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	rec = f.do(c, http.MethodPost, "/api/query", `{"question": "second"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusTooManyRequests)
}

func TestSQLEndpoint(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodPost, "/api/sql", `{"sql": "SELECT COUNT(*) AS n FROM products"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var got struct {
		SQL     string           `json:"sql"`
		Results []map[string]int `json:"results"`
	}
	decodeJSON(c, rec, &got)
	c.Assert(got.Results, qt.DeepEquals, []map[string]int{{"n": 15}})

	rec = f.do(c, http.MethodPost, "/api/sql", `{"sql": "SELECT * FROM no_such_table"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)

	rec = f.do(c, http.MethodPost, "/api/sql", `{}`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestSQLEndpointReadOnlyTools(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	log := logrus.New()
	log.SetOutput(io.Discard)
	readOnly := mcp.NewMCPServer(config.MCPConfig{ReadOnly: true}, &mcp.ServiceDependencies{
		Query: services.NewQueryService(f.conn, log),
	}, log)
	f.server.deps.Tools = mcp.NewInProcessClient(readOnly)

	rec := f.do(c, http.MethodPost, "/api/sql", `{"sql": "DELETE FROM inventory"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusForbidden)
}

func TestProductLabel(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	laptop := f.id(c, "products", "name", "Laptop")

	rec := f.do(c, http.MethodGet, "/api/products/"+jsonNumber(laptop)+"/label.png?size=128", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "image/png")
	c.Assert(bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")), qt.IsTrue)

	rec = f.do(c, http.MethodGet, "/api/products/9999/label.png", "")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)

	rec = f.do(c, http.MethodGet, "/api/products/1/label.png?size=5", "")
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestLabelPayload(t *testing.T) {
	c := qt.New(t)
	payload := labelPayload(&models.Product{
		ID:       3,
		Name:     "Tablet",
		Price:    399.99,
		Category: &models.Category{Name: "Electronics"},
	})
	c.Assert(payload, qt.Equals, `{"category":"Electronics","name":"Tablet","price":399.99,"product_id":3}`)
}

func TestToolsEndpoint(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodGet, "/api/tools", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var got struct {
		Tools []mcp.Tool `json:"tools"`
	}
	decodeJSON(c, rec, &got)
	c.Assert(got.Tools, qt.HasLen, len(mcp.AllTools()))
}

func TestAdminDisabledTools(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	put := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/admin/tools/disabled", strings.NewReader(body))
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		return rec
	}

	rec := put("secret", `{"disabled": []}`)
	c.Assert(rec.Code, qt.Equals, http.StatusForbidden)

	log := logrus.New()
	log.SetOutput(io.Discard)
	svc, err := services.NewMCPService(config.MCPConfig{Transport: "inprocess"}, &mcp.ServiceDependencies{
		Inventory: services.NewInventoryService(f.conn, log),
		Query:     services.NewQueryService(f.conn, log),
	}, log)
	c.Assert(err, qt.IsNil)
	f.server.deps.Tools = svc
	f.server.deps.Catalog = svc
	f.server.adminKey = "secret"

	rec = put("wrong", `{"disabled": []}`)
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)

	rec = put("secret", `{"disabled": ["drop_everything"]}`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	rec = put("secret", `{"disabled": ["execute_sql_query"]}`)
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body.String()))

	rec = f.do(c, http.MethodPost, "/api/sql", `{"sql": "SELECT 1"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusForbidden)

	rec = f.do(c, http.MethodGet, "/api/inventory/summary", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
}

type staticStatus map[string]interface{}

func (s staticStatus) GetStatus() map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range s {
		out[k] = v
	}
	return out
}

func TestStatusEndpoint(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodGet, "/api/status", "")
	c.Assert(rec.Code, qt.Equals, http.StatusServiceUnavailable)

	f = newFixture(c, func(cfg *config.AppConfig, deps *Dependencies) {
		deps.Status = staticStatus{"uptime": "1s"}
	})
	rec = f.do(c, http.MethodGet, "/api/status", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var body map[string]string
	decodeJSON(c, rec, &body)
	c.Assert(body, qt.DeepEquals, map[string]string{"uptime": "1s", "version": Version})
}

func TestCORSAndNotFound(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/inventory/summary", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusNoContent)
	c.Assert(rec.Header().Get("Access-Control-Allow-Origin"), qt.Equals, "*")

	rec = f.do(c, http.MethodGet, "/api/nothing-here", "")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	var body map[string]string
	decodeJSON(c, rec, &body)
	c.Assert(body["detail"], qt.Equals, "Not Found")

	f.do(c, http.MethodGet, "/", "")
	rec = f.do(c, http.MethodGet, "/metrics", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Contains, "smartims_http_requests_total")
}

func jsonNumber(n uint) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}
