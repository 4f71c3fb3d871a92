package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"SmartIMS/app/llm"
	"SmartIMS/app/models"
	"SmartIMS/app/sqlcheck"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cast"
)

const maxBodySize = 1 << 20

type queryRequest struct {
	Question string `json:"question"`
}

type sqlRequest struct {
	SQL string `json:"sql"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Smart Inventory Management System API",
		"version": Version,
		"docs":    "/api/schema",
	})
}

// handleHealth reports liveness plus database and LLM reachability
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{
		"status":   "healthy",
		"database": "unknown",
		"llm":      "unknown",
	}

	if s.deps.Ping != nil {
		if err := s.deps.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("Health check: database unreachable")
			body["status"] = "unhealthy"
			body["database"] = "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "connected"
		}
	}

	if s.deps.Translator != nil {
		if s.deps.Translator.IsAvailable(ctx) {
			body["llm"] = "available"
		} else {
			body["llm"] = "unavailable"
		}
	}

	writeJSON(w, status, body)
}

// handleQuery translates a question to SQL and runs it when the guard allows
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many queries, slow down")
		return
	}

	ctx := r.Context()
	resp := s.deps.Tools.CallTool(ctx, "text_to_sql", map[string]interface{}{"text": req.Question})
	if !resp.Success {
		writeToolError(w, resp)
		return
	}
	var sql string
	if err := resp.Decode(&sql); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if llm.IsErrorSentinel(sql) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"detail":   sentinelMessage(sql),
			"question": req.Question,
			"sql":      sql,
		})
		return
	}

	if err := sqlcheck.Check(sql, s.cfg.AllowWrites); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": RequestID(ctx),
			"sql":        sql,
		}).Warn("Generated SQL rejected: " + err.Error())
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"detail":   "generated SQL rejected: " + err.Error(),
			"question": req.Question,
			"sql":      sql,
		})
		return
	}

	resp = s.deps.Tools.CallTool(ctx, "execute_sql_query", map[string]interface{}{"sql": sql})
	if !resp.Success {
		writeToolError(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"question": req.Question,
		"sql":      sql,
		"results":  resp.Result,
	})
}

// sentinelMessage returns the first comment line without its marker
func sentinelMessage(sql string) string {
	line := strings.SplitN(sql, "\n", 2)[0]
	return strings.TrimSpace(strings.TrimPrefix(line, "--"))
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}

	resp := s.deps.Tools.CallTool(r.Context(), "execute_sql_query", map[string]interface{}{"sql": req.SQL})
	if !resp.Success {
		writeToolError(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sql":     req.SQL,
		"results": resp.Result,
	})
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	args := map[string]interface{}{}
	if raw := r.URL.Query().Get("warehouse_id"); raw != "" {
		id, err := cast.ToUintE(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "warehouse_id must be a non-negative integer")
			return
		}
		args["warehouse_id"] = id
	}
	s.writeTool(w, r, "get_low_stock_items", args)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.writeTool(w, r, "get_inventory_summary", nil)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	s.writeTool(w, r, "get_database_schema", nil)
}

func (s *Server) handleAddInventory(w http.ResponseWriter, r *http.Request) {
	var args map[string]interface{}
	if err := decodeBody(w, r, &args); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.deps.Tools.CallTool(r.Context(), "add_inventory", args)
	if !resp.Success {
		writeToolError(w, resp)
		return
	}

	var level models.InventoryLevel
	if err := resp.Decode(&level); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.deps.PublishEvents && s.deps.Events != nil {
		s.deps.Events.PublishInventoryChange(level)
	}
	writeJSON(w, http.StatusOK, level)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tools":  s.deps.Catalog.GetAvailableTools(),
			"status": s.deps.Catalog.GetStatus(),
		})
		return
	}

	tools, err := s.deps.Tools.ListTools(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

type disabledToolsRequest struct {
	Disabled []string `json:"disabled"`
}

// handleDisabledTools replaces the list of disabled MCP tools
func (s *Server) handleDisabledTools(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "tool catalog not available")
		return
	}
	var req disabledToolsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	known := make(map[string]bool)
	for _, tool := range s.deps.Catalog.GetAvailableTools() {
		known[tool.Name] = true
	}
	for _, name := range req.Disabled {
		if !known[name] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown tool %q", name))
			return
		}
	}

	if err := s.deps.Catalog.UpdateDisabledTools(r.Context(), strings.Join(req.Disabled, ",")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithField("disabled", req.Disabled).Info("MCP disabled tools updated")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools":  s.deps.Catalog.GetAvailableTools(),
		"status": s.deps.Catalog.GetStatus(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}
	status := s.deps.Status.GetStatus()
	status["version"] = Version
	writeJSON(w, http.StatusOK, status)
}

// handleProductLabel renders a QR shelf label for a product. ?size= sets the
// edge length in pixels.
func (s *Server) handleProductLabel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Products == nil {
		writeError(w, http.StatusServiceUnavailable, "product lookup not available")
		return
	}

	id, err := cast.ToUintE(mux.Vars(r)["id"])
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		size, err = cast.ToIntE(raw)
		if err != nil || size < 64 || size > 1024 {
			writeError(w, http.StatusBadRequest, "size must be between 64 and 1024")
			return
		}
	}

	product, err := s.deps.Products.Product(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	png, err := qrcode.Encode(labelPayload(product), qrcode.Medium, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render label: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}

// labelPayload is the text encoded in a product label
func labelPayload(p *models.Product) string {
	payload := map[string]interface{}{
		"product_id": p.ID,
		"name":       p.Name,
		"price":      p.Price,
	}
	if p.Category != nil {
		payload["category"] = p.Category.Name
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

// writeTool runs a tool and writes its result unchanged
func (s *Server) writeTool(w http.ResponseWriter, r *http.Request, name string, args map[string]interface{}) {
	resp := s.deps.Tools.CallTool(r.Context(), name, args)
	if !resp.Success {
		writeToolError(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp.Result)
}

// decodeBody decodes a JSON request body, keeping numbers exact
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}
