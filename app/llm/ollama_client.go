// Package llm translates natural-language requests into SQL with a local
// Ollama model.
package llm

import (
	"SmartIMS/app/metrics"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const availabilityTimeout = 5 * time.Second

// Translator turns a natural-language request into a SQL statement. Failures
// are reported in-band as a SQL comment starting with "--".
type Translator interface {
	TextToSQL(ctx context.Context, text string) string
	IsAvailable(ctx context.Context) bool
}

const systemPrompt = `You are a SQL expert for an inventory management system. Convert natural language queries to PostgreSQL SQL.

DATABASE SCHEMA:
- categories (id, name) - Product categories like Electronics, Clothing
- products (id, name, category_id, price, reorder_level) - Products with details
- warehouses (id, location) - Warehouse locations
- inventory (product_id, warehouse_id, quantity) - Current stock levels
- suppliers (id, name, contact) - Supplier information

RULES:
1. Always return valid PostgreSQL SQL only
2. Use proper JOINs when accessing multiple tables
3. For adding inventory: Use INSERT ... ON CONFLICT DO UPDATE
4. For queries about stock: JOIN products, inventory, warehouses
5. For low stock: WHERE inventory.quantity <= products.reorder_level
6. Return only the SQL query, no explanations

EXAMPLES:
User: "Add 50 laptops to warehouse 1"
SQL: INSERT INTO inventory (product_id, warehouse_id, quantity) SELECT 1, 1, 50 WHERE EXISTS (SELECT 1 FROM products WHERE id = 1 AND name ILIKE '%laptop%') ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity = inventory.quantity + 50;

User: "Show me low stock items"
SQL: SELECT p.name, c.name as category, i.quantity, p.reorder_level, w.location FROM products p JOIN categories c ON p.category_id = c.id JOIN inventory i ON p.id = i.product_id JOIN warehouses w ON i.warehouse_id = w.id WHERE i.quantity <= p.reorder_level;

User: "What's the total value of electronics inventory?"
SQL: SELECT SUM(i.quantity * p.price) as total_value FROM inventory i JOIN products p ON i.product_id = p.id JOIN categories c ON p.category_id = c.id WHERE c.name ILIKE '%electronics%';

Now convert the user's request to SQL:`

// SystemPrompt returns the schema-aware instructions sent ahead of every request
func SystemPrompt() string {
	return systemPrompt
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// OllamaClient talks to the Ollama HTTP API
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	log     *logrus.Logger
}

// NewOllamaClient creates a client; timeout bounds each generate call
func NewOllamaClient(baseURL, model string, timeout time.Duration, log *logrus.Logger) *OllamaClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Model returns the configured model name
func (c *OllamaClient) Model() string {
	return c.model
}

// IsAvailable reports whether the Ollama service answers GET /api/tags
func (c *OllamaClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Errorf("OllamaClient: Ollama not available: %v", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// TextToSQL converts text to a single SQL statement. On failure it returns an
// error comment naming the problem and the original request.
func (c *OllamaClient) TextToSQL(ctx context.Context, text string) string {
	if !c.IsAvailable(ctx) {
		metrics.RecordLLMRequest("unavailable", 0)
		return errorComment("Error: Ollama service not available", text)
	}

	start := time.Now()
	sql, err := c.generate(ctx, text)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordLLMRequest("error", elapsed)
		c.log.WithError(err).WithField("request", text).Error("OllamaClient: Error generating SQL")
		if se, ok := err.(*statusError); ok {
			return errorComment(fmt.Sprintf("Error: Ollama API returned %d", se.code), text)
		}
		return errorComment(fmt.Sprintf("Error generating SQL: %v", err), text)
	}

	metrics.RecordLLMRequest("success", elapsed)
	c.log.WithFields(logrus.Fields{
		"request":  text,
		"sql":      sql,
		"duration": elapsed.String(),
	}).Info("OllamaClient: Generated SQL")
	return sql
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ollama API returned %d: %s", e.code, e.body)
}

func (c *OllamaClient) generate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: fmt.Sprintf("%s\n\nUser: %s\nSQL:", systemPrompt, text),
		Stream: false,
		Options: generateOptions{
			Temperature: 0.1,
			TopP:        0.9,
			MaxTokens:   200,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &statusError{code: resp.StatusCode, body: string(body)}
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return CleanSQL(result.Response), nil
}

// CleanSQL reduces raw model output to a single line of SQL: blank, comment
// and markdown fence lines are dropped, output stops at the first line of
// explanation, and a trailing semicolon is ensured.
func CleanSQL(raw string) string {
	var parts []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "```") {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "explanation:") || strings.Contains(lower, "note:") || strings.Contains(lower, "this query") {
			break
		}
		parts = append(parts, line)
	}

	cleaned := strings.Join(parts, " ")
	if cleaned != "" && !strings.HasSuffix(cleaned, ";") {
		cleaned += ";"
	}
	return cleaned
}

// IsErrorSentinel reports whether sql is an error comment rather than a statement
func IsErrorSentinel(sql string) bool {
	return strings.HasPrefix(strings.TrimSpace(sql), "--")
}

func errorComment(message, request string) string {
	return fmt.Sprintf("-- %s\n-- Original request: %s", message, request)
}
