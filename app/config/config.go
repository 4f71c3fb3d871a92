package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Database DatabaseConfig
	LLM      LLMConfig
	Server   ServerConfig
	Query    QueryConfig
	MCP      MCPConfig
	Redis    RedisConfig
	Monitor  MonitorConfig
	Log      LogConfig
}

// DatabaseConfig holds database connection settings (DB_*)
type DatabaseConfig struct {
	Driver     string `default:"postgres"`
	Host       string `default:"localhost"`
	Port       int    `default:"5432"`
	Name       string `default:"smart_ims"`
	User       string `default:"postgres"`
	Password   string
	SSLMode    string `default:"disable"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/smart_ims.db"`

	// URL overrides the individual fields when set (DATABASE_URL)
	URL string `ignored:"true"`
}

// LLMConfig holds the Ollama connection settings (OLLAMA_*)
type LLMConfig struct {
	BaseURL string        `split_words:"true" default:"http://localhost:11434"`
	Model   string        `default:"gemma3:latest"`
	Timeout time.Duration `default:"30s"`
}

// ServerConfig holds the REST API settings (API_*)
type ServerConfig struct {
	Host        string `default:"0.0.0.0"`
	Port        int    `default:"8000"`
	CORSOrigins string `split_words:"true" default:"*"`
	MDNSEnabled bool   `split_words:"true" default:"false"`

	// AdminKey guards the admin endpoints; they are disabled when empty
	AdminKey string `split_words:"true"`
}

// QueryConfig controls the natural-language query endpoint (QUERY_*)
type QueryConfig struct {
	AllowWrites bool          `split_words:"true" default:"false"`
	RateLimit   float64       `split_words:"true" default:"2"`
	Burst       int           `default:"5"`
	CacheTTL    time.Duration `split_words:"true" default:"10m"`
}

// MCPConfig holds the tool dispatch settings (MCP_*)
type MCPConfig struct {
	// Transport selects the client: inprocess, stdio or http
	Transport   string        `default:"inprocess"`
	Command     string
	URL         string        `default:"http://localhost:8090/message"`
	CallTimeout time.Duration `split_words:"true" default:"30s"`
	HTTPEnabled bool          `split_words:"true" default:"false"`
	Port        int           `default:"8090"`
	APIKey      string        `split_words:"true"`

	// ClientKey is sent by the http client; APIKey is used when empty
	ClientKey     string `split_words:"true"`
	AllowedIPs    string `envconfig:"ALLOWED_IPS"`
	ReadOnly      bool   `split_words:"true" default:"false"`
	DisabledTools string `split_words:"true"`

	// TrustProxyHeaders takes the client address for AllowedIPs from
	// X-Forwarded-For / X-Real-IP. Only enable behind a proxy that sets them.
	TrustProxyHeaders bool `split_words:"true" default:"false"`
}

// RedisConfig holds the translation cache settings (REDIS_*). Empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `default:"0"`
}

// MonitorConfig controls the periodic low-stock check (MONITOR_*). A zero
// Interval disables it.
type MonitorConfig struct {
	Interval time.Duration `default:"5m"`
}

// LogConfig holds logging settings (LOG_*)
type LogConfig struct {
	Level  string `default:"info"`
	Format string `default:"text"`
	Dir    string `default:"logs"`
}

// Load reads an optional .env file and then the process environment
func Load() (*AppConfig, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file. Variables already set in the
// environment win over the file.
func LoadFile(path string) (*AppConfig, error) {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("could not load %s: %w", path, err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only
func FromEnv() (*AppConfig, error) {
	var cfg AppConfig

	sections := []struct {
		prefix string
		target interface{}
	}{
		{"DB", &cfg.Database},
		{"OLLAMA", &cfg.LLM},
		{"API", &cfg.Server},
		{"QUERY", &cfg.Query},
		{"MCP", &cfg.MCP},
		{"REDIS", &cfg.Redis},
		{"MONITOR", &cfg.Monitor},
		{"LOG", &cfg.Log},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return nil, fmt.Errorf("could not process %s_* settings: %w", s.prefix, err)
		}
	}

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.Password = decodePassword(cfg.Database.Password)
	cfg.Database.Host = trimQuotes(cfg.Database.Host)
	cfg.Database.Name = trimQuotes(cfg.Database.Name)
	cfg.Database.User = trimQuotes(cfg.Database.User)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings
func (cfg *AppConfig) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	switch cfg.MCP.Transport {
	case "inprocess", "stdio", "http":
	default:
		return fmt.Errorf("unsupported MCP_TRANSPORT %q", cfg.MCP.Transport)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported LOG_FORMAT %q", cfg.Log.Format)
	}
	return nil
}

// Addr returns the listen address of the REST API
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Origins returns the configured CORS origins
func (s ServerConfig) Origins() []string {
	return splitList(s.CORSOrigins)
}

// AllowedIPList returns the parsed MCP IP allow-list
func (m MCPConfig) AllowedIPList() []string {
	return splitList(m.AllowedIPs)
}

// DisabledToolList returns the parsed list of disabled MCP tools
func (m MCPConfig) DisabledToolList() []string {
	return splitList(m.DisabledTools)
}

// DSN builds the PostgreSQL connection URL.
// Priority: DATABASE_URL > individual DB_* variables
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted returns the DSN with the password masked, for logging
func (d DatabaseConfig) Redacted() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	u, err := url.Parse(d.DSN())
	if err != nil {
		return "<invalid dsn>"
	}
	return u.Redacted()
}

// decodePassword accepts a URL-encoded, optionally quoted password
func decodePassword(raw string) string {
	raw = trimQuotes(raw)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
