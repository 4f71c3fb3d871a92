package database

import (
	"SmartIMS/app/config"
	"SmartIMS/app/models"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return db
}

// gormConfig configures GORM to report slow queries and errors through logrus
func gormConfig(log *logrus.Logger) *gorm.Config {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if log != nil {
		gormLogger = logger.New(log, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}
	return &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: false,
	}
}

// Initialize sets up the database connection, runs migrations and stores the
// instance for GetDB
func Initialize(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	var (
		conn *gorm.DB
		err  error
	)

	switch cfg.Driver {
	case "sqlite":
		conn, err = OpenSQLite(cfg.SQLitePath, log)
	default:
		conn, err = OpenPostgres(cfg.DSN(), log)
	}
	if err != nil {
		return nil, err
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"driver": cfg.Driver,
			"dsn":    cfg.Redacted(),
		}).Info("Database connection established")
	}

	if err := RunMigrations(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db = conn
	return conn, nil
}

// OpenPostgres opens a PostgreSQL connection with pool settings
func OpenPostgres(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return conn, nil
}

// OpenSQLite opens a SQLite database (CGO-free driver). ":memory:" keeps a
// single connection so every query sees the same in-memory database.
func OpenSQLite(path string, log *logrus.Logger) (*gorm.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	conn, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
		if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	return conn, nil
}

// RunMigrations creates the inventory tables
func RunMigrations(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.Warehouse{},
		&models.Inventory{},
		&models.Supplier{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	createIndexes(conn)
	return nil
}

// createIndexes creates indexes used by the tool queries
func createIndexes(conn *gorm.DB) {
	conn.Exec("CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)")
	conn.Exec("CREATE INDEX IF NOT EXISTS idx_categories_name ON categories(name)")
}

// Ping checks the connection is alive
func Ping(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
