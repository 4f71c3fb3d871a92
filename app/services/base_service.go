package services

import (
	"SmartIMS/app/database"
	"SmartIMS/app/models"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = models.ErrNotFound
	ErrInvalidArgument = models.ErrInvalidArgument
	ErrReadOnly        = models.ErrReadOnly
)

// PostgreSQL SQLSTATE codes mapped to ErrInvalidArgument
const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// BaseService provides common functionality for all services
type BaseService struct {
	db *gorm.DB
}

// NewBaseService creates a base service on conn, falling back to the global connection
func NewBaseService(conn *gorm.DB) *BaseService {
	if conn == nil {
		conn = database.GetDB()
	}
	return &BaseService{db: conn}
}

// EnsureDB checks if database is initialized and returns an error if not
func (b *BaseService) EnsureDB() error {
	if b.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return nil
}

// WithContext returns a session bound to ctx
func (b *BaseService) WithContext(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx)
}

// WithTransaction executes a function within a database transaction
func (b *BaseService) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := b.EnsureDB(); err != nil {
		return err
	}
	return b.db.WithContext(ctx).Transaction(fn)
}

// mapDBError turns constraint violations into ErrInvalidArgument
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation, pgCheckViolation, pgNotNullViolation:
			return fmt.Errorf("%w: %s", ErrInvalidArgument, pgErr.Message)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
