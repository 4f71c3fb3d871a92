package services

import (
	"SmartIMS/app/sqlcheck"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// QueryService executes raw SQL statements and shapes the results as rows
type QueryService struct {
	*BaseService
	log *logrus.Logger
}

// NewQueryService creates a new query service
func NewQueryService(conn *gorm.DB, log *logrus.Logger) *QueryService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &QueryService{
		BaseService: NewBaseService(conn),
		log:         log,
	}
}

// ExecuteSQL runs statement verbatim. Statements that produce a result set
// return one map per row; everything else returns a single
// {"affected_rows": n, "status": "success"} row.
func (s *QueryService) ExecuteSQL(ctx context.Context, statement string) ([]map[string]interface{}, error) {
	if err := s.EnsureDB(); err != nil {
		return nil, err
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, fmt.Errorf("%w: sql is required", ErrInvalidArgument)
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	start := time.Now()
	defer func() {
		s.log.WithFields(logrus.Fields{
			"statement": sqlcheck.FirstKeyword(statement),
			"duration":  time.Since(start).String(),
		}).Debug("Executed SQL")
	}()

	if !sqlcheck.ReturnsRows(statement) {
		res, err := sqlDB.ExecContext(ctx, statement)
		if err != nil {
			return nil, fmt.Errorf("error executing query: %w", mapDBError(err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return []map[string]interface{}{
			{"affected_rows": affected, "status": "success"},
		}, nil
	}

	rows, err := sqlDB.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", mapDBError(err))
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("error reading results: %w", err)
	}
	return results, nil
}

// scanRows reads every row into a column-name keyed map
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
