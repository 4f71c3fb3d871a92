package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SmartIMS/app/models"

	"github.com/sirupsen/logrus"
)

// LowStockSource lists the pairs at or below their reorder level
type LowStockSource interface {
	LowStock(ctx context.Context, warehouseID *uint) ([]models.LowStockItem, error)
}

// LowStockPublisher receives one alert per pair that went low
type LowStockPublisher interface {
	PublishLowStock(item models.LowStockItem)
}

type stockPair struct {
	product   uint
	warehouse uint
}

// StockMonitorService checks stock levels on an interval and alerts once for
// every pair that enters low stock. A pair alerts again only after it has
// recovered and dropped back.
type StockMonitorService struct {
	source    LowStockSource
	publisher LowStockPublisher
	interval  time.Duration
	log       *logrus.Logger

	mu             sync.Mutex
	low            map[stockPair]bool
	running        bool
	lastCheckAt    time.Time
	lastCheckError string
	totalChecks    int
	totalAlerts    int
}

// NewStockMonitorService creates a monitor; Run does nothing when interval is zero
func NewStockMonitorService(source LowStockSource, publisher LowStockPublisher, interval time.Duration, log *logrus.Logger) *StockMonitorService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StockMonitorService{
		source:    source,
		publisher: publisher,
		interval:  interval,
		log:       log,
		low:       make(map[stockPair]bool),
	}
}

// Run checks immediately and then on every tick until ctx is done
func (s *StockMonitorService) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("Stock monitor disabled")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("stock monitor is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.log.WithField("interval", s.interval.String()).Info("Stock monitor started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Check(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("Scheduled stock check failed")
		}

		select {
		case <-ctx.Done():
			s.log.Info("Stock monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Check runs one stock check and publishes the pairs that are newly low. It
// returns the number of alerts sent.
func (s *StockMonitorService) Check(ctx context.Context) (int, error) {
	items, err := s.source.LowStock(ctx, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalChecks++
	s.lastCheckAt = time.Now()
	if err != nil {
		s.lastCheckError = err.Error()
		return 0, fmt.Errorf("failed to load low stock items: %w", err)
	}
	s.lastCheckError = ""

	current := make(map[stockPair]bool, len(items))
	alerts := 0
	for _, item := range items {
		key := stockPair{product: item.ProductID, warehouse: item.WarehouseID}
		current[key] = true
		if s.low[key] {
			continue
		}
		if s.publisher != nil {
			s.publisher.PublishLowStock(item)
		}
		alerts++
	}
	s.low = current
	s.totalAlerts += alerts

	if alerts > 0 {
		s.log.WithFields(logrus.Fields{
			"alerts":    alerts,
			"low_total": len(items),
		}).Info("Low stock alerts published")
	}
	return alerts, nil
}

// GetStatus returns the current monitor status
func (s *StockMonitorService) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":      s.running,
		"enabled":      s.interval > 0,
		"interval":     s.interval.String(),
		"total_checks": s.totalChecks,
		"total_alerts": s.totalAlerts,
		"low_pairs":    len(s.low),
	}
	if !s.lastCheckAt.IsZero() {
		status["last_check_at"] = s.lastCheckAt
	}
	if s.lastCheckError != "" {
		status["last_check_error"] = s.lastCheckError
	}
	return status
}
