package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"

	"SmartIMS/app/models"
)

type recordingAlerts struct {
	mu    sync.Mutex
	items []models.LowStockItem
	ch    chan struct{}
}

func (r *recordingAlerts) PublishLowStock(item models.LowStockItem) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
	if r.ch != nil {
		select {
		case r.ch <- struct{}{}:
		default:
		}
	}
}

func (r *recordingAlerts) reset() []models.LowStockItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items
	r.items = nil
	return items
}

type failingSource struct{}

func (failingSource) LowStock(ctx context.Context, warehouseID *uint) ([]models.LowStockItem, error) {
	return nil, errors.New("connection reset")
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestStockMonitorAlertsOncePerDrop(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	inventory := NewInventoryService(conn, quietLog())
	alerts := &recordingAlerts{}
	monitor := NewStockMonitorService(inventory, alerts, time.Minute, quietLog())
	ctx := context.Background()

	n, err := monitor.Check(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 11)
	c.Assert(alerts.reset(), qt.HasLen, 11)

	n, err = monitor.Check(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)

	smartphone := productID(c, conn, "Smartphone")
	downtown := warehouseID(c, conn, "Main Warehouse - Downtown")
	_, err = inventory.AddInventory(ctx, smartphone, downtown, 20)
	c.Assert(err, qt.IsNil)

	n, err = monitor.Check(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
	c.Assert(monitor.GetStatus()["low_pairs"], qt.Equals, 10)

	err = conn.Exec("UPDATE inventory SET quantity = 2 WHERE product_id = ? AND warehouse_id = ?", smartphone, downtown).Error
	c.Assert(err, qt.IsNil)

	n, err = monitor.Check(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)
	items := alerts.reset()
	c.Assert(items, qt.HasLen, 1)
	c.Assert(items[0].ProductName, qt.Equals, "Smartphone")
	c.Assert(items[0].CurrentStock, qt.Equals, 2)

	status := monitor.GetStatus()
	c.Assert(status["total_checks"], qt.Equals, 4)
	c.Assert(status["total_alerts"], qt.Equals, 12)
}

func TestStockMonitorSourceError(t *testing.T) {
	c := qt.New(t)
	monitor := NewStockMonitorService(failingSource{}, &recordingAlerts{}, time.Minute, quietLog())

	_, err := monitor.Check(context.Background())
	c.Assert(err, qt.ErrorMatches, "failed to load low stock items: connection reset")
	c.Assert(monitor.GetStatus()["last_check_error"], qt.Equals, "connection reset")
}

func TestStockMonitorRun(t *testing.T) {
	c := qt.New(t)
	conn := newSeededDB(c)
	alerts := &recordingAlerts{ch: make(chan struct{}, 1)}
	monitor := NewStockMonitorService(NewInventoryService(conn, quietLog()), alerts, 10*time.Millisecond, quietLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- monitor.Run(ctx)
	}()

	select {
	case <-alerts.ch:
	case <-time.After(5 * time.Second):
		c.Fatal("no alert published")
	}
	cancel()

	select {
	case err := <-done:
		c.Assert(err, qt.IsNil)
	case <-time.After(5 * time.Second):
		c.Fatal("monitor did not stop")
	}
	c.Assert(monitor.GetStatus()["running"], qt.IsFalse)
}

func TestStockMonitorDisabled(t *testing.T) {
	c := qt.New(t)
	monitor := NewStockMonitorService(failingSource{}, nil, 0, quietLog())
	c.Assert(monitor.Run(context.Background()), qt.IsNil)
	c.Assert(monitor.GetStatus()["enabled"], qt.IsFalse)
}
