// Package journal records every order the bot submits in a local SQLite
// database so fills and brackets can be audited after the fact.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vela/internal/gateway/coinbase"
)

// OrderRecord is one journaled order.
type OrderRecord struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID       string         `gorm:"column:order_id;index" json:"order_id"`
	ClientOrderID string         `gorm:"column:client_order_id;uniqueIndex" json:"client_order_id"`
	ProductID     string         `gorm:"column:product_id;index" json:"product_id"`
	Side          string         `gorm:"column:side" json:"side"`
	Kind          string         `gorm:"column:kind;index" json:"kind"`
	Status        string         `gorm:"column:status" json:"status"`
	FilledSize    float64        `gorm:"column:filled_size" json:"filled_size"`
	AvgFillPrice  float64        `gorm:"column:avg_fill_price" json:"avg_fill_price"`
	TotalFees     float64        `gorm:"column:total_fees" json:"total_fees"`
	Raw           datatypes.JSON `gorm:"column:raw" json:"raw,omitempty"`
	CreatedAtUnix int64          `gorm:"column:created_at" json:"created_at"`
}

func (OrderRecord) TableName() string { return "orders" }

type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, err
	}
	return &Journal{db: db, now: time.Now}, nil
}

// RecordOrder persists one submitted order. Implements trading.Journal.
func (j *Journal) RecordOrder(ctx context.Context, order coinbase.Order, kind string) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("journal: encoding order: %w", err)
	}
	rec := OrderRecord{
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		ProductID:     order.ProductID,
		Side:          string(order.Side),
		Kind:          kind,
		Status:        order.Status,
		FilledSize:    order.FilledSize,
		AvgFillPrice:  order.AvgFillPrice,
		TotalFees:     order.TotalFees,
		Raw:           datatypes.JSON(raw),
		CreatedAtUnix: j.now().Unix(),
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

// UpdateStatus refreshes the journaled state of an order after a status poll.
func (j *Journal) UpdateStatus(ctx context.Context, order coinbase.Order) error {
	return j.db.WithContext(ctx).Model(&OrderRecord{}).
		Where("order_id = ?", order.ID).
		Updates(map[string]any{
			"status":         order.Status,
			"filled_size":    order.FilledSize,
			"avg_fill_price": order.AvgFillPrice,
			"total_fees":     order.TotalFees,
		}).Error
}

// List returns the newest records, optionally filtered by product.
func (j *Journal) List(ctx context.Context, productID string, limit int) ([]OrderRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := j.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if productID != "" {
		q = q.Where("product_id = ?", productID)
	}
	var out []OrderRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
