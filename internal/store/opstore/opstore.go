package opstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blitz/internal/metrics"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// operationModel is the persisted row for one completed operation.
type operationModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Token       string `gorm:"index;size:64"`
	Symbol      string `gorm:"size:32"`
	ProfitUSD   float64
	ReturnFrac  float64
	Success     bool
	ExitReason  string `gorm:"size:256"`
	DurationSec float64
	CompletedAt time.Time      `gorm:"index"`
	Detail      datatypes.JSON `gorm:"type:json"`
}

func (operationModel) TableName() string { return "operations" }

// Store persists operation records with Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

// New opens (or creates) the operation database at path.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("operation store requires a path")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&operationModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save persists one completed operation. Detail carries the free-form tick
// context captured at exit time.
func (s *Store) Save(rec metrics.OperationRecord, detail map[string]any) error {
	var detailJSON datatypes.JSON
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal operation detail failed: %w", err)
		}
		detailJSON = datatypes.JSON(raw)
	}
	row := operationModel{
		ID:          rec.ID,
		Token:       rec.Token,
		Symbol:      rec.Symbol,
		ProfitUSD:   rec.ProfitUSD,
		ReturnFrac:  rec.ReturnFrac,
		Success:     rec.Success,
		ExitReason:  rec.ExitReason,
		DurationSec: rec.Duration.Seconds(),
		CompletedAt: rec.CompletedAt,
		Detail:      detailJSON,
	}
	return s.db.Create(&row).Error
}

// Recent returns the latest operations, newest first.
func (s *Store) Recent(limit int) ([]metrics.OperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []operationModel
	if err := s.db.Order("completed_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]metrics.OperationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, metrics.OperationRecord{
			ID:          r.ID,
			Token:       r.Token,
			Symbol:      r.Symbol,
			ProfitUSD:   r.ProfitUSD,
			ReturnFrac:  r.ReturnFrac,
			Success:     r.Success,
			ExitReason:  r.ExitReason,
			Duration:    time.Duration(r.DurationSec * float64(time.Second)),
			CompletedAt: r.CompletedAt,
		})
	}
	return out, nil
}

// CountSince reports how many operations completed after the cutoff.
func (s *Store) CountSince(cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&operationModel{}).Where("completed_at > ?", cutoff).Count(&n).Error
	return n, err
}

// NetProfitSince sums realized profit after the cutoff.
func (s *Store) NetProfitSince(cutoff time.Time) (float64, error) {
	var total *float64
	err := s.db.Model(&operationModel{}).
		Select("SUM(profit_usd)").
		Where("completed_at > ?", cutoff).
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}
