// Package db persists a durable audit trail of liquidation attempts via
// GORM/MySQL, adapted from the teacher's asset-snapshot recorder: instead
// of periodic DEX portfolio snapshots, every simulated-and-submitted
// liquidation gets one row, queryable independently of the structured
// log file.
package db

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

// LiquidationAttemptRecord is the database model for one liquidation
// attempt, successful or not.
type LiquidationAttemptRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp   time.Time `gorm:"index;not null"`
	ChainID     int64     `gorm:"index;not null"`
	VaultAddr   string    `gorm:"index;type:varchar(42);not null"`
	Protocol    string    `gorm:"type:varchar(16);not null"`
	Internal    bool      `gorm:"not null"`
	ProfitUSD   float64   `gorm:"not null"`
	RepayAmount string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	TxHash      string    `gorm:"type:varchar(66)"`
	Success     bool      `gorm:"not null"`
	ErrorText   string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (LiquidationAttemptRecord) TableName() string {
	return "liquidation_attempts"
}

// MySQLRecorder implements scheduler.AuditRecorder using GORM and MySQL.
type MySQLRecorder struct {
	db      *gorm.DB
	chainID int64
}

// NewMySQLRecorder opens a MySQL connection and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewMySQLRecorder(dsn string, chainID int64) (*MySQLRecorder, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewMySQLRecorderWithDB(gdb, chainID)
}

// NewMySQLRecorderWithDB wraps an existing GORM DB instance, migrating
// the schema if needed. Used directly in tests against a mocked driver.
func NewMySQLRecorderWithDB(gdb *gorm.DB, chainID int64) (*MySQLRecorder, error) {
	if err := gdb.AutoMigrate(&LiquidationAttemptRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &MySQLRecorder{db: gdb, chainID: chainID}, nil
}

// RecordAttempt implements scheduler.AuditRecorder.
func (r *MySQLRecorder) RecordAttempt(ctx context.Context, addr common.Address, protocol string, plan *vault.LiquidationPlan, txHash string, attemptErr error) error {
	record := LiquidationAttemptRecord{
		Timestamp:   time.Now(),
		ChainID:     r.chainID,
		VaultAddr:   addr.Hex(),
		Protocol:    protocol,
		Internal:    plan.Internal,
		ProfitUSD:   plan.ProfitUSD,
		RepayAmount: bigIntToString(plan.RepayAmount),
		TxHash:      txHash,
		Success:     attemptErr == nil,
	}
	if attemptErr != nil {
		record.ErrorText = attemptErr.Error()
	}

	result := r.db.WithContext(ctx).Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to record liquidation attempt: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// bigIntToString safely converts *big.Int to string, handling nil values.
func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// AttemptsByVault retrieves every recorded attempt for addr, most recent
// first.
func (r *MySQLRecorder) AttemptsByVault(addr common.Address) ([]LiquidationAttemptRecord, error) {
	var records []LiquidationAttemptRecord
	result := r.db.Where("vault_addr = ?", addr.Hex()).
		Order("timestamp DESC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get attempts for vault %s: %w", addr.Hex(), result.Error)
	}
	return records, nil
}

// CountAttempts returns the total number of recorded liquidation
// attempts.
func (r *MySQLRecorder) CountAttempts() (int64, error) {
	var count int64
	result := r.db.Model(&LiquidationAttemptRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", result.Error)
	}
	return count, nil
}
