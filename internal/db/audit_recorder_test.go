package db

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

func newMockRecorder(t *testing.T) (*MySQLRecorder, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to create gorm DB: %v", err)
	}

	return &MySQLRecorder{db: gormDB, chainID: 1}, mock
}

func TestMySQLRecorder_RecordAttempt_Success(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `liquidation_attempts`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	plan := &vault.LiquidationPlan{
		Profitable:  true,
		ProfitUSD:   123.45,
		RepayAmount: big.NewInt(1_000_000),
		Internal:    true,
	}

	err := recorder.RecordAttempt(context.Background(), common.HexToAddress("0x1"), "euler", plan, "0xabc", nil)
	if err != nil {
		t.Errorf("RecordAttempt failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMySQLRecorder_RecordAttempt_Failure(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `liquidation_attempts`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	plan := &vault.LiquidationPlan{Profitable: true, RepayAmount: big.NewInt(500)}

	err := recorder.RecordAttempt(context.Background(), common.HexToAddress("0x2"), "aave", plan, "", errors.New("reverted"))
	if err != nil {
		t.Errorf("RecordAttempt failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestBigIntToString(t *testing.T) {
	tests := []struct {
		name     string
		input    *big.Int
		expected string
	}{
		{"nil value", nil, "0"},
		{"zero value", big.NewInt(0), "0"},
		{"positive value", big.NewInt(123456789), "123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := bigIntToString(tt.input)
			if result != tt.expected {
				t.Errorf("bigIntToString() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLiquidationAttemptRecord_TableName(t *testing.T) {
	record := LiquidationAttemptRecord{}
	expected := "liquidation_attempts"
	if record.TableName() != expected {
		t.Errorf("TableName() = %v, want %v", record.TableName(), expected)
	}
}
