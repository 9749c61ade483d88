package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/go-sql-driver/mysql"
)

var DB *sql.DB

func Init() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"))

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

func CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id CHAR(36) PRIMARY KEY,
			order_number VARCHAR(32) NOT NULL,
			amount BIGINT NOT NULL,
			currency CHAR(3) NOT NULL,
			status VARCHAR(20) NOT NULL,
			financial_status VARCHAR(20) NOT NULL,
			metadata JSON,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY unique_order_number (order_number)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id CHAR(36) PRIMARY KEY,
			order_id CHAR(36) NOT NULL,
			provider VARCHAR(20) NOT NULL,
			provider_ref VARCHAR(128),
			amount BIGINT NOT NULL,
			currency CHAR(3) NOT NULL,
			status VARCHAR(20) NOT NULL,
			metadata JSON,
			created_at TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP(3),
			KEY idx_order_provider (order_id, provider),
			KEY idx_provider_ref (provider, provider_ref)
		)`,
	}

	for _, query := range queries {
		if _, err := DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

func ResetTables() error {
	tables := []string{"transactions", "orders"}

	for _, table := range tables {
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if _, err := DB.Exec(query); err != nil {
			slog.Error("Failed to drop table", "table", table, "error", err)
		} else {
			slog.Info("Table dropped", "table", table)
		}
	}

	if err := CreateTables(); err != nil {
		return fmt.Errorf("failed to recreate tables: %w", err)
	}

	slog.Info("All tables dropped and recreated successfully")
	return nil
}
