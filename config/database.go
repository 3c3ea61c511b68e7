package config

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func InitDB() (*sql.DB, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			totp_secret VARCHAR(255),
			totp_enabled BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			refresh_token VARCHAR(500) UNIQUE NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS rules (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
			pattern VARCHAR(500) NOT NULL,
			category VARCHAR(100) NOT NULL,
			priority INTEGER NOT NULL DEFAULT 100,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0.9,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
			external_id VARCHAR(255) NOT NULL,
			date DATE,
			amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			direction VARCHAR(10) NOT NULL DEFAULT 'spent',
			description TEXT NOT NULL DEFAULT '',
			counterparty VARCHAR(255) NOT NULL DEFAULT '',
			reference VARCHAR(255) NOT NULL DEFAULT '',
			account_name VARCHAR(255) NOT NULL DEFAULT '',
			category VARCHAR(100),
			category_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			category_source VARCHAR(20) NOT NULL DEFAULT '',
			receipt_id UUID,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			UNIQUE(tenant_id, external_id)
		)`,

		`CREATE TABLE IF NOT EXISTS receipts (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
			vendor VARCHAR(255) NOT NULL DEFAULT '',
			amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			date DATE,
			status VARCHAR(50) NOT NULL DEFAULT 'pending',
			has_attachment BOOLEAN NOT NULL DEFAULT FALSE,
			attachment_url TEXT NOT NULL DEFAULT '',
			transaction_id UUID REFERENCES transactions(id) ON DELETE SET NULL,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		// Advisory lock for the batch rule applier: one row per tenant,
		// acquired with a conditional upsert, expired rows can be taken over.
		`CREATE TABLE IF NOT EXISTS batch_locks (
			tenant_id UUID PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
			locked_by VARCHAR(100) NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rules_tenant_id ON rules(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tenant_category ON transactions(tenant_id, category)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tenant_date ON transactions(tenant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_tenant_date ON receipts(tenant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
