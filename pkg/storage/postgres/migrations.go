package postgres

import (
	"database/sql"
	"fmt"
)

// EnsureSchema creates the application tables if they don't exist. Runs at
// startup against the primary; idempotent.
func EnsureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id UUID PRIMARY KEY,
			clerk_org_id VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL,
			stripe_customer_id VARCHAR(255),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_stripe_customer
			ON organizations(stripe_customer_id) WHERE stripe_customer_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_organizations_slug ON organizations(slug)`,

		`CREATE TABLE IF NOT EXISTS materials (
			id UUID PRIMARY KEY,
			organization_id VARCHAR(255) NOT NULL,
			trainer_id VARCHAR(255) NOT NULL,
			title VARCHAR(500) NOT NULL,
			description TEXT,
			content_type VARCHAR(255),
			size_bytes BIGINT NOT NULL DEFAULT 0,
			storage_key VARCHAR(1024),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_materials_org ON materials(organization_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_materials_trainer ON materials(trainer_id)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			organization_id UUID NOT NULL REFERENCES organizations(id),
			stripe_subscription_id VARCHAR(255) NOT NULL UNIQUE,
			status VARCHAR(50) NOT NULL,
			plan VARCHAR(100),
			current_period_end TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_org ON subscriptions(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return nil
}
