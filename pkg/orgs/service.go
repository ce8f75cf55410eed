package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/telesis-app/telesis/pkg/storage/postgres"
)

// Sentinel errors mapped to 4xx responses by the handlers
var (
	ErrNotFound          = errors.New("organization not found")
	ErrOrgIDConflict     = errors.New("organization identifier already registered")
	ErrStripeIDConflict  = errors.New("stripe customer already linked to an organization")
	ErrInvalidClerkOrgID = errors.New("clerk organization id is required")
)

// PostgresService persists organizations in PostgreSQL with an optional
// Redis read-through cache
type PostgresService struct {
	conns *postgres.ConnectionManager
	cache *postgres.RedisClient
}

// NewPostgresService creates the organization service
func NewPostgresService(conns *postgres.ConnectionManager, cache *postgres.RedisClient) *PostgresService {
	return &PostgresService{conns: conns, cache: cache}
}

func orgCacheKey(clerkOrgID string) string {
	return fmt.Sprintf("org:%s", clerkOrgID)
}

// Create inserts a new organization. Returns ErrOrgIDConflict when the clerk
// organization id is already registered.
func (s *PostgresService) Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error) {
	if req.ClerkOrgID == "" {
		return nil, ErrInvalidClerkOrgID
	}

	org := &Organization{
		ID:         uuid.New(),
		ClerkOrgID: req.ClerkOrgID,
		Name:       req.Name,
		Slug:       req.Slug,
	}
	if org.Slug == "" {
		org.Slug = slugify(req.Name)
	}

	query := `
		INSERT INTO organizations (id, clerk_org_id, name, slug)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := s.conns.Primary().QueryRowContext(ctx, query,
		org.ID,
		org.ClerkOrgID,
		org.Name,
		org.Slug,
	).Scan(&org.CreatedAt, &org.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrOrgIDConflict
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, orgCacheKey(org.ClerkOrgID))
	}

	return org, nil
}

// GetByClerkOrgID looks up an organization by its identity-provider id
func (s *PostgresService) GetByClerkOrgID(ctx context.Context, clerkOrgID string) (*Organization, error) {
	if s.cache != nil {
		var cached Organization
		if hit, err := s.cache.GetJSON(ctx, orgCacheKey(clerkOrgID), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	query := `
		SELECT id, clerk_org_id, name, slug, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM organizations
		WHERE clerk_org_id = $1
	`

	var org Organization
	err := s.conns.Replica().QueryRowContext(ctx, query, clerkOrgID).Scan(
		&org.ID,
		&org.ClerkOrgID,
		&org.Name,
		&org.Slug,
		&org.StripeCustomerID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	if s.cache != nil {
		s.cache.SetJSON(ctx, orgCacheKey(clerkOrgID), &org)
	}

	return &org, nil
}

// GetByStripeCustomerID looks up an organization by its billing customer
func (s *PostgresService) GetByStripeCustomerID(ctx context.Context, customerID string) (*Organization, error) {
	query := `
		SELECT id, clerk_org_id, name, slug, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM organizations
		WHERE stripe_customer_id = $1
	`

	var org Organization
	err := s.conns.Replica().QueryRowContext(ctx, query, customerID).Scan(
		&org.ID,
		&org.ClerkOrgID,
		&org.Name,
		&org.Slug,
		&org.StripeCustomerID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// LinkStripeCustomer attaches a billing customer to an organization. Returns
// ErrStripeIDConflict when the customer is already linked elsewhere, and
// ErrStripeIDConflict also when the organization already has a different
// customer.
func (s *PostgresService) LinkStripeCustomer(ctx context.Context, clerkOrgID, customerID string) (*Organization, error) {
	existing, err := s.GetByClerkOrgID(ctx, clerkOrgID)
	if err != nil {
		return nil, err
	}
	if existing.StripeCustomerID != "" && existing.StripeCustomerID != customerID {
		return nil, ErrStripeIDConflict
	}

	query := `
		UPDATE organizations
		SET stripe_customer_id = $1, updated_at = NOW()
		WHERE clerk_org_id = $2
		RETURNING id, clerk_org_id, name, slug, COALESCE(stripe_customer_id, ''), created_at, updated_at
	`

	var org Organization
	err = s.conns.Primary().QueryRowContext(ctx, query, customerID, clerkOrgID).Scan(
		&org.ID,
		&org.ClerkOrgID,
		&org.Name,
		&org.Slug,
		&org.StripeCustomerID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrStripeIDConflict
		}
		return nil, fmt.Errorf("failed to link stripe customer: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, orgCacheKey(clerkOrgID))
	}

	return &org, nil
}

// List returns the caller's organizations ordered by creation time, newest
// first. Listing is scoped to the given clerk organization; data never
// crosses the organization boundary.
func (s *PostgresService) List(ctx context.Context, clerkOrgID string, limit, offset int) ([]*Organization, int64, error) {
	var total int64
	if err := s.conns.Replica().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM organizations WHERE clerk_org_id = $1", clerkOrgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	query := `
		SELECT id, clerk_org_id, name, slug, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM organizations
		WHERE clerk_org_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.conns.Replica().QueryContext(ctx, query, clerkOrgID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*Organization, 0)
	for rows.Next() {
		var org Organization
		if err := rows.Scan(
			&org.ID,
			&org.ClerkOrgID,
			&org.Name,
			&org.Slug,
			&org.StripeCustomerID,
			&org.CreatedAt,
			&org.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate organizations: %w", err)
	}

	return orgs, total, nil
}

// Count returns the number of organizations, for gauge metrics
func (s *PostgresService) Count(ctx context.Context) (int64, error) {
	var total int64
	err := s.conns.Replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM organizations").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", err)
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
