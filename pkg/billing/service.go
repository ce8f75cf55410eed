package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telesis-app/telesis/pkg/orgs"
	"github.com/telesis-app/telesis/pkg/storage/postgres"
)

// ErrSubscriptionNotFound is returned when no subscription row matches
var ErrSubscriptionNotFound = errors.New("subscription not found")

// PostgresService persists subscription state driven by webhook events
type PostgresService struct {
	conns *postgres.ConnectionManager
	orgs  *orgs.PostgresService
}

// NewPostgresService creates the billing service
func NewPostgresService(conns *postgres.ConnectionManager, orgService *orgs.PostgresService) *PostgresService {
	return &PostgresService{conns: conns, orgs: orgService}
}

// UpsertSubscription records the provider's subscription state. The owning
// organization is resolved through its Stripe customer.
func (s *PostgresService) UpsertSubscription(ctx context.Context, sub subscriptionObject) (*Subscription, error) {
	org, err := s.orgs.GetByStripeCustomerID(ctx, sub.Customer)
	if err != nil {
		if errors.Is(err, orgs.ErrNotFound) {
			return nil, fmt.Errorf("no organization for stripe customer %s: %w", sub.Customer, err)
		}
		return nil, err
	}

	plan := ""
	if len(sub.Items.Data) > 0 {
		plan = sub.Items.Data[0].Price.Nickname
		if plan == "" {
			plan = sub.Items.Data[0].Price.ID
		}
	}

	var periodEnd time.Time
	if sub.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	query := `
		INSERT INTO subscriptions (id, organization_id, stripe_subscription_id, status, plan, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stripe_subscription_id) DO UPDATE
		SET status = EXCLUDED.status,
		    plan = EXCLUDED.plan,
		    current_period_end = EXCLUDED.current_period_end,
		    updated_at = NOW()
		RETURNING id, organization_id, created_at, updated_at
	`

	result := &Subscription{
		StripeSubscriptionID: sub.ID,
		Status:               sub.Status,
		Plan:                 plan,
		CurrentPeriodEnd:     periodEnd,
	}

	err = s.conns.Primary().QueryRowContext(ctx, query,
		uuid.New(),
		org.ID,
		sub.ID,
		sub.Status,
		plan,
		nullableTime(periodEnd),
	).Scan(&result.ID, &result.OrganizationID, &result.CreatedAt, &result.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return result, nil
}

// MarkCanceled transitions a subscription to canceled
func (s *PostgresService) MarkCanceled(ctx context.Context, stripeSubscriptionID string) error {
	result, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE stripe_subscription_id = $2",
		StatusCanceled, stripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

// MarkActive transitions a subscription back to active after a paid invoice
func (s *PostgresService) MarkActive(ctx context.Context, stripeSubscriptionID string) error {
	result, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE stripe_subscription_id = $2",
		StatusActive, stripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to reactivate subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

// MarkPastDue transitions a subscription to past_due after a failed invoice
func (s *PostgresService) MarkPastDue(ctx context.Context, stripeSubscriptionID string) error {
	result, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE stripe_subscription_id = $2",
		StatusPastDue, stripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark subscription past due: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

// GetByOrganization returns an organization's current subscription
func (s *PostgresService) GetByOrganization(ctx context.Context, organizationID uuid.UUID) (*Subscription, error) {
	query := `
		SELECT id, organization_id, stripe_subscription_id, status, COALESCE(plan, ''),
		       COALESCE(current_period_end, 'epoch'::timestamptz), created_at, updated_at
		FROM subscriptions
		WHERE organization_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var sub Subscription
	err := s.conns.Replica().QueryRowContext(ctx, query, organizationID).Scan(
		&sub.ID,
		&sub.OrganizationID,
		&sub.StripeSubscriptionID,
		&sub.Status,
		&sub.Plan,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// ExpireLapsed marks active subscriptions whose period ended before cutoff
// as unpaid. Run by the janitor.
func (s *PostgresService) ExpireLapsed(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.conns.Primary().ExecContext(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = NOW()
		 WHERE status IN ($2, $3) AND current_period_end IS NOT NULL AND current_period_end < $4`,
		StatusUnpaid, StatusActive, StatusTrialing, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}

	return result.RowsAffected()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
