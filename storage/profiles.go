package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commenta.app/cloud/models"
)

const profileColumns = `id, email, full_name, plan, stripe_customer_id, stripe_subscription_id, stripe_subscription_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var (
		p                                      models.Profile
		fullName, customerID, subID, subStatus sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Email, &fullName, &p.Plan, &customerID, &subID, &subStatus, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.FullName = fullName.String
	p.StripeCustomerID = customerID.String
	p.StripeSubscriptionID = subID.String
	p.StripeSubscriptionStatus = subStatus.String
	return &p, nil
}

func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, userID)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// SaveProfile inserts the profile or replaces its identity fields. Billing
// fields are only written on insert.
func (s *SQLStore) SaveProfile(ctx context.Context, p *models.Profile) error {
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Plan == "" {
		p.Plan = models.PlanFree
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO profiles (id, email, full_name, plan, stripe_customer_id, stripe_subscription_id, stripe_subscription_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			updated_at = excluded.updated_at`,
		p.ID, p.Email, nullString(p.FullName), p.Plan,
		nullString(p.StripeCustomerID), nullString(p.StripeSubscriptionID), nullString(p.StripeSubscriptionStatus),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *SQLStore) ListProfiles(ctx context.Context, offset, limit int) ([]models.Profile, error) {
	return s.listProfiles(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
}

// ListProProfiles lists paying customers, most recently changed first.
func (s *SQLStore) ListProProfiles(ctx context.Context, offset, limit int) ([]models.Profile, error) {
	return s.listProfiles(ctx, `SELECT `+profileColumns+` FROM profiles WHERE plan = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`, models.PlanPro, limit, offset)
}

func (s *SQLStore) listProfiles(ctx context.Context, query string, args ...any) ([]models.Profile, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer closeRows(rows)

	profiles := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

func (s *SQLStore) CountProfiles(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM profiles`)
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

func (s *SQLStore) CountProProfiles(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM profiles WHERE plan = ?`, models.PlanPro)
	if err != nil {
		return 0, fmt.Errorf("failed to count pro profiles: %w", err)
	}
	return n, nil
}

// UpdateSubscriptionByUser applies the update to the profile with the given
// id. A missing profile is not an error.
func (s *SQLStore) UpdateSubscriptionByUser(ctx context.Context, userID string, u SubscriptionUpdate) error {
	_, err := s.exec(ctx, s.db, `
		UPDATE profiles SET
			plan = COALESCE(?, plan),
			stripe_customer_id = COALESCE(?, stripe_customer_id),
			stripe_subscription_id = COALESCE(?, stripe_subscription_id),
			stripe_subscription_status = COALESCE(?, stripe_subscription_status),
			updated_at = ?
		WHERE id = ?`,
		nullString(u.Plan), nullString(u.CustomerID), nullString(u.SubscriptionID), nullString(u.Status),
		s.now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile subscription: %w", err)
	}
	return nil
}

// UpdateSubscriptionByCustomer applies the update to every profile linked
// to the Stripe customer and returns how many were changed.
func (s *SQLStore) UpdateSubscriptionByCustomer(ctx context.Context, customerID string, u SubscriptionUpdate) (int64, error) {
	res, err := s.exec(ctx, s.db, `
		UPDATE profiles SET
			plan = COALESCE(?, plan),
			stripe_subscription_id = COALESCE(?, stripe_subscription_id),
			stripe_subscription_status = COALESCE(?, stripe_subscription_status),
			updated_at = ?
		WHERE stripe_customer_id = ?`,
		nullString(u.Plan), nullString(u.SubscriptionID), nullString(u.Status),
		s.now().UTC(), customerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update subscription for customer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
